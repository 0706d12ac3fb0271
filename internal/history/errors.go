package history

import "errors"

// Domain-specific errors for the history package.
var (
	// ErrCoverRequired is returned when a query or record has no cover id.
	ErrCoverRequired = errors.New("history: cover id is required")

	// ErrInvalidRetention is returned when Prune gets a non-positive duration.
	ErrInvalidRetention = errors.New("history: retention must be positive")

	// ErrRecorderStopped is returned when Start is called on a stopped recorder.
	ErrRecorderStopped = errors.New("history: recorder stopped")
)
