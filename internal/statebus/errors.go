package statebus

import "errors"

// Domain-specific errors for statebus operations.
var (
	// ErrNotStarted is returned by operations that need the broker subscriptions.
	ErrNotStarted = errors.New("statebus: not started")

	// ErrInvalidPosition is returned for positions outside [0,100].
	ErrInvalidPosition = errors.New("statebus: position out of range")

	// ErrInvalidPayload is returned when a state or ack document cannot be decoded.
	ErrInvalidPayload = errors.New("statebus: invalid payload")

	// ErrAckTimeout is returned when a blocking command is not acknowledged in time.
	ErrAckTimeout = errors.New("statebus: command not acknowledged")

	// ErrCommandFailed is returned when the bridge rejects a command.
	ErrCommandFailed = errors.New("statebus: command failed")
)
