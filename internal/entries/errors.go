package entries

import "errors"

// Domain-specific errors for entry operations.
var (
	// ErrEntryNotFound is returned when an entry ID does not exist.
	ErrEntryNotFound = errors.New("entries: entry not found")

	// ErrInvalidEntry is returned when an entry fails validation.
	ErrInvalidEntry = errors.New("entries: invalid entry")

	// ErrDuplicateEntry is returned when two entries share an ID.
	ErrDuplicateEntry = errors.New("entries: duplicate entry id")

	// ErrInvalidOptions is returned when stored options cannot be decoded or
	// a patch value has the wrong shape.
	ErrInvalidOptions = errors.New("entries: invalid options")
)
