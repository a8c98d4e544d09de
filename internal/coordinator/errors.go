package coordinator

import "errors"

// Sentinel errors returned by the Coordinator.
var (
	// ErrValidation is returned when a request is missing a required field
	// or carries a malformed value. No state is changed.
	ErrValidation = errors.New("validation error")

	// ErrInvalidConfig is returned by New when options are unusable.
	ErrInvalidConfig = errors.New("invalid coordinator configuration")

	// ErrSpaceExhausted is returned when the next range would run past the
	// largest representable candidate.
	ErrSpaceExhausted = errors.New("search space exhausted")

	// ErrPersistence is returned when in-memory state was updated but could
	// not be written to the store. The in-memory state remains authoritative.
	ErrPersistence = errors.New("persistence failed")
)
