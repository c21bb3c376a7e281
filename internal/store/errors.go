package store

import "errors"

var (
	// ErrNotFound is returned when a queue record does not exist.
	ErrNotFound = errors.New("queue record not found")
	// ErrUnavailable is returned when the durable store cannot be opened or
	// written. Callers must surface this to the user rather than silently
	// dropping the submission.
	ErrUnavailable = errors.New("queue store unavailable")
)
