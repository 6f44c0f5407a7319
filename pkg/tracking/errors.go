package tracking

import "errors"

// Sentinel errors returned by all store backends.
var (
	// ErrNotFound is returned when an experiment, run, model, or artifact
	// does not exist or has been deleted.
	ErrNotFound = errors.New("tracking: resource not found")

	// ErrAlreadyExists is returned when a resource with the given name or ID
	// already exists.
	ErrAlreadyExists = errors.New("tracking: resource already exists")
)
