package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotCompleted marks a job whose artifact was requested before a
	// completed status was reached.
	ErrNotCompleted = errors.New("job not completed")
)
