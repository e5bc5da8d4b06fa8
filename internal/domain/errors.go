package domain

import "errors"

var (
	// ErrJobNotFound is returned when updating a job that was never created
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when creating a job under an id already in use
	ErrJobExists = errors.New("job already exists")

	// ErrInvalidTransition is returned when a patch would move a job backwards or out of a terminal state
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrConcurrentUpdate is returned when the stored status changed between read and write
	ErrConcurrentUpdate = errors.New("job was modified concurrently")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
