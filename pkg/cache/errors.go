package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNetwork marks a failure to reach a remote backend.
var ErrNetwork = errors.New("cache backend unreachable")

// BackoffBase is the first delay of RetryWithBackoff.
var BackoffBase = 200 * time.Millisecond

// RetryableError marks a transient backend failure.
type RetryableError struct{ Err error }

// Retryable wraps err so RetryWithBackoff tries again. It returns nil for a
// nil err.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Error returns the error message of the wrapped error.
func (e *RetryableError) Error() string { return e.Err.Error() }

// Unwrap returns the wrapped error.
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err or anything it wraps is a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// retryAttempts bounds RetryWithBackoff.
const retryAttempts = 3

// RetryWithBackoff calls fn until it succeeds, returns an error that is not
// retryable, or has been tried retryAttempts times. The delay starts at
// BackoffBase and doubles after every failure. A done ctx ends the wait
// with ctx.Err().
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	delay := BackoffBase
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !IsRetryable(err) || attempt == retryAttempts {
			return err
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
}
