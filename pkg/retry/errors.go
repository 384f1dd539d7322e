package retry

import (
	"context"
	"errors"
)

// permanentError marks an error that must not be retried
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that the executor stops immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable reports whether err is worth another attempt.
// Errors may opt in or out by implementing Retryable() bool.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}

	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}

	return true
}
