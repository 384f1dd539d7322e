package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is wrapped around the last error once every attempt has failed
var ErrExhausted = errors.New("retry attempts exhausted")

// Executor runs operations under a retry Policy
type Executor struct {
	policy    *Policy
	retryable func(error) bool
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithClassifier overrides which errors are retried
func WithClassifier(fn func(error) bool) ExecutorOption {
	return func(e *Executor) {
		e.retryable = fn
	}
}

// NewExecutor creates a new Executor. A nil policy uses the defaults.
func NewExecutor(policy *Policy, options ...ExecutorOption) *Executor {
	if policy == nil {
		policy = NewPolicy()
	}

	e := &Executor{
		policy:    policy,
		retryable: IsRetryable,
	}

	for _, option := range options {
		option(e)
	}

	return e
}

// Policy returns the policy the executor runs with
func (e *Executor) Policy() Policy {
	return *e.policy
}

// Execute calls op until it succeeds, returns a non-retryable error,
// the context is done, or MaximumAttempts calls have been made.
func (e *Executor) Execute(ctx context.Context, op func() error) error {
	attempts := 0
	var lastErr error

	wrapped := func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !e.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if e.policy.OnRetry != nil {
			e.policy.OnRetry(attempts, err, wait)
		}
	}

	err := backoff.RetryNotify(wrapped, e.backOff(ctx), notify)
	if err == nil {
		return nil
	}

	// Context errors surface as-is so callers can tell cancellation apart
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: last error: %v", ctxErr, lastErr)
	}

	if e.retryable(err) && e.policy.MaximumAttempts > 0 && attempts >= int(e.policy.MaximumAttempts) {
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, err)
	}

	return err
}

func (e *Executor) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = e.policy.InitialInterval
	eb.Multiplier = e.policy.BackoffCoefficient
	eb.MaxInterval = e.policy.MaximumInterval
	eb.RandomizationFactor = e.policy.Jitter
	eb.MaxElapsedTime = 0
	eb.Reset()

	var b backoff.BackOff = eb
	if e.policy.MaximumAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(e.policy.MaximumAttempts-1))
	}

	return backoff.WithContext(b, ctx)
}
