package retry

import "time"

// Policy defines the retry policy configuration
type Policy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaximumInterval    time.Duration
	MaximumAttempts    int32
	// Jitter randomizes each wait by +/- the given fraction (0 disables it)
	Jitter float64
	// OnRetry is called before each wait with the attempt that failed
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Option represents a retry policy option
type Option func(*Policy)

// WithInitialInterval sets the initial interval for retries
func WithInitialInterval(interval time.Duration) Option {
	return func(p *Policy) {
		p.InitialInterval = interval
	}
}

// WithBackoffCoefficient sets the backoff coefficient
func WithBackoffCoefficient(coefficient float64) Option {
	return func(p *Policy) {
		p.BackoffCoefficient = coefficient
	}
}

// WithMaximumInterval sets the maximum interval between retries
func WithMaximumInterval(interval time.Duration) Option {
	return func(p *Policy) {
		p.MaximumInterval = interval
	}
}

// WithMaxAttempts sets the maximum number of attempts, including the first call
func WithMaxAttempts(attempts int32) Option {
	return func(p *Policy) {
		p.MaximumAttempts = attempts
	}
}

// WithJitter sets the randomization factor applied to each wait
func WithJitter(jitter float64) Option {
	return func(p *Policy) {
		p.Jitter = jitter
	}
}

// WithOnRetry registers a hook called before every retry
func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(p *Policy) {
		p.OnRetry = fn
	}
}

// NewPolicy creates a new retry policy with default values.
// The defaults wait 2s, 4s, 8s, ... capped at 60s and stop after 5 attempts.
func NewPolicy(opts ...Option) *Policy {
	policy := &Policy{
		InitialInterval:    2 * time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    60 * time.Second,
		MaximumAttempts:    5,
	}

	for _, opt := range opts {
		opt(policy)
	}

	return policy
}
