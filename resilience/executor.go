package resilience

import (
	"context"
	"errors"
	"time"
)

// Executor composes the resilience patterns guarding one remote dependency.
type Executor struct {
	circuitBreaker *CircuitBreaker
	retry          *Retry
	rateLimiter    *RateLimiter
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker = cb
	}
}

// WithRetry adds retry logic to the executor.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		e.retry = r
	}
}

// WithRateLimiter adds rate limiting to the executor.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = rl
	}
}

// WithTimeout adds a per-attempt timeout to the executor.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout})
	}
}

// WithTimeoutConfig adds a per-attempt timeout with custom config to the executor.
func WithTimeoutConfig(t *Timeout) ExecutorOption {
	return func(e *Executor) {
		e.timeout = t
	}
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker {
	return e.circuitBreaker
}

// RateLimiter returns the configured limiter, or nil.
func (e *Executor) RateLimiter() *RateLimiter {
	return e.rateLimiter
}

// Execute runs the operation through all configured resilience patterns.
//
// Every attempt passes through, in order:
//  1. Rate Limiter (if configured) - waits for a dispatch slot
//  2. Circuit Breaker (if configured) - admits or fails fast
//  3. Timeout (if configured) - bounds the attempt
//
// and its outcome is reported back to the breaker. Retry (if configured)
// wraps whole attempts. A rejection by an open breaker is never retried.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	if e.retry == nil {
		return e.attempt(ctx, op)
	}

	retryIf := e.retry.config.RetryIf
	guarded := *e.retry
	guarded.config.RetryIf = func(err error) bool {
		if errors.Is(err, ErrCircuitOpen) {
			return false
		}
		return retryIf(err)
	}

	return guarded.Execute(ctx, func(ctx context.Context) error {
		return e.attempt(ctx, op)
	})
}

func (e *Executor) attempt(ctx context.Context, op func(context.Context) error) error {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.Acquire(ctx); err != nil {
			return err
		}
	}

	record := func(error) {}
	if e.circuitBreaker != nil {
		r, err := e.circuitBreaker.Admit()
		if err != nil {
			return err
		}
		record = r
	}

	var err error
	if e.timeout != nil {
		err = e.timeout.Execute(ctx, op)
	} else {
		err = op(ctx)
	}

	record(err)
	return err
}
