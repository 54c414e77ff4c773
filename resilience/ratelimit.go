package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is the sustained number of dispatches allowed per second.
	// Default: 10
	Rate float64
}

// RateLimiter paces dispatches to one remote dependency. No two dispatches
// leave closer than 1/Rate apart. It delays callers until their turn and never
// rejects them.
type RateLimiter struct {
	config  RateLimiterConfig
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10
	}

	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), 1),
	}
}

// Acquire blocks until a dispatch slot is available. It returns an error only
// when ctx ends first; a deadline that falls before the slot does not fail the
// call until it actually passes.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r := rl.limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Execute waits for a dispatch slot, then runs the operation.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := rl.Acquire(ctx); err != nil {
		return err
	}
	return op(ctx)
}

// MinInterval is the minimum spacing between dispatches.
func (rl *RateLimiter) MinInterval() time.Duration {
	return time.Duration(float64(time.Second) / rl.config.Rate)
}

// Tokens returns the number of dispatches available right now.
func (rl *RateLimiter) Tokens() float64 {
	return rl.limiter.Tokens()
}

// Config returns the rate limiter configuration.
func (rl *RateLimiter) Config() RateLimiterConfig {
	return rl.config
}
