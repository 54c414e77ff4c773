package resilience

import (
	"context"
	"errors"
	"time"
)

// TimeoutConfig configures the per-attempt timeout.
type TimeoutConfig struct {
	// Timeout bounds a single attempt.
	// Default: 5 seconds
	Timeout time.Duration
}

// Timeout bounds one attempt of an operation.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	return &Timeout{config: config}
}

// Execute runs the operation under the timeout. An attempt that outlives the
// deadline yields ErrTimeout; a cancelled parent context yields its own error.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- op(attemptCtx)
	}()

	select {
	case err := <-done:
		if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil &&
			errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTimeout
	}
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}
