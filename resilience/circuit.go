package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means calls are admitted normally.
	StateClosed State = iota
	// StateOpen means calls fail fast without reaching the dependency.
	StateOpen
	// StateHalfOpen means a single trial call is admitted.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func fromGoBreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the guarded endpoint group (e.g. "fhir").
	Name string

	// MaxFailures is the number of consecutive failures that opens the circuit.
	// Default: 5
	MaxFailures int

	// ResetTimeout is the cooldown before an open circuit admits a trial call.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// OnStateChange is called on every transition. It runs while the breaker
	// holds its lock and must not call back into the breaker.
	OnStateChange func(from, to State)

	// IsFailure determines if an outcome counts against the dependency.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool

	// IsNeutral marks outcomes that say nothing about the dependency, such as
	// a call the caller abandoned. In the closed state they leave the counters
	// untouched. A neutral half-open trial counts as a failure, so the circuit
	// only closes on a real success.
	// Default: errors matching context.Canceled.
	IsNeutral func(err error) bool
}

// CircuitBreaker gates admission to one logical remote dependency.
type CircuitBreaker struct {
	config  CircuitBreakerConfig
	breaker *gobreaker.TwoStepCircuitBreaker

	mu             sync.Mutex
	lastTransition time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Name == "" {
		config.Name = "default"
	}
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	if config.IsNeutral == nil {
		config.IsNeutral = func(err error) bool { return errors.Is(err, context.Canceled) }
	}

	cb := &CircuitBreaker{
		config:         config,
		lastTransition: time.Now(),
	}

	threshold := uint32(config.MaxFailures)
	cb.breaker = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     config.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			cb.mu.Lock()
			cb.lastTransition = time.Now()
			cb.mu.Unlock()
			if config.OnStateChange != nil {
				config.OnStateChange(fromGoBreaker(from), fromGoBreaker(to))
			}
		},
	})

	return cb
}

// Name returns the endpoint group this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Admit asks for permission to issue one call. On success the returned
// function must be called exactly once with the call's outcome.
func (cb *CircuitBreaker) Admit() (func(err error), error) {
	done, err := cb.breaker.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	trial := cb.State() == StateHalfOpen

	return func(outcome error) {
		if cb.config.IsNeutral(outcome) {
			if trial {
				done(false)
			}
			return
		}
		done(!cb.config.IsFailure(outcome))
	}, nil
}

// Execute runs the operation through the circuit breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	record, err := cb.Admit()
	if err != nil {
		return err
	}

	err = op(ctx)
	record(err)
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	return fromGoBreaker(cb.breaker.State())
}

// Metrics returns current circuit breaker metrics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	state := cb.State()
	counts := cb.breaker.Counts()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerMetrics{
		Name:                cb.config.Name,
		State:               state,
		ConsecutiveFailures: int(counts.ConsecutiveFailures),
		TotalFailures:       int(counts.TotalFailures),
		TotalSuccesses:      int(counts.TotalSuccesses),
		LastTransition:      cb.lastTransition,
	}
}

// CircuitBreakerMetrics contains circuit breaker statistics. Counters cover
// the current generation only; they reset on every state transition.
type CircuitBreakerMetrics struct {
	Name                string
	State               State
	ConsecutiveFailures int
	TotalFailures       int
	TotalSuccesses      int
	LastTransition      time.Time
}
