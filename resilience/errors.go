package resilience

import "errors"

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker refuses admission,
	// either because it is open or because its half-open trial is in flight.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open - service unavailable")

	// ErrTimeout is returned when a single attempt exceeds its time budget.
	ErrTimeout = errors.New("resilience: attempt timed out")
)
