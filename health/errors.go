package health

import "errors"

var (
	// ErrCheckTimeout indicates a health check did not finish in time.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound indicates no checker is registered under a name.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrCircuitOpen indicates a breaker is rejecting calls.
	ErrCircuitOpen = errors.New("health: circuit open")

	// ErrNoToken indicates the authority holds no access token.
	ErrNoToken = errors.New("health: no access token")

	// ErrUnreachable indicates the EHR could not be reached.
	ErrUnreachable = errors.New("health: ehr unreachable")
)
