// Package health reports the state of the gateway's dependencies.
//
// Checkers cover the pieces whose state decides whether scheduling calls can
// succeed: each endpoint group's circuit breaker, the held access token, the
// shared rate limiter, and reachability of the EHR's FHIR metadata endpoint.
// An Aggregator runs them together and reduces the results to the worst
// status.
//
//	agg := health.NewAggregator()
//	for _, cb := range gateway.Breakers() {
//	    agg.RegisterChecker(health.NewBreakerChecker(cb))
//	}
//	agg.RegisterChecker(health.NewTokenChecker(authority, nil))
//	agg.RegisterChecker(health.NewLimiterChecker(gateway.RateLimiter()))
//
// RegisterHandlers mounts /healthz (liveness), /readyz (readiness, 503 only
// when unhealthy), /health (JSON detail) and /health/{name}.
package health
