// Package resilience provides the fault-tolerance primitives that guard calls
// to a remote EHR.
//
// # Patterns
//
//   - Circuit Breaker: fails fast once a dependency has failed a number of
//     consecutive times, then admits a single trial after a cooldown. Backed by
//     github.com/sony/gobreaker.
//
//   - Rate Limiter: paces dispatches so that no two leave closer than
//     1/Rate apart. Callers are delayed, never rejected. Backed by
//     golang.org/x/time/rate.
//
//   - Retry: retries transient failures with exponential, linear or constant
//     backoff and an optional jitter.
//
//   - Timeout: bounds a single attempt.
//
// # Usage
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    Name:         "fhir",
//	    MaxFailures:  5,
//	    ResetTimeout: 30 * time.Second,
//	})
//
//	executor := resilience.NewExecutor(
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 10})),
//	    resilience.WithCircuitBreaker(cb),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3})),
//	    resilience.WithTimeout(5*time.Second),
//	)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return callEHR(ctx)
//	})
//
// Each attempt waits on the limiter, asks the breaker for admission, runs under
// the timeout and reports its outcome. A fast-fail from an open breaker ends
// the retry loop.
package resilience
