package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jonwraymond/schedgate/auth"
	"github.com/jonwraymond/schedgate/resilience"
	"github.com/jonwraymond/schedgate/transport"
)

// BreakerChecker maps a circuit breaker's state to health: closed is
// healthy, half-open degraded, open unhealthy.
type BreakerChecker struct {
	cb *resilience.CircuitBreaker
}

// NewBreakerChecker creates a checker for cb.
func NewBreakerChecker(cb *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{cb: cb}
}

// Name returns "breaker:<group>".
func (c *BreakerChecker) Name() string {
	return "breaker:" + c.cb.Name()
}

// Check reports the breaker state with its counters.
func (c *BreakerChecker) Check(ctx context.Context) Result {
	m := c.cb.Metrics()
	details := map[string]any{
		"state":                m.State.String(),
		"consecutive_failures": m.ConsecutiveFailures,
		"total_failures":       m.TotalFailures,
		"total_successes":      m.TotalSuccesses,
		"last_transition":      m.LastTransition.UTC().Format(time.RFC3339),
	}

	switch m.State {
	case resilience.StateOpen:
		return Unhealthy(m.Name+" circuit open", ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded(m.Name + " circuit probing").WithDetails(details)
	default:
		return Healthy(m.Name + " circuit closed").WithDetails(details)
	}
}

// TokenSource exposes the authority's held token. *auth.Authority satisfies it.
type TokenSource interface {
	Token() (auth.TokenSet, bool)
	RefreshWindow() time.Duration
}

// TokenChecker reports whether the gateway holds a usable access token.
type TokenChecker struct {
	src TokenSource
	now func() time.Time
}

// NewTokenChecker creates a checker for src. now defaults to time.Now.
func NewTokenChecker(src TokenSource, now func() time.Time) *TokenChecker {
	if now == nil {
		now = time.Now
	}
	return &TokenChecker{src: src, now: now}
}

// Name returns "token".
func (c *TokenChecker) Name() string {
	return "token"
}

// Check is unhealthy with no token, or with an expired token that cannot be
// refreshed. A token inside the refresh window, or expired but refreshable,
// is degraded.
func (c *TokenChecker) Check(ctx context.Context) Result {
	ts, ok := c.src.Token()
	if !ok {
		return Unhealthy("no access token held", ErrNoToken)
	}

	now := c.now()
	refreshable := ts.RefreshToken != ""
	details := map[string]any{
		"token_type":     ts.TokenType,
		"scope":          ts.Scope,
		"refreshable":    refreshable,
		"refresh_window": c.src.RefreshWindow().String(),
	}
	if ts.Expiry.IsZero() {
		return Healthy("token held without reported expiry").WithDetails(details)
	}
	details["expires_at"] = ts.Expiry.UTC().Format(time.RFC3339)
	details["expires_in"] = ts.Expiry.Sub(now).Round(time.Second).String()

	switch {
	case !now.Before(ts.Expiry) && !refreshable:
		return Unhealthy("token expired", ErrNoToken).WithDetails(details)
	case !now.Before(ts.Expiry):
		return Degraded("token expired, refresh pending").WithDetails(details)
	case ts.ExpiresWithin(now, c.src.RefreshWindow()):
		return Degraded("token inside refresh window").WithDetails(details)
	default:
		return Healthy("token valid").WithDetails(details)
	}
}

// LimiterChecker reports degraded while the shared limiter has no capacity,
// meaning outbound calls are being delayed.
type LimiterChecker struct {
	rl *resilience.RateLimiter
}

// NewLimiterChecker creates a checker for rl.
func NewLimiterChecker(rl *resilience.RateLimiter) *LimiterChecker {
	return &LimiterChecker{rl: rl}
}

// Name returns "rate_limiter".
func (c *LimiterChecker) Name() string {
	return "rate_limiter"
}

// Check reports available capacity.
func (c *LimiterChecker) Check(ctx context.Context) Result {
	cfg := c.rl.Config()
	tokens := c.rl.Tokens()
	details := map[string]any{
		"rate":         cfg.Rate,
		"tokens":       tokens,
		"min_interval": c.rl.MinInterval().String(),
	}
	if tokens < 1 {
		return Degraded("dispatches are being delayed").WithDetails(details)
	}
	return Healthy("capacity available").WithDetails(details)
}

// EHRChecker fetches the FHIR CapabilityStatement to confirm the EHR answers.
// The metadata endpoint is unauthenticated on SMART servers.
type EHRChecker struct {
	client *transport.Client
}

// NewEHRChecker creates a checker against the FHIR base of client.
func NewEHRChecker(client *transport.Client) *EHRChecker {
	return &EHRChecker{client: client}
}

// Name returns "ehr".
func (c *EHRChecker) Name() string {
	return "ehr"
}

// Check is unhealthy on transport failures and 5xx, degraded on other
// non-2xx answers since the server is at least responding.
func (c *EHRChecker) Check(ctx context.Context) Result {
	resp, err := c.client.Do(ctx, transport.Request{
		Path:   "metadata",
		Header: map[string][]string{"Accept": {"application/fhir+json"}},
	})
	details := map[string]any{"url": c.client.URL("metadata")}

	var se *transport.StatusError
	switch {
	case errors.As(err, &se) && se.StatusCode < 500:
		details["status_code"] = se.StatusCode
		return Degraded(fmt.Sprintf("metadata returned %d", se.StatusCode)).WithDetails(details)
	case err != nil:
		return Unhealthy("ehr unreachable", fmt.Errorf("%w: %w", ErrUnreachable, err)).WithDetails(details)
	}

	doc := gjson.ParseBytes(resp.Body)
	if doc.Get("resourceType").String() != "CapabilityStatement" {
		return Degraded("metadata is not a CapabilityStatement").WithDetails(details)
	}
	details["fhir_version"] = doc.Get("fhirVersion").String()
	if name := doc.Get("software.name").String(); name != "" {
		details["software"] = name + " " + doc.Get("software.version").String()
	}
	return Healthy("ehr reachable").WithDetails(details)
}
