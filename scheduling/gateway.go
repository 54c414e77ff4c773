package scheduling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/schedgate/fhir"
	"github.com/jonwraymond/schedgate/resilience"
	"github.com/jonwraymond/schedgate/transport"
)

// Endpoint groups. Each has its own circuit breaker.
const (
	GroupFHIR     = "fhir"
	GroupStandard = "standard"
)

// Config configures a Gateway.
type Config struct {
	// FHIRBaseURL is the FHIR API root, e.g. {base}/apis/{site}/fhir.
	FHIRBaseURL string

	// StandardBaseURL is the secondary API root used for the cancellation
	// fallback, e.g. {base}/apis/{site}/api.
	StandardBaseURL string

	// Tokens supplies bearer tokens. Required.
	Tokens TokenSource

	// HTTPClient sends requests. Default: http.Client with no overall timeout;
	// attempts are bounded by AttemptTimeout.
	HTTPClient transport.Doer

	// RateLimiter is shared by both endpoint groups.
	// Default: 10 requests/second
	RateLimiter *resilience.RateLimiter

	// FHIRBreaker and StandardBreaker guard the two endpoint groups.
	// Default: 5 failures, 30s cooldown, counting only transient failures.
	FHIRBreaker     *resilience.CircuitBreaker
	StandardBreaker *resilience.CircuitBreaker

	// Retry configures bounded retries. RetryIf defaults to transport.Transient.
	Retry resilience.RetryConfig

	// AttemptTimeout bounds each attempt. Default: 5 seconds
	AttemptTimeout time.Duration

	// Rules are the booking constraints.
	Rules Rules

	// DefaultDurationMinutes applies when a request gives none. Default: 30
	DefaultDurationMinutes int

	// ConflictLookback widens the appointment query backwards so bookings
	// that started before the window but overlap it are found. Default: 12h
	ConflictLookback time.Duration

	// SuggestionWindow is how far either side of a conflicting request free
	// slots are searched. Default: 24h
	SuggestionWindow time.Duration

	// MaxSuggestions bounds suggestions per conflict. Default: 3
	MaxSuggestions int

	// MaxPages bounds Bundle paging per search. Default: 5
	MaxPages int

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

type endpoint struct {
	client   *transport.Client
	executor *resilience.Executor
}

// Gateway is the resilient scheduling client for a remote EHR. It is safe for
// concurrent use.
type Gateway struct {
	config   Config
	fhir     endpoint
	standard endpoint
}

// NewGateway creates a scheduling gateway.
func NewGateway(config Config) (*Gateway, error) {
	if config.Tokens == nil {
		return nil, errors.New("scheduling: token source is required")
	}
	for name, raw := range map[string]string{"FHIR": config.FHIRBaseURL, "standard": config.StandardBaseURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("scheduling: %s base URL %q is not absolute", name, raw)
		}
	}

	// Apply defaults
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.RateLimiter == nil {
		config.RateLimiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 10})
	}
	if config.FHIRBreaker == nil {
		config.FHIRBreaker = NewBreaker(GroupFHIR, resilience.CircuitBreakerConfig{})
	}
	if config.StandardBreaker == nil {
		config.StandardBreaker = NewBreaker(GroupStandard, resilience.CircuitBreakerConfig{})
	}
	if config.Retry.RetryIf == nil {
		config.Retry.RetryIf = transport.Transient
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = 5 * time.Second
	}
	config.Rules = config.Rules.withDefaults()
	if config.DefaultDurationMinutes <= 0 {
		config.DefaultDurationMinutes = 30
	}
	if config.ConflictLookback <= 0 {
		config.ConflictLookback = 12 * time.Hour
	}
	if config.SuggestionWindow <= 0 {
		config.SuggestionWindow = 24 * time.Hour
	}
	if config.MaxSuggestions <= 0 {
		config.MaxSuggestions = 3
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 5
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	retry := resilience.NewRetry(config.Retry)
	newEndpoint := func(base string, cb *resilience.CircuitBreaker) endpoint {
		return endpoint{
			client: transport.NewClient(base, transport.WithDoer(config.HTTPClient)),
			executor: resilience.NewExecutor(
				resilience.WithRateLimiter(config.RateLimiter),
				resilience.WithCircuitBreaker(cb),
				resilience.WithRetry(retry),
				resilience.WithTimeout(config.AttemptTimeout),
			),
		}
	}

	return &Gateway{
		config:   config,
		fhir:     newEndpoint(config.FHIRBaseURL, config.FHIRBreaker),
		standard: newEndpoint(config.StandardBaseURL, config.StandardBreaker),
	}, nil
}

// NewBreaker returns a circuit breaker for an endpoint group that counts only
// transient failures (network, 5xx, 429, timeouts). Client errors such as a
// 404 or 409 say nothing about the dependency's health.
func NewBreaker(group string, config resilience.CircuitBreakerConfig) *resilience.CircuitBreaker {
	config.Name = group
	if config.IsFailure == nil {
		config.IsFailure = transport.Transient
	}
	return resilience.NewCircuitBreaker(config)
}

// Breakers returns the circuit breakers in use, FHIR first.
func (g *Gateway) Breakers() []*resilience.CircuitBreaker {
	return []*resilience.CircuitBreaker{g.config.FHIRBreaker, g.config.StandardBreaker}
}

// RateLimiter returns the shared rate limiter.
func (g *Gateway) RateLimiter() *resilience.RateLimiter {
	return g.config.RateLimiter
}

// Rules returns the booking constraints in effect.
func (g *Gateway) Rules() Rules {
	return g.config.Rules
}

// call sends one logical request: a valid token is ensured first, every
// attempt passes through the endpoint's executor, and a 401 renews the token
// and replays the request exactly once.
func (g *Gateway) call(ctx context.Context, ep endpoint, req transport.Request) (*transport.Response, error) {
	token, err := g.config.Tokens.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := g.send(ctx, ep, req, token)
	if !errors.Is(err, transport.ErrUnauthorized) {
		return resp, err
	}

	token, rerr := g.config.Tokens.Renew(ctx, token)
	if rerr != nil {
		return nil, fmt.Errorf("renew token after 401: %w", rerr)
	}
	return g.send(ctx, ep, req, token)
}

func (g *Gateway) send(ctx context.Context, ep endpoint, req transport.Request, token string) (*transport.Response, error) {
	req.Bearer = token
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("Accept", "application/fhir+json, application/json")

	// An attempt abandoned by its timeout may still finish; only a success is
	// ever stored.
	var ok atomic.Pointer[transport.Response]
	var last atomic.Pointer[transport.Response]
	err := ep.executor.Execute(ctx, func(ctx context.Context) error {
		resp, err := ep.client.Do(ctx, req)
		if err != nil {
			if resp != nil {
				last.Store(resp)
			}
			return err
		}
		ok.Store(resp)
		return nil
	})
	if err != nil {
		return last.Load(), err
	}
	return ok.Load(), nil
}

// search runs a FHIR search and passes every page to fn.
func (g *Gateway) search(ctx context.Context, resourceType string, query url.Values, fn func(*fhir.Bundle) error) error {
	req := transport.Request{Method: http.MethodGet, Path: resourceType, Query: query}

	for page := 0; page < g.config.MaxPages; page++ {
		resp, err := g.call(ctx, g.fhir, req)
		if err != nil {
			return fmt.Errorf("search %s: %w", resourceType, err)
		}

		var bundle fhir.Bundle
		if err := resp.DecodeJSON(&bundle); err != nil {
			return fmt.Errorf("search %s: %w", resourceType, err)
		}
		if err := fn(&bundle); err != nil {
			return err
		}

		next := bundle.NextLink()
		if next == "" {
			return nil
		}
		req = transport.Request{Method: http.MethodGet, Path: next}
	}
	return nil
}

func fhirTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

var _ Scheduler = (*Gateway)(nil)
