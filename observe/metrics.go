package observe

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/schedgate/auth"
	"github.com/jonwraymond/schedgate/resilience"
	"github.com/jonwraymond/schedgate/scheduling"
	"github.com/jonwraymond/schedgate/transport"
)

// Metrics records per-operation metrics for the gateway.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOperation records one call with its duration and outcome.
	RecordOperation(ctx context.Context, meta OpMeta, duration time.Duration, err error)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates the gateway instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"scheduling.op.total",
		metric.WithDescription("Total number of scheduling operations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"scheduling.op.errors",
		metric.WithDescription("Total number of failed scheduling operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"scheduling.op.duration_ms",
		metric.WithDescription("Scheduling operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordOperation(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(attribute.String("operation", meta.Name))

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", meta.Name),
			attribute.String("error.kind", ErrorKind(err)),
		))
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

// ObserveBreakers registers a gauge reporting each breaker's state
// (0 closed, 1 half-open, 2 open) and consecutive failures.
func ObserveBreakers(meter metric.Meter, breakers ...*resilience.CircuitBreaker) error {
	state, err := meter.Int64ObservableGauge(
		"resilience.breaker.state",
		metric.WithDescription("Circuit breaker state: 0 closed, 1 half-open, 2 open"),
	)
	if err != nil {
		return err
	}
	failures, err := meter.Int64ObservableGauge(
		"resilience.breaker.consecutive_failures",
		metric.WithDescription("Consecutive failures counted by the circuit breaker"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, cb := range breakers {
			m := cb.Metrics()
			opt := metric.WithAttributes(attribute.String("breaker", m.Name))
			o.ObserveInt64(state, stateValue(m.State), opt)
			o.ObserveInt64(failures, int64(m.ConsecutiveFailures), opt)
		}
		return nil
	}, state, failures)
	return err
}

func stateValue(s resilience.State) int64 {
	switch s {
	case resilience.StateHalfOpen:
		return 1
	case resilience.StateOpen:
		return 2
	default:
		return 0
	}
}

// ErrorKind classifies an error into a low-cardinality label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, scheduling.ErrConflict):
		return "conflict"
	case errors.Is(err, scheduling.ErrBusinessRule):
		return "business_rule"
	case errors.Is(err, scheduling.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, scheduling.ErrNotFound), errors.Is(err, transport.ErrNotFound):
		return "not_found"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, resilience.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, auth.ErrAuthentication), errors.Is(err, transport.ErrUnauthorized):
		return "auth"
	case errors.Is(err, transport.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, transport.ErrServer):
		return "server"
	case errors.Is(err, transport.ErrClientRequest):
		return "client_request"
	case errors.Is(err, transport.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (m *noopMetrics) RecordOperation(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
}
