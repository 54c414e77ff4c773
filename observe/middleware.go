package observe

import (
	"context"
	"time"
)

// OpFunc is one call being observed.
type OpFunc func(ctx context.Context) error

// Middleware wraps scheduling calls with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Observe is safe for concurrent use.
//   - Context: the span is carried on the context passed to fn.
//   - Errors: errors from fn are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
	now     func() time.Time
}

// NewMiddleware creates a Middleware. Nil components fall back to no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = &noopMetrics{}
	}
	if logger == nil {
		logger = &noopLogger{}
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Observe runs fn inside a span and records its outcome.
func (m *Middleware) Observe(ctx context.Context, meta OpMeta, fn OpFunc) error {
	ctx, span := m.tracer.StartSpan(ctx, meta)
	start := m.now()

	err := fn(ctx)

	duration := m.now().Sub(start)
	m.tracer.EndSpan(span, err)
	m.metrics.RecordOperation(ctx, meta, duration, err)

	fields := append(meta.fields(), Field{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000})
	if err != nil {
		fields = append(fields,
			Field{Key: "error", Value: err.Error()},
			Field{Key: "error_kind", Value: ErrorKind(err)},
		)
		// Expected outcomes are not operational failures.
		switch ErrorKind(err) {
		case "conflict", "business_rule", "invalid_request", "not_found":
			m.logger.Warn(ctx, "scheduling operation rejected", fields...)
		default:
			m.logger.Error(ctx, "scheduling operation failed", fields...)
		}
		return err
	}

	m.logger.Info(ctx, "scheduling operation completed", fields...)
	return nil
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
