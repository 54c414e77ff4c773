package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// OpMeta describes one scheduling call for telemetry.
type OpMeta struct {
	Name           string // operation, e.g. "create_appointment" (required)
	PractitionerID string // optional
	AppointmentID  string // optional
}

// SpanName returns the deterministic span name: scheduling.<name>.
func (m OpMeta) SpanName() string {
	return "scheduling." + m.Name
}

func (m OpMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("scheduling.operation", m.Name),
	}
	if m.PractitionerID != "" {
		attrs = append(attrs, attribute.String("scheduling.practitioner_id", m.PractitionerID))
	}
	if m.AppointmentID != "" {
		attrs = append(attrs, attribute.String("scheduling.appointment_id", m.AppointmentID))
	}
	return attrs
}

func (m OpMeta) fields() []Field {
	fields := []Field{{Key: "operation", Value: m.Name}}
	if m.PractitionerID != "" {
		fields = append(fields, Field{Key: "practitioner_id", Value: m.PractitionerID})
	}
	if m.AppointmentID != "" {
		fields = append(fields, Field{Key: "appointment_id", Value: m.AppointmentID})
	}
	return fields
}

// Tracer wraps OpenTelemetry tracing with per-operation span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span for one scheduling call.
	StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("scheduling.error", false))
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.Bool("scheduling.error", true),
			attribute.String("error.kind", ErrorKind(err)),
		)
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
