package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jonwraymond/schedgate/auth"
	"github.com/jonwraymond/schedgate/resilience"
	"github.com/jonwraymond/schedgate/scheduling"
	"github.com/jonwraymond/schedgate/transport"
)

func newTestMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader sdkmetric.Reader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64] for %s, got %T", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// TestMetrics_CountsSuccess verifies total increments and errors do not.
func TestMetrics_CountsSuccess(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordOperation(context.Background(), OpMeta{Name: OpGetAppointment}, 100*time.Millisecond, nil)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "scheduling.op.total"); got != 1 {
		t.Errorf("expected total=1, got %d", got)
	}
	if got := sumValue(t, rm, "scheduling.op.errors"); got != 0 {
		t.Errorf("expected errors=0, got %d", got)
	}
}

// TestMetrics_ErrorKindLabel verifies failures are labelled by kind.
func TestMetrics_ErrorKindLabel(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordOperation(context.Background(), OpMeta{Name: OpCreateAppointment}, time.Millisecond, scheduling.ErrConflict)

	rm := collect(t, reader)
	found := findMetric(rm, "scheduling.op.errors")
	if found == nil {
		t.Fatal("scheduling.op.errors metric not found")
	}
	dp := found.Data.(metricdata.Sum[int64]).DataPoints[0]
	if v, ok := dp.Attributes.Value(attribute.Key("error.kind")); !ok || v.AsString() != "conflict" {
		t.Errorf("expected error.kind='conflict', got %v", v)
	}
	if v, ok := dp.Attributes.Value(attribute.Key("operation")); !ok || v.AsString() != OpCreateAppointment {
		t.Errorf("expected operation=%q, got %v", OpCreateAppointment, v)
	}
}

// TestMetrics_DurationHistogramRecords verifies duration is recorded in ms.
func TestMetrics_DurationHistogramRecords(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordOperation(context.Background(), OpMeta{Name: OpAvailableSlots}, 1500*time.Microsecond, nil)

	found := findMetric(collect(t, reader), "scheduling.op.duration_ms")
	if found == nil {
		t.Fatal("scheduling.op.duration_ms metric not found")
	}
	hist, ok := found.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", found.Data)
	}
	if hist.DataPoints[0].Sum != 1.5 {
		t.Errorf("expected sum=1.5, got %v", hist.DataPoints[0].Sum)
	}
}

// TestMetrics_ConcurrentRecording verifies concurrent use is safe.
func TestMetrics_ConcurrentRecording(t *testing.T) {
	m, reader := newTestMetrics(t)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = errors.New("boom")
			}
			m.RecordOperation(context.Background(), OpMeta{Name: OpDeleteAppointment}, time.Millisecond, err)
		}()
	}
	wg.Wait()

	rm := collect(t, reader)
	if got := sumValue(t, rm, "scheduling.op.total"); got != 50 {
		t.Errorf("expected total=50, got %d", got)
	}
	if got := sumValue(t, rm, "scheduling.op.errors"); got != 25 {
		t.Errorf("expected errors=25, got %d", got)
	}
}

// TestObserveBreakers verifies breaker state is exported as a gauge.
func TestObserveBreakers(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "fhir", MaxFailures: 1, ResetTimeout: time.Hour})
	if err := ObserveBreakers(mp.Meter("test"), cb); err != nil {
		t.Fatalf("ObserveBreakers() error = %v", err)
	}
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("down") })

	found := findMetric(collect(t, reader), "resilience.breaker.state")
	if found == nil {
		t.Fatal("resilience.breaker.state metric not found")
	}
	gauge, ok := found.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("expected Gauge[int64], got %T", found.Data)
	}
	if len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 2 {
		t.Errorf("expected one open (2) data point, got %+v", gauge.DataPoints)
	}
}

// TestErrorKind verifies classification of the gateway's error taxonomy.
func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&scheduling.ConflictError{}, "conflict"},
		{&scheduling.RuleViolation{Rule: scheduling.RuleBusinessDay}, "business_rule"},
		{fmt.Errorf("%w: id", scheduling.ErrInvalidRequest), "invalid_request"},
		{fmt.Errorf("%w: a1", scheduling.ErrNotFound), "not_found"},
		{resilience.ErrCircuitOpen, "circuit_open"},
		{resilience.ErrTimeout, "timeout"},
		{context.Canceled, "canceled"},
		{auth.ErrReauthenticationRequired, "auth"},
		{&transport.StatusError{StatusCode: 401}, "auth"},
		{&transport.StatusError{StatusCode: 429}, "rate_limited"},
		{&transport.StatusError{StatusCode: 503}, "server"},
		{&transport.StatusError{StatusCode: 400}, "client_request"},
		{fmt.Errorf("%w: dial", transport.ErrTransport), "transport"},
		{errors.New("mystery"), "other"},
	}

	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
