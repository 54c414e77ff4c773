// Package exporters builds the OpenTelemetry exporters the gateway can report
// through.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ErrEndpointNotConfigured indicates an OTLP exporter was selected without a
// collector endpoint.
var ErrEndpointNotConfigured = errors.New("exporters: endpoint not configured")

// Options tunes exporter construction.
type Options struct {
	// Writer receives stdout exporter output. Default: os.Stdout
	Writer io.Writer

	// Endpoint is the OTLP collector address (host:port). When empty the
	// standard OTEL_EXPORTER_OTLP_* variables are consulted.
	Endpoint string

	// Insecure disables TLS towards the collector.
	Insecure bool

	// Registerer receives the prometheus collector.
	// Default: the global Prometheus registry
	Registerer promclient.Registerer
}

func (o Options) writer() io.Writer {
	if o.Writer == nil {
		return os.Stdout
	}
	return o.Writer
}

func (o Options) endpoint(signalVar string) string {
	if o.Endpoint != "" {
		return o.Endpoint
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		return v
	}
	return os.Getenv(signalVar)
}

// NewTracingExporter creates a span exporter by name.
// Supported: stdout, otlp, jaeger (via OTLP), none
func NewTracingExporter(ctx context.Context, name string, opts Options) (sdktrace.SpanExporter, error) {
	switch name {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(opts.writer()), stdouttrace.WithPrettyPrint())

	case "otlp", "jaeger":
		endpoint := opts.endpoint("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")
		if name == "jaeger" && opts.Endpoint == "" {
			endpoint = os.Getenv("OTEL_EXPORTER_JAEGER_ENDPOINT")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("%w: %s traces", ErrEndpointNotConfigured, name)
		}
		grpcOpts := []otlptracegrpc.Option{}
		switch {
		case opts.Endpoint == "" && name == "otlp":
			// The exporter reads the OTEL_* variables itself.
		case strings.Contains(endpoint, "://"):
			grpcOpts = append(grpcOpts, otlptracegrpc.WithEndpointURL(endpoint))
		default:
			grpcOpts = append(grpcOpts, otlptracegrpc.WithEndpoint(endpoint))
		}
		if opts.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, grpcOpts...)

	case "none", "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown exporter: %q", name)
	}
}

// NewMetricsReader creates a metrics reader by name.
// Supported: stdout, otlp, prometheus, none
//
// The prometheus reader registers with Options.Registerer; serve the matching
// gatherer with promhttp.
func NewMetricsReader(ctx context.Context, name string, opts Options) (sdkmetric.Reader, error) {
	switch name {
	case "stdout":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(opts.writer()))
		if err != nil {
			return nil, fmt.Errorf("stdout metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	case "otlp":
		endpoint := opts.endpoint("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("%w: otlp metrics", ErrEndpointNotConfigured)
		}
		grpcOpts := []otlpmetricgrpc.Option{}
		if opts.Endpoint != "" {
			grpcOpts = append(grpcOpts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		if opts.Insecure {
			grpcOpts = append(grpcOpts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, fmt.Errorf("otlp metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	case "prometheus":
		var promOpts []prometheus.Option
		if opts.Registerer != nil {
			promOpts = append(promOpts, prometheus.WithRegisterer(opts.Registerer))
		}
		exp, err := prometheus.New(promOpts...)
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		return exp, nil

	case "none", "":
		return sdkmetric.NewManualReader(), nil

	default:
		return nil, fmt.Errorf("unknown metrics exporter: %q", name)
	}
}
