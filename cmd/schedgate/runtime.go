package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jonwraymond/schedgate/auth"
	"github.com/jonwraymond/schedgate/config"
	"github.com/jonwraymond/schedgate/health"
	"github.com/jonwraymond/schedgate/observe"
	"github.com/jonwraymond/schedgate/scheduling"
	"github.com/jonwraymond/schedgate/transport"
)

// options are the persistent flags.
type options struct {
	configPath string
	debug      bool
	logFile    string
	tokenFile  string
}

// runtime is the wired gateway for one command invocation.
type runtime struct {
	cfg       *config.Config
	logger    observe.Logger
	authority *auth.Authority
	gateway   *scheduling.Gateway
	scheduler scheduling.Scheduler
	observer  observe.Observer
	registry  *prometheus.Registry
	closers   []io.Closer
}

// loadConfig reads and validates configuration.
func loadConfig(ctx context.Context, opts *options) (*config.Config, error) {
	cfg, err := config.Load(ctx, opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.debug {
		cfg.Observe.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newZerolog writes human-readable lines to errOut and, with a log file, JSON
// lines to a rotating file.
func newZerolog(errOut io.Writer, level, logFile string) (zerolog.Logger, io.Closer) {
	var w io.Writer = zerolog.ConsoleWriter{Out: errOut, TimeFormat: time.TimeOnly}
	var closer io.Closer
	if logFile != "" {
		lj := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		w = zerolog.MultiLevelWriter(w, lj)
		closer = lj
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), closer
}

// newRuntime wires authority, gateway and telemetry from configuration.
func newRuntime(ctx context.Context, opts *options, errOut io.Writer) (*runtime, error) {
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg}
	zl, closer := newZerolog(errOut, cfg.Observe.LogLevel, opts.logFile)
	if closer != nil {
		rt.closers = append(rt.closers, closer)
	}
	rt.logger = observe.FromZerolog(zl)

	oc := cfg.ObserverConfig(version)
	oc.Logging.Logger = rt.logger
	oc.Exporters.Writer = errOut
	if oc.Metrics.Exporter == "prometheus" {
		rt.registry = prometheus.NewRegistry()
		oc.Exporters.Registerer = rt.registry
	}
	rt.observer, err = observe.NewObserver(ctx, oc)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	rt.authority, err = auth.NewAuthority(cfg.AuthorityConfig())
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	if opts.tokenFile != "" {
		if err := restoreToken(opts.tokenFile, rt.authority); err != nil {
			rt.Close(ctx)
			return nil, err
		}
		rt.logger.Debug(ctx, "token file loaded", observe.Field{Key: "path", Value: opts.tokenFile})
	}

	gc, err := cfg.GatewayConfig(rt.authority)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.gateway, err = scheduling.NewGateway(gc)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	if err := observe.ObserveBreakers(rt.observer.Meter(), rt.gateway.Breakers()...); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	mw, err := observe.MiddlewareFromObserver(rt.observer)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.scheduler = observe.Instrument(rt.gateway, mw)
	return rt, nil
}

// healthAggregator registers a checker for every gateway dependency.
func (rt *runtime) healthAggregator() *health.Aggregator {
	agg := health.NewAggregator(health.AggregatorConfig{Timeout: rt.cfg.Health.Timeout, Parallel: true})
	for _, cb := range rt.gateway.Breakers() {
		agg.RegisterChecker(health.NewBreakerChecker(cb))
	}
	agg.RegisterChecker(health.NewTokenChecker(rt.authority, nil))
	agg.RegisterChecker(health.NewLimiterChecker(rt.gateway.RateLimiter()))
	agg.RegisterChecker(health.NewEHRChecker(transport.NewClient(
		rt.authority.Credentials().FHIRBaseURL(),
		transport.WithDoer(&http.Client{Timeout: rt.cfg.Health.Timeout}),
		transport.WithUserAgent("schedgate/"+version),
	)))
	return agg
}

// Close flushes telemetry and closes the log file.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.observer != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		errs = append(errs, rt.observer.Shutdown(sctx))
		cancel()
	}
	for _, c := range rt.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
