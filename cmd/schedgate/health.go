package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jonwraymond/schedgate/health"
	"github.com/jonwraymond/schedgate/observe"
)

// errUnhealthy makes a one-shot health run exit non-zero.
var errUnhealthy = errors.New("gateway is unhealthy")

func healthCmd(opts *options) *cobra.Command {
	var (
		serve  bool
		listen string
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run health checks once, or serve them over HTTP",
		Long: `Run health checks once, or serve them over HTTP with --serve or --listen.

The server exposes /healthz, /readyz, /health and /health/{name}, plus
/metrics when the Prometheus metrics exporter is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				if _, err := rt.authority.EnsureValidToken(ctx); err != nil {
					rt.logger.Warn(ctx, "no access token", observe.Field{Key: "error", Value: err.Error()})
				}
				agg := rt.healthAggregator()
				if !serve && listen == "" {
					return printHealth(ctx, cmd, agg)
				}
				if listen == "" {
					listen = rt.cfg.Health.Listen
				}
				return serveHealth(ctx, rt, agg, listen)
			})
		},
	}
	cmd.Flags().BoolVar(&serve, "serve", false, "serve probes on health.listen")
	cmd.Flags().StringVar(&listen, "listen", "", "serve probes on this address")
	return cmd
}

func printHealth(ctx context.Context, cmd *cobra.Command, agg *health.Aggregator) error {
	results := agg.CheckAll(ctx)
	overall := agg.OverallStatus(results)

	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "CHECK\tSTATUS\tMESSAGE\tDURATION")
	for _, name := range agg.CheckerNames() {
		r := results[name]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, r.Status, r.Message, r.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "overall\t%s\t\t\n", overall)
	w.Flush()

	if overall == health.StatusUnhealthy {
		return errUnhealthy
	}
	return nil
}

func serveHealth(ctx context.Context, rt *runtime, agg *health.Aggregator, addr string) error {
	mux := http.NewServeMux()
	health.RegisterHandlers(mux, agg)
	if rt.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	rt.logger.Info(ctx, "health server listening",
		observe.Field{Key: "addr", Value: ln.Addr().String()},
		observe.Field{Key: "metrics", Value: rt.registry != nil})

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	rt.logger.Info(ctx, "health server stopped")
	return nil
}
