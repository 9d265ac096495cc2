package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/palabria/internal/engine"
)

// sweeperTag names the sweep ticker so tests can trap it.
const sweeperTag = "sweeper"

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Interval    time.Duration
	MetricsAddr string

	// Clock allows overriding the sweep clock (for testing).
	// If nil, defaults to the real clock.
	Clock quartz.Clock
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the idle-session sweeper",
		Long: `Run a long-lived process that closes idle sessions.

Every --interval the sweeper reconciles the open sessions whose last
heartbeat is older than the idle grace period plus slack. Such sessions
are closed as of the sweep time, clamped to the maximum session length.
With --metrics-addr, Prometheus metrics are served on that address.

Example:
  palabria run --db ./data/palabria.db
  palabria run --interval 5m --metrics-addr 127.0.0.1:2112 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweeper(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", time.Minute, "time between idle sweeps")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runSweeper(opts *RunOptions, cmd *cobra.Command) error {
	if opts.Interval <= 0 {
		return NewExitError(ExitCommandError, "--interval must be positive")
	}

	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	extra := []engine.Option{engine.WithClock(clock)}

	var registry *prometheus.Registry
	if opts.MetricsAddr != "" {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		extra = append(extra, engine.WithMetrics(registry))
	}

	a, err := openApp(opts.RootOptions, cmd, extra...)
	if err != nil {
		return err
	}
	defer a.Close()

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	if registry != nil {
		handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		defer serveHandler(a.logger, handler, opts.MetricsAddr, "prometheus")()
	}

	a.logger.Info("sweeper starting", "db", a.cfg.DBPath, "interval", opts.Interval)
	fmt.Fprintln(a.out.Writer, "Sweeper started. Closing idle sessions every", opts.Interval)
	fmt.Fprintln(a.out.Writer, "Press Ctrl-C to stop.")

	w := clock.TickerFunc(ctx, opts.Interval, func() error {
		results, err := a.engine.ReconcileIdle(ctx, clock.Now())
		if err != nil {
			// Keep sweeping; the next tick retries.
			a.logger.Error("idle sweep failed", "error", err)
			return nil
		}
		closed := 0
		for _, r := range results {
			if r.Outcome == engine.OutcomeClosed {
				closed++
			}
		}
		a.logger.Debug("idle sweep finished", "idle", len(results), "closed", closed)
		return nil
	}, sweeperTag)

	if err := w.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "sweeper error", err)
	}

	a.logger.Info("sweeper stopped gracefully")
	return nil
}

// serveHandler serves handler on addr until the returned func is called.
func serveHandler(logger *slog.Logger, handler http.Handler, addr, name string) (closeFunc func()) {
	logger.Debug("http server listening", "addr", addr, "name", name)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server listen", "name", name, "error", err)
		}
	}()

	return func() { _ = srv.Close() }
}
