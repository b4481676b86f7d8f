package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewWorkerCommand creates the worker command.
func NewWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run due jobs continuously",
		Long: `Run the job executor until interrupted.

Every poll interval the worker executes all due jobs. When metrics are
enabled in the config, engine metrics are served over HTTP for Prometheus.

Example:
  tenantry worker --config tenantry.yaml
  tenantry worker --db ./tenantry.db --interval 1s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(rootOpts, interval, cmd)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default: jobs.poll_interval)")

	return cmd
}

func runWorker(opts *RootOptions, interval time.Duration, cmd *cobra.Command) error {
	cfg, err := opts.settings()
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = cfg.Jobs.PollInterval
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	env, err := openEnv(cmd.Context(), opts, reg)
	if err != nil {
		return err
	}
	defer env.Close()
	logger := env.logger

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		srv := newMetricsServer(cfg.Metrics.Addr, cfg.Metrics.Path, reg)
		go func() {
			logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr), zap.String("path", cfg.Metrics.Path))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("worker starting", zap.Duration("interval", interval), zap.Int("workers", cfg.Jobs.Workers))
	fmt.Fprintln(cmd.OutOrStdout(), "Worker started. Press Ctrl-C to stop.")

	if err := env.engine.RunWorker(ctx, interval); err != nil {
		return WrapExitError(ExitFailure, "worker error", err)
	}

	logger.Info("worker stopped gracefully")
	return nil
}

// newMetricsServer serves the registry's metrics at path.
func newMetricsServer(addr, path string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
