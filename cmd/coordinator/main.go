// Package main implements the factorfarm coordinator, the HTTP service that
// hands out non-overlapping candidate ranges to workers, collects the
// divisors they report and checkpoints progress to disk.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│              Coordinator                │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /get_work      - Allocate a range    │
//	│    /submit_result - Report a range      │
//	│    /status        - Summary (sweeps)    │
//	│    /divisors      - Full ledger         │
//	│    /workers       - Registered workers  │
//	│    /leave         - Explicit departure  │
//	│    /health        - Liveness            │
//	│    /metrics       - Prometheus          │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    coordinator.Coordinator              │
//	│    coordinator.Reconciler               │
//	│    storage.Store (file/sqlite/memory)   │
//	└─────────────────────────────────────────┘
//
// Configuration is read from an optional YAML file (--config or
// ./config.yaml) and FACTORFARM_* environment variables, e.g.
// FACTORFARM_SERVER_ADDR=:5000 or FACTORFARM_STORAGE_BACKEND=sqlite.
//
// Example usage:
//
//	# Start the coordinator
//	FACTORFARM_STORAGE_DIR=/var/lib/factorfarm ./coordinator serve
//
//	# Ask for work
//	curl 'localhost:5000/get_work?worker_id=w1'
//
//	# Print the effective configuration
//	./coordinator config show
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/factorfarm/internal/config"
	"github.com/dreamware/factorfarm/internal/coordinator"
	"github.com/dreamware/factorfarm/internal/logging"
	"github.com/dreamware/factorfarm/internal/metrics"
	"github.com/dreamware/factorfarm/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command without a
// subcommand is the same as "serve".
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	loadConfig := func() (*config.Config, error) {
		if err := config.Init(v, cfgFile); err != nil {
			return nil, err
		}
		return config.Load(v)
	}

	serve := func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, logger)
	}

	root := &cobra.Command{
		Use:          "coordinator",
		Short:        "Distributed divisor search coordinator",
		SilenceUsage: true,
		RunE:         serve,
		Args:         cobra.NoArgs,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator HTTP server",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), cfg)
		},
	})
	root.AddCommand(configCmd)

	return root
}

func writeYAML(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// app holds the wired components of a running coordinator.
type app struct {
	store      storage.Store
	coord      *coordinator.Coordinator
	reconciler *coordinator.Reconciler
	handler    http.Handler
}

// newApp opens the store and wires the coordinator, reconciler, metrics and
// HTTP routes from cfg. The caller owns the result and must call close.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := storage.Open(cfg.Storage.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	var (
		collector      metrics.Collector = metrics.NewNop()
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom, err := metrics.NewPrometheus(reg, cfg.Metrics.Namespace)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		collector = prom
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	coord, err := coordinator.New(store, coordinator.Options{
		Logger:        logger,
		Metrics:       collector,
		RangeSize:     cfg.Coordinator.RangeSize,
		WorkerTimeout: cfg.Coordinator.WorkerTimeout,
		AssignmentTTL: cfg.Coordinator.AssignmentTTL,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	srv := newServer(coord, logger, cfg.Coordinator.TargetLabel)
	return &app{
		store:      store,
		coord:      coord,
		reconciler: coordinator.NewReconciler(coord, cfg.Coordinator.ReconcileInterval, logger),
		handler:    srv.routes(metricsHandler),
	}, nil
}

// close flushes coordinator state and releases the store.
func (a *app) close() error {
	a.reconciler.Stop()
	return errors.Join(a.coord.Close(), a.store.Close())
}

// run serves until ctx is canceled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Error("failed to flush state on shutdown", "error", err)
		}
	}()

	a.reconciler.Start(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("coordinator listening", "addr", cfg.Server.Addr, "storage", cfg.Storage.Backend)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("coordinator stopped")
	return nil
}
