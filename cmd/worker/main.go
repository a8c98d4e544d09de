// Package main implements the factorfarm worker, a client that repeatedly
// asks the coordinator for a range, tests every prime in it against the
// target and reports what it found.
//
// Configuration comes from the same sources as the coordinator (config
// file, FACTORFARM_WORKER_* environment variables) with flags taking
// precedence:
//
//	./worker --coordinator http://10.0.0.5:5000 --target NPP.txt --id w1
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dreamware/factorfarm/internal/cluster"
	"github.com/dreamware/factorfarm/internal/config"
	"github.com/dreamware/factorfarm/internal/logging"
	"github.com/dreamware/factorfarm/internal/sieve"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:          "worker",
		Short:        "Search assigned ranges for divisors of the target",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Init(v, cfgFile); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

			target, err := sieve.LoadTarget(cfg.Worker.TargetFile)
			if err != nil {
				return err
			}

			id := cfg.Worker.ID
			if id == "" {
				id = "worker_" + uuid.NewString()
			}

			w := newWorker(workerOptions{
				client:     cluster.NewClient(cfg.Worker.CoordinatorURL, nil),
				target:     target,
				logger:     logger,
				id:         id,
				retryDelay: cfg.Worker.RetryDelay,
				timeout:    cfg.Worker.RequestTimeout,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return w.run(ctx)
		},
	}

	flags := cmd.Flags()
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.String("coordinator", "", "coordinator base URL")
	flags.String("target", "", "file holding the number to factor")
	flags.String("id", "", "worker id (generated when empty)")
	flags.Duration("retry-delay", 0, "wait after a failed coordinator call")
	_ = v.BindPFlag("worker.coordinator_url", flags.Lookup("coordinator"))
	_ = v.BindPFlag("worker.target_file", flags.Lookup("target"))
	_ = v.BindPFlag("worker.id", flags.Lookup("id"))
	_ = v.BindPFlag("worker.retry_delay", flags.Lookup("retry-delay"))

	return cmd
}
