// Package config defines the coordinator and worker configuration, its
// defaults, and how it is loaded through viper from a YAML file and
// FACTORFARM_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dreamware/factorfarm/internal/storage"
)

// EnvPrefix is prepended to every environment override, e.g.
// FACTORFARM_COORDINATOR_RANGE_SIZE for coordinator.range_size.
const EnvPrefix = "FACTORFARM"

// Config represents the complete configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator" yaml:"coordinator"`
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Worker      WorkerConfig      `mapstructure:"worker" yaml:"worker"`
}

// ServerConfig controls the coordinator's HTTP listener
type ServerConfig struct {
	// Addr is the listen address (default: ":5000")
	Addr string `mapstructure:"addr" yaml:"addr"`
	// ReadHeaderTimeout bounds how long a client may take to send headers
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// CoordinatorConfig controls range allocation and worker liveness
type CoordinatorConfig struct {
	// RangeSize is the number of candidates in each allocated range (default: 10000)
	RangeSize int64 `mapstructure:"range_size" yaml:"range_size"`
	// WorkerTimeout is how long a worker may stay silent before a status
	// query evicts it (default: 5m)
	WorkerTimeout time.Duration `mapstructure:"worker_timeout" yaml:"worker_timeout"`
	// AssignmentTTL releases a range that has been held longer than this,
	// even if its worker is still alive. 0 disables it.
	AssignmentTTL time.Duration `mapstructure:"assignment_ttl" yaml:"assignment_ttl"`
	// ReconcileInterval is how often the watermark is recomputed from
	// in-flight ranges (default: 2h)
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" yaml:"reconcile_interval"`
	// TargetLabel describes the number being factored in work responses
	TargetLabel string `mapstructure:"target_label" yaml:"target_label"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	// Backend is one of "file", "sqlite", "memory" (default: "file")
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Dir holds largest_prime.txt and divisors_found.txt for the file backend
	Dir string `mapstructure:"dir" yaml:"dir"`
	// SQLitePath is the database file for the sqlite backend
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default: info)
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "text" or "json" (default: text)
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// WorkerConfig controls the worker client
type WorkerConfig struct {
	// CoordinatorURL is the base URL of the coordinator
	CoordinatorURL string `mapstructure:"coordinator_url" yaml:"coordinator_url"`
	// TargetFile holds the decimal digits of the number being factored
	TargetFile string `mapstructure:"target_file" yaml:"target_file"`
	// ID is the worker identity; generated when empty
	ID string `mapstructure:"id" yaml:"id"`
	// RetryDelay is how long to wait after a failed coordinator call
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	// RequestTimeout bounds each coordinator call
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":5000",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Coordinator: CoordinatorConfig{
			RangeSize:         10000,
			WorkerTimeout:     5 * time.Minute,
			AssignmentTTL:     0,
			ReconcileInterval: 2 * time.Hour,
			TargetLabel:       "NPP",
		},
		Storage: StorageConfig{
			Backend:    storage.BackendFile,
			Dir:        ".",
			SQLitePath: "factorfarm.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "factorfarm",
		},
		Worker: WorkerConfig{
			CoordinatorURL: "http://127.0.0.1:5000",
			TargetFile:     "NPP.txt",
			RetryDelay:     5 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("server.addr", defaults.Server.Addr)
	v.SetDefault("server.read_header_timeout", defaults.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)

	v.SetDefault("coordinator.range_size", defaults.Coordinator.RangeSize)
	v.SetDefault("coordinator.worker_timeout", defaults.Coordinator.WorkerTimeout)
	v.SetDefault("coordinator.assignment_ttl", defaults.Coordinator.AssignmentTTL)
	v.SetDefault("coordinator.reconcile_interval", defaults.Coordinator.ReconcileInterval)
	v.SetDefault("coordinator.target_label", defaults.Coordinator.TargetLabel)

	v.SetDefault("storage.backend", defaults.Storage.Backend)
	v.SetDefault("storage.dir", defaults.Storage.Dir)
	v.SetDefault("storage.sqlite_path", defaults.Storage.SQLitePath)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.namespace", defaults.Metrics.Namespace)

	v.SetDefault("worker.coordinator_url", defaults.Worker.CoordinatorURL)
	v.SetDefault("worker.target_file", defaults.Worker.TargetFile)
	v.SetDefault("worker.id", defaults.Worker.ID)
	v.SetDefault("worker.retry_delay", defaults.Worker.RetryDelay)
	v.SetDefault("worker.request_timeout", defaults.Worker.RequestTimeout)
}

// Init prepares v: defaults, environment overrides, and the config file.
// An explicit cfgFile must exist; otherwise config.yaml is looked up in the
// working directory and a missing file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// StorageOptions converts the storage section for storage.Open.
func (c *StorageConfig) StorageOptions() storage.Options {
	return storage.Options{
		Backend:    c.Backend,
		Dir:        c.Dir,
		SQLitePath: c.SQLitePath,
	}
}
