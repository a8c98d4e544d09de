package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Validate())
	assert.Equal(t, int64(10000), cfg.Coordinator.RangeSize)
	assert.Equal(t, 5*time.Minute, cfg.Coordinator.WorkerTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Coordinator.ReconcileInterval)
	assert.Equal(t, "file", cfg.Storage.Backend)
}

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	content := `
server:
  addr: ":9000"
coordinator:
  range_size: 500
  worker_timeout: 30s
  assignment_ttl: 10m
storage:
  backend: sqlite
  sqlite_path: /tmp/ff.db
logging:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	require.NoError(t, Init(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, int64(500), cfg.Coordinator.RangeSize)
	assert.Equal(t, 30*time.Second, cfg.Coordinator.WorkerTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Coordinator.AssignmentTTL)
	assert.Equal(t, 2*time.Hour, cfg.Coordinator.ReconcileInterval)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/ff.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	v := viper.New()
	err := Init(v, filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FACTORFARM_COORDINATOR_RANGE_SIZE", "250")
	t.Setenv("FACTORFARM_STORAGE_DIR", "/var/lib/factorfarm")

	v := viper.New()
	require.NoError(t, Init(v, ""))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, int64(250), cfg.Coordinator.RangeSize)
	assert.Equal(t, "/var/lib/factorfarm", cfg.Storage.Dir)
}

func TestNonPositiveRangeSizeRejectedAtLoad(t *testing.T) {
	for _, size := range []string{"0", "-10"} {
		t.Run(size, func(t *testing.T) {
			t.Setenv("FACTORFARM_COORDINATOR_RANGE_SIZE", size)

			v := viper.New()
			require.NoError(t, Init(v, ""))
			_, err := Load(v)
			require.Error(t, err)

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, "coordinator.range_size", verrs[0].Field)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:   "zero range size",
			mutate: func(c *Config) { c.Coordinator.RangeSize = 0 },
			fields: []string{"coordinator.range_size"},
		},
		{
			name:   "negative ttl",
			mutate: func(c *Config) { c.Coordinator.AssignmentTTL = -time.Second },
			fields: []string{"coordinator.assignment_ttl"},
		},
		{
			name:   "zero worker timeout",
			mutate: func(c *Config) { c.Coordinator.WorkerTimeout = 0 },
			fields: []string{"coordinator.worker_timeout"},
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Storage.Backend = "etcd" },
			fields: []string{"storage.backend"},
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Storage.Backend = "sqlite"
				c.Storage.SQLitePath = ""
			},
			fields: []string{"storage.sqlite_path"},
		},
		{
			name: "bad logging",
			mutate: func(c *Config) {
				c.Logging.Level = "loud"
				c.Logging.Format = "xml"
			},
			fields: []string{"logging.level", "logging.format"},
		},
		{
			name:   "relative coordinator url",
			mutate: func(c *Config) { c.Worker.CoordinatorURL = "localhost:5000/x" },
			fields: []string{"worker.coordinator_url"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			got := make([]string, 0, len(errs))
			for _, e := range errs {
				got = append(got, e.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	assert.Contains(t, errs.Error(), "2 validation errors")
	assert.Contains(t, errs.Error(), "a: bad (got: 1)")
	assert.Equal(t, "a: bad (got: 1)", errs[:1].Error())
	assert.Equal(t, "", ValidationErrors{}.Error())
}
