package config

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/dreamware/factorfarm/internal/logging"
	"github.com/dreamware/factorfarm/internal/storage"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "coordinator.range_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the Config for invalid values and returns all validation
// errors found. A non-positive range size is rejected here, at startup,
// rather than on every allocation.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field string, value any, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if c.Server.Addr == "" {
		add("server.addr", c.Server.Addr, "must not be empty")
	}
	if c.Server.ShutdownTimeout < 0 {
		add("server.shutdown_timeout", c.Server.ShutdownTimeout, "must not be negative")
	}

	if c.Coordinator.RangeSize <= 0 {
		add("coordinator.range_size", c.Coordinator.RangeSize, "must be a positive integer")
	}
	if c.Coordinator.WorkerTimeout <= 0 {
		add("coordinator.worker_timeout", c.Coordinator.WorkerTimeout, "must be positive")
	}
	if c.Coordinator.AssignmentTTL < 0 {
		add("coordinator.assignment_ttl", c.Coordinator.AssignmentTTL, "must not be negative (0 disables)")
	}
	if c.Coordinator.ReconcileInterval <= 0 {
		add("coordinator.reconcile_interval", c.Coordinator.ReconcileInterval, "must be positive")
	}

	backends := []string{storage.BackendFile, storage.BackendSQLite, storage.BackendMemory}
	if !slices.Contains(backends, c.Storage.Backend) {
		add("storage.backend", c.Storage.Backend, "must be one of "+strings.Join(backends, ", "))
	}
	if c.Storage.Backend == storage.BackendSQLite && c.Storage.SQLitePath == "" {
		add("storage.sqlite_path", c.Storage.SQLitePath, "required for the sqlite backend")
	}

	if !slices.Contains(logging.ValidLevels(), strings.ToLower(c.Logging.Level)) {
		add("logging.level", c.Logging.Level, "must be one of "+strings.Join(logging.ValidLevels(), ", "))
	}
	if !slices.Contains(logging.ValidFormats(), strings.ToLower(c.Logging.Format)) {
		add("logging.format", c.Logging.Format, "must be one of "+strings.Join(logging.ValidFormats(), ", "))
	}

	if u, err := url.Parse(c.Worker.CoordinatorURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("worker.coordinator_url", c.Worker.CoordinatorURL, "must be an absolute URL")
	}
	if c.Worker.RetryDelay < 0 {
		add("worker.retry_delay", c.Worker.RetryDelay, "must not be negative")
	}
	if c.Worker.RequestTimeout <= 0 {
		add("worker.request_timeout", c.Worker.RequestTimeout, "must be positive")
	}

	return errs
}
