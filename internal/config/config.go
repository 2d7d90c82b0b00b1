// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Durations are stored as integer knobs and exposed through helpers.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DatabaseDriver is sqlite or postgres; DatabaseDSN is passed to sql.Open.
	DatabaseDriver string `koanf:"database_driver"`
	DatabaseDSN    string `koanf:"database_dsn"`

	// BackupDir receives SQLite snapshots before each cycle; empty disables backups.
	BackupDir  string `koanf:"backup_dir"`
	BackupKeep int    `koanf:"backup_keep"`

	// MaxRetries bounds re-attempts after the first fetch.
	MaxRetries int `koanf:"max_retries"`

	// FetchTimeoutSeconds bounds a single HTTP GET.
	FetchTimeoutSeconds int `koanf:"fetch_timeout_seconds"`

	// BatchSize is the number of participants committed as one unit.
	BatchSize int `koanf:"batch_size"`

	// ConcurrencyLimit caps the workers resolving one batch.
	ConcurrencyLimit int `koanf:"concurrency_limit"`

	// DelayMinMS and DelayMaxMS bound the randomized pause before each fetch.
	DelayMinMS int `koanf:"delay_min_ms"`
	DelayMaxMS int `koanf:"delay_max_ms"`

	// FallbackPoints is reported when no real value could be determined.
	FallbackPoints int `koanf:"fallback_points"`

	// RetryBackoffMS is the initial backoff between attempts.
	RetryBackoffMS int `koanf:"retry_backoff_ms"`

	// RetryOnNotFound retries pages where no strategy found a value.
	RetryOnNotFound bool `koanf:"retry_on_not_found"`

	// TaskTimeoutSeconds bounds one participant's resolution inside a batch.
	TaskTimeoutSeconds int `koanf:"task_timeout_seconds"`

	// BatchTimeoutSeconds bounds a whole batch.
	BatchTimeoutSeconds int `koanf:"batch_timeout_seconds"`

	// CooldownHours is the minimum interval between two refreshes of an account.
	CooldownHours int `koanf:"cooldown_hours"`

	// JobTTLMinutes evicts jobs without activity; JanitorIntervalSeconds paces the sweep.
	JobTTLMinutes          int `koanf:"job_ttl_minutes"`
	JanitorIntervalSeconds int `koanf:"janitor_interval_seconds"`

	// UserAgent is sent with every profile fetch.
	UserAgent string `koanf:"user_agent"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		DatabaseDriver:         DriverSQLite,
		DatabaseDSN:            "points.db",
		BackupDir:              "",
		BackupKeep:             5,
		MaxRetries:             3,
		FetchTimeoutSeconds:    10,
		BatchSize:              5,
		ConcurrencyLimit:       3,
		DelayMinMS:             200,
		DelayMaxMS:             800,
		FallbackPoints:         0,
		RetryBackoffMS:         500,
		RetryOnNotFound:        false,
		TaskTimeoutSeconds:     45,
		BatchTimeoutSeconds:    120,
		CooldownHours:          24 * 7,
		JobTTLMinutes:          30,
		JanitorIntervalSeconds: 60,
		UserAgent:              defaultUserAgent,
	}
}

// Validate reports the first invalid knob.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DatabaseDriver != DriverSQLite && c.DatabaseDriver != DriverPostgres:
		return fmt.Errorf("%w: unknown database_driver %q", ErrInvalidConfig, c.DatabaseDriver)
	case strings.TrimSpace(c.DatabaseDSN) == "":
		return fmt.Errorf("%w: database_dsn must not be empty", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfig)
	case c.FetchTimeoutSeconds <= 0:
		return fmt.Errorf("%w: fetch_timeout_seconds must be positive", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be positive", ErrInvalidConfig)
	case c.ConcurrencyLimit <= 0:
		return fmt.Errorf("%w: concurrency_limit must be positive", ErrInvalidConfig)
	case c.DelayMinMS < 0 || c.DelayMaxMS < c.DelayMinMS:
		return fmt.Errorf("%w: delay range [%d, %d] is invalid", ErrInvalidConfig, c.DelayMinMS, c.DelayMaxMS)
	case c.TaskTimeoutSeconds <= 0 || c.BatchTimeoutSeconds <= 0:
		return fmt.Errorf("%w: task and batch timeouts must be positive", ErrInvalidConfig)
	case c.CooldownHours < 0:
		return fmt.Errorf("%w: cooldown_hours must not be negative", ErrInvalidConfig)
	case c.JobTTLMinutes <= 0 || c.JanitorIntervalSeconds <= 0:
		return fmt.Errorf("%w: job_ttl_minutes and janitor_interval_seconds must be positive", ErrInvalidConfig)
	}
	return nil
}

// FetchTimeout returns the per-request timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// DelayRange returns the jitter bounds applied before each fetch.
func (c *Config) DelayRange() (time.Duration, time.Duration) {
	return time.Duration(c.DelayMinMS) * time.Millisecond, time.Duration(c.DelayMaxMS) * time.Millisecond
}

// RetryBackoff returns the initial backoff between attempts.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// TaskTimeout returns the per-participant deadline inside a batch.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// BatchTimeout returns the whole-batch deadline.
func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSeconds) * time.Second
}

// Cooldown returns the minimum interval between refreshes.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownHours) * time.Hour
}

// JobTTL returns the inactivity window after which jobs are evicted.
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.JobTTLMinutes) * time.Minute
}

// JanitorInterval returns the pace of the expiry sweep.
func (c *Config) JanitorInterval() time.Duration {
	return time.Duration(c.JanitorIntervalSeconds) * time.Second
}
