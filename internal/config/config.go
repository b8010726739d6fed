package config

import (
	"strings"
	"time"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

// Config represents the complete application configuration. Values come from
// built-in defaults, then the user config file, then LEDGERSWEEP_* environment
// variables, then runtime overrides (command flags).
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Accounting AccountingConfig `mapstructure:"accounting"`
	Throttle   ThrottleConfig   `mapstructure:"throttle"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Health     HealthConfig     `mapstructure:"health"`

	RateLimitMargin float64 `mapstructure:"rate_limit_margin"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRecords      int           `mapstructure:"max_records"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// AccountingConfig names the tenant and endpoint used by CLI commands. The
// HTTP API takes these per request instead.
type AccountingConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	RealmID     string        `mapstructure:"realm_id"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// External returns the tenant configuration for a client.
func (a AccountingConfig) External() core.ExternalConfig {
	return core.ExternalConfig{
		AccessToken: strings.TrimSpace(a.AccessToken),
		RealmID:     strings.TrimSpace(a.RealmID),
		BaseURL:     strings.TrimSpace(a.BaseURL),
	}
}

// ThrottleConfig contains request pacing configuration.
type ThrottleConfig struct {
	RequestsPerMinute    int           `mapstructure:"requests_per_minute"`
	DelayBetweenRequests time.Duration `mapstructure:"delay_between_requests"`

	// MaxBackoffWait is how long a call may wait on a stored 429 backoff
	// before failing as throttled.
	MaxBackoffWait time.Duration `mapstructure:"max_backoff_wait"`

	// Persist shares window and backoff state through the store.
	Persist bool `mapstructure:"persist"`
}

// Pacing returns the client throttle settings.
func (t ThrottleConfig) Pacing() core.ThrottleConfig {
	return core.ThrottleConfig{
		RequestsPerMinute:    t.RequestsPerMinute,
		DelayBetweenRequests: t.DelayBetweenRequests,
	}
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
