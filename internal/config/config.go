package config

import (
	"time"

	"github.com/slidesmith/slidesmith/internal/core/engine"
	"github.com/slidesmith/slidesmith/internal/genlink"
)

// Config represents the complete application configuration
// following the Fulmen Forge Workhorse Standard three-layer pattern:
// Layer 1: Crucible defaults (config/slidesmith/v0/slidesmith-defaults.yaml)
// Layer 2: User overrides (~/.config/slidesmith/slidesmith/config.yaml)
// Layer 3: Environment variables and runtime overrides
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Slides   SlidesConfig   `mapstructure:"slides"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Backends BackendsConfig `mapstructure:"backends"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	Debug    DebugConfig    `mapstructure:"debug"`

	// RateLimits overrides requests-per-minute per backend role; the safety
	// margin scales every effective limit down.
	RateLimits      map[string]int `mapstructure:"rate_limits"`
	RateLimitMargin float64        `mapstructure:"rate_limit_margin"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// SlidesConfig contains slide pipeline configuration.
type SlidesConfig struct {
	// DefaultMode is used when a request omits options.mode.
	// Valid values: sequential, parallel
	DefaultMode string `mapstructure:"default_mode"`

	// RequestTimeout bounds one generation when the request does not ask for
	// a timeout; MaxRequestTimeout caps what a request may ask for.
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MaxRequestTimeout time.Duration `mapstructure:"max_request_timeout"`

	// MissingPlaceholder selects assembly behavior for uncovered
	// placeholders. Valid values: error, empty
	MissingPlaceholder string `mapstructure:"missing_placeholder"`

	// VariantsDir and TemplatesDir shadow the embedded spec and template
	// sets when set.
	VariantsDir  string `mapstructure:"variants_dir"`
	TemplatesDir string `mapstructure:"templates_dir"`

	// Routing overrides the element_type → tier table.
	Routing map[string]string `mapstructure:"routing"`
}

// WorkersConfig bounds request and element concurrency.
type WorkersConfig struct {
	// MaxConcurrentSlides gates how many generations the server accepts at
	// once; further requests get 429.
	MaxConcurrentSlides int `mapstructure:"max_concurrent_slides"`

	// ElementConcurrency bounds the parallel-mode element fan-out.
	ElementConcurrency int `mapstructure:"element_concurrency"`

	// QueueRetryAfter is the backoff hint returned with queue-full 429s.
	QueueRetryAfter time.Duration `mapstructure:"queue_retry_after"`
}

// BackendsConfig contains provider configuration plus the retry policy the
// generation engine wraps around provider calls.
type BackendsConfig struct {
	genlink.Config `mapstructure:",squash"`

	Retry engine.RetryConfig `mapstructure:"retry"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles per Fulmen Forge Workhorse Standard:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
// - ENTERPRISE: Multiple sinks, middleware, throttling, policy enforcement (production)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	// See: gofulmen/docs/crucible-go/standards/observability/logging.md
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	// Metrics are also available at the main HTTP port in JSON format
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
