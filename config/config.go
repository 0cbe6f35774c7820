// Package config defines the substrate's single configuration record,
// following the teacher's per-section-struct-with-defaults idiom
// (config/defaults.go) even though the substrate's record itself is flat,
// matching the options table in spec.md §6.
package config

import "time"

// Config is the configuration record carried at construction by every core
// component. There is no environment-variable, file, or CLI parsing inside
// the core itself — Loader (loader.go) exists only for cmd/substrate.
type Config struct {
	// DefaultHandlerTimeout bounds a single bus handler invocation.
	DefaultHandlerTimeout time.Duration `yaml:"default_handler_timeout_ms"`
	// MaxRetries is the bus's per-message retry budget.
	MaxRetries int `yaml:"max_retries"`
	// EnableDeadLetter toggles whether terminal failures reach the dead-letter log.
	EnableDeadLetter bool `yaml:"enable_dead_letter"`
	// ReaperInterval is the content cache's background sweep period.
	ReaperInterval time.Duration `yaml:"reaper_interval_ms"`
	// MaxQueueSize hard-bounds the bus's holding area.
	MaxQueueSize int `yaml:"max_queue_size"`
	// CacheBudgetBytes caps the content cache's total estimated size.
	CacheBudgetBytes int64 `yaml:"cache_budget_bytes"`
	// DefaultEntryTTL is the content cache's default per-entry TTL.
	DefaultEntryTTL time.Duration `yaml:"default_entry_ttl_ms"`
	// MaxConcurrentAdmissions bounds the admission queue's in-flight tasks.
	MaxConcurrentAdmissions int `yaml:"max_concurrent_admissions"`
	// BreakerFailureThreshold is the consecutive-failure trip point.
	BreakerFailureThreshold int `yaml:"breaker_failure_threshold"`
	// BreakerRecoveryInterval is the open -> half-open wait.
	BreakerRecoveryInterval time.Duration `yaml:"breaker_recovery_ms"`

	// Telemetry controls the demo shell's OTel wiring. The core never reads it.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Server configures cmd/substrate's HTTP/metrics listeners. The core
	// never reads it either; it exists purely for the demo shell.
	Server ServerConfig `yaml:"server"`
}

// ServerConfig is cmd/substrate's listener configuration, following the
// teacher's config.ServerConfig shape (cmd/agentflow/server.go).
type ServerConfig struct {
	HTTPPort           int           `yaml:"http_port"`
	MetricsPort        int           `yaml:"metrics_port"`
	ReadTimeout        time.Duration `yaml:"read_timeout_ms"`
	WriteTimeout       time.Duration `yaml:"write_timeout_ms"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout_ms"`
	RateLimitRPS       float64       `yaml:"rate_limit_rps"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
}

// TelemetryConfig gates the optional OTel SDK wiring in cmd/substrate,
// following config/defaults.go's DefaultTelemetryConfig shape.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}
