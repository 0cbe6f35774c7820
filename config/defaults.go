package config

import "time"

// Default returns the option defaults from spec.md's configuration table.
func Default() *Config {
	return &Config{
		DefaultHandlerTimeout:   30 * time.Second,
		MaxRetries:              3,
		EnableDeadLetter:        true,
		ReaperInterval:          time.Hour,
		MaxQueueSize:            10000,
		CacheBudgetBytes:        52428800,
		DefaultEntryTTL:         24 * time.Hour,
		MaxConcurrentAdmissions: 3,
		BreakerFailureThreshold: 5,
		BreakerRecoveryInterval: 60 * time.Second,
		Telemetry:               DefaultTelemetryConfig(),
		Server:                  DefaultServerConfig(),
	}
}

// DefaultServerConfig mirrors the teacher's server-config defaults
// (cmd/agentflow/config/defaults.go).
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultTelemetryConfig mirrors the teacher's DefaultTelemetryConfig.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentcore-substrate",
		SampleRate:   0.1,
	}
}
