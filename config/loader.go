// =============================================================================
// Loader — demo-shell configuration loading
// =============================================================================
// Only cmd/substrate uses this. The core packages (bus, admission, provider,
// cache, depth) are handed a *Config directly by their caller and never read
// a file or the environment themselves, per spec.md §6.
//
// Priority: defaults -> YAML file -> environment variables.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader builds a Config from an optional YAML file and environment
// overrides, following config/loader.go's builder shape.
type Loader struct {
	path      string
	envPrefix string
}

// NewLoader creates a Loader with no file path and the "SUBSTRATE" env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "SUBSTRATE"}
}

// WithConfigPath sets the YAML file to read, if any.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnvPrefix sets the environment variable prefix (default "SUBSTRATE").
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load returns a Config built from defaults, then the YAML file (if
// present), then environment variable overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	l.applyEnv(cfg)
	return cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) {
	durField := func(name string, dst *time.Duration) {
		if v, ok := l.lookupEnv(name); ok {
			if ms, err := strconv.Atoi(v); err == nil {
				*dst = time.Duration(ms) * time.Millisecond
			}
		}
	}
	intField := func(name string, dst *int) {
		if v, ok := l.lookupEnv(name); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	int64Field := func(name string, dst *int64) {
		if v, ok := l.lookupEnv(name); ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	boolField := func(name string, dst *bool) {
		if v, ok := l.lookupEnv(name); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	durField("DEFAULT_HANDLER_TIMEOUT_MS", &cfg.DefaultHandlerTimeout)
	intField("MAX_RETRIES", &cfg.MaxRetries)
	boolField("ENABLE_DEAD_LETTER", &cfg.EnableDeadLetter)
	durField("REAPER_INTERVAL_MS", &cfg.ReaperInterval)
	intField("MAX_QUEUE_SIZE", &cfg.MaxQueueSize)
	int64Field("CACHE_BUDGET_BYTES", &cfg.CacheBudgetBytes)
	durField("DEFAULT_ENTRY_TTL_MS", &cfg.DefaultEntryTTL)
	intField("MAX_CONCURRENT_ADMISSIONS", &cfg.MaxConcurrentAdmissions)
	intField("BREAKER_FAILURE_THRESHOLD", &cfg.BreakerFailureThreshold)
	durField("BREAKER_RECOVERY_MS", &cfg.BreakerRecoveryInterval)
	boolField("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	intField("HTTP_PORT", &cfg.Server.HTTPPort)
	intField("METRICS_PORT", &cfg.Server.MetricsPort)
	durField("READ_TIMEOUT_MS", &cfg.Server.ReadTimeout)
	durField("WRITE_TIMEOUT_MS", &cfg.Server.WriteTimeout)
	durField("SHUTDOWN_TIMEOUT_MS", &cfg.Server.ShutdownTimeout)
}

func (l *Loader) lookupEnv(suffix string) (string, bool) {
	key := strings.ToUpper(l.envPrefix) + "_" + suffix
	v, ok := os.LookupEnv(key)
	return v, ok
}
