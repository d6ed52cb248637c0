package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyStoreDefaults(cfg)
	applyUpstreamDefaults(&cfg.Upstream)
	applyCacheDefaults(&cfg.Cache)
	applyTasksDefaults(&cfg.Tasks)
	applyRateLimitDefaults(&cfg.RateLimit)
	applyWorkerDefaults(&cfg.Worker)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyStoreDefaults sets the database location default.
func applyStoreDefaults(cfg *Config) {
	if cfg.Store.Path == "" && !cfg.Store.InMemory {
		cfg.Store.Path = "/var/lib/swr/store"
	}
}

// applyUpstreamDefaults sets upstream fetch defaults.
func applyUpstreamDefaults(cfg *UpstreamConfig) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://codeforces.com/api"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst == 0 {
		cfg.Burst = int(cfg.RatePerSecond)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
}

// applyCacheDefaults sets freshness window defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.FreshTTL == 0 {
		cfg.FreshTTL = 4 * time.Hour
	}
	if cfg.StaleTTL == 0 {
		cfg.StaleTTL = 24 * time.Hour
	}
}

// applyTasksDefaults sets task lifecycle defaults.
func applyTasksDefaults(cfg *TasksConfig) {
	if cfg.StatusTTL == 0 {
		cfg.StatusTTL = 5 * time.Minute
	}
	if cfg.PendingLockTTL == 0 {
		cfg.PendingLockTTL = 60 * time.Second
	}
}

// applyRateLimitDefaults sets API rate limit defaults. Enabled defaults to
// true via viper so an explicit enabled: false always wins; only the
// allowance fields are defaulted here.
func applyRateLimitDefaults(cfg *RateLimitConfig) {
	if cfg.Requests == 0 {
		cfg.Requests = 100
	}
	if cfg.Period == "" {
		cfg.Period = "hour"
	}
}

// applyWorkerDefaults sets worker pool defaults.
func applyWorkerDefaults(cfg *WorkerConfig) {
	if cfg.Count == 0 {
		cfg.Count = 4
	}
	if cfg.PopTimeout == 0 {
		cfg.PopTimeout = 5 * time.Second
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		RateLimit: RateLimitConfig{Enabled: true},
	}

	ApplyDefaults(cfg)
	return cfg
}
