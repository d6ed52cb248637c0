package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/betterforces/swr/pkg/api"
	"github.com/betterforces/swr/pkg/store"
)

// Config represents the swr server configuration.
//
// This structure captures the static configuration of the server:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - HTTP server settings (port, timeouts, API rate limit)
//   - Store location (embedded Badger database)
//   - Upstream fetch settings (base URL, global rate budget)
//   - Freshness windows and task lifetimes
//   - Worker pool sizing
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SWR_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Server contains the HTTP API server configuration
	Server api.APIConfig `mapstructure:"server" yaml:"server"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Store configures the embedded Badger database holding cache entries,
	// refresh tasks, dedup locks and the job queue
	Store store.Config `mapstructure:"store" yaml:"store"`

	// Upstream configures the origin the workers fetch from
	Upstream UpstreamConfig `mapstructure:"upstream" yaml:"upstream"`

	// Cache controls the freshness windows applied to cached entries
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Tasks controls refresh task and dedup lock lifetimes
	Tasks TasksConfig `mapstructure:"tasks" yaml:"tasks"`

	// RateLimit throttles the public API per deployment
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// Worker sizes the background refresh worker pool
	Worker WorkerConfig `mapstructure:"worker" yaml:"worker"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// 1.0 = sample all traces, 0.5 = sample 50%, 0.0 = no sampling
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected (zero overhead) and the
// /metrics route is not mounted.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// UpstreamConfig configures the origin service the workers fetch from.
type UpstreamConfig struct {
	// BaseURL is the upstream API root.
	// Default: "https://codeforces.com/api"
	BaseURL string `mapstructure:"base_url" validate:"required,url" yaml:"base_url"`

	// Timeout bounds each upstream request.
	// Default: 30s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// RatePerSecond is the global upstream request budget shared by all
	// workers. The upstream enforces its own ceiling; staying under it here
	// avoids upstream-side rejections.
	// Default: 5
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"omitempty,gt=0" yaml:"rate_per_second"`

	// Burst is the token bucket burst size.
	// Default: equal to RatePerSecond
	Burst int `mapstructure:"burst" yaml:"burst"`
}

// CacheConfig controls the freshness windows applied to cached entries.
//
// An entry younger than FreshTTL is served as-is. Between FreshTTL and
// StaleTTL it is served stale while a background refresh runs. At StaleTTL
// the entry expires from the store entirely and readers must wait for a
// fresh fetch.
type CacheConfig struct {
	// FreshTTL is the age below which an entry is fresh.
	// Default: 4h
	FreshTTL time.Duration `mapstructure:"fresh_ttl" validate:"omitempty,gt=0" yaml:"fresh_ttl"`

	// StaleTTL is the age at which an entry stops being servable at all.
	// Must be greater than FreshTTL.
	// Default: 24h
	StaleTTL time.Duration `mapstructure:"stale_ttl" validate:"omitempty,gt=0" yaml:"stale_ttl"`
}

// TasksConfig controls refresh task and dedup lock lifetimes.
type TasksConfig struct {
	// StatusTTL is how long terminal task records stay queryable. After
	// this window polling a task returns not-found.
	// Default: 5m
	StatusTTL time.Duration `mapstructure:"status_ttl" validate:"omitempty,gt=0" yaml:"status_ttl"`

	// PendingLockTTL bounds how long a key's dedup lock survives without
	// resolution. A crashed worker's lock expires after this, letting a
	// later request schedule a replacement fetch.
	// Default: 60s
	PendingLockTTL time.Duration `mapstructure:"pending_lock_ttl" validate:"omitempty,gt=0" yaml:"pending_lock_ttl"`
}

// RateLimitConfig throttles the public API.
type RateLimitConfig struct {
	// Enabled controls whether the API rate limit is enforced.
	// Default: true
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Requests is the allowance per Period.
	// Default: 100
	Requests int `mapstructure:"requests" validate:"omitempty,gt=0" yaml:"requests"`

	// Period is the window the allowance refills over.
	// Valid values: second, minute, hour, day
	// Default: hour
	Period string `mapstructure:"period" validate:"omitempty,oneof=second minute hour day" yaml:"period"`
}

// WorkerConfig sizes the background refresh worker pool.
type WorkerConfig struct {
	// Count is the number of concurrent workers draining the fetch queue.
	// All workers share the single upstream rate budget, so more workers
	// increase concurrency but not upstream throughput.
	// Default: 4
	Count int `mapstructure:"count" validate:"omitempty,gt=0" yaml:"count"`

	// PopTimeout is how long a worker blocks waiting for a job before
	// re-checking for shutdown.
	// Default: 5s
	PopTimeout time.Duration `mapstructure:"pop_timeout" yaml:"pop_timeout"`

	// FetchTimeout bounds a single upstream fetch inside a worker.
	// Default: 30s
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SWR_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  swrd init\n\n"+
				"Or specify a custom config file:\n"+
				"  swrd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  swrd init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the SWR_ prefix and underscores
	// Example: SWR_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("SWR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The API limit is on unless the config says otherwise. Registering the
	// default with viper lets an explicit enabled: false survive unmarshal.
	v.SetDefault("rate_limit.enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/swr/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "swr")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "swr")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
