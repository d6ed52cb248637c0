package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/betterforces/swr/internal/logger"
	"github.com/betterforces/swr/internal/telemetry"
	"github.com/betterforces/swr/pkg/api"
	"github.com/betterforces/swr/pkg/config"
	"github.com/betterforces/swr/pkg/coordinator"
	"github.com/betterforces/swr/pkg/metrics"
	metricsprom "github.com/betterforces/swr/pkg/metrics/prometheus"
	"github.com/betterforces/swr/pkg/ratelimit"
	"github.com/betterforces/swr/pkg/store"
	"github.com/betterforces/swr/pkg/upstream"
	"github.com/betterforces/swr/pkg/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the swrd server",
	Long: `Start the swrd server with the specified configuration.

The process runs the HTTP API and the background refresh workers together,
sharing one embedded store. Use --config to specify a custom configuration
file, or it will use the default location at $XDG_CONFIG_HOME/swr/config.yaml.

Examples:
  # Start with default config location
  swrd start

  # Start with custom config file
  swrd start --config /etc/swr/config.yaml

  # Start with environment variable overrides
  SWR_LOGGING_LEVEL=DEBUG swrd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "swrd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	// Initialize metrics (if enabled)
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "path", "/metrics")
	}

	// Open the embedded store shared by the API and the workers
	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()

	// Upstream fetcher with the global rate budget all workers share
	fetcher := upstream.NewCodeforcesClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
	upstreamLimiter := ratelimit.New(cfg.Upstream.RatePerSecond, cfg.Upstream.Burst)
	logger.Info("Upstream configured",
		"base_url", cfg.Upstream.BaseURL,
		"rate_per_second", cfg.Upstream.RatePerSecond,
		"burst", cfg.Upstream.Burst,
	)

	coord := coordinator.New(st, coordinator.Config{
		FreshTTL:       cfg.Cache.FreshTTL,
		StaleTTL:       cfg.Cache.StaleTTL,
		TaskStatusTTL:  cfg.Tasks.StatusTTL,
		PendingLockTTL: cfg.Tasks.PendingLockTTL,
		RetryAfterHint: 2 * time.Second,
	}, metricsprom.NewCoordinatorMetrics())

	pool := worker.NewPool(cfg.Worker.Count, st, fetcher, upstreamLimiter, worker.Config{
		PopTimeout:    cfg.Worker.PopTimeout,
		FetchTimeout:  cfg.Worker.FetchTimeout,
		CacheTTL:      cfg.Cache.StaleTTL,
		TaskStatusTTL: cfg.Tasks.StatusTTL,
	}, metricsprom.NewWorkerMetrics())
	pool.Start(ctx)
	defer pool.Stop()

	// Optional API-level limiter, independent of the upstream budget
	var apiLimiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		apiLimiter, err = ratelimit.NewPerPeriod(cfg.RateLimit.Requests, cfg.RateLimit.Period)
		if err != nil {
			return fmt.Errorf("invalid rate limit config: %w", err)
		}
		logger.Info("API rate limit enabled",
			"requests", cfg.RateLimit.Requests, "period", cfg.RateLimit.Period)
	}

	cfg.Server.ShutdownTimeout = cfg.ShutdownTimeout
	router := api.NewRouter(coord, st, apiLimiter, cfg.Server)
	server := api.NewServer(cfg.Server, router)

	// Start API server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
