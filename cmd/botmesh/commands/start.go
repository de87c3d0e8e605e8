package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/botmesh/botmesh/internal/logger"
	"github.com/botmesh/botmesh/internal/plugins/builtin"
	"github.com/botmesh/botmesh/internal/plugins/controlapi"
	"github.com/botmesh/botmesh/internal/telemetry"
	"github.com/botmesh/botmesh/pkg/config"
	"github.com/botmesh/botmesh/pkg/metrics"
	metricsprom "github.com/botmesh/botmesh/pkg/metrics/prometheus"
	"github.com/botmesh/botmesh/pkg/runtime"
	"github.com/spf13/cobra"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the BotMesh server",
	Long: `Start the BotMesh server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/botmesh/config.yaml.

Examples:
  # Start in background (default)
  botmesh start

  # Start in foreground
  botmesh start --foreground

  # Start with custom config file
  botmesh start --config /etc/botmesh/config.yaml

  # Start with environment variable overrides
  BOTMESH_LOGGING_LEVEL=DEBUG botmesh start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/botmesh/botmesh.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/botmesh/botmesh.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "botmesh",
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

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "botmesh",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("BotMesh - Plugin-kernel bot automation platform")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Initialize metrics (if enabled). The control API serves the scrape
	// endpoint, so there is no separate metrics listener.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "endpoint", fmt.Sprintf("http://localhost:%d/metrics", cfg.API.Port))
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Assemble the factory registry for the compiled-in plugins
	registry, err := builtin.Registry()
	if err != nil {
		return err
	}

	rt := runtime.New(cfg, registry,
		runtime.WithMetrics(metricsprom.NewLifecycleMetrics()),
		runtime.WithKernelMetrics(metricsprom.NewKernelMetrics()),
	)

	// The control API factory needs the lifecycle controller, so it joins
	// the registry only after the runtime exists.
	if err := registry.Register(controlapi.Name, controlapi.NewFactory(rt)); err != nil {
		return fmt.Errorf("failed to register control API plugin: %w", err)
	}

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Discover plugins, compute the startup plan, initialize the kernel
	// and spawn one task per enabled service.
	if err := rt.Startup(ctx); err != nil {
		logger.Error("Startup failed", "error", err)
		return err
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	// Run blocks until SIGINT/SIGTERM (or Stop) and executes the two-phase
	// graceful shutdown. A second signal exits immediately.
	return rt.Run()
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
