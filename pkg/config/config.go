package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/botmesh/botmesh/pkg/plugin/planner"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvAPISecret is the environment variable overriding the control API
// token-signing secret. It always wins over the config file so the secret
// can stay out of files on disk.
const EnvAPISecret = "BOTMESH_API_SECRET"

// Config represents the BotMesh platform configuration.
//
// This structure captures the static, host-level aspects of the server:
//   - Logging configuration
//   - Telemetry/tracing and profiling configuration
//   - Prometheus metrics toggle
//   - Control API transport settings
//   - Plugin tree location, watch mode, enablement policy and settings
//   - Shutdown phase deadlines
//
// Per-plugin behavior (which stores back what, intervals, buckets) lives
// in plugin descriptors and in the plugins.settings overrides here; the
// plugins themselves never read this file.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (BOTMESH_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics toggles the process-wide Prometheus registry. The control
	// API serves the scrape endpoint, so there is no separate port here.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains control API transport settings. They reach the
	// controlapi plugin as settings overrides.
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Plugins locates the descriptor tree and shapes the startup plan.
	Plugins PluginsConfig `mapstructure:"plugins" yaml:"plugins"`

	// Shutdown bounds the two graceful shutdown phases.
	Shutdown ShutdownConfig `mapstructure:"shutdown" yaml:"shutdown"`

	// StateDir is where plugins keep their on-disk state (key-value
	// stores, SQLite databases, media files). Defaults to the XDG state
	// directory.
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`
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
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig toggles Prometheus metrics collection.
// When Enabled is false, no metrics are collected (zero overhead) and the
// control API's /metrics endpoint answers 404.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// APIConfig contains control API transport settings. The control API
// itself runs as the controlapi service plugin; these values overlay its
// descriptor settings so operators tune the port in one obvious place.
type APIConfig struct {
	// Port is the HTTP port the control API listens on
	// Default: 8420
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading a request
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out a response
	// Default: 10s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// AuthDisabled turns off bearer authentication on mutating routes.
	// Meant for local development only.
	AuthDisabled bool `mapstructure:"auth_disabled" yaml:"auth_disabled"`

	// TokenTTL is the lifetime of session tokens issued by the tokens
	// plugin. Default: 24h
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	// Secret signs session tokens. Prefer the BOTMESH_API_SECRET
	// environment variable over storing it here.
	Secret string `mapstructure:"secret" yaml:"secret,omitempty"`
}

// GetSecret returns the token-signing secret, environment first.
func (c *APIConfig) GetSecret() string {
	if s := os.Getenv(EnvAPISecret); s != "" {
		return s
	}
	return c.Secret
}

// PluginsConfig locates the plugin descriptor tree and shapes the plan.
type PluginsConfig struct {
	// Root is the plugin tree directory scanned at startup. Every leaf
	// directory containing a plugin.yaml becomes a candidate plugin.
	Root string `mapstructure:"root" validate:"required" yaml:"root"`

	// Watch re-scans the tree and invalidates the startup plan when
	// descriptor files change on disk.
	Watch bool `mapstructure:"watch" yaml:"watch"`

	// Policy decides which discovered plugins may start.
	Policy planner.Policy `mapstructure:"policy" yaml:"policy"`

	// Settings overrides descriptor settings per plugin, key by key.
	// Example:
	//   settings:
	//     heartbeat:
	//       interval: 5s
	Settings map[string]map[string]any `mapstructure:"settings" yaml:"settings,omitempty"`
}

// ShutdownConfig bounds the two graceful shutdown phases. Worst-case
// shutdown latency is roughly the sum of both.
type ShutdownConfig struct {
	// KernelTimeout bounds phase one: plugin teardown hooks.
	// Default: 15s
	KernelTimeout time.Duration `mapstructure:"kernel_timeout" validate:"omitempty,gt=0" yaml:"kernel_timeout"`

	// TaskTimeout bounds phase two: waiting for cancelled service tasks.
	// Default: 10s
	TaskTimeout time.Duration `mapstructure:"task_timeout" validate:"omitempty,gt=0" yaml:"task_timeout"`
}

// PluginSettings returns the per-plugin settings overrides with the api
// section folded in: transport settings reach the controlapi plugin and
// token parameters reach the tokens plugin, so operators tune them in one
// obvious place. Explicit plugins.settings entries win over folded values.
// Durations are rendered as strings so plugin setting accessors parse them
// uniformly.
func (c *Config) PluginSettings() map[string]map[string]any {
	out := map[string]map[string]any{
		"controlapi": {
			"port":          c.API.Port,
			"read_timeout":  c.API.ReadTimeout.String(),
			"write_timeout": c.API.WriteTimeout.String(),
			"idle_timeout":  c.API.IdleTimeout.String(),
			"auth_disabled": c.API.AuthDisabled,
			"metrics":       c.Metrics.Enabled,
		},
		"tokens": {
			"secret":    c.API.GetSecret(),
			"token_ttl": c.API.TokenTTL.String(),
		},
	}

	for name, settings := range c.Plugins.Settings {
		entry := out[name]
		if entry == nil {
			entry = make(map[string]any, len(settings))
			out[name] = entry
		}
		for k, v := range settings {
			entry[k] = v
		}
	}

	return out
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (BOTMESH_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		return GetDefaultConfig(), nil
	}

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
// It checks if the config file exists and provides user-friendly
// instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  botmesh init\n\n"+
				"Or specify a custom config file:\n"+
				"  botmesh <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  botmesh init --config %s",
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

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may carry the API secret.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the BOTMESH_ prefix and underscores.
	// Example: BOTMESH_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("BOTMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Utilities default to enabled. This has to be a viper default, not
	// an ApplyDefaults fixup, so an explicit `default_enabled: false` in
	// the file survives loading.
	v.SetDefault("plugins.policy.utilities.default_enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/botmesh/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file
// was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Also check for os.PathError when an explicit config file does
		// not exist
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

// durationDecodeHook returns a mapstructure decode hook that converts
// strings to time.Duration. This enables config files to use
// human-readable durations like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
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
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory (.) if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "botmesh")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "botmesh")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}

// GetDefaultPluginsRoot returns the default plugin tree location,
// $XDG_CONFIG_HOME/botmesh/plugins. Descriptors are operator-managed
// configuration, so they live next to the config file.
func GetDefaultPluginsRoot() string {
	return filepath.Join(getConfigDir(), "plugins")
}

// GetDefaultStateDir returns the default state directory.
//
// Uses XDG_STATE_HOME if set, otherwise ~/.local/state, falling back to
// the current directory. Plugins keep databases and media under it.
func GetDefaultStateDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "botmesh")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "state", "botmesh")
}
