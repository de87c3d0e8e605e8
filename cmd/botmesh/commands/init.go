package commands

import (
	"fmt"
	"strings"

	"github.com/botmesh/botmesh/internal/cli/prompt"
	"github.com/botmesh/botmesh/internal/plugins/builtin"
	"github.com/botmesh/botmesh/pkg/config"
	"github.com/spf13/cobra"
)

var (
	initForce    bool
	initDefaults bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a BotMesh configuration file and plugin tree.

By default the command walks through a short interactive setup (port,
log level, metrics, plugin watch mode). Use --defaults to skip the
prompts and write the stock configuration.

The configuration file is created at $XDG_CONFIG_HOME/botmesh/config.yaml.
Use --config to specify a custom path. The descriptors of the built-in
plugins are scaffolded into the configured plugin tree; existing
descriptors are only overwritten with --force.

Examples:
  # Interactive setup at the default location
  botmesh init

  # Non-interactive, stock defaults
  botmesh init --defaults

  # Initialize with custom path
  botmesh init --config /etc/botmesh/config.yaml

  # Force overwrite existing config
  botmesh init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVar(&initDefaults, "defaults", false, "Skip the interactive prompts and use defaults")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg := config.GetDefaultConfig()
	// A fresh install should be reachable out of the box.
	cfg.Plugins.Policy.Services.Enabled = []string{"controlapi", "heartbeat"}

	if !initDefaults {
		if err := promptSetup(cfg); err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("\nAborted.")
				return nil
			}
			return err
		}
	}

	written, err := config.InitConfigWith(cfg, configPath, initForce)
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	// Scaffold the built-in descriptors so a fresh tree has something to
	// discover. Operator-edited descriptors are preserved unless --force.
	scaffolded, err := builtin.Scaffold(cfg.Plugins.Root, initForce)
	if err != nil {
		return fmt.Errorf("failed to scaffold plugin tree: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", written)
	if len(scaffolded) > 0 {
		fmt.Printf("Plugin tree scaffolded at: %s (%s)\n", cfg.Plugins.Root, strings.Join(scaffolded, ", "))
	} else {
		fmt.Printf("Plugin tree already present at: %s\n", cfg.Plugins.Root)
	}
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: botmesh start")
	fmt.Printf("  3. Or specify custom config: botmesh start --config %s\n", written)
	fmt.Println("\nSecurity note:")
	fmt.Println("  The control API refuses to issue session tokens without a signing secret.")
	fmt.Println("  Generate one and export it before starting the server:")
	fmt.Println("    # Generates a 64-character hex string (32 bytes of entropy)")
	fmt.Printf("    export %s=$(openssl rand -hex 32)\n", config.EnvAPISecret)

	return nil
}

// promptSetup walks the operator through the handful of settings worth
// deciding up front and writes the answers onto cfg.
func promptSetup(cfg *config.Config) error {
	port, err := prompt.InputPort("Control API port", cfg.API.Port)
	if err != nil {
		return err
	}
	cfg.API.Port = port

	level, err := prompt.SelectString("Log level", []string{"INFO", "DEBUG", "WARN", "ERROR"})
	if err != nil {
		return err
	}
	cfg.Logging.Level = strings.ToUpper(level)

	format, err := prompt.SelectString("Log format", []string{"text", "json"})
	if err != nil {
		return err
	}
	cfg.Logging.Format = format

	metricsEnabled, err := prompt.Confirm("Enable Prometheus metrics", true)
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = metricsEnabled

	watch, err := prompt.Confirm("Watch the plugin tree for descriptor changes", false)
	if err != nil {
		return err
	}
	cfg.Plugins.Watch = watch

	root, err := prompt.Input("Plugin tree directory", cfg.Plugins.Root)
	if err != nil {
		return err
	}
	cfg.Plugins.Root = root

	return nil
}
