package config

import (
	"fmt"
	"os"

	"github.com/botmesh/botmesh/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the BotMesh configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  botmesh config validate

  # Validate specific config file
  botmesh config validate --config /etc/botmesh/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load and validate configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Additional validation checks
	var warnings []string

	// Check the token-signing secret is configured
	if cfg.API.GetSecret() == "" && !cfg.API.AuthDisabled {
		warnings = append(warnings, fmt.Sprintf("API secret not configured - session token issuance will fail (set %s)", config.EnvAPISecret))
	}

	// Check the plugin tree exists
	if _, err := os.Stat(cfg.Plugins.Root); os.IsNotExist(err) {
		warnings = append(warnings, fmt.Sprintf("plugin tree directory does not exist yet: %s", cfg.Plugins.Root))
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Plugin tree:     %s\n", cfg.Plugins.Root)
	fmt.Printf("  API port:        %d\n", cfg.API.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
