package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# BotMesh Configuration File
#
# Generated by 'botmesh init'. Every value can be overridden with a
# BOTMESH_* environment variable, e.g. BOTMESH_LOGGING_LEVEL=DEBUG.
#
# Plugin descriptors live under plugins.root; per-plugin settings are
# overridden under plugins.settings.<name>.

`

// InitConfig creates a configuration file at the default location with
// defaults suitable for a fresh install: the built-in control API and
// heartbeat services are enabled so the daemon is reachable out of the
// box.
//
// Returns the path of the written file. Refuses to overwrite an existing
// file unless force is set.
func InitConfig(force bool) (string, error) {
	return InitConfigAt(GetDefaultConfigPath(), force)
}

// InitConfigAt is InitConfig writing to an explicit path.
func InitConfigAt(path string, force bool) (string, error) {
	cfg := GetDefaultConfig()
	cfg.Plugins.Policy.Services.Enabled = []string{"controlapi", "heartbeat"}
	return InitConfigWith(cfg, path, force)
}

// InitConfigWith writes an already-assembled configuration to path,
// prepending the generated-file header. Refuses to overwrite an existing
// file unless force is set.
func InitConfigWith(cfg *Config, path string, force bool) (string, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(configHeader), body...), 0600); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}
