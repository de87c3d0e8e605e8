package plugin

import (
	"log/slog"
	"time"
)

// Dependencies is the capability map handed to a plugin factory. It holds
// the subset of declared dependencies that actually resolved, the plugin's
// name-scoped logger, and its merged settings.
//
// The map deliberately preserves the skip-missing contract: a declared
// dependency that failed to resolve is absent, Get returns false for it,
// and the factory chooses whether that is survivable.
type Dependencies struct {
	pluginName string
	logger     *slog.Logger
	settings   map[string]any
	resolved   map[string]any
}

// NewDependencies builds a capability map for the named plugin. The kernel
// is the normal caller; tests construct them directly.
func NewDependencies(pluginName string, logger *slog.Logger, settings map[string]any, resolved map[string]any) *Dependencies {
	if resolved == nil {
		resolved = make(map[string]any)
	}
	if settings == nil {
		settings = make(map[string]any)
	}
	return &Dependencies{
		pluginName: pluginName,
		logger:     logger,
		settings:   settings,
		resolved:   resolved,
	}
}

// PluginName returns the name of the plugin being constructed.
func (d *Dependencies) PluginName() string {
	return d.pluginName
}

// Get returns the resolved dependency instance registered under name.
// The second return is false when the dependency did not resolve.
func (d *Dependencies) Get(name string) (any, bool) {
	v, ok := d.resolved[name]
	return v, ok
}

// Logger returns the plugin's name-scoped logger. It is always non-nil:
// plugins never receive the shared root logger directly.
func (d *Dependencies) Logger() *slog.Logger {
	if d.logger == nil {
		return slog.Default()
	}
	return d.logger
}

// Settings returns the plugin's merged settings map: descriptor defaults
// overridden per key by platform configuration.
func (d *Dependencies) Settings() map[string]any {
	return d.settings
}

// StringSetting returns a string-typed setting, with a fallback when the
// key is absent or holds a different type.
func (d *Dependencies) StringSetting(key, fallback string) string {
	if v, ok := d.settings[key].(string); ok {
		return v
	}
	return fallback
}

// BoolSetting returns a bool-typed setting with a fallback.
func (d *Dependencies) BoolSetting(key string, fallback bool) bool {
	if v, ok := d.settings[key].(bool); ok {
		return v
	}
	return fallback
}

// IntSetting returns an int-typed setting with a fallback. YAML decodes
// whole numbers as int; float64 values with no fraction are accepted too.
func (d *Dependencies) IntSetting(key string, fallback int) int {
	switch v := d.settings[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return fallback
}

// StringSliceSetting returns a string-list setting. YAML decodes lists
// as []any, so both []string and []any with string elements are
// accepted; non-string elements are skipped. Absent keys yield nil.
func (d *Dependencies) StringSliceSetting(key string) []string {
	switch v := d.settings[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// DurationSetting returns a duration-typed setting with a fallback.
// Settings files carry durations as strings ("30s", "5m"); a
// time.Duration value is accepted as-is and an unparseable or absent
// value yields the fallback.
func (d *Dependencies) DurationSetting(key string, fallback time.Duration) time.Duration {
	switch v := d.settings[key].(type) {
	case time.Duration:
		return v
	case string:
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}
