package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeDescriptor creates a plugin.yaml inside a fresh temp directory and
// returns its path.
func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, DescriptorFileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write descriptor: %v", err)
	}
	return path
}

func TestParseDescriptor(t *testing.T) {
	path := writeDescriptor(t, `
name: statestore
description: Conversation state persistence
type: utility
singleton: true
dependencies:
  utilities: [logger, tenantstore]
settings:
  path: ./data/state
`)

	d, err := ParseDescriptor(path)
	if err != nil {
		t.Fatalf("ParseDescriptor failed: %v", err)
	}

	if d.Name != "statestore" {
		t.Errorf("Name = %q, want %q", d.Name, "statestore")
	}
	if d.Kind != KindUtility {
		t.Errorf("Kind = %q, want %q", d.Kind, KindUtility)
	}
	if !d.Singleton {
		t.Error("Singleton should be true")
	}
	if !d.IsEnabled() {
		t.Error("IsEnabled should default to true when omitted")
	}
	if d.Dir != filepath.Dir(path) {
		t.Errorf("Dir = %q, want %q", d.Dir, filepath.Dir(path))
	}

	deps := d.DependencyNames()
	if len(deps) != 2 || deps[0] != "logger" || deps[1] != "tenantstore" {
		t.Errorf("DependencyNames = %v, want [logger tenantstore]", deps)
	}

	if d.Settings["path"] != "./data/state" {
		t.Errorf("Settings[path] = %v, want ./data/state", d.Settings["path"])
	}
}

func TestParseDescriptorExplicitlyDisabled(t *testing.T) {
	path := writeDescriptor(t, `
name: legacybot
type: service
enabled: false
`)

	d, err := ParseDescriptor(path)
	if err != nil {
		t.Fatalf("ParseDescriptor failed: %v", err)
	}
	if d.IsEnabled() {
		t.Error("IsEnabled should be false for enabled: false")
	}
}

func TestParseDescriptorRejectsMalformed(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		// missing name
		{"no name", "type: utility\n"},
		// missing kind
		{"no type", "name: thing\n"},
		// unknown kind
		{"bad type", "name: thing\ntype: daemon\n"},
		// not yaml at all
		{"garbage", "{{{{not yaml"},
	}

	for _, tc := range cases {
		path := writeDescriptor(t, tc.content)
		if _, err := ParseDescriptor(path); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		} else if !errors.Is(err, ErrDescriptorInvalid) {
			t.Errorf("%s: error should wrap ErrDescriptorInvalid, got %v", tc.name, err)
		}
	}
}

func TestParseDescriptorMissingFile(t *testing.T) {
	if _, err := ParseDescriptor(filepath.Join(t.TempDir(), DescriptorFileName)); err == nil {
		t.Error("expected error for missing descriptor file")
	}
}

func TestMergeSettings(t *testing.T) {
	defaults := map[string]any{
		"path":     "./data",
		"interval": map[string]any{"default": 30},
		"verbose":  false,
	}
	overrides := map[string]any{
		"path":    "/var/lib/botmesh",
		"verbose": true,
	}

	merged := MergeSettings(defaults, overrides)

	if merged["path"] != "/var/lib/botmesh" {
		t.Errorf("override should win: path = %v", merged["path"])
	}
	// {default: X} wrapper unwraps to the plain value.
	if merged["interval"] != 30 {
		t.Errorf("interval = %v, want 30", merged["interval"])
	}
	if merged["verbose"] != true {
		t.Errorf("verbose = %v, want true", merged["verbose"])
	}

	// Inputs stay untouched.
	if defaults["path"] != "./data" {
		t.Error("MergeSettings mutated its defaults input")
	}
}

func TestDependenciesCapabilityMap(t *testing.T) {
	deps := NewDependencies("heartbeat", nil,
		map[string]any{"interval": 5, "label": "live", "strict": true},
		map[string]any{"statestore": &struct{ n int }{1}},
	)

	if deps.PluginName() != "heartbeat" {
		t.Errorf("PluginName = %q", deps.PluginName())
	}
	if _, ok := deps.Get("statestore"); !ok {
		t.Error("resolved dependency should be present")
	}
	if _, ok := deps.Get("mediastore"); ok {
		t.Error("unresolved dependency should be absent")
	}
	if deps.Logger() == nil {
		t.Error("Logger must never be nil")
	}
	if got := deps.IntSetting("interval", 0); got != 5 {
		t.Errorf("IntSetting = %d, want 5", got)
	}
	if got := deps.StringSetting("label", ""); got != "live" {
		t.Errorf("StringSetting = %q, want live", got)
	}
	if !deps.BoolSetting("strict", false) {
		t.Error("BoolSetting should read true")
	}
	if got := deps.IntSetting("absent", 42); got != 42 {
		t.Errorf("IntSetting fallback = %d, want 42", got)
	}
}

func TestStringSliceSetting(t *testing.T) {
	deps := NewDependencies("tokens", nil, map[string]any{
		"typed": []string{"a", "b"},
		// YAML lists decode as []any.
		"decoded": []any{"x", "y", 3, "z"},
		"scalar":  "not-a-list",
	}, nil)

	if got := deps.StringSliceSetting("typed"); len(got) != 2 || got[0] != "a" {
		t.Errorf("typed slice = %v", got)
	}
	if got := deps.StringSliceSetting("decoded"); len(got) != 3 || got[2] != "z" {
		t.Errorf("decoded slice = %v, want [x y z]", got)
	}
	if got := deps.StringSliceSetting("scalar"); got != nil {
		t.Errorf("scalar should yield nil, got %v", got)
	}
	if got := deps.StringSliceSetting("absent"); got != nil {
		t.Errorf("absent should yield nil, got %v", got)
	}
}
