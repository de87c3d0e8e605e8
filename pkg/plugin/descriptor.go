package plugin

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DescriptorFileName is the file that marks a directory as a plugin leaf.
const DescriptorFileName = "plugin.yaml"

// Descriptor is the on-disk declaration of a plugin, one per plugin
// directory. The kernel reads name, kind, dependency list, singleton and
// enabled flags; everything else (description, interface, actions,
// features, settings defaults) is carried opaquely for the control API
// and for the plugin's own factory.
type Descriptor struct {
	// Name is the unique plugin key. Factories are registered under it and
	// dependencies reference it.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Description is free-form operator documentation.
	Description string `yaml:"description" json:"description,omitempty"`

	// Kind is "utility" or "service".
	Kind Kind `yaml:"type" json:"type" validate:"required"`

	// Singleton selects one shared instance for the process lifetime.
	// When false the plugin is transient: a fresh instance per lookup.
	Singleton bool `yaml:"singleton" json:"singleton"`

	// Enabled defaults to true when omitted. A descriptor with
	// enabled: false is dropped at discovery and never registered,
	// which is distinct from being disabled later by policy.
	Enabled *bool `yaml:"enabled" json:"enabled,omitempty"`

	// Edition tags the distribution tier the plugin belongs to.
	Edition string `yaml:"edition" json:"edition,omitempty"`

	// Interface names the Go interface the implementation satisfies.
	// Informational only.
	Interface string `yaml:"interface" json:"interface,omitempty"`

	// Dependencies declares the utilities this plugin needs by name.
	Dependencies DependencySpec `yaml:"dependencies" json:"dependencies"`

	// Actions and Features are opaque capability metadata served by the
	// control API and ignored by the kernel.
	Actions  []string `yaml:"actions" json:"actions,omitempty"`
	Features []string `yaml:"features" json:"features,omitempty"`

	// Settings holds the plugin's default settings. Platform configuration
	// overrides them per key before they reach the factory.
	Settings map[string]any `yaml:"settings" json:"settings,omitempty"`

	// Dir is the plugin directory, filled in by discovery.
	Dir string `yaml:"-" json:"dir,omitempty"`
}

// DependencySpec is the declared dependency list. Only utility
// dependencies exist; a single flat name list is all the descriptor
// format carries.
type DependencySpec struct {
	Utilities []string `yaml:"utilities" json:"utilities,omitempty"`
}

var descriptorValidator = validator.New()

// ParseDescriptor reads and validates a descriptor file. The returned
// descriptor has Dir set to the file's directory.
func ParseDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDescriptorInvalid, path, err)
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDescriptorInvalid, path, err)
	}

	d.Dir = filepath.Dir(path)

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDescriptorInvalid, path, err)
	}

	return &d, nil
}

// Validate checks the fields the kernel depends on.
func (d *Descriptor) Validate() error {
	if err := descriptorValidator.Struct(d); err != nil {
		return err
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("unknown plugin type %q (want %q or %q)", d.Kind, KindUtility, KindService)
	}
	return nil
}

// IsEnabled reports the descriptor's own enabled flag, true when omitted.
func (d *Descriptor) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// DependencyNames returns the declared utility dependency names. The
// returned slice is the descriptor's own; callers must not mutate it.
func (d *Descriptor) DependencyNames() []string {
	return d.Dependencies.Utilities
}
