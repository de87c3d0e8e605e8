package planner

import "github.com/botmesh/botmesh/pkg/plugin"

// Policy is the operator-supplied enablement policy, one rule set per
// plugin kind. Precedence within a kind: disabled list beats enabled list
// beats the kind default. Services default to off so a fresh install runs
// nothing it was not asked to; utilities default to on so dependency
// closures resolve without ceremony.
type Policy struct {
	Services  KindPolicy `mapstructure:"services" yaml:"services" json:"services"`
	Utilities KindPolicy `mapstructure:"utilities" yaml:"utilities" json:"utilities"`
}

// KindPolicy is the enablement rule set for one plugin kind.
type KindPolicy struct {
	// Disabled names always lose, regardless of the enabled list.
	Disabled []string `mapstructure:"disabled" yaml:"disabled" json:"disabled,omitempty"`

	// Enabled names win over the kind default.
	Enabled []string `mapstructure:"enabled" yaml:"enabled" json:"enabled,omitempty"`

	// DefaultEnabled applies when a name is on neither list.
	DefaultEnabled bool `mapstructure:"default_enabled" yaml:"default_enabled" json:"default_enabled"`
}

// DefaultPolicy returns the kind defaults: services off, utilities on.
func DefaultPolicy() Policy {
	return Policy{
		Services:  KindPolicy{DefaultEnabled: false},
		Utilities: KindPolicy{DefaultEnabled: true},
	}
}

// Allows reports whether name may start under this kind policy.
func (kp KindPolicy) Allows(name string) bool {
	for _, n := range kp.Disabled {
		if n == name {
			return false
		}
	}
	for _, n := range kp.Enabled {
		if n == name {
			return true
		}
	}
	return kp.DefaultEnabled
}

// ForKind returns the rule set applying to the given plugin kind.
func (p Policy) ForKind(kind plugin.Kind) KindPolicy {
	if kind == plugin.KindService {
		return p.Services
	}
	return p.Utilities
}
