// Package builtin ties the compiled-in plugins together: the factory
// registry the kernel resolves against and the shipped descriptors that
// 'botmesh init' scaffolds into the plugin tree. Discovery only reads
// the tree, so a plugin the binary carries is still invisible until its
// descriptor lands on disk.
package builtin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/botmesh/botmesh/internal/plugins/controlapi"
	"github.com/botmesh/botmesh/internal/plugins/heartbeat"
	"github.com/botmesh/botmesh/internal/plugins/mediastore"
	"github.com/botmesh/botmesh/internal/plugins/statestore"
	"github.com/botmesh/botmesh/internal/plugins/tenantstore"
	"github.com/botmesh/botmesh/internal/plugins/tokens"
	"github.com/botmesh/botmesh/pkg/plugin"
)

// Registry returns the factory registry holding every compiled-in plugin
// except the control API. The control API factory closes over the
// lifecycle controller, so the host command registers it separately once
// the runtime exists.
func Registry() (*plugin.Registry, error) {
	reg := plugin.NewRegistry()

	factories := []struct {
		name    string
		factory plugin.Factory
	}{
		{statestore.Name, statestore.Factory},
		{tenantstore.Name, tenantstore.Factory},
		{mediastore.Name, mediastore.Factory},
		{tokens.Name, tokens.Factory},
		{heartbeat.Name, heartbeat.Factory},
	}

	for _, f := range factories {
		if err := reg.Register(f.name, f.factory); err != nil {
			return nil, fmt.Errorf("failed to register built-in plugin %q: %w", f.name, err)
		}
	}

	return reg, nil
}

// Descriptors returns the shipped plugin.yaml content for every built-in
// plugin, keyed by plugin name. The control API is included: it has no
// standalone factory, but its descriptor belongs in the tree like any
// other.
func Descriptors() map[string][]byte {
	return map[string][]byte{
		statestore.Name:  statestore.DescriptorYAML,
		tenantstore.Name: tenantstore.DescriptorYAML,
		mediastore.Name:  mediastore.DescriptorYAML,
		tokens.Name:      tokens.DescriptorYAML,
		heartbeat.Name:   heartbeat.DescriptorYAML,
		controlapi.Name:  controlapi.DescriptorYAML,
	}
}

// Scaffold writes the shipped descriptors into the plugin tree at root,
// one <root>/<name>/plugin.yaml per built-in plugin. An existing
// descriptor is left alone unless force is set, so operator edits
// survive a re-run. Returns the sorted names of the plugins whose
// descriptors were written.
func Scaffold(root string, force bool) ([]string, error) {
	if root == "" {
		return nil, fmt.Errorf("plugin tree root must not be empty")
	}

	var written []string
	for name, descriptor := range Descriptors() {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create plugin directory %s: %w", dir, err)
		}

		path := filepath.Join(dir, plugin.DescriptorFileName)
		if !force {
			if _, err := os.Stat(path); err == nil {
				continue
			}
		}

		if err := os.WriteFile(path, descriptor, 0644); err != nil {
			return nil, fmt.Errorf("failed to write descriptor %s: %w", path, err)
		}
		written = append(written, name)
	}

	sort.Strings(written)
	return written, nil
}
