// Package discovery scans a plugin tree for descriptor files and maintains
// the resulting catalog: the descriptor set plus the validated dependency
// graph between them.
//
// A directory containing a descriptor file is a plugin leaf and is not
// recursed into further; every other directory is traversed. Discovery is
// deliberately stricter than startup planning about cycles: a dependency
// cycle found here is fatal and prevents the process from starting, while
// the planner later degrades gracefully around anything else.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/botmesh/botmesh/internal/logger"
	"github.com/botmesh/botmesh/pkg/plugin"
)

// Catalog holds the discovered plugin descriptors and their dependency
// graph. All accessors are safe for concurrent use; Discover and Reload
// replace the whole state atomically, so readers never observe a
// half-loaded tree.
type Catalog struct {
	mu          sync.RWMutex
	root        string
	descriptors map[string]*plugin.Descriptor
	graph       map[string]map[string]struct{}
}

// New creates an empty catalog rooted at the given plugin directory.
// Call Discover to populate it.
func New(root string) *Catalog {
	return &Catalog{
		root:        root,
		descriptors: make(map[string]*plugin.Descriptor),
		graph:       make(map[string]map[string]struct{}),
	}
}

// Root returns the plugin tree root the catalog scans.
func (c *Catalog) Root() string {
	return c.root
}

// Discover walks the plugin tree, parses every descriptor, builds the
// dependency graph and runs the fatal cycle check. On success the new
// state replaces the old one atomically; on failure the previous state is
// kept untouched.
//
// Unparsable descriptors and descriptors with enabled: false are skipped
// with a log line; only a dependency cycle makes Discover fail.
func (c *Catalog) Discover() error {
	logger.Info("Discovering plugins", "root", c.root)

	descriptors := make(map[string]*plugin.Descriptor)

	if _, err := os.Stat(c.root); err != nil {
		logger.Warn("Plugin root not found", "root", c.root, "error", err)
	} else if err := scanDir(c.root, descriptors); err != nil {
		return fmt.Errorf("scanning plugin tree %q: %w", c.root, err)
	}

	graph := buildGraph(descriptors)

	if err := detectCycles(graph); err != nil {
		return err
	}

	c.mu.Lock()
	c.descriptors = descriptors
	c.graph = graph
	c.mu.Unlock()

	logger.Info("Plugin discovery complete",
		"utilities", countKind(descriptors, plugin.KindUtility),
		"services", countKind(descriptors, plugin.KindService))

	return nil
}

// Reload re-runs discovery over the same root. The catalog keeps serving
// the previous state if the rescan fails.
func (c *Catalog) Reload() error {
	logger.Info("Reloading plugin catalog", "root", c.root)
	return c.Discover()
}

// scanDir recursively walks dir collecting descriptors. A directory that
// contains a descriptor file is a leaf: it is parsed and never recursed
// into, so nested descriptor files below a plugin are ignored.
func scanDir(dir string, descriptors map[string]*plugin.Descriptor) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %q: %w", dir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		sub := filepath.Join(dir, entry.Name())
		descriptorPath := filepath.Join(sub, plugin.DescriptorFileName)

		if _, err := os.Stat(descriptorPath); err != nil {
			if err := scanDir(sub, descriptors); err != nil {
				return err
			}
			continue
		}

		desc, err := plugin.ParseDescriptor(descriptorPath)
		if err != nil {
			logger.Error("Skipping plugin with invalid descriptor", "path", descriptorPath, "error", err)
			continue
		}

		if !desc.IsEnabled() {
			logger.Info("Plugin disabled in its descriptor, skipping", "plugin", desc.Name)
			continue
		}

		if prev, ok := descriptors[desc.Name]; ok {
			logger.Warn("Duplicate plugin name, keeping first",
				"plugin", desc.Name, "kept", prev.Dir, "ignored", desc.Dir)
			continue
		}

		descriptors[desc.Name] = desc
	}

	return nil
}

// Get returns the descriptor registered under name.
func (c *Catalog) Get(name string) (*plugin.Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.descriptors[name]
	return d, ok
}

// Descriptors returns a copy of the full descriptor map.
func (c *Catalog) Descriptors() map[string]*plugin.Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*plugin.Descriptor, len(c.descriptors))
	for name, d := range c.descriptors {
		out[name] = d
	}
	return out
}

// Names returns all plugin names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.descriptors))
	for name := range c.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NamesByKind returns the sorted plugin names of one kind.
func (c *Catalog) NamesByKind(kind plugin.Kind) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	for name, d := range c.descriptors {
		if d.Kind == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of discovered plugins.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.descriptors)
}

// CountByKind returns the number of discovered plugins of one kind.
func (c *Catalog) CountByKind(kind plugin.Kind) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return countKind(c.descriptors, kind)
}

// KnownUtility reports whether name is a discovered utility.
func (c *Catalog) KnownUtility(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.descriptors[name]
	return ok && d.Kind == plugin.KindUtility
}

// Kind returns the kind of the named plugin.
func (c *Catalog) Kind(name string) (plugin.Kind, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.descriptors[name]
	if !ok {
		return "", false
	}
	return d.Kind, true
}

// Edges returns the validated dependency edges of name in sorted order:
// only edges whose target is a known utility survive graph construction.
func (c *Catalog) Edges(name string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	deps, ok := c.graph[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(deps))
	for dep := range deps {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// RawDependencies returns the dependency names exactly as declared in the
// descriptor, including names that were dropped from the validated graph.
// Planning walks this raw list so a missing dependency can be detected.
func (c *Catalog) RawDependencies(name string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.descriptors[name]
	if !ok {
		return nil
	}
	return d.DependencyNames()
}

func countKind(descriptors map[string]*plugin.Descriptor, kind plugin.Kind) int {
	n := 0
	for _, d := range descriptors {
		if d.Kind == kind {
			n++
		}
	}
	return n
}
