package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the compile-time registration table mapping plugin names to
// implementation factories. It replaces any runtime type-name guessing:
// a descriptor whose name has no entry here is simply unusable.
//
// The registry is safe for concurrent use. Typical usage:
//
//	reg := plugin.NewRegistry()
//	if err := reg.Register("statestore", statestore.New); err != nil {
//	    return err
//	}
//	factory, ok := reg.Lookup("statestore")
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty factory registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under the given plugin name.
// Returns an error if the name is already taken or the factory is nil.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("plugin factory name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("plugin factory %q cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("plugin factory %q already registered", name)
	}

	r.factories[name] = factory
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	return factory, ok
}

// Names returns the registered plugin names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered factories.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}
