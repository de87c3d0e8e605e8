// Package kernel instantiates plugins out of a startup plan and owns every
// live instance for the process lifetime. It resolves declared dependencies
// through the descriptor catalog and the compiled-in factory registry,
// injects them as capabilities, and tears everything down again on
// shutdown.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/botmesh/botmesh/internal/logger"
	"github.com/botmesh/botmesh/pkg/metrics"
	"github.com/botmesh/botmesh/pkg/plugin"
	"github.com/botmesh/botmesh/pkg/plugin/discovery"
	"github.com/botmesh/botmesh/pkg/plugin/planner"
)

// SettingsSource returns the merged settings map for one plugin: the
// descriptor defaults overlaid with whatever the host configuration
// overrides. The kernel calls it once per instantiation.
type SettingsSource func(name string) map[string]any

// Kernel creates, caches and destroys plugin instances. Singleton plugins
// get one shared instance; transient plugins get a fresh instance per
// lookup, built from a recorded factory.
type Kernel struct {
	catalog  *discovery.Catalog
	registry *plugin.Registry
	settings SettingsSource
	metrics  metrics.KernelMetrics

	// mu guards all four caches plus the order slices below. Holding a
	// single lock keeps the check-then-create in GetOnDemand atomic and
	// serializes lookups against shutdown.
	mu               sync.Mutex
	utilityInstances map[string]any
	utilityFactories map[string]plugin.Factory
	serviceInstances map[string]any
	serviceFactories map[string]plugin.Factory

	// Creation order of cached singletons. Teardown walks utilities in
	// the same dependency order they were built, then services.
	utilityOrder []string
	serviceOrder []string

	// bootstrap holds host-constructed instances resolvable as
	// dependencies without ever running a factory.
	bootstrap map[string]any

	// building guards against re-entrant lazy resolution of a plugin
	// that is already mid-construction.
	building map[string]bool
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithSettings sets the per-plugin settings source. Without it plugins
// receive their descriptor defaults unmodified.
func WithSettings(src SettingsSource) Option {
	return func(k *Kernel) {
		if src != nil {
			k.settings = src
		}
	}
}

// WithMetrics sets the kernel metrics sink.
func WithMetrics(m metrics.KernelMetrics) Option {
	return func(k *Kernel) {
		if m != nil {
			k.metrics = m
		}
	}
}

// New creates a kernel over a descriptor catalog and a factory registry.
// The catalog and the settings source are seeded as bootstrap dependencies
// so descriptors can declare them without any factory existing.
func New(catalog *discovery.Catalog, registry *plugin.Registry, opts ...Option) *Kernel {
	k := &Kernel{
		catalog:          catalog,
		registry:         registry,
		utilityInstances: make(map[string]any),
		utilityFactories: make(map[string]plugin.Factory),
		serviceInstances: make(map[string]any),
		serviceFactories: make(map[string]plugin.Factory),
		bootstrap:        make(map[string]any),
		building:         make(map[string]bool),
	}
	k.settings = func(name string) map[string]any {
		if d, ok := catalog.Get(name); ok {
			return plugin.MergeSettings(d.Settings, nil)
		}
		return map[string]any{}
	}

	for _, opt := range opts {
		opt(k)
	}

	k.bootstrap[plugin.BootstrapCatalog] = catalog
	k.bootstrap[plugin.BootstrapSettings] = k.settings

	return k
}

// Initialize builds every plugin the plan names: utilities first, in
// dependency order, then services. Singleton descriptors get an eager
// shared instance; transient ones have their factory recorded for
// per-lookup construction. A descriptor with no registered factory is
// logged and skipped without affecting its siblings; a factory returning
// an error aborts initialization.
func (k *Kernel) Initialize(ctx context.Context, plan *planner.Plan) error {
	start := time.Now()

	k.mu.Lock()
	defer k.mu.Unlock()

	logger.Info("Initializing instance kernel",
		"utilities", len(plan.DependencyOrder),
		"services", len(plan.EnabledServices))

	for _, name := range plan.DependencyOrder {
		if err := k.setupLocked(ctx, name); err != nil {
			return err
		}
	}
	for _, name := range plan.EnabledServices {
		if err := k.setupLocked(ctx, name); err != nil {
			return err
		}
	}

	k.publishCacheSizesLocked()
	if k.metrics != nil {
		k.metrics.ObserveInitialize(time.Since(start).Seconds())
	}

	logger.Info("Instance kernel initialized",
		"cached_utilities", len(k.utilityInstances),
		"cached_services", len(k.serviceInstances),
		"duration_ms", logger.Duration(start))
	return nil
}

// setupLocked prepares one planned plugin: eager instance for singletons,
// recorded factory for transients.
func (k *Kernel) setupLocked(ctx context.Context, name string) error {
	desc, ok := k.catalog.Get(name)
	if !ok {
		logger.Error("Planned plugin vanished from catalog, skipping", "plugin", name)
		return nil
	}

	factory, ok := k.registry.Lookup(name)
	if !ok {
		logger.Error("No factory registered for plugin, skipping",
			"plugin", name, "kind", string(desc.Kind))
		return nil
	}

	if !desc.Singleton {
		k.recordFactoryLocked(desc, factory)
		logger.Debug("Transient factory recorded", "plugin", name, "kind", string(desc.Kind))
		return nil
	}

	instance, err := k.createLocked(ctx, desc, factory)
	if err != nil {
		return err
	}
	k.cacheLocked(desc, instance)
	return nil
}

// createLocked runs a factory with its resolved dependency capabilities.
func (k *Kernel) createLocked(ctx context.Context, desc *plugin.Descriptor, factory plugin.Factory) (any, error) {
	name := desc.Name
	k.building[name] = true
	defer delete(k.building, name)

	child := logger.Named(name)
	resolved := k.resolveDependenciesLocked(ctx, desc, child)
	deps := plugin.NewDependencies(name, child, k.settings(name), resolved)

	instance, err := factory(ctx, deps)
	if err != nil {
		if k.metrics != nil {
			k.metrics.RecordFactoryError(name)
		}
		return nil, fmt.Errorf("%w: %q: %v", plugin.ErrFactoryFailed, name, err)
	}

	if k.metrics != nil {
		k.metrics.RecordInstanceCreated(string(desc.Kind))
	}
	logger.Debug("Plugin instance created",
		"plugin", name, "kind", string(desc.Kind), "singleton", desc.Singleton)
	return instance, nil
}

// resolveDependenciesLocked maps each declared dependency name to a live
// instance. The logger dependency always resolves to the plugin's own
// child logger, never the shared root. A dependency that cannot be
// resolved is omitted with a warning; construction proceeds without it.
func (k *Kernel) resolveDependenciesLocked(ctx context.Context, desc *plugin.Descriptor, child *slog.Logger) map[string]any {
	deps := desc.DependencyNames()
	if len(deps) == 0 {
		return nil
	}

	resolved := make(map[string]any, len(deps))
	for _, dep := range deps {
		if dep == plugin.BootstrapLogger {
			resolved[dep] = child
			continue
		}
		if v, ok := k.bootstrap[dep]; ok {
			resolved[dep] = v
			continue
		}

		v, ok := k.resolveUtilityLocked(ctx, dep)
		if !ok {
			logger.Warn("Dependency unresolved, omitted",
				"plugin", desc.Name, "dependency", dep)
			if k.metrics != nil {
				k.metrics.RecordDependencySkipped(desc.Name)
			}
			continue
		}
		resolved[dep] = v
	}
	return resolved
}

// resolveUtilityLocked finds or lazily builds a utility instance for
// dependency injection. Cached singletons win; a recorded transient
// factory yields a fresh instance; anything else takes the full
// on-demand path. Construction failures make the dependency unresolved
// rather than failing the dependent.
func (k *Kernel) resolveUtilityLocked(ctx context.Context, name string) (any, bool) {
	if k.building[name] {
		logger.Warn("Dependency is mid-construction, resolution refused", "dependency", name)
		return nil, false
	}
	if v, ok := k.utilityInstances[name]; ok {
		return v, true
	}
	if factory, ok := k.utilityFactories[name]; ok {
		desc, ok := k.catalog.Get(name)
		if !ok {
			return nil, false
		}
		v, err := k.createLocked(ctx, desc, factory)
		if err != nil {
			logger.Warn("Transient dependency construction failed", "dependency", name, "error", err)
			return nil, false
		}
		return v, true
	}

	desc, ok := k.catalog.Get(name)
	if !ok || desc.Kind != plugin.KindUtility {
		return nil, false
	}
	factory, ok := k.registry.Lookup(name)
	if !ok {
		return nil, false
	}
	v, err := k.createLocked(ctx, desc, factory)
	if err != nil {
		logger.Warn("Lazy dependency construction failed", "dependency", name, "error", err)
		return nil, false
	}
	if desc.Singleton {
		k.cacheLocked(desc, v)
		k.publishCacheSizesLocked()
	} else {
		k.recordFactoryLocked(desc, factory)
	}
	return v, true
}

// Get returns the instance for name. Singletons come from the cache,
// transients are constructed fresh on every call, and an unknown or
// unbuildable name reports false rather than an error.
func (k *Kernel) Get(ctx context.Context, name string) (any, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if v, ok := k.utilityInstances[name]; ok {
		return v, true
	}
	if v, ok := k.serviceInstances[name]; ok {
		return v, true
	}

	factory, ok := k.utilityFactories[name]
	if !ok {
		factory, ok = k.serviceFactories[name]
	}
	if !ok {
		return nil, false
	}

	desc, ok := k.catalog.Get(name)
	if !ok {
		return nil, false
	}
	v, err := k.createLocked(ctx, desc, factory)
	if err != nil {
		logger.Error("Transient construction failed", "plugin", name, "error", err)
		return nil, false
	}
	return v, true
}

// GetOnDemand obtains a plugin outside the startup plan: if nothing is
// cached or recorded for name it runs the full resolve-and-create path
// and registers the result post hoc, so later lookups behave exactly as
// if the plugin had been planned. The check and the create run under one
// lock acquisition.
func (k *Kernel) GetOnDemand(ctx context.Context, name string) (any, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if v, ok := k.utilityInstances[name]; ok {
		return v, nil
	}
	if v, ok := k.serviceInstances[name]; ok {
		return v, nil
	}

	desc, ok := k.catalog.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: no descriptor for plugin %q", plugin.ErrFactoryNotFound, name)
	}

	factory, ok := k.utilityFactories[name]
	if !ok {
		factory, ok = k.serviceFactories[name]
	}
	if !ok {
		factory, ok = k.registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", plugin.ErrFactoryNotFound, name)
		}
	}

	v, err := k.createLocked(ctx, desc, factory)
	if err != nil {
		return nil, err
	}

	if desc.Singleton {
		k.cacheLocked(desc, v)
	} else {
		k.recordFactoryLocked(desc, factory)
	}
	k.publishCacheSizesLocked()

	logger.Info("Plugin created on demand",
		"plugin", name, "kind", string(desc.Kind), "singleton", desc.Singleton)
	return v, nil
}

// Shutdown tears the kernel down: the optional Shutdowner hook runs on
// every cached utility instance in the order they were built, then on
// every cached service instance. Each hook is fenced on its own — an
// error or panic is logged and the walk continues. All four caches are
// cleared unconditionally afterwards, so the kernel can be initialized
// again and a second Shutdown is a no-op.
func (k *Kernel) Shutdown(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()

	total := len(k.utilityInstances) + len(k.serviceInstances)
	if total > 0 {
		logger.Info("Shutting down instance kernel",
			"utilities", len(k.utilityInstances),
			"services", len(k.serviceInstances))
	}

	for _, name := range k.utilityOrder {
		if v, ok := k.utilityInstances[name]; ok {
			k.runHook(ctx, name, v)
		}
	}
	for _, name := range k.serviceOrder {
		if v, ok := k.serviceInstances[name]; ok {
			k.runHook(ctx, name, v)
		}
	}

	k.utilityInstances = make(map[string]any)
	k.utilityFactories = make(map[string]plugin.Factory)
	k.serviceInstances = make(map[string]any)
	k.serviceFactories = make(map[string]plugin.Factory)
	k.utilityOrder = nil
	k.serviceOrder = nil
	k.publishCacheSizesLocked()
}

// runHook invokes one plugin's Shutdowner hook behind a panic fence.
func (k *Kernel) runHook(ctx context.Context, name string, instance any) {
	s, ok := instance.(plugin.Shutdowner)
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Shutdown hook panicked", "plugin", name, "panic", r)
			if k.metrics != nil {
				k.metrics.RecordHookError(name)
			}
		}
	}()

	if err := s.Shutdown(ctx); err != nil {
		logger.Warn("Shutdown hook failed", "plugin", name, "error", err)
		if k.metrics != nil {
			k.metrics.RecordHookError(name)
		}
		return
	}
	logger.Debug("Shutdown hook completed", "plugin", name)
}

// CachedCounts reports how many singleton instances are currently held,
// by kind.
func (k *Kernel) CachedCounts() (utilities, services int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.utilityInstances), len(k.serviceInstances)
}

// Cached reports whether a singleton instance for name is currently held.
func (k *Kernel) Cached(name string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, u := k.utilityInstances[name]
	_, s := k.serviceInstances[name]
	return u || s
}

func (k *Kernel) cacheLocked(desc *plugin.Descriptor, instance any) {
	if desc.Kind == plugin.KindUtility {
		if _, exists := k.utilityInstances[desc.Name]; !exists {
			k.utilityOrder = append(k.utilityOrder, desc.Name)
		}
		k.utilityInstances[desc.Name] = instance
		return
	}
	if _, exists := k.serviceInstances[desc.Name]; !exists {
		k.serviceOrder = append(k.serviceOrder, desc.Name)
	}
	k.serviceInstances[desc.Name] = instance
}

func (k *Kernel) recordFactoryLocked(desc *plugin.Descriptor, factory plugin.Factory) {
	if desc.Kind == plugin.KindUtility {
		k.utilityFactories[desc.Name] = factory
		return
	}
	k.serviceFactories[desc.Name] = factory
}

func (k *Kernel) publishCacheSizesLocked() {
	if k.metrics == nil {
		return
	}
	k.metrics.SetCachedInstances(string(plugin.KindUtility), len(k.utilityInstances))
	k.metrics.SetCachedInstances(string(plugin.KindService), len(k.serviceInstances))
}
