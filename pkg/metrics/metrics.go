// Package metrics owns the process-wide Prometheus registry and the
// interfaces the kernel and lifecycle layers record against. The concrete
// collectors live in the prometheus subpackage; when metrics are disabled
// their constructors return nil and every method call becomes a no-op, so
// callers never branch on whether metrics are on.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the process registry with the standard Go and
// process collectors. Until it is called, IsEnabled reports false and all
// collectors are inert.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether the registry has been initialized.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the process registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// KernelMetrics is recorded by the instance kernel.
type KernelMetrics interface {
	// RecordInstanceCreated counts a successful factory run by kind.
	RecordInstanceCreated(kind string)
	// RecordFactoryError counts a failed factory run for one plugin.
	RecordFactoryError(plugin string)
	// RecordDependencySkipped counts a declared dependency that did not
	// resolve during instantiation.
	RecordDependencySkipped(plugin string)
	// RecordHookError counts a shutdown hook that returned an error or
	// panicked.
	RecordHookError(plugin string)
	// ObserveInitialize records one kernel initialization duration.
	ObserveInitialize(seconds float64)
	// SetCachedInstances publishes the current instance cache sizes.
	SetCachedInstances(kind string, n int)
}

// LifecycleMetrics is recorded by the runtime controller.
type LifecycleMetrics interface {
	// SetPlan publishes the size of the current startup plan.
	SetPlan(services, utilities int)
	// SetTasksRunning publishes the number of live background tasks.
	SetTasksRunning(n int)
	// ObserveShutdownPhase records the duration of one shutdown phase.
	ObserveShutdownPhase(phase string, seconds float64)
	// RecordCatalogReload counts a plugin catalog reload.
	RecordCatalogReload()
	// RecordPlanInvalidation counts an explicit plan invalidation.
	RecordPlanInvalidation()
}
