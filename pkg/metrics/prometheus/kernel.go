package prometheus

import (
	"github.com/botmesh/botmesh/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// kernelMetrics is the Prometheus implementation of metrics.KernelMetrics.
type kernelMetrics struct {
	instancesCreated    *prometheus.CounterVec
	factoryErrors       *prometheus.CounterVec
	dependenciesSkipped *prometheus.CounterVec
	hookErrors          *prometheus.CounterVec
	initializeDuration  prometheus.Histogram
	cachedInstances     *prometheus.GaugeVec
}

var _ metrics.KernelMetrics = (*kernelMetrics)(nil)

// NewKernelMetrics creates a new Prometheus-backed kernel metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called); a nil
// receiver turns every method into a no-op.
func NewKernelMetrics() *kernelMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &kernelMetrics{
		instancesCreated: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "botmesh_kernel_instances_created_total",
				Help: "Total number of plugin instances created by the kernel, by kind",
			},
			[]string{"kind"}, // "utility", "service"
		),
		factoryErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "botmesh_kernel_factory_errors_total",
				Help: "Total number of plugin factory runs that returned an error",
			},
			[]string{"plugin"},
		),
		dependenciesSkipped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "botmesh_kernel_dependencies_skipped_total",
				Help: "Total number of declared dependencies that did not resolve at instantiation",
			},
			[]string{"plugin"},
		),
		hookErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "botmesh_kernel_shutdown_hook_errors_total",
				Help: "Total number of plugin shutdown hooks that failed or panicked",
			},
			[]string{"plugin"},
		),
		initializeDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "botmesh_kernel_initialize_duration_seconds",
				Help:    "Duration of kernel initialization runs",
				Buckets: prometheus.DefBuckets,
			},
		),
		cachedInstances: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "botmesh_kernel_cached_instances",
				Help: "Number of singleton instances currently cached, by kind",
			},
			[]string{"kind"}, // "utility", "service"
		),
	}
}

// RecordInstanceCreated counts a successful factory run by kind.
func (m *kernelMetrics) RecordInstanceCreated(kind string) {
	if m == nil {
		return
	}
	m.instancesCreated.WithLabelValues(kind).Inc()
}

// RecordFactoryError counts a failed factory run for one plugin.
func (m *kernelMetrics) RecordFactoryError(plugin string) {
	if m == nil {
		return
	}
	m.factoryErrors.WithLabelValues(plugin).Inc()
}

// RecordDependencySkipped counts a declared dependency that did not
// resolve during instantiation.
func (m *kernelMetrics) RecordDependencySkipped(plugin string) {
	if m == nil {
		return
	}
	m.dependenciesSkipped.WithLabelValues(plugin).Inc()
}

// RecordHookError counts a shutdown hook that returned an error or
// panicked.
func (m *kernelMetrics) RecordHookError(plugin string) {
	if m == nil {
		return
	}
	m.hookErrors.WithLabelValues(plugin).Inc()
}

// ObserveInitialize records one kernel initialization duration.
func (m *kernelMetrics) ObserveInitialize(seconds float64) {
	if m == nil {
		return
	}
	m.initializeDuration.Observe(seconds)
}

// SetCachedInstances publishes the current instance cache size for a kind.
func (m *kernelMetrics) SetCachedInstances(kind string, n int) {
	if m == nil {
		return
	}
	m.cachedInstances.WithLabelValues(kind).Set(float64(n))
}
