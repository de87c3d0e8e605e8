package prometheus

import (
	"github.com/botmesh/botmesh/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// lifecycleMetrics is the Prometheus implementation of
// metrics.LifecycleMetrics.
type lifecycleMetrics struct {
	planServices     prometheus.Gauge
	planUtilities    prometheus.Gauge
	tasksRunning     prometheus.Gauge
	shutdownDuration *prometheus.HistogramVec
	catalogReloads   prometheus.Counter
	planInvalidation prometheus.Counter
}

var _ metrics.LifecycleMetrics = (*lifecycleMetrics)(nil)

// NewLifecycleMetrics creates a new Prometheus-backed lifecycle metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called); a nil
// receiver turns every method into a no-op.
func NewLifecycleMetrics() *lifecycleMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &lifecycleMetrics{
		planServices: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "botmesh_lifecycle_plan_services",
				Help: "Number of services enabled by the current startup plan",
			},
		),
		planUtilities: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "botmesh_lifecycle_plan_utilities",
				Help: "Number of utilities required by the current startup plan",
			},
		),
		tasksRunning: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "botmesh_lifecycle_tasks_running",
				Help: "Number of live background service tasks",
			},
		),
		shutdownDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "botmesh_lifecycle_shutdown_phase_duration_seconds",
				Help:    "Duration of each shutdown phase",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"}, // "kernel", "tasks"
		),
		catalogReloads: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "botmesh_lifecycle_catalog_reloads_total",
				Help: "Total number of plugin catalog reloads",
			},
		),
		planInvalidation: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "botmesh_lifecycle_plan_invalidations_total",
				Help: "Total number of explicit startup plan invalidations",
			},
		),
	}
}

// SetPlan publishes the size of the current startup plan.
func (m *lifecycleMetrics) SetPlan(services, utilities int) {
	if m == nil {
		return
	}
	m.planServices.Set(float64(services))
	m.planUtilities.Set(float64(utilities))
}

// SetTasksRunning publishes the number of live background tasks.
func (m *lifecycleMetrics) SetTasksRunning(n int) {
	if m == nil {
		return
	}
	m.tasksRunning.Set(float64(n))
}

// ObserveShutdownPhase records the duration of one shutdown phase.
func (m *lifecycleMetrics) ObserveShutdownPhase(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.shutdownDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordCatalogReload counts a plugin catalog reload.
func (m *lifecycleMetrics) RecordCatalogReload() {
	if m == nil {
		return
	}
	m.catalogReloads.Inc()
}

// RecordPlanInvalidation counts an explicit plan invalidation.
func (m *lifecycleMetrics) RecordPlanInvalidation() {
	if m == nil {
		return
	}
	m.planInvalidation.Inc()
}
