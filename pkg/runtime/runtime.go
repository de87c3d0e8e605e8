// Package runtime is the lifecycle controller: it drives discovery,
// planning and the instance kernel through startup, owns one background
// task per running service, and tears everything down again in two
// independently time-boxed phases.
//
// The controller moves through five states:
//
//	Created → Starting → Running → ShuttingDown → Stopped
//
// Stopped is terminal for a Run loop, but the kernel underneath is left
// re-initializable; tests restart the same Runtime after a full shutdown.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/botmesh/botmesh/internal/logger"
	"github.com/botmesh/botmesh/internal/telemetry"
	"github.com/botmesh/botmesh/pkg/config"
	"github.com/botmesh/botmesh/pkg/kernel"
	"github.com/botmesh/botmesh/pkg/metrics"
	"github.com/botmesh/botmesh/pkg/plugin"
	"github.com/botmesh/botmesh/pkg/plugin/discovery"
	"github.com/botmesh/botmesh/pkg/plugin/planner"
)

// State is the lifecycle controller's phase.
type State string

const (
	StateCreated      State = "created"
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateShuttingDown State = "shutting_down"
	StateStopped      State = "stopped"
)

// Default shutdown phase deadlines, used when configuration leaves them
// unset.
const (
	DefaultKernelTimeout = 15 * time.Second
	DefaultTaskTimeout   = 10 * time.Second
)

// taskEntry is the cancellable handle for one spawned service task.
type taskEntry struct {
	id     string
	plugin string
	cancel context.CancelFunc

	// errCh receives the Run result exactly once, buffered so the task
	// goroutine never blocks on a reader.
	errCh chan error
}

// Runtime is the lifecycle controller. One Runtime owns one catalog, one
// planner and one kernel; the control API reaches all three through it.
type Runtime struct {
	cfg      *config.Config
	registry *plugin.Registry
	catalog  *discovery.Catalog
	planner  *planner.Planner
	kernel   *kernel.Kernel

	metrics       metrics.LifecycleMetrics
	kernelMetrics metrics.KernelMetrics

	// overrides is cfg.PluginSettings(), captured once at construction.
	overrides map[string]map[string]any

	mu        sync.Mutex
	state     State
	startedAt time.Time
	tasks     []*taskEntry
	liveTasks int
	watcher   *Watcher

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithMetrics sets the lifecycle metrics sink.
func WithMetrics(m metrics.LifecycleMetrics) Option {
	return func(r *Runtime) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithKernelMetrics sets the metrics sink handed to the instance kernel.
func WithKernelMetrics(m metrics.KernelMetrics) Option {
	return func(r *Runtime) {
		if m != nil {
			r.kernelMetrics = m
		}
	}
}

// New creates a runtime over the platform configuration and the
// compiled-in factory registry. Nothing is scanned or constructed until
// Startup.
func New(cfg *config.Config, registry *plugin.Registry, opts ...Option) *Runtime {
	catalog := discovery.New(cfg.Plugins.Root)

	r := &Runtime{
		cfg:       cfg,
		registry:  registry,
		catalog:   catalog,
		planner:   planner.New(catalog, cfg.Plugins.Policy),
		overrides: cfg.PluginSettings(),
		state:     StateCreated,
		stopCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.kernel = kernel.New(catalog, registry,
		kernel.WithSettings(r.pluginSettings),
		kernel.WithMetrics(r.kernelMetrics),
	)

	return r
}

// pluginSettings is the kernel's settings source: descriptor defaults
// overlaid with the host-level settings every plugin receives (the state
// directory) and the platform configuration's per-plugin overrides.
func (r *Runtime) pluginSettings(name string) map[string]any {
	var defaults map[string]any
	if d, ok := r.catalog.Get(name); ok {
		defaults = d.Settings
	}

	overlay := map[string]any{
		"state_dir": r.cfg.StateDir,
	}
	for k, v := range r.overrides[name] {
		overlay[k] = v
	}

	return plugin.MergeSettings(defaults, overlay)
}

// Startup brings the platform up: discovery (a dependency cycle here is
// fatal), plan computation, kernel initialization, then one background
// task per enabled service implementing plugin.Runner. Any error tears
// down whatever was already built and leaves the controller Stopped; the
// caller is expected to exit non-zero.
func (r *Runtime) Startup(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateCreated && r.state != StateStopped {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("startup refused in state %q", state)
	}
	r.state = StateStarting
	r.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanStartup)
	defer span.End()

	start := time.Now()
	logger.Info("Starting BotMesh runtime", "plugins_root", r.cfg.Plugins.Root)

	if err := r.catalog.Discover(); err != nil {
		telemetry.RecordError(ctx, err)
		r.setState(StateStopped)
		return fmt.Errorf("plugin discovery failed: %w", err)
	}

	plan := r.planner.Plan()
	telemetry.SetAttributes(ctx,
		telemetry.PlanServices(plan.TotalServices),
		telemetry.PlanUtilities(plan.TotalUtilities))
	if r.metrics != nil {
		r.metrics.SetPlan(plan.TotalServices, plan.TotalUtilities)
	}

	if err := r.kernel.Initialize(ctx, plan); err != nil {
		telemetry.RecordError(ctx, err)
		logger.Error("Kernel initialization failed, tearing down", "error", err)
		r.shutdownKernel(ctx)
		r.setState(StateStopped)
		return err
	}

	r.spawnServices(ctx, plan)

	if r.cfg.Plugins.Watch {
		w, err := NewWatcher(r.cfg.Plugins.Root, r.Reload)
		if err != nil {
			logger.Warn("Plugin tree watcher unavailable", "error", err)
		} else {
			r.mu.Lock()
			r.watcher = w
			r.mu.Unlock()
			w.Start()
		}
	}

	r.mu.Lock()
	r.state = StateRunning
	r.startedAt = time.Now()
	tasks := r.liveTasks
	r.mu.Unlock()

	logger.Info("BotMesh runtime running",
		"services", plan.TotalServices,
		"utilities", plan.TotalUtilities,
		"tasks", tasks,
		"duration_ms", logger.Duration(start))
	return nil
}

// spawnServices launches one goroutine per enabled service implementing
// plugin.Runner. Services without a Run entry point are instantiated by
// the kernel but get no task.
func (r *Runtime) spawnServices(ctx context.Context, plan *planner.Plan) {
	for _, name := range plan.EnabledServices {
		instance, ok := r.kernel.Get(ctx, name)
		if !ok {
			logger.Warn("Enabled service has no instance, no task spawned", "plugin", name)
			continue
		}
		runner, ok := instance.(plugin.Runner)
		if !ok {
			logger.Debug("Service exposes no Run entry point", "plugin", name)
			continue
		}
		r.spawnTask(name, runner)
	}

	r.mu.Lock()
	live := r.liveTasks
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.SetTasksRunning(live)
	}
}

// spawnTask records a cancellable handle and runs the service's Run on
// its own goroutine. Task contexts descend from the background context,
// not the startup context: tasks end only through their own cancel.
func (r *Runtime) spawnTask(name string, runner plugin.Runner) {
	taskCtx, cancel := context.WithCancel(context.Background())
	entry := &taskEntry{
		id:     uuid.NewString(),
		plugin: name,
		cancel: cancel,
		errCh:  make(chan error, 1),
	}

	r.mu.Lock()
	r.tasks = append(r.tasks, entry)
	r.liveTasks++
	r.mu.Unlock()

	go func() {
		logger.Info("Service task started", "plugin", name, "task_id", entry.id)
		err := runTask(taskCtx, entry, runner)

		// Decrement before signalling so counts are settled by the time a
		// shutdown drain observes the result.
		r.mu.Lock()
		r.liveTasks--
		live := r.liveTasks
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.SetTasksRunning(live)
		}
		entry.errCh <- err

		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Service task ended with error", "plugin", name, "task_id", entry.id, "error", err)
			return
		}
		logger.Info("Service task ended", "plugin", name, "task_id", entry.id)
	}()
}

// runTask fences one Run call: a panic inside plugin code becomes an
// error instead of taking the process down.
func runTask(ctx context.Context, entry *taskEntry, runner plugin.Runner) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("service %q panicked: %v", entry.plugin, rec)
		}
	}()
	return runner.Run(ctx)
}

// Run blocks until a termination signal or an internal Stop, then runs
// the shutdown sequence. The first SIGINT/SIGTERM starts the graceful
// path; a second signal before it completes exits the process
// immediately.
func (r *Runtime) Run() error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("Termination signal received, shutting down", "signal", sig.String())
	case <-r.stopCh:
		logger.Info("Stop requested, shutting down")
	}

	done := make(chan struct{})
	go func() {
		r.Shutdown(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case sig := <-sigCh:
		logger.Error("Second termination signal, exiting immediately", "signal", sig.String())
		os.Exit(1)
	}

	return nil
}

// Stop requests a graceful shutdown from inside the process, unblocking
// Run. Safe to call more than once.
func (r *Runtime) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Shutdown runs the two shutdown phases in order: kernel teardown bounded
// by shutdown.kernel_timeout, then task cancellation bounded by
// shutdown.task_timeout. Worst-case latency is the sum of both deadlines.
// A second call is a no-op.
func (r *Runtime) Shutdown(ctx context.Context) {
	r.mu.Lock()
	if r.state == StateShuttingDown || r.state == StateStopped {
		r.mu.Unlock()
		return
	}
	r.state = StateShuttingDown
	tasks := r.tasks
	r.tasks = nil
	watcher := r.watcher
	r.watcher = nil
	r.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanShutdown)
	defer span.End()

	logger.Info("Shutting down BotMesh runtime", "tasks", len(tasks))

	if watcher != nil {
		watcher.Stop()
	}

	r.shutdownKernel(ctx)
	r.shutdownTasks(ctx, tasks)

	r.setState(StateStopped)
	logger.Info("BotMesh runtime stopped")
}

// shutdownKernel is phase one. The kernel call is dispatched to its own
// goroutine solely so a deadline can be enforced on an otherwise-blocking
// call; past the deadline it is abandoned and the controller proceeds.
func (r *Runtime) shutdownKernel(ctx context.Context) {
	timeout := r.cfg.Shutdown.KernelTimeout
	if timeout <= 0 {
		timeout = DefaultKernelTimeout
	}

	start := time.Now()
	_, span := telemetry.StartSpan(ctx, telemetry.SpanShutdownKernel)
	defer span.End()

	phaseCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.kernel.Shutdown(phaseCtx)
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Kernel teardown complete", "duration_ms", logger.Duration(start))
	case <-phaseCtx.Done():
		logger.Warn("Kernel teardown deadline exceeded, abandoning", "timeout", timeout)
	}

	if r.metrics != nil {
		r.metrics.ObserveShutdownPhase("kernel", time.Since(start).Seconds())
	}
}

// shutdownTasks is phase two: cancel every task handle, then wait for the
// results under one shared deadline. Whatever has not reported back by
// the deadline is left behind; tasks are never hard-killed.
func (r *Runtime) shutdownTasks(ctx context.Context, tasks []*taskEntry) {
	if len(tasks) == 0 {
		return
	}

	timeout := r.cfg.Shutdown.TaskTimeout
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}

	start := time.Now()
	_, span := telemetry.StartSpan(ctx, telemetry.SpanShutdownTasks)
	defer span.End()

	logger.Info("Cancelling service tasks", "count", len(tasks), "timeout", timeout)
	for _, t := range tasks {
		t.cancel()
	}

	deadline := time.After(timeout)
	expired := false
	pending := 0
	for _, t := range tasks {
		if expired {
			pending++
			continue
		}
		select {
		case <-t.errCh:
			logger.Debug("Service task drained", "plugin", t.plugin, "task_id", t.id)
		case <-deadline:
			expired = true
			pending++
		}
	}
	if expired {
		logger.Warn("Task teardown deadline exceeded, abandoning remaining tasks",
			"pending", pending, "timeout", timeout)
	}

	if r.metrics != nil {
		r.metrics.ObserveShutdownPhase("tasks", time.Since(start).Seconds())
	}
}

// Reload re-runs plugin discovery and invalidates the startup plan. A
// failed rescan keeps the previous catalog; the running kernel keeps its
// instances either way, and the fresh plan applies on the next
// initialization.
func (r *Runtime) Reload() error {
	_, span := telemetry.StartSpan(context.Background(), telemetry.SpanReload)
	defer span.End()

	if err := r.catalog.Reload(); err != nil {
		return fmt.Errorf("plugin reload failed: %w", err)
	}
	r.planner.Invalidate()

	if r.metrics != nil {
		r.metrics.RecordCatalogReload()
	}
	return nil
}

// InvalidatePlan discards the memoized startup plan so the next Plan call
// recomputes it.
func (r *Runtime) InvalidatePlan() {
	r.planner.Invalidate()
	if r.metrics != nil {
		r.metrics.RecordPlanInvalidation()
	}
}

// Plan returns the current startup plan, computing it when needed.
func (r *Runtime) Plan() *planner.Plan {
	return r.planner.Plan()
}

// State returns the controller's current lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Uptime returns how long the controller has been Running, zero in every
// other state.
func (r *Runtime) Uptime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning || r.startedAt.IsZero() {
		return 0
	}
	return time.Since(r.startedAt)
}

// TaskCount returns the number of live service tasks.
func (r *Runtime) TaskCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveTasks
}

// Descriptors returns the discovered descriptor set.
func (r *Runtime) Descriptors() map[string]*plugin.Descriptor {
	return r.catalog.Descriptors()
}

// Descriptor returns one discovered descriptor by name.
func (r *Runtime) Descriptor(name string) (*plugin.Descriptor, bool) {
	return r.catalog.Get(name)
}

// CachedCounts reports the kernel's singleton cache sizes by kind.
func (r *Runtime) CachedCounts() (utilities, services int) {
	return r.kernel.CachedCounts()
}

// Kernel returns the instance kernel, mainly for the host command and
// tests.
func (r *Runtime) Kernel() *kernel.Kernel {
	return r.kernel
}

func (r *Runtime) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}
