package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/botmesh/botmesh/pkg/config"
	"github.com/botmesh/botmesh/pkg/plugin"
	"github.com/botmesh/botmesh/pkg/plugin/planner"
)

func writePlugin(t *testing.T, root, relDir, content string) {
	t.Helper()
	dir := filepath.Join(root, relDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, plugin.DescriptorFileName), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write descriptor: %v", err)
	}
}

func testConfig(t *testing.T, root string, services ...string) *config.Config {
	t.Helper()
	pol := planner.DefaultPolicy()
	pol.Services.Enabled = services
	return &config.Config{
		Plugins: config.PluginsConfig{Root: root, Policy: pol},
		Shutdown: config.ShutdownConfig{
			KernelTimeout: 2 * time.Second,
			TaskTimeout:   2 * time.Second,
		},
		StateDir: t.TempDir(),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// unit is an instance with no Run entry point and no shutdown hook.
type unit struct{ name string }

// closer records its teardown hook into a shared slice.
type closer struct {
	name   string
	hooked *[]string
	delay  time.Duration
}

func (c *closer) Shutdown(ctx context.Context) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.hooked != nil {
		*c.hooked = append(*c.hooked, c.name)
	}
	return nil
}

// blockingRunner runs until its task context is cancelled.
type blockingRunner struct {
	started chan struct{}
	once    sync.Once
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context) error {
	r.once.Do(func() { close(r.started) })
	<-ctx.Done()
	return ctx.Err()
}

// stubbornRunner ignores cancellation and runs until released.
type stubbornRunner struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStubbornRunner() *stubbornRunner {
	return &stubbornRunner{started: make(chan struct{}), release: make(chan struct{})}
}

func (r *stubbornRunner) Run(ctx context.Context) error {
	r.once.Do(func() { close(r.started) })
	<-r.release
	return nil
}

func unitFactory(name string, order *[]string) plugin.Factory {
	return func(ctx context.Context, deps *plugin.Dependencies) (any, error) {
		*order = append(*order, name)
		return &unit{name: name}, nil
	}
}

func runnerFactory(r plugin.Runner) plugin.Factory {
	return func(ctx context.Context, deps *plugin.Dependencies) (any, error) {
		return r, nil
	}
}

func TestStartupRunsChainAndShutdownUnwindsIt(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/u1", "name: u1\ntype: utility\nsingleton: true\n")
	writePlugin(t, root, "utilities/u2", "name: u2\ntype: utility\nsingleton: true\ndependencies:\n  utilities: [u1]\n")
	writePlugin(t, root, "utilities/u3", "name: u3\ntype: utility\nsingleton: true\ndependencies:\n  utilities: [u2]\n")
	writePlugin(t, root, "services/s", "name: s\ntype: service\nsingleton: true\ndependencies:\n  utilities: [u3]\n")

	var order []string
	runner := newBlockingRunner()
	reg := plugin.NewRegistry()
	reg.Register("u1", unitFactory("u1", &order))
	reg.Register("u2", unitFactory("u2", &order))
	reg.Register("u3", unitFactory("u3", &order))
	reg.Register("s", runnerFactory(runner))

	rt := New(testConfig(t, root, "s"), reg)

	if rt.State() != StateCreated {
		t.Fatalf("state = %q before startup, want %q", rt.State(), StateCreated)
	}
	if rt.Uptime() != 0 {
		t.Error("uptime must be zero before startup")
	}

	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	if rt.State() != StateRunning {
		t.Fatalf("state = %q after startup, want %q", rt.State(), StateRunning)
	}

	want := []string{"u1", "u2", "u3"}
	if len(order) != len(want) {
		t.Fatalf("utility build order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("utility build order = %v, want %v", order, want)
		}
	}

	utilities, services := rt.CachedCounts()
	if utilities != 3 || services != 1 {
		t.Errorf("cached counts = %d/%d, want 3/1", utilities, services)
	}

	waitFor(t, "service task to start", func() bool {
		select {
		case <-runner.started:
			return true
		default:
			return false
		}
	})
	if rt.TaskCount() != 1 {
		t.Errorf("task count = %d, want 1", rt.TaskCount())
	}
	if rt.Uptime() <= 0 {
		t.Error("uptime must advance while running")
	}

	rt.Shutdown(context.Background())

	if rt.State() != StateStopped {
		t.Fatalf("state = %q after shutdown, want %q", rt.State(), StateStopped)
	}
	if rt.TaskCount() != 0 {
		t.Errorf("task count = %d after shutdown, want 0", rt.TaskCount())
	}
	if utilities, services := rt.CachedCounts(); utilities != 0 || services != 0 {
		t.Errorf("caches = %d/%d after shutdown, want 0/0", utilities, services)
	}
	if rt.Uptime() != 0 {
		t.Error("uptime must reset after shutdown")
	}
}

func TestStartupFailsOnDependencyCycle(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/a", "name: a\ntype: utility\nsingleton: true\ndependencies:\n  utilities: [b]\n")
	writePlugin(t, root, "utilities/b", "name: b\ntype: utility\nsingleton: true\ndependencies:\n  utilities: [a]\n")

	rt := New(testConfig(t, root), plugin.NewRegistry())

	err := rt.Startup(context.Background())
	if err == nil {
		t.Fatal("Startup must fail on a dependency cycle")
	}
	if !errors.Is(err, plugin.ErrCycle) {
		t.Errorf("error = %v, want ErrCycle", err)
	}
	if rt.State() != StateStopped {
		t.Errorf("state = %q after failed startup, want %q", rt.State(), StateStopped)
	}
}

func TestStartupFactoryErrorTearsDownPartialBuild(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/good", "name: good\ntype: utility\nsingleton: true\n")
	writePlugin(t, root, "utilities/bad", "name: bad\ntype: utility\nsingleton: true\ndependencies:\n  utilities: [good]\n")
	writePlugin(t, root, "services/s", "name: s\ntype: service\nsingleton: true\ndependencies:\n  utilities: [bad]\n")

	var hooks []string
	reg := plugin.NewRegistry()
	reg.Register("good", func(ctx context.Context, deps *plugin.Dependencies) (any, error) {
		return &closer{name: "good", hooked: &hooks}, nil
	})
	reg.Register("bad", func(ctx context.Context, deps *plugin.Dependencies) (any, error) {
		return nil, errors.New("no backend")
	})
	reg.Register("s", runnerFactory(newBlockingRunner()))

	rt := New(testConfig(t, root, "s"), reg)

	err := rt.Startup(context.Background())
	if err == nil {
		t.Fatal("Startup must fail when a factory errors")
	}
	if !errors.Is(err, plugin.ErrFactoryFailed) {
		t.Errorf("error = %v, want ErrFactoryFailed", err)
	}
	if rt.State() != StateStopped {
		t.Errorf("state = %q after failed startup, want %q", rt.State(), StateStopped)
	}

	// The utility built before the failure must have been torn down.
	if len(hooks) != 1 || hooks[0] != "good" {
		t.Errorf("teardown hooks = %v, want [good]", hooks)
	}
	if rt.TaskCount() != 0 {
		t.Errorf("task count = %d after failed startup, want 0", rt.TaskCount())
	}
}

func TestStartupRefusedWhileRunning(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/u", "name: u\ntype: utility\nsingleton: true\n")

	var order []string
	reg := plugin.NewRegistry()
	reg.Register("u", unitFactory("u", &order))

	rt := New(testConfig(t, root), reg)
	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	defer rt.Shutdown(context.Background())

	if err := rt.Startup(context.Background()); err == nil {
		t.Fatal("second Startup while running must be refused")
	}
	if rt.State() != StateRunning {
		t.Errorf("state = %q after refused startup, want %q", rt.State(), StateRunning)
	}
}

func TestServiceWithoutRunGetsNoTask(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "services/quiet", "name: quiet\ntype: service\nsingleton: true\n")

	var order []string
	reg := plugin.NewRegistry()
	reg.Register("quiet", unitFactory("quiet", &order))

	rt := New(testConfig(t, root, "quiet"), reg)
	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	defer rt.Shutdown(context.Background())

	if rt.TaskCount() != 0 {
		t.Errorf("task count = %d for a service without Run, want 0", rt.TaskCount())
	}
	if _, services := rt.CachedCounts(); services != 1 {
		t.Errorf("cached services = %d, want 1", services)
	}
}

func TestShutdownAbandonsStuckTasks(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "services/stuck", "name: stuck\ntype: service\nsingleton: true\n")

	runner := newStubbornRunner()
	reg := plugin.NewRegistry()
	reg.Register("stuck", runnerFactory(runner))

	cfg := testConfig(t, root, "stuck")
	cfg.Shutdown.TaskTimeout = 50 * time.Millisecond

	rt := New(cfg, reg)
	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	waitFor(t, "stuck task to start", func() bool {
		select {
		case <-runner.started:
			return true
		default:
			return false
		}
	})

	start := time.Now()
	rt.Shutdown(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown took %v with a stuck task, deadline was 50ms", elapsed)
	}
	if rt.State() != StateStopped {
		t.Errorf("state = %q, want %q", rt.State(), StateStopped)
	}
	// The task was abandoned, not killed.
	if rt.TaskCount() != 1 {
		t.Errorf("task count = %d, want 1 abandoned task still live", rt.TaskCount())
	}

	close(runner.release)
	waitFor(t, "abandoned task to drain", func() bool { return rt.TaskCount() == 0 })
}

func TestShutdownKernelPhaseIsBounded(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/molasses", "name: molasses\ntype: utility\nsingleton: true\n")
	writePlugin(t, root, "services/s", "name: s\ntype: service\nsingleton: true\ndependencies:\n  utilities: [molasses]\n")

	var order []string
	reg := plugin.NewRegistry()
	reg.Register("molasses", func(ctx context.Context, deps *plugin.Dependencies) (any, error) {
		return &closer{name: "molasses", delay: 2 * time.Second}, nil
	})
	reg.Register("s", unitFactory("s", &order))

	cfg := testConfig(t, root, "s")
	cfg.Shutdown.KernelTimeout = 50 * time.Millisecond

	rt := New(cfg, reg)
	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}

	start := time.Now()
	rt.Shutdown(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown took %v with a slow teardown hook, deadline was 50ms", elapsed)
	}
	if rt.State() != StateStopped {
		t.Errorf("state = %q, want %q", rt.State(), StateStopped)
	}
}

func TestDoubleShutdownIsSafe(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/u", "name: u\ntype: utility\nsingleton: true\n")
	writePlugin(t, root, "services/s", "name: s\ntype: service\nsingleton: true\ndependencies:\n  utilities: [u]\n")

	var hooks []string
	reg := plugin.NewRegistry()
	reg.Register("u", func(ctx context.Context, deps *plugin.Dependencies) (any, error) {
		return &closer{name: "u", hooked: &hooks}, nil
	})
	reg.Register("s", runnerFactory(newBlockingRunner()))

	rt := New(testConfig(t, root, "s"), reg)
	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}

	rt.Shutdown(context.Background())
	rt.Shutdown(context.Background())

	if len(hooks) != 1 {
		t.Errorf("teardown hooks ran %d times, want 1", len(hooks))
	}
	if rt.State() != StateStopped {
		t.Errorf("state = %q, want %q", rt.State(), StateStopped)
	}
}

func TestRestartAfterShutdown(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/u", "name: u\ntype: utility\nsingleton: true\n")
	writePlugin(t, root, "services/s", "name: s\ntype: service\nsingleton: true\ndependencies:\n  utilities: [u]\n")

	var order []string
	reg := plugin.NewRegistry()
	reg.Register("u", unitFactory("u", &order))
	reg.Register("s", func(ctx context.Context, deps *plugin.Dependencies) (any, error) {
		return newBlockingRunner(), nil
	})

	rt := New(testConfig(t, root, "s"), reg)
	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("first Startup failed: %v", err)
	}
	rt.Shutdown(context.Background())

	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("Startup after shutdown failed: %v", err)
	}
	defer rt.Shutdown(context.Background())

	if rt.State() != StateRunning {
		t.Fatalf("state = %q after restart, want %q", rt.State(), StateRunning)
	}
	if len(order) != 2 {
		t.Errorf("utility factory ran %d times across restart, want 2", len(order))
	}
	waitFor(t, "restarted service task", func() bool { return rt.TaskCount() == 1 })
}

func TestTaskPanicIsFenced(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "services/flaky", "name: flaky\ntype: service\nsingleton: true\n")

	reg := plugin.NewRegistry()
	reg.Register("flaky", runnerFactory(panickyRunner{}))

	rt := New(testConfig(t, root, "flaky"), reg)
	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}

	// The panic becomes a task error; the process survives and the task
	// drains.
	waitFor(t, "panicked task to end", func() bool { return rt.TaskCount() == 0 })

	rt.Shutdown(context.Background())
	if rt.State() != StateStopped {
		t.Errorf("state = %q, want %q", rt.State(), StateStopped)
	}
}

type panickyRunner struct{}

func (panickyRunner) Run(ctx context.Context) error {
	panic("bot storage corrupted")
}

func TestStopUnblocksRun(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/u", "name: u\ntype: utility\nsingleton: true\n")

	var order []string
	reg := plugin.NewRegistry()
	reg.Register("u", unitFactory("u", &order))

	rt := New(testConfig(t, root), reg)
	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- rt.Run() }()

	// Give Run a moment to install its signal handler before stopping.
	time.Sleep(50 * time.Millisecond)
	rt.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if rt.State() != StateStopped {
		t.Errorf("state = %q after Run returned, want %q", rt.State(), StateStopped)
	}

	// Stop again must not panic.
	rt.Stop()
}

func TestReloadPicksUpNewDescriptors(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/u1", "name: u1\ntype: utility\nsingleton: true\n")

	rt := New(testConfig(t, root, "late"), plugin.NewRegistry())
	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	defer rt.Shutdown(context.Background())

	if plan := rt.Plan(); plan.TotalServices != 0 {
		t.Fatalf("initial plan services = %d, want 0", plan.TotalServices)
	}
	if _, ok := rt.Descriptor("late"); ok {
		t.Fatal("late must not be known before reload")
	}

	writePlugin(t, root, "services/late", "name: late\ntype: service\nsingleton: true\ndependencies:\n  utilities: [u1]\n")
	if err := rt.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if _, ok := rt.Descriptor("late"); !ok {
		t.Error("late must be discovered after reload")
	}
	if plan := rt.Plan(); plan.TotalServices != 1 {
		t.Errorf("plan services after reload = %d, want 1", plan.TotalServices)
	}
}

func TestInvalidatePlanForcesRecompute(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/u", "name: u\ntype: utility\nsingleton: true\n")

	rt := New(testConfig(t, root), plugin.NewRegistry())
	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	defer rt.Shutdown(context.Background())

	first := rt.Plan()
	if same := rt.Plan(); same != first {
		t.Error("repeated Plan calls must return the memoized plan")
	}

	rt.InvalidatePlan()
	if second := rt.Plan(); second == first {
		t.Error("Plan after invalidation must be freshly computed")
	}
}

func TestSettingsFlowIntoFactories(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "services/tuned",
		"name: tuned\ntype: service\nsingleton: true\nsettings:\n  interval: 30\n  label: {default: stock}\n")

	var got map[string]any
	reg := plugin.NewRegistry()
	reg.Register("tuned", func(ctx context.Context, deps *plugin.Dependencies) (any, error) {
		got = deps.Settings()
		return &unit{name: "tuned"}, nil
	})

	cfg := testConfig(t, root, "tuned")
	cfg.Plugins.Settings = map[string]map[string]any{
		"tuned": {"label": "operator"},
	}

	rt := New(cfg, reg)
	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	defer rt.Shutdown(context.Background())

	if got == nil {
		t.Fatal("factory never saw settings")
	}
	if got["interval"] != 30 {
		t.Errorf("interval = %v, want descriptor default 30", got["interval"])
	}
	if got["label"] != "operator" {
		t.Errorf("label = %v, want operator override to win", got["label"])
	}
	if got["state_dir"] != cfg.StateDir {
		t.Errorf("state_dir = %v, want host state directory %q", got["state_dir"], cfg.StateDir)
	}
}
