package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/botmesh/botmesh/pkg/plugin"
	"github.com/botmesh/botmesh/pkg/plugin/discovery"
)

func writePlugin(t *testing.T, root, relDir, content string) {
	t.Helper()
	dir := filepath.Join(root, relDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}
	path := filepath.Join(dir, plugin.DescriptorFileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write descriptor: %v", err)
	}
}

// chainCatalog builds u1 <- u2 <- u3 <- s1 (s1 is a service).
func chainCatalog(t *testing.T) *discovery.Catalog {
	t.Helper()
	root := t.TempDir()
	writePlugin(t, root, "utilities/u1", "name: u1\ntype: utility\n")
	writePlugin(t, root, "utilities/u2", "name: u2\ntype: utility\ndependencies:\n  utilities: [u1]\n")
	writePlugin(t, root, "utilities/u3", "name: u3\ntype: utility\ndependencies:\n  utilities: [u2]\n")
	writePlugin(t, root, "services/s1", "name: s1\ntype: service\ndependencies:\n  utilities: [u3]\n")

	c := discovery.New(root)
	if err := c.Discover(); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	return c
}

func allowServices(names ...string) Policy {
	pol := DefaultPolicy()
	pol.Services.Enabled = names
	return pol
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPolicyPrecedence(t *testing.T) {
	kp := KindPolicy{
		Disabled:       []string{"both", "denied"},
		Enabled:        []string{"both", "allowed"},
		DefaultEnabled: false,
	}

	if kp.Allows("both") {
		t.Error("disabled list must beat enabled list")
	}
	if kp.Allows("denied") {
		t.Error("denied name must not be allowed")
	}
	if !kp.Allows("allowed") {
		t.Error("enabled name must beat the kind default")
	}
	if kp.Allows("other") {
		t.Error("unlisted name must fall through to the default")
	}

	kp.DefaultEnabled = true
	if !kp.Allows("other") {
		t.Error("unlisted name must be allowed when the default is on")
	}
}

func TestDefaultPolicyKindDefaults(t *testing.T) {
	pol := DefaultPolicy()
	if pol.Services.DefaultEnabled {
		t.Error("services must default to off")
	}
	if !pol.Utilities.DefaultEnabled {
		t.Error("utilities must default to on")
	}
}

func TestPlanChain(t *testing.T) {
	p := New(chainCatalog(t), allowServices("s1"))
	plan := p.Plan()

	if !equalSlices(plan.EnabledServices, []string{"s1"}) {
		t.Errorf("EnabledServices = %v, want [s1]", plan.EnabledServices)
	}
	if !equalSlices(plan.DependencyOrder, []string{"u1", "u2", "u3"}) {
		t.Errorf("DependencyOrder = %v, want [u1 u2 u3]", plan.DependencyOrder)
	}
	if !equalSlices(plan.RequiredUtilities, []string{"u1", "u2", "u3"}) {
		t.Errorf("RequiredUtilities = %v, want [u1 u2 u3]", plan.RequiredUtilities)
	}
	if plan.TotalServices != 1 || plan.TotalUtilities != 3 {
		t.Errorf("counts = %d/%d, want 1/3", plan.TotalServices, plan.TotalUtilities)
	}
}

func TestPlanServicesDefaultOff(t *testing.T) {
	p := New(chainCatalog(t), DefaultPolicy())
	plan := p.Plan()

	if len(plan.EnabledServices) != 0 {
		t.Errorf("EnabledServices = %v, want none without an allow-list entry", plan.EnabledServices)
	}
	if len(plan.RequiredUtilities) != 0 {
		t.Errorf("RequiredUtilities = %v, want none", plan.RequiredUtilities)
	}
}

func TestPlanMemoization(t *testing.T) {
	p := New(chainCatalog(t), allowServices("s1"))

	first := p.Plan()
	second := p.Plan()
	if first != second {
		t.Error("Plan must return the identical cached plan until invalidated")
	}

	p.Invalidate()
	third := p.Plan()
	if third == first {
		t.Error("Invalidate must force a fresh computation")
	}
}

func TestPlanReflectsPolicyAfterInvalidate(t *testing.T) {
	p := New(chainCatalog(t), allowServices("s1"))

	if got := p.Plan().EnabledServices; !equalSlices(got, []string{"s1"}) {
		t.Fatalf("EnabledServices = %v, want [s1]", got)
	}

	pol := DefaultPolicy()
	pol.Services.Disabled = []string{"s1"}
	p.SetPolicy(pol)

	// Policy changes stay invisible until the plan is invalidated.
	if got := p.Plan().EnabledServices; !equalSlices(got, []string{"s1"}) {
		t.Fatalf("cached plan changed without Invalidate: %v", got)
	}

	p.Invalidate()
	if got := p.Plan().EnabledServices; len(got) != 0 {
		t.Errorf("EnabledServices = %v, want none after deny-listing s1", got)
	}
}

// TestPlanDisabledUtilityVsMissingDependency pins the asymmetry between
// the two ways a dependency can be absent. A policy-disabled utility is
// silently dropped from the required set and its dependents still start; a
// dependency that does not exist at all poisons the whole closure and the
// dependent service is dropped.
func TestPlanDisabledUtilityVsMissingDependency(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/present", "name: present\ntype: utility\n")
	writePlugin(t, root, "services/sa", "name: sa\ntype: service\ndependencies:\n  utilities: [present]\n")
	writePlugin(t, root, "services/sb", "name: sb\ntype: service\ndependencies:\n  utilities: [ghost]\n")

	c := discovery.New(root)
	if err := c.Discover(); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	pol := allowServices("sa", "sb")
	pol.Utilities.Disabled = []string{"present"}
	p := New(c, pol)
	plan := p.Plan()

	// sa survives its disabled utility; sb dies with its missing one.
	if !equalSlices(plan.EnabledServices, []string{"sa"}) {
		t.Errorf("EnabledServices = %v, want [sa]", plan.EnabledServices)
	}
	if plan.RequiresUtility("present") {
		t.Error("policy-disabled utility must be dropped from required_utilities")
	}
	if plan.RequiresUtility("ghost") {
		t.Error("missing dependency must never enter required_utilities")
	}
}

// A disabled utility D stays in required_utilities only while some other
// includable service needs it through a different name — here nothing
// does, so it must vanish entirely while its dependent service remains.
func TestPlanDisabledUtilityKeptForOtherServices(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/shared", "name: shared\ntype: utility\n")
	writePlugin(t, root, "utilities/extra", "name: extra\ntype: utility\ndependencies:\n  utilities: [shared]\n")
	writePlugin(t, root, "services/sa", "name: sa\ntype: service\ndependencies:\n  utilities: [extra]\n")
	writePlugin(t, root, "services/sb", "name: sb\ntype: service\ndependencies:\n  utilities: [shared]\n")

	c := discovery.New(root)
	if err := c.Discover(); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	pol := allowServices("sa", "sb")
	pol.Utilities.Disabled = []string{"extra"}
	plan := New(c, pol).Plan()

	if !equalSlices(plan.EnabledServices, []string{"sa", "sb"}) {
		t.Errorf("EnabledServices = %v, want [sa sb]", plan.EnabledServices)
	}
	if plan.RequiresUtility("extra") {
		t.Error("disabled utility must be dropped")
	}
	// shared is still needed by sb (and transitively by sa's closure).
	if !plan.RequiresUtility("shared") {
		t.Error("shared utility must stay required")
	}
}

func TestPlanMissingDependencyIsContagious(t *testing.T) {
	// s -> u_top -> u_mid -> ghost: the missing leaf poisons every
	// ancestor, so the service is dropped and no part of its closure is
	// required.
	root := t.TempDir()
	writePlugin(t, root, "utilities/u_mid", "name: u_mid\ntype: utility\ndependencies:\n  utilities: [ghost]\n")
	writePlugin(t, root, "utilities/u_top", "name: u_top\ntype: utility\ndependencies:\n  utilities: [u_mid]\n")
	writePlugin(t, root, "services/s", "name: s\ntype: service\ndependencies:\n  utilities: [u_top]\n")

	c := discovery.New(root)
	if err := c.Discover(); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	plan := New(c, allowServices("s")).Plan()

	if len(plan.EnabledServices) != 0 {
		t.Errorf("EnabledServices = %v, want none", plan.EnabledServices)
	}
	if len(plan.RequiredUtilities) != 0 {
		t.Errorf("RequiredUtilities = %v, want none (whole closure discarded)", plan.RequiredUtilities)
	}
}

func TestPlanDependencyOnServiceIsMissing(t *testing.T) {
	// Only utilities can be depended on. A service declaring another
	// service is treated exactly like a missing dependency.
	root := t.TempDir()
	writePlugin(t, root, "services/worker", "name: worker\ntype: service\n")
	writePlugin(t, root, "services/boss", "name: boss\ntype: service\ndependencies:\n  utilities: [worker]\n")

	c := discovery.New(root)
	if err := c.Discover(); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	plan := New(c, allowServices("boss", "worker")).Plan()

	if plan.RequiresUtility("worker") {
		t.Error("a service must never become a required utility")
	}
	if !equalSlices(plan.EnabledServices, []string{"worker"}) {
		t.Errorf("EnabledServices = %v, want [worker] only", plan.EnabledServices)
	}
}

func TestPlanSubtractsBootstrapUtilities(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/logger", "name: logger\ntype: utility\nsingleton: true\n")
	writePlugin(t, root, "utilities/settings", "name: settings\ntype: utility\nsingleton: true\n")
	writePlugin(t, root, "utilities/store", "name: store\ntype: utility\ndependencies:\n  utilities: [logger, settings]\n")
	writePlugin(t, root, "services/s", "name: s\ntype: service\ndependencies:\n  utilities: [store, logger]\n")

	c := discovery.New(root)
	if err := c.Discover(); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	plan := New(c, allowServices("s")).Plan()

	if !equalSlices(plan.EnabledServices, []string{"s"}) {
		t.Fatalf("EnabledServices = %v, want [s]", plan.EnabledServices)
	}
	if !equalSlices(plan.RequiredUtilities, []string{"store"}) {
		t.Errorf("RequiredUtilities = %v, want [store] (bootstrap subtracted)", plan.RequiredUtilities)
	}
	if !equalSlices(plan.DependencyOrder, []string{"store"}) {
		t.Errorf("DependencyOrder = %v, want [store]", plan.DependencyOrder)
	}
}

func TestPlanEmptyCatalogIsValid(t *testing.T) {
	c := discovery.New(filepath.Join(t.TempDir(), "nowhere"))
	if err := c.Discover(); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	plan := New(c, DefaultPolicy()).Plan()
	if plan == nil {
		t.Fatal("empty plan must still be a plan")
	}
	if plan.TotalServices != 0 || plan.TotalUtilities != 0 {
		t.Errorf("counts = %d/%d, want 0/0", plan.TotalServices, plan.TotalUtilities)
	}
}

func TestCanStart(t *testing.T) {
	c := chainCatalog(t)
	p := New(c, allowServices("s1"))

	if !p.CanStart("s1") {
		t.Error("allow-listed service must be startable")
	}
	if !p.CanStart("u1") {
		t.Error("utility must be startable under the default-on policy")
	}
	if p.CanStart("ghost") {
		t.Error("unknown plugin must not be startable")
	}

	pol := allowServices("s1")
	pol.Utilities.Disabled = []string{"u2"}
	p.SetPolicy(pol)
	if p.CanStart("u2") {
		t.Error("policy-disabled utility must not be startable")
	}
}

func TestSharedUtilityCountedOnce(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "utilities/base", "name: base\ntype: utility\n")
	writePlugin(t, root, "services/sa", "name: sa\ntype: service\ndependencies:\n  utilities: [base]\n")
	writePlugin(t, root, "services/sb", "name: sb\ntype: service\ndependencies:\n  utilities: [base]\n")

	c := discovery.New(root)
	if err := c.Discover(); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	plan := New(c, allowServices("sa", "sb")).Plan()

	if plan.TotalServices != 2 {
		t.Errorf("TotalServices = %d, want 2", plan.TotalServices)
	}
	if !equalSlices(plan.RequiredUtilities, []string{"base"}) {
		t.Errorf("RequiredUtilities = %v, want [base]", plan.RequiredUtilities)
	}
}
