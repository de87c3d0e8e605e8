// Package planner computes startup plans: which services may run under the
// enablement policy, which utilities their dependency closures require,
// and a safe initialization order for those utilities.
//
// Planning never fails. A service whose closure hits a cycle or a missing
// dependency is dropped and the plan shrinks; an empty plan is a valid
// outcome. This is the deliberate counterpart to discovery's fatal cycle
// check: by the time planning runs, the graph is known to be sound, and
// anything questionable found here degrades instead of aborting.
package planner

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/botmesh/botmesh/internal/logger"
	"github.com/botmesh/botmesh/pkg/plugin"
	"github.com/botmesh/botmesh/pkg/plugin/discovery"
)

// Plan is the cached startup decision. It is immutable once computed;
// callers must not mutate the slices.
type Plan struct {
	// EnabledServices lists the services that passed policy and whose
	// dependency closures resolved, in sorted order.
	EnabledServices []string `json:"enabled_services"`

	// RequiredUtilities is the union of the enabled services' closures,
	// filtered by utility policy and stripped of bootstrap names. Sorted.
	RequiredUtilities []string `json:"required_utilities"`

	// DependencyOrder sequences RequiredUtilities so every dependency
	// precedes its dependents. A utility can be required yet absent from
	// the order when a residual cycle blocked it; callers must tolerate
	// that.
	DependencyOrder []string `json:"dependency_order"`

	TotalServices  int       `json:"total_services"`
	TotalUtilities int       `json:"total_utilities"`
	ComputedAt     time.Time `json:"computed_at"`
}

// RequiresUtility reports whether name is in the required utility set.
func (p *Plan) RequiresUtility(name string) bool {
	for _, n := range p.RequiredUtilities {
		if n == name {
			return true
		}
	}
	return false
}

// Planner memoizes startup plans over a catalog and a policy. The plan is
// computed lazily on first use and kept until Invalidate is called; a
// policy swapped in with SetPolicy takes effect on the next computation.
type Planner struct {
	mu      sync.Mutex
	catalog *discovery.Catalog
	policy  Policy
	plan    *Plan
}

// New creates a planner over the given catalog and policy.
func New(catalog *discovery.Catalog, policy Policy) *Planner {
	return &Planner{
		catalog: catalog,
		policy:  policy,
	}
}

// Plan returns the memoized startup plan, computing it on first call.
func (p *Planner) Plan() *Plan {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.plan == nil {
		p.plan = p.computeLocked()
	}
	return p.plan
}

// Invalidate discards the memoized plan. The next Plan call recomputes it
// against the current catalog state and policy.
func (p *Planner) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.plan = nil
	logger.Debug("Startup plan invalidated")
}

// SetPolicy replaces the enablement policy. The change is not visible
// until the plan is invalidated and recomputed.
func (p *Planner) SetPolicy(policy Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.policy = policy
}

// Policy returns the current enablement policy.
func (p *Planner) Policy() Policy {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.policy
}

// CanStart reports whether the named plugin is startable: it must be
// known, allowed by policy for its kind, and free of cycles along its own
// declared dependency list.
func (p *Planner) CanStart(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.canStartLocked(name)
}

func (p *Planner) canStartLocked(name string) bool {
	desc, ok := p.catalog.Get(name)
	if !ok {
		return false
	}
	if !p.policy.ForKind(desc.Kind).Allows(name) {
		return false
	}
	return !p.hasLocalCycle(name)
}

// hasLocalCycle probes the raw declared dependencies below name for
// re-entry into the current path. Unknown names terminate a branch and are
// not treated as cycles; the closure walk deals with those.
func (p *Planner) hasLocalCycle(name string) bool {
	safe := make(map[string]bool)
	onPath := make(map[string]bool)

	var probe func(n string) bool
	probe = func(n string) bool {
		if safe[n] {
			return false
		}
		onPath[n] = true
		defer delete(onPath, n)

		for _, dep := range p.catalog.RawDependencies(n) {
			if onPath[dep] {
				return true
			}
			if probe(dep) {
				return true
			}
		}

		safe[n] = true
		return false
	}

	return probe(name)
}

// computeLocked builds a fresh plan from the catalog and policy.
func (p *Planner) computeLocked() *Plan {
	start := time.Now()

	enabled := []string{}
	required := make(map[string]struct{})

	for _, svc := range p.catalog.NamesByKind(plugin.KindService) {
		if !p.canStartLocked(svc) {
			logger.Debug("Service not startable, skipping", "plugin", svc)
			continue
		}

		closure, err := p.collectClosure(svc)
		if err != nil {
			logger.Warn("Service dependency closure discarded", "plugin", svc, "error", err)
			continue
		}

		enabled = append(enabled, svc)
		for dep := range closure {
			if dep != svc {
				required[dep] = struct{}{}
			}
		}
	}

	// Second pass: a utility individually disabled by policy is dropped
	// from the required set without invalidating the services that wanted
	// it. This is deliberately looser than the missing-dependency rule.
	for name := range required {
		if !p.policy.Utilities.Allows(name) {
			logger.Debug("Utility disabled by policy, dropped from plan", "plugin", name)
			delete(required, name)
		}
	}

	// Bootstrap utilities are constructed by the host before the kernel
	// exists; they never belong in the plan.
	for _, name := range plugin.BootstrapUtilities() {
		delete(required, name)
	}

	requiredList := make([]string, 0, len(required))
	for name := range required {
		requiredList = append(requiredList, name)
	}
	sort.Strings(requiredList)

	order, cyclic := p.catalog.TopologicalOrder(requiredList)
	if order == nil {
		order = []string{}
	}
	if len(cyclic) > 0 {
		logger.Warn("Residual cycle among required utilities, members dropped from order",
			"plugins", cyclic)
	}

	plan := &Plan{
		EnabledServices:   enabled,
		RequiredUtilities: requiredList,
		DependencyOrder:   order,
		TotalServices:     len(enabled),
		TotalUtilities:    len(requiredList),
		ComputedAt:        time.Now(),
	}

	logger.Info("Startup plan computed",
		"services", plan.TotalServices,
		"utilities", plan.TotalUtilities,
		"duration_ms", logger.Duration(start))

	return plan
}

// collectClosure walks all declared dependencies below root with per-root
// path tracking. Any cycle or missing dependency anywhere in the walk
// discards the entire closure: the error is contagious through every
// ancestor, not contained to one branch.
func (p *Planner) collectClosure(root string) (map[string]struct{}, error) {
	closure := make(map[string]struct{})
	onPath := make(map[string]bool)

	var walk func(name string) error
	walk = func(name string) error {
		closure[name] = struct{}{}
		onPath[name] = true
		defer delete(onPath, name)

		for _, dep := range p.catalog.RawDependencies(name) {
			if plugin.IsBootstrap(dep) {
				// Host-provided, satisfiable without a descriptor.
				continue
			}
			if onPath[dep] {
				return fmt.Errorf("%w: %q re-enters its own dependency path at %q", plugin.ErrCycle, root, dep)
			}
			if !p.catalog.KnownUtility(dep) {
				return fmt.Errorf("%w: %q needs %q", plugin.ErrMissingDependency, name, dep)
			}
			if _, seen := closure[dep]; seen {
				continue
			}
			if err := walk(dep); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	return closure, nil
}
