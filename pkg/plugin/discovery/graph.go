package discovery

import (
	"fmt"
	"sort"

	"github.com/botmesh/botmesh/internal/logger"
	"github.com/botmesh/botmesh/pkg/plugin"
)

// buildGraph derives the validated dependency graph from a descriptor set.
// Every plugin becomes a node; an edge is added only when its target
// exists among the known utilities. Edges to unknown names or to services
// are dropped with a warning, but the raw declaration stays on the
// descriptor for the planner's missing-dependency detection.
func buildGraph(descriptors map[string]*plugin.Descriptor) map[string]map[string]struct{} {
	graph := make(map[string]map[string]struct{}, len(descriptors))

	for name := range descriptors {
		graph[name] = make(map[string]struct{})
	}

	for name, desc := range descriptors {
		for _, dep := range desc.DependencyNames() {
			target, ok := descriptors[dep]
			if !ok || target.Kind != plugin.KindUtility {
				if !plugin.IsBootstrap(dep) {
					logger.Warn("Dependency on unknown utility, edge dropped",
						"plugin", name, "dependency", dep)
				}
				continue
			}
			graph[name][dep] = struct{}{}
		}
	}

	return graph
}

// detectCycles runs a full-graph DFS with a recursion stack. Any back-edge
// is fatal: the returned error wraps plugin.ErrCycle and names a plugin on
// the cycle. This strict check runs at discovery and reload time only; the
// planner uses its own degrade-gracefully probe later.
func detectCycles(graph map[string]map[string]struct{}) error {
	visited := make(map[string]bool, len(graph))
	onStack := make(map[string]bool, len(graph))

	var visit func(node string) error
	visit = func(node string) error {
		visited[node] = true
		onStack[node] = true

		for dep := range graph[node] {
			if !visited[dep] {
				if err := visit(dep); err != nil {
					return err
				}
			} else if onStack[dep] {
				return fmt.Errorf("%w: involving plugin %q", plugin.ErrCycle, dep)
			}
		}

		onStack[node] = false
		return nil
	}

	// Sorted iteration keeps the reported cycle member stable.
	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	for _, node := range nodes {
		if !visited[node] {
			if err := visit(node); err != nil {
				return err
			}
		}
	}

	return nil
}

// TopologicalOrder sorts a subset of plugins so every validated edge
// inside the subset points from an earlier to a later position. Edges
// leaving the subset are ignored.
//
// Residual cycles do not fail the sort: every plugin on a cycle, and every
// plugin whose dependencies lead into one, is left out of the returned
// order and reported in the second return value instead. Callers must
// tolerate a plugin being requested yet absent from the sequence.
func (c *Catalog) TopologicalOrder(subset []string) (order []string, cyclic []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	inSubset := make(map[string]struct{}, len(subset))
	for _, name := range subset {
		inSubset[name] = struct{}{}
	}

	const (
		unvisited = iota
		visiting
		ordered
		blocked
	)
	marks := make(map[string]int, len(subset))

	var visit func(node string) bool
	visit = func(node string) bool {
		switch marks[node] {
		case ordered:
			return true
		case blocked, visiting:
			return false
		}

		marks[node] = visiting
		ok := true
		deps := make([]string, 0, len(c.graph[node]))
		for dep := range c.graph[node] {
			if _, in := inSubset[dep]; in {
				deps = append(deps, dep)
			}
		}
		sort.Strings(deps)
		for _, dep := range deps {
			if !visit(dep) {
				ok = false
			}
		}

		if !ok {
			marks[node] = blocked
			return false
		}
		marks[node] = ordered
		order = append(order, node)
		return true
	}

	sorted := make([]string, len(subset))
	copy(sorted, subset)
	sort.Strings(sorted)

	for _, node := range sorted {
		visit(node)
	}

	for _, node := range sorted {
		if marks[node] == blocked {
			cyclic = append(cyclic, node)
		}
	}

	return order, cyclic
}
