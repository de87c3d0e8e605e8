//go:build e2e

package e2e

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/botmesh/botmesh/test/e2e/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fixture descriptors for plan shape tests. None of them have a compiled
// factory, which is exactly the point: the planner and the discovery scan
// work from descriptors alone, and the kernel skips factory-less plugins
// without failing startup.
const (
	archiveYAML = `name: archive
description: Fixture utility at the bottom of the dependency chain.
type: utility
singleton: true
`

	journalYAML = `name: journal
description: Fixture utility depending on archive.
type: utility
singleton: true
dependencies:
  utilities:
    - archive
`

	queueYAML = `name: queue
description: Fixture utility depending on journal.
type: utility
singleton: true
dependencies:
  utilities:
    - journal
`

	relayYAML = `name: relay
description: Fixture service at the top of the dependency chain.
type: service
singleton: true
dependencies:
  utilities:
    - queue
`
)

// TestStartupPlan verifies plan computation against real plugin trees:
// dependency ordering, the policy-disabled versus missing-dependency
// asymmetry, descriptor-level disabling, and reload picking up trees
// changed at runtime.
func TestStartupPlan(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping startup plan tests in short mode")
	}

	t.Run("dependency chain orders the plan", testPlanDependencyChain)
	t.Run("disabled utility dropped without discarding dependents", testPlanDisabledUtility)
	t.Run("missing dependency discards the service", testPlanMissingDependency)
	t.Run("disabled descriptor is invisible", testPlanDisabledDescriptor)
	t.Run("reload discovers runtime tree changes", testPlanReloadAfterTreeChange)
}

func testPlanDependencyChain(t *testing.T) {
	sp := helpers.StartServerProcessWith(t, helpers.ServerConfig{
		EnabledServices: []string{"controlapi", "relay"},
		ExtraDescriptors: map[string]string{
			"archive": archiveYAML,
			"journal": journalYAML,
			"queue":   queueYAML,
			"relay":   relayYAML,
		},
	})
	t.Cleanup(sp.ForceKill)

	plan, err := sp.Client().GetPlan()
	require.NoError(t, err)

	assert.Equal(t, []string{"controlapi", "relay"}, plan.EnabledServices)
	assert.Equal(t, []string{"archive", "journal", "queue", "tokens"}, plan.RequiredUtilities)
	assert.True(t, plan.RequiresUtility("tokens"))

	// Every dependency must precede its dependents in the order.
	idx := make(map[string]int, len(plan.DependencyOrder))
	for i, name := range plan.DependencyOrder {
		idx[name] = i
	}
	require.Contains(t, idx, "archive")
	require.Contains(t, idx, "journal")
	require.Contains(t, idx, "queue")
	assert.Less(t, idx["archive"], idx["journal"], "archive must be built before journal")
	assert.Less(t, idx["journal"], idx["queue"], "journal must be built before queue")

	// The fixtures carry no compiled factories, so the kernel skips them:
	// only tokens gets an instance, only controlapi gets a task, and the
	// server is healthy regardless.
	status, err := sp.Client().Status()
	require.NoError(t, err)
	assert.Equal(t, 10, status.DiscoveredPlugins, "six built-ins plus four fixtures")
	assert.Equal(t, 1, status.Tasks, "only controlapi has a runnable instance")
	assert.Equal(t, 1, status.CachedUtilities, "only tokens has a compiled factory")
	assert.Equal(t, 1, status.CachedServices)
}

func testPlanDisabledUtility(t *testing.T) {
	sp := helpers.StartServerProcessWith(t, helpers.ServerConfig{
		EnabledServices:   []string{"controlapi", "relay"},
		DisabledUtilities: []string{"journal"},
		ExtraDescriptors: map[string]string{
			"archive": archiveYAML,
			"journal": journalYAML,
			"queue":   queueYAML,
			"relay":   relayYAML,
		},
	})
	t.Cleanup(sp.ForceKill)

	plan, err := sp.Client().GetPlan()
	require.NoError(t, err)

	// Disabling a utility by policy drops it from the required set but
	// does not discard the services that wanted it. The rest of the
	// closure, collected through the disabled node, stays.
	assert.Equal(t, []string{"controlapi", "relay"}, plan.EnabledServices,
		"relay stays enabled despite its disabled transitive dependency")
	assert.Equal(t, []string{"archive", "queue", "tokens"}, plan.RequiredUtilities,
		"journal is dropped, archive and queue remain")
	assert.False(t, plan.RequiresUtility("journal"))
}

func testPlanMissingDependency(t *testing.T) {
	orphanYAML := `name: orphan
description: Fixture service depending on a utility that does not exist.
type: service
singleton: true
dependencies:
  utilities:
    - ghost
`

	sp := helpers.StartServerProcessWith(t, helpers.ServerConfig{
		EnabledServices: []string{"controlapi", "orphan"},
		ExtraDescriptors: map[string]string{
			"orphan": orphanYAML,
		},
	})
	t.Cleanup(sp.ForceKill)

	plan, err := sp.Client().GetPlan()
	require.NoError(t, err)

	// Unlike a policy-disabled utility, a dependency nobody provides
	// discards the whole dependent service from the plan.
	assert.Equal(t, []string{"controlapi"}, plan.EnabledServices,
		"orphan's unresolvable closure should discard it")
	assert.Equal(t, []string{"tokens"}, plan.RequiredUtilities)

	// The descriptor itself is still discovered and inspectable.
	desc, err := sp.Client().GetPlugin("orphan")
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, desc.DependencyNames())
}

func testPlanDisabledDescriptor(t *testing.T) {
	phantomYAML := `name: phantom
description: Fixture utility disabled in its own descriptor.
type: utility
singleton: true
enabled: false
`

	sp := helpers.StartServerProcessWith(t, helpers.ServerConfig{
		ExtraDescriptors: map[string]string{
			"phantom": phantomYAML,
		},
	})
	t.Cleanup(sp.ForceKill)

	// A descriptor with enabled: false is dropped at discovery, which is
	// stronger than policy disabling: the plugin does not exist at all.
	status, err := sp.Client().Status()
	require.NoError(t, err)
	assert.Equal(t, 6, status.DiscoveredPlugins, "phantom should not be discovered")

	_, err = sp.Client().GetPlugin("phantom")
	require.Error(t, err, "phantom should be unknown to the control API")
}

func testPlanReloadAfterTreeChange(t *testing.T) {
	sp := helpers.StartServerProcess(t)
	t.Cleanup(sp.ForceKill)

	// The running server discovered the scaffolded built-ins only.
	status, err := sp.Client().Status()
	require.NoError(t, err)
	require.Equal(t, 6, status.DiscoveredPlugins)

	// Drop a new descriptor into the live tree.
	dir := filepath.Join(sp.PluginsRoot(), "beacon")
	require.NoError(t, os.MkdirAll(dir, 0755))
	beaconYAML := `name: beacon
description: Fixture utility added while the server is running.
type: utility
singleton: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(beaconYAML), 0644))

	// Invisible until an explicit rescan.
	_, err = sp.Client().GetPlugin("beacon")
	require.Error(t, err, "beacon should be unknown before reload")

	res, err := sp.AdminClient(t).Reload()
	require.NoError(t, err)
	assert.True(t, res.Reloaded)
	assert.Equal(t, 7, res.Plugins)

	desc, err := sp.Client().GetPlugin("beacon")
	require.NoError(t, err)
	assert.Equal(t, "utility", string(desc.Kind))

	// The plan is recomputed from the fresh catalog; with nobody
	// depending on beacon it stays out of the required set.
	plan, err := sp.Client().GetPlan()
	require.NoError(t, err)
	assert.Equal(t, []string{"controlapi", "heartbeat"}, plan.EnabledServices)
	assert.False(t, plan.RequiresUtility("beacon"))
}
