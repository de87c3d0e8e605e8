package plugin

import "errors"

// Sentinel errors shared by the discovery, planning and kernel layers.
// Callers match them with errors.Is; most carry wrapped context describing
// the plugin involved.
var (
	// ErrDescriptorInvalid marks a descriptor file that could not be
	// parsed or failed validation. Discovery skips the plugin and
	// continues with its siblings.
	ErrDescriptorInvalid = errors.New("invalid plugin descriptor")

	// ErrCycle marks a dependency cycle. The discovery-time check treats
	// it as fatal and prevents the process from starting; the planner's
	// closure walk treats it as grounds to discard the affected root's
	// closure and carry on.
	ErrCycle = errors.New("dependency cycle detected")

	// ErrMissingDependency marks a declared dependency that is not present
	// among the known utilities. During planning it discards the whole
	// closure of the root that needed it; the plan shrinks, nothing fails.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrFactoryNotFound means a discovered plugin has no registered
	// implementation factory. The plugin is unusable; siblings are not
	// affected.
	ErrFactoryNotFound = errors.New("no factory registered for plugin")

	// ErrFactoryFailed wraps an error returned by a plugin factory.
	// Construction failures are fatal for that one plugin and propagate
	// to the kernel's caller.
	ErrFactoryFailed = errors.New("plugin construction failed")
)
