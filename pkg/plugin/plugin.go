// Package plugin defines the contracts shared by every BotMesh plugin:
// the descriptor loaded from disk, the factory signature used to construct
// instances, the capability map handed to factories, and the optional
// interfaces the kernel probes for at runtime.
//
// A plugin is a named unit of either kind "utility" (a capability consumed
// by other plugins) or kind "service" (a long-running worker consumed by
// nothing inside the kernel). Implementations are plain Go values; the
// kernel discovers their abilities through the optional interfaces below
// rather than through a required base type.
package plugin

import "context"

// Kind distinguishes the two plugin categories.
type Kind string

const (
	// KindUtility is a capability-providing plugin consumed by other plugins.
	KindUtility Kind = "utility"

	// KindService is a plugin exposing a long-running entry point.
	KindService Kind = "service"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindUtility || k == KindService
}

// Factory constructs a plugin instance from its resolved dependencies.
//
// Factories are registered in a Registry under the plugin's descriptor
// name. The kernel builds the Dependencies map from the descriptor's
// declared dependency list before calling the factory; dependencies that
// could not be resolved are absent from the map, and the factory decides
// whether it can operate without them. A factory returning an error is
// fatal for that one plugin and is propagated to the kernel's caller.
type Factory func(ctx context.Context, deps *Dependencies) (any, error)

// Runner is implemented by service plugins that expose a long-running
// entry point. The lifecycle controller spawns one goroutine per enabled
// service implementing Runner and cancels its context on shutdown.
//
// Run should block until ctx is cancelled or an unrecoverable error
// occurs. Returning nil after cancellation is the normal path.
type Runner interface {
	Run(ctx context.Context) error
}

// Shutdowner is implemented by plugins that want a teardown hook. The
// kernel invokes Shutdown on every cached instance during kernel shutdown,
// utilities before services. Hook errors are logged and never block the
// teardown of sibling plugins.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}
