// Package plan implements startup plan subcommands for botmeshctl.
package plan

import (
	"github.com/spf13/cobra"
)

// Cmd is the plan subcommand.
var Cmd = &cobra.Command{
	Use:   "plan",
	Short: "Inspect the startup plan",
	Long: `Inspect and manage the server's startup plan.

The plan lists the services enabled by policy and the dependency-ordered
utilities they require. It is memoized server-side and recomputed after
invalidation or a plugin tree reload.

Subcommands:
  show        Show the current startup plan
  invalidate  Discard the memoized plan`,
}

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(invalidateCmd)
}
