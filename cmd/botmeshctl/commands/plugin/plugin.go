// Package plugin implements plugin inspection subcommands for botmeshctl.
package plugin

import (
	"github.com/spf13/cobra"
)

// Cmd is the plugin subcommand.
var Cmd = &cobra.Command{
	Use:   "plugin",
	Short: "Inspect discovered plugins",
	Long: `Inspect the plugins discovered on the BotMesh server.

Subcommands:
  list  List discovered plugins
  show  Show one plugin descriptor`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
}
