package commands

import (
	"fmt"
	"os"

	"github.com/botmesh/botmesh/cmd/botmeshctl/cmdutil"
	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Rescan the server's plugin tree",
	Long: `Rescan the plugin tree on the server and invalidate the startup plan.

Newly discovered descriptors become visible to plugin listings and the
next plan computation. Already-running plugin instances are not restarted.

Requires an admin session.

Examples:
  # Reload the plugin tree
  botmeshctl reload`,
	RunE: runReload,
}

func runReload(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	res, err := client.Reload()
	if err != nil {
		return fmt.Errorf("failed to reload plugin tree: %w", err)
	}

	return cmdutil.PrintResourceWithSuccess(os.Stdout, res,
		fmt.Sprintf("Plugin tree reloaded (%d plugins discovered)", res.Plugins))
}
