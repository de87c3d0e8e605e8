package plugin

import (
	"fmt"
	"os"
	"strings"

	"github.com/botmesh/botmesh/cmd/botmeshctl/cmdutil"
	"github.com/botmesh/botmesh/pkg/plugin"
	"github.com/spf13/cobra"
)

var listKind string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered plugins",
	Long: `List the plugins discovered on the BotMesh server.

Examples:
  # List all plugins as table
  botmeshctl plugin list

  # List only services
  botmeshctl plugin list --kind service

  # List as JSON
  botmeshctl plugin list -o json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listKind, "kind", "", "Filter by kind (utility|service)")
}

// PluginTable is a list of plugin descriptors for table rendering.
type PluginTable []*plugin.Descriptor

// Headers implements TableRenderer.
func (pt PluginTable) Headers() []string {
	return []string{"NAME", "KIND", "SINGLETON", "EDITION", "DEPENDENCIES"}
}

// Rows implements TableRenderer.
func (pt PluginTable) Rows() [][]string {
	rows := make([][]string, 0, len(pt))
	for _, d := range pt {
		deps := cmdutil.EmptyOr(strings.Join(d.DependencyNames(), ","), "-")
		rows = append(rows, []string{
			d.Name,
			string(d.Kind),
			cmdutil.BoolToYesNo(d.Singleton),
			cmdutil.EmptyOr(d.Edition, "-"),
			deps,
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	list, err := client.ListPlugins(listKind)
	if err != nil {
		return fmt.Errorf("failed to list plugins: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, list, len(list.Plugins) == 0, "No plugins found.", PluginTable(list.Plugins))
}
