package plugin

import (
	"fmt"
	"os"
	"strings"

	"github.com/botmesh/botmesh/cmd/botmeshctl/cmdutil"
	"github.com/botmesh/botmesh/pkg/plugin"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one plugin descriptor",
	Long: `Show the full descriptor of a discovered plugin.

Examples:
  # Show the statestore plugin as table
  botmeshctl plugin show statestore

  # Show as YAML
  botmeshctl plugin show statestore -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

// SinglePluginTable wraps a single descriptor for table rendering.
type SinglePluginTable []*plugin.Descriptor

// Headers implements TableRenderer.
func (pt SinglePluginTable) Headers() []string {
	return []string{"FIELD", "VALUE"}
}

// Rows implements TableRenderer.
func (pt SinglePluginTable) Rows() [][]string {
	if len(pt) == 0 {
		return nil
	}
	d := pt[0]

	rows := [][]string{
		{"Name", d.Name},
		{"Kind", string(d.Kind)},
		{"Description", cmdutil.EmptyOr(d.Description, "-")},
		{"Singleton", cmdutil.BoolToYesNo(d.Singleton)},
		{"Enabled", cmdutil.BoolToYesNo(d.IsEnabled())},
		{"Edition", cmdutil.EmptyOr(d.Edition, "-")},
		{"Interface", cmdutil.EmptyOr(d.Interface, "-")},
		{"Dependencies", cmdutil.EmptyOr(strings.Join(d.DependencyNames(), ", "), "-")},
	}
	if len(d.Actions) > 0 {
		rows = append(rows, []string{"Actions", strings.Join(d.Actions, ", ")})
	}
	if len(d.Features) > 0 {
		rows = append(rows, []string{"Features", strings.Join(d.Features, ", ")})
	}
	return rows
}

func runShow(cmd *cobra.Command, args []string) error {
	name := args[0]

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	desc, err := client.GetPlugin(name)
	if err != nil {
		return fmt.Errorf("failed to get plugin: %w", err)
	}

	return cmdutil.PrintResource(os.Stdout, desc, SinglePluginTable{desc})
}
