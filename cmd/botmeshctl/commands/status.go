package commands

import (
	"fmt"
	"os"

	"github.com/botmesh/botmesh/cmd/botmeshctl/cmdutil"
	"github.com/botmesh/botmesh/internal/cli/output"
	"github.com/botmesh/botmesh/internal/cli/timeutil"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the status of the connected BotMesh server.

This command checks the server health endpoint and displays the
lifecycle state, uptime, and plugin counts.

Examples:
  # Check status of connected server
  botmeshctl status

  # Check a specific server without logging in
  botmeshctl status --server http://localhost:8420

  # Output as JSON
  botmeshctl status -o json`,
	RunE: runStatus,
}

// ServerStatus represents the server status for display.
type ServerStatus struct {
	Server  string `json:"server" yaml:"server"`
	Status  string `json:"status" yaml:"status"`
	Healthy bool   `json:"healthy" yaml:"healthy"`
	State   string `json:"state,omitempty" yaml:"state,omitempty"`
	Uptime  string `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Tasks   int    `json:"tasks" yaml:"tasks"`
	Plugins int    `json:"plugins" yaml:"plugins"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	status := ServerStatus{
		Server:  client.BaseURL(),
		Status:  "unreachable",
		Healthy: false,
	}

	// Health answers on both 200 and 503, so a degraded server still
	// reports its state instead of an error.
	health, err := client.Health()
	if err != nil {
		status.Error = err.Error()
	} else {
		status.Status = health.Status
		status.Healthy = health.Healthy()
		status.State = health.State

		// Status details are best-effort; health already told us enough.
		if st, err := client.Status(); err == nil {
			status.State = st.State
			status.Uptime = st.Uptime
			status.Tasks = st.Tasks
			status.Plugins = st.DiscoveredPlugins
		}
	}

	// Output based on format
	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

func printStatusTable(status ServerStatus) {
	fmt.Println()
	fmt.Println("BotMesh Server Status")
	fmt.Println("=====================")
	fmt.Println()
	fmt.Printf("  Server:     %s\n", status.Server)

	if status.Healthy {
		fmt.Printf("  Status:     \033[32m● %s\033[0m\n", status.Status)
	} else if status.Status == "unreachable" {
		fmt.Printf("  Status:     \033[31m○ %s\033[0m\n", status.Status)
	} else {
		fmt.Printf("  Status:     \033[33m● %s\033[0m\n", status.Status)
	}

	if status.State != "" {
		fmt.Printf("  State:      %s\n", status.State)
	}
	if status.Uptime != "" {
		fmt.Printf("  Uptime:     %s\n", timeutil.FormatUptime(status.Uptime))
	}
	if status.Healthy {
		fmt.Printf("  Tasks:      %d\n", status.Tasks)
		fmt.Printf("  Plugins:    %d\n", status.Plugins)
	}
	if status.Error != "" {
		fmt.Printf("  Error:      %s\n", status.Error)
	}
	fmt.Println()
}
