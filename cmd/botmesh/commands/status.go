package commands

import (
	"fmt"
	"os"

	"github.com/botmesh/botmesh/internal/cli/output"
	"github.com/botmesh/botmesh/internal/plugins/controlapi"
	"github.com/botmesh/botmesh/pkg/apiclient"
	"github.com/spf13/cobra"
)

var (
	statusOutput  string
	statusPidFile string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the BotMesh server.

This command checks the server health by calling the control API and
displays lifecycle state, uptime, and plugin counts.

Examples:
  # Check status (uses default settings)
  botmesh status

  # Check status with custom API port
  botmesh status --api-port 9420

  # Output as JSON
  botmesh status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/botmesh/botmesh.pid)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", controlapi.DefaultPort, "Control API port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus represents the server status information.
type ServerStatus struct {
	Running bool   `json:"running" yaml:"running"`
	PID     int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Message string `json:"message" yaml:"message"`
	State   string `json:"state,omitempty" yaml:"state,omitempty"`
	Uptime  string `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Tasks   int    `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Plugins int    `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	Healthy bool   `json:"healthy" yaml:"healthy"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := ServerStatus{
		Running: false,
		Healthy: false,
		Message: "Server is not running",
	}

	// Use default PID file if not specified
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check PID file first
	if pid, running := isProcessRunning(pidPath); running {
		status.Running = true
		status.PID = pid
	}

	// Check the control API (works for both daemon and foreground mode)
	client := apiclient.New(fmt.Sprintf("http://localhost:%d", statusAPIPort))

	health, err := client.Health()
	if err == nil {
		status.Running = true
		status.Healthy = health.Healthy()
		status.State = health.State
		if status.Healthy {
			status.Message = "Server is running and healthy"
		} else {
			status.Message = fmt.Sprintf("Server is running but degraded (state: %s)", health.State)
		}

		// Status details are best-effort; the health verdict stands alone.
		if st, err := client.Status(); err == nil {
			status.Uptime = st.Uptime
			status.Tasks = st.Tasks
			status.Plugins = st.DiscoveredPlugins
		}
	} else if status.Running {
		// PID file says running but the control API did not answer
		status.Message = "Server process exists but health check failed"
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

	if status.Running {
		if status.Healthy {
			fmt.Printf("  Status:     \033[32m● Running\033[0m\n")
		} else {
			fmt.Printf("  Status:     \033[33m● Running (degraded)\033[0m\n")
		}
		if status.PID != 0 {
			fmt.Printf("  PID:        %d\n", status.PID)
		}
		if status.State != "" {
			fmt.Printf("  State:      %s\n", status.State)
		}
		if status.Uptime != "" {
			fmt.Printf("  Uptime:     %s\n", status.Uptime)
		}
		if status.Plugins != 0 {
			fmt.Printf("  Plugins:    %d discovered\n", status.Plugins)
			fmt.Printf("  Tasks:      %d running\n", status.Tasks)
		}
	} else {
		fmt.Printf("  Status:     \033[31m○ Stopped\033[0m\n")
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}
