package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// errProcessDone reports that the target process had already exited when
// the stop signal was sent.
var errProcessDone = errors.New("process already finished")

var (
	stopPidFile string
	stopForce   bool
	stopTimeout time.Duration
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the BotMesh server",
	Long: `Stop a running BotMesh server.

By default, sends SIGTERM for graceful shutdown and waits for the process
to exit. Use --force for immediate termination with SIGKILL.

Examples:
  # Stop server (uses default PID file)
  botmesh stop

  # Stop server using custom PID file
  botmesh stop --pid-file /var/run/botmesh.pid

  # Force stop (SIGKILL)
  botmesh stop --force`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/botmesh/botmesh.pid)")
	stopCmd.Flags().BoolVarP(&stopForce, "force", "f", false, "Force kill (SIGKILL) instead of graceful shutdown (SIGTERM)")
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 30*time.Second, "How long to wait for the server to exit after SIGTERM")
}

func runStop(cmd *cobra.Command, args []string) error {
	// Use default PID file if not specified
	pidPath := stopPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Read PID file
	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("PID file not found: %s\n\nIs the server running?", pidPath)
		}
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	// Parse PID
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		return fmt.Errorf("invalid PID in file: %s", string(pidData))
	}

	// Find the process
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := stopProcess(process, pid, stopForce); err != nil {
		if errors.Is(err, errProcessDone) {
			fmt.Println("Server already stopped")
			// Clean up stale PID file
			_ = os.Remove(pidPath)
			return nil
		}
		return err
	}

	if stopForce {
		fmt.Println("Server terminated")
		return nil
	}

	// Wait for the graceful shutdown to complete. The server removes its
	// own PID file on clean exit; we only watch process liveness here.
	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if _, running := isProcessRunning(pidPath); !running {
			fmt.Println("Server stopped gracefully")
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	return fmt.Errorf("server did not stop within %s\n\nUse 'botmesh stop --force' to terminate it", stopTimeout)
}
