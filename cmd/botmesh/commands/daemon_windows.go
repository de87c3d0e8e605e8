//go:build windows

package commands

import (
	"fmt"
	"os"
)

// isProcessRunning reads a PID from the given file and checks whether
// that process is still alive. On Windows, FindProcess opens a handle to
// the process and fails if it does not exist.
func isProcessRunning(pidPath string) (int, bool) {
	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, false
	}

	var pid int
	if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err != nil {
		return 0, false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	_ = process.Release()

	return pid, true
}

// startDaemon is not supported on Windows.
// Use --foreground flag to run the server in the foreground.
func startDaemon() error {
	return fmt.Errorf("daemon mode is not supported on Windows, use --foreground")
}
