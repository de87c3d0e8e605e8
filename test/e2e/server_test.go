//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/botmesh/botmesh/test/e2e/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestServerLifecycle validates the BotMesh server lifecycle operations.
// These tests verify server startup, the health endpoint, the status
// command, PID file handling, and graceful shutdown via signals.
//
// Note: These tests are sequential and cannot run in parallel because
// each needs to start and stop its own server instance.
func TestServerLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping server lifecycle tests in short mode")
	}

	t.Run("start and check health", testStartAndCheckHealth)
	t.Run("status command reports running", testStatusReportsRunning)
	t.Run("pid file tracks process", testPidFileTracksProcess)
	t.Run("graceful shutdown on SIGTERM", testGracefulShutdownSIGTERM)
	t.Run("graceful shutdown on SIGINT", testGracefulShutdownSIGINT)
}

// testStartAndCheckHealth starts a server and verifies the /health
// endpoint reports a healthy, running controller.
func testStartAndCheckHealth(t *testing.T) {
	// Start server with automatic cleanup on test completion
	sp := helpers.StartServerProcess(t)
	t.Cleanup(sp.ForceKill)

	// Check health endpoint
	health, err := sp.CheckHealth()
	require.NoError(t, err, "Health check should succeed")

	// Verify response structure
	assert.Equal(t, "healthy", health.Status, "Server should be healthy")
	assert.True(t, health.Healthy(), "Healthy() should agree with the status field")
	assert.Equal(t, "running", health.State, "Lifecycle state should be running")
	assert.False(t, health.Timestamp.IsZero(), "timestamp should be set")

	// Stop gracefully
	err = sp.StopGracefully()
	require.NoError(t, err, "Graceful stop should succeed")
}

// testStatusReportsRunning verifies the `botmesh status` command correctly
// reports the server state when running.
func testStatusReportsRunning(t *testing.T) {
	// Start server
	sp := helpers.StartServerProcess(t)
	t.Cleanup(sp.ForceKill)

	// Run botmesh status against the server's API port and PID file
	output, err := helpers.RunBotmesh(t,
		"status",
		"--api-port", itoa(sp.APIPort()),
		"--pid-file", sp.PidFile(),
		"--output", "json",
	)
	require.NoError(t, err, "Status command should succeed")

	// Parse JSON output
	var status struct {
		Running bool   `json:"running"`
		PID     int    `json:"pid,omitempty"`
		Message string `json:"message"`
		State   string `json:"state,omitempty"`
		Uptime  string `json:"uptime,omitempty"`
		Tasks   int    `json:"tasks,omitempty"`
		Plugins int    `json:"plugins,omitempty"`
		Healthy bool   `json:"healthy"`
	}
	err = json.Unmarshal(output, &status)
	require.NoError(t, err, "Status output should be valid JSON: %s", string(output))

	// Verify status
	assert.True(t, status.Running, "Server should be reported as running")
	assert.True(t, status.Healthy, "Server should be reported as healthy")
	assert.Equal(t, sp.PID(), status.PID, "PID should come from the server's PID file")
	assert.Contains(t, status.Message, "running", "Message should indicate running")
	assert.Equal(t, "running", status.State, "State should be running")

	// A scaffolded tree carries the six built-in plugins; the default
	// policy runs the control API and heartbeat service tasks.
	assert.Equal(t, 6, status.Plugins, "All built-in plugins should be discovered")
	assert.Equal(t, 2, status.Tasks, "controlapi and heartbeat tasks should be running")

	// Stop gracefully
	err = sp.StopGracefully()
	require.NoError(t, err, "Graceful stop should succeed")
}

// testPidFileTracksProcess verifies the PID file exists and matches the
// running process, and is removed again after a graceful stop.
func testPidFileTracksProcess(t *testing.T) {
	sp := helpers.StartServerProcess(t)
	t.Cleanup(sp.ForceKill)

	// PID file should exist while the server runs and contain its PID
	data, err := os.ReadFile(sp.PidFile())
	require.NoError(t, err, "PID file should exist while the server is running")
	assert.Equal(t, itoa(sp.PID()), string(data), "PID file should contain the server PID")

	// Stop gracefully and verify the PID file is cleaned up
	err = sp.StopGracefully()
	require.NoError(t, err, "Graceful stop should succeed")

	_, err = os.Stat(sp.PidFile())
	assert.True(t, os.IsNotExist(err), "PID file should be removed after graceful stop")
}

// testGracefulShutdownSIGTERM verifies that sending SIGTERM triggers
// graceful shutdown within a reasonable timeout.
func testGracefulShutdownSIGTERM(t *testing.T) {
	// Start server
	sp := helpers.StartServerProcess(t)
	t.Cleanup(sp.ForceKill)

	// Verify server is running
	require.True(t, sp.ProcessRunning(), "Server process should be running")

	// Send SIGTERM
	err := sp.SendSignal(syscall.SIGTERM)
	require.NoError(t, err, "Sending SIGTERM should succeed")

	// Wait for exit with timeout. The built-in service tasks return on
	// context cancellation, so shutdown stays well inside the two
	// configured phase deadlines.
	start := time.Now()
	err = sp.WaitForExit(10 * time.Second)
	elapsed := time.Since(start)

	// Verify clean exit
	require.NoError(t, err, "Server should exit cleanly after SIGTERM")
	assert.Less(t, elapsed, 10*time.Second, "Server should shut down within 10 seconds")

	// Verify process is no longer running
	assert.False(t, sp.ProcessRunning(), "Server process should not be running after shutdown")

	t.Logf("SIGTERM shutdown took %v", elapsed)
}

// testGracefulShutdownSIGINT verifies that sending SIGINT (Ctrl+C
// equivalent) triggers graceful shutdown.
func testGracefulShutdownSIGINT(t *testing.T) {
	// Start server
	sp := helpers.StartServerProcess(t)
	t.Cleanup(sp.ForceKill)

	// Verify server is running
	require.True(t, sp.ProcessRunning(), "Server process should be running")

	// Send SIGINT
	err := sp.SendSignal(syscall.SIGINT)
	require.NoError(t, err, "Sending SIGINT should succeed")

	// Wait for exit with timeout
	start := time.Now()
	err = sp.WaitForExit(10 * time.Second)
	elapsed := time.Since(start)

	// Verify clean exit
	require.NoError(t, err, "Server should exit cleanly after SIGINT")
	assert.Less(t, elapsed, 10*time.Second, "Server should shut down within 10 seconds")

	// Verify process is no longer running
	assert.False(t, sp.ProcessRunning(), "Server process should not be running after shutdown")

	t.Logf("SIGINT shutdown took %v", elapsed)
}

// itoa converts an int to string using fmt.Sprintf
func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}
