//go:build e2e

package helpers

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/botmesh/botmesh/internal/plugins/builtin"
	"github.com/botmesh/botmesh/internal/plugins/tokens"
	"github.com/botmesh/botmesh/pkg/apiclient"
)

// APISecret signs session tokens in every e2e server. It reaches the
// subprocess through the BOTMESH_API_SECRET environment variable, the
// same way operators are told to supply it.
const APISecret = "e2e-signing-secret-0123456789abcdef0123456789abcdef"

// OperatorToken is the static operator credential every e2e server
// accepts. Its bcrypt hash is baked into the generated configuration.
const OperatorToken = "e2e-operator-token"

// ServerProcess manages a BotMesh server subprocess for E2E testing.
// It provides methods to start the server, check health, send signals,
// and stop gracefully.
type ServerProcess struct {
	cmd           *exec.Cmd
	pidFile       string
	apiPort       int
	logFile       string
	stateDir      string
	configFile    string
	pluginsRoot   string
	process       *os.Process
	logFileHandle *os.File
}

// ServerConfig shapes the configuration generated for an e2e server.
// The zero value produces a working server: built-in descriptors
// scaffolded into a fresh plugin tree, controlapi and heartbeat enabled,
// operator authentication wired up.
type ServerConfig struct {
	// EnabledServices is the policy services.enabled list.
	// Default: controlapi, heartbeat.
	EnabledServices []string

	// DisabledUtilities is the policy utilities.disabled list.
	DisabledUtilities []string

	// Settings are plugins.settings overrides, merged over the generated
	// tokens entry.
	Settings map[string]map[string]any

	// Watch enables the descriptor watcher.
	Watch bool

	// SkipScaffold leaves the plugin tree empty instead of scaffolding
	// the built-in descriptors into it.
	SkipScaffold bool

	// ExtraDescriptors are additional plugin.yaml contents written into
	// the tree, keyed by plugin directory name.
	ExtraDescriptors map[string]string
}

// FindFreePort finds an available TCP port by binding to :0 and reading
// the assigned port.
func FindFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	defer func() { _ = listener.Close() }()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.Port
}

// StartServerProcess starts a BotMesh server in foreground mode with a
// generated default configuration and polls /health until ready.
// Uses t.TempDir() for the config, plugin tree and state directory.
func StartServerProcess(t *testing.T) *ServerProcess {
	t.Helper()
	return StartServerProcessWith(t, ServerConfig{})
}

// StartServerProcessWith starts a BotMesh server with a configuration
// generated from sc.
func StartServerProcessWith(t *testing.T, sc ServerConfig) *ServerProcess {
	t.Helper()

	stateDir := t.TempDir()
	apiPort := FindFreePort(t)

	pluginsRoot := filepath.Join(stateDir, "plugins")
	if !sc.SkipScaffold {
		if _, err := builtin.Scaffold(pluginsRoot, false); err != nil {
			t.Fatalf("Failed to scaffold plugin tree: %v", err)
		}
	} else if err := os.MkdirAll(pluginsRoot, 0755); err != nil {
		t.Fatalf("Failed to create plugin tree: %v", err)
	}
	for name, descriptor := range sc.ExtraDescriptors {
		dir := filepath.Join(pluginsRoot, name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create plugin directory: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(descriptor), 0644); err != nil {
			t.Fatalf("Failed to write descriptor %s: %v", name, err)
		}
	}

	configFile := writeServerConfig(t, stateDir, pluginsRoot, apiPort, sc)

	pidFile := filepath.Join(stateDir, "botmesh.pid")
	logFile := filepath.Join(stateDir, "botmesh.log")

	botmeshPath := findBotmeshBinary(t)

	// Start server in foreground mode
	cmd := exec.Command(botmeshPath, "start", "--foreground",
		"--config", configFile,
		"--pid-file", pidFile,
		"--log-file", logFile)

	// Build environment for the subprocess, filtering any inherited
	// secret to avoid duplicate entries
	var env []string
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, "BOTMESH_API_SECRET=") {
			env = append(env, e)
		}
	}
	env = append(env, "BOTMESH_API_SECRET="+APISecret)
	cmd.Env = env

	// Redirect stdout/stderr to log file
	logFileHandle, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("Failed to create log file: %v", err)
	}

	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle

	if err := cmd.Start(); err != nil {
		_ = logFileHandle.Close()
		t.Fatalf("Failed to start botmesh server: %v", err)
	}

	sp := &ServerProcess{
		cmd:           cmd,
		pidFile:       pidFile,
		apiPort:       apiPort,
		logFile:       logFile,
		stateDir:      stateDir,
		configFile:    configFile,
		pluginsRoot:   pluginsRoot,
		process:       cmd.Process,
		logFileHandle: logFileHandle,
	}

	// Wait for server to be ready
	if err := sp.WaitReady(10 * time.Second); err != nil {
		sp.dumpLogs(t)
		sp.ForceKill()
		t.Fatalf("Server failed to become ready: %v", err)
	}

	return sp
}

// writeServerConfig renders the e2e configuration file. The operator
// token hash always lands in the tokens settings so authentication
// round-trips work out of the box; sc.Settings wins per key.
func writeServerConfig(t *testing.T, stateDir, pluginsRoot string, apiPort int, sc ServerConfig) string {
	t.Helper()

	hash, err := tokens.HashToken(OperatorToken)
	if err != nil {
		t.Fatalf("Failed to hash operator token: %v", err)
	}

	services := sc.EnabledServices
	if services == nil {
		services = []string{"controlapi", "heartbeat"}
	}

	settings := map[string]map[string]any{
		"tokens": {"static_token_hashes": []string{hash}},
	}
	for name, overrides := range sc.Settings {
		entry := settings[name]
		if entry == nil {
			entry = make(map[string]any, len(overrides))
			settings[name] = entry
		}
		for k, v := range overrides {
			entry[k] = v
		}
	}

	cfg := map[string]any{
		"logging": map[string]any{
			"level":  "DEBUG",
			"format": "text",
			"output": "stdout",
		},
		"api": map[string]any{
			"port":      apiPort,
			"token_ttl": "1h",
		},
		"plugins": map[string]any{
			"root":  pluginsRoot,
			"watch": sc.Watch,
			"policy": map[string]any{
				"services":  map[string]any{"enabled": services},
				"utilities": map[string]any{"disabled": sc.DisabledUtilities},
			},
			"settings": settings,
		},
		"shutdown": map[string]any{
			"kernel_timeout": "15s",
			"task_timeout":   "10s",
		},
		"state_dir": filepath.Join(stateDir, "state"),
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}

	configFile := filepath.Join(stateDir, "config.yaml")
	if err := os.WriteFile(configFile, data, 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	return configFile
}

// WaitReady polls the /health endpoint until the server reports healthy
// or the timeout elapses. A degraded server answers 503 with a decodable
// body, so polling distinguishes "starting" from "not listening yet".
func (sp *ServerProcess) WaitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := apiclient.New(sp.APIURL())

	var lastErr error
	for time.Now().Before(deadline) {
		health, err := client.Health()
		if err != nil {
			lastErr = err
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if health.Healthy() {
			return nil
		}

		lastErr = fmt.Errorf("server state %q, not healthy yet", health.State)
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not healthy after %v: %w", timeout, lastErr)
}

// Client returns an anonymous API client for the server.
func (sp *ServerProcess) Client() *apiclient.Client {
	return apiclient.New(sp.APIURL())
}

// AdminClient exchanges the operator token for a session and returns a
// client authorized for mutating routes.
func (sp *ServerProcess) AdminClient(t *testing.T) *apiclient.Client {
	t.Helper()

	client := sp.Client()
	session, err := client.IssueToken(OperatorToken, "e2e-admin")
	if err != nil {
		t.Fatalf("Failed to issue session token: %v", err)
	}
	return client.WithToken(session.Token)
}

// CheckHealth performs a GET /health and parses the response.
func (sp *ServerProcess) CheckHealth() (*apiclient.Health, error) {
	return sp.Client().Health()
}

// SendSignal sends a signal to the server process.
func (sp *ServerProcess) SendSignal(sig syscall.Signal) error {
	if sp.process == nil {
		return fmt.Errorf("no process to signal")
	}
	return sp.process.Signal(sig)
}

// WaitForExit waits for the process to exit within the timeout.
func (sp *ServerProcess) WaitForExit(timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		_, err := sp.process.Wait()
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("process did not exit within %v", timeout)
	}
}

// ForceKill terminates the server process. It first attempts graceful
// shutdown (SIGTERM) so the two-phase teardown can run, then falls back
// to SIGKILL if the process does not exit.
func (sp *ServerProcess) ForceKill() {
	if sp.process == nil {
		return
	}

	_ = sp.process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_, _ = sp.process.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Process exited gracefully
	case <-time.After(5 * time.Second):
		_ = sp.process.Kill()
		<-done
	}

	// Close log file handle to avoid descriptor leak
	if sp.logFileHandle != nil {
		_ = sp.logFileHandle.Close()
		sp.logFileHandle = nil
	}
}

// StopGracefully sends SIGTERM and waits for clean exit.
func (sp *ServerProcess) StopGracefully() error {
	if err := sp.SendSignal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}
	return sp.WaitForExit(30 * time.Second)
}

// APIPort returns the control API port for client connections.
func (sp *ServerProcess) APIPort() int {
	return sp.apiPort
}

// APIURL returns the full control API URL for the server.
func (sp *ServerProcess) APIURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", sp.apiPort)
}

// LogFile returns the path to the server log file.
func (sp *ServerProcess) LogFile() string {
	return sp.logFile
}

// PidFile returns the path to the server PID file.
func (sp *ServerProcess) PidFile() string {
	return sp.pidFile
}

// ConfigFile returns the path to the server config file.
func (sp *ServerProcess) ConfigFile() string {
	return sp.configFile
}

// PluginsRoot returns the plugin tree directory the server scans.
func (sp *ServerProcess) PluginsRoot() string {
	return sp.pluginsRoot
}

// ProcessRunning checks if the server process is still running.
func (sp *ServerProcess) ProcessRunning() bool {
	if sp.process == nil {
		return false
	}
	// Signal 0 checks process existence without delivering anything
	err := sp.process.Signal(syscall.Signal(0))
	return err == nil
}

// PID returns the process ID of the server, 0 if not running.
func (sp *ServerProcess) PID() int {
	if sp.process == nil {
		return 0
	}
	return sp.process.Pid
}

// dumpLogs prints the log file contents to help debug failures.
func (sp *ServerProcess) dumpLogs(t *testing.T) {
	t.Helper()

	content, err := os.ReadFile(sp.logFile)
	if err != nil {
		t.Logf("Could not read log file: %v", err)
		return
	}

	t.Logf("Server logs:\n%s", string(content))
}

// DumpLogs is the exported version of dumpLogs for use by tests.
func (sp *ServerProcess) DumpLogs(t *testing.T) {
	sp.dumpLogs(t)
}

// findBotmeshBinary locates the botmesh binary, building it if necessary.
func findBotmeshBinary(t *testing.T) string {
	t.Helper()

	if path, err := exec.LookPath("botmesh"); err == nil {
		return path
	}

	projectRoot := findProjectRoot(t)
	localBinary := filepath.Join(projectRoot, "botmesh")
	if _, err := os.Stat(localBinary); err == nil {
		return localBinary
	}

	t.Log("Building botmesh binary...")
	cmd := exec.Command("go", "build", "-o", localBinary, "./cmd/botmesh/")
	cmd.Dir = projectRoot
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build botmesh: %v\n%s", err, output)
	}

	return localBinary
}

// findProjectRoot locates the project root by looking for go.mod.
func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("Could not find project root (go.mod not found)")
		}
		dir = parent
	}
}
