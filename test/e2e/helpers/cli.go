//go:build e2e

package helpers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// CTLRunner executes botmeshctl commands with JSON output for reliable
// parsing. Each runner gets its own XDG_CONFIG_HOME so credential state
// never leaks between tests or into the developer's real config.
type CTLRunner struct {
	serverURL  string
	token      string
	binary     string
	configHome string
}

// NewCTLRunner creates a CLI runner for the given server URL with a
// fresh, isolated credential store.
func NewCTLRunner(t *testing.T, serverURL string) *CTLRunner {
	t.Helper()

	return &CTLRunner{
		serverURL:  serverURL,
		configHome: t.TempDir(),
	}
}

// Run executes botmeshctl with --output json, --server and --token
// prepended. Returns the raw output bytes and any error.
func (r *CTLRunner) Run(args ...string) ([]byte, error) {
	fullArgs := []string{"--output", "json"}
	if r.serverURL != "" {
		fullArgs = append(fullArgs, "--server", r.serverURL)
	}
	if r.token != "" {
		fullArgs = append(fullArgs, "--token", r.token)
	}
	fullArgs = append(fullArgs, args...)

	return r.exec(fullArgs...)
}

// RunRaw executes botmeshctl without prepending standard args. Use this
// for commands that manage the credential store themselves (login,
// logout, context).
func (r *CTLRunner) RunRaw(args ...string) ([]byte, error) {
	return r.exec(args...)
}

// Login exchanges the operator token for a session and stores it in the
// runner's credential store.
func (r *CTLRunner) Login(subject string) ([]byte, error) {
	return r.RunRaw("login",
		"--server", r.serverURL,
		"--operator-token", OperatorToken,
		"--subject", subject,
	)
}

// SessionToken reads the stored session token for the runner's server
// from its credential store.
func (r *CTLRunner) SessionToken() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.configHome, "botmeshctl", "config.json"))
	if err != nil {
		return "", fmt.Errorf("failed to read credential store: %w", err)
	}

	var creds struct {
		CurrentContext string `json:"current_context"`
		Contexts       map[string]struct {
			ServerURL    string `json:"server_url"`
			SessionToken string `json:"session_token"`
		} `json:"contexts"`
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", fmt.Errorf("failed to parse credential store: %w", err)
	}

	ctx, ok := creds.Contexts[creds.CurrentContext]
	if !ok {
		return "", fmt.Errorf("no current context in credential store")
	}
	if ctx.SessionToken == "" {
		return "", fmt.Errorf("no session token stored for %s", ctx.ServerURL)
	}
	return ctx.SessionToken, nil
}

// SetToken sets an explicit bearer token passed via --token.
func (r *CTLRunner) SetToken(token string) {
	r.token = token
}

// Token returns the explicit bearer token, if set.
func (r *CTLRunner) Token() string {
	return r.token
}

// ServerURL returns the server URL the runner targets.
func (r *CTLRunner) ServerURL() string {
	return r.serverURL
}

// exec runs the botmeshctl binary with the runner's isolated environment.
func (r *CTLRunner) exec(args ...string) ([]byte, error) {
	cmd := exec.Command(r.getBinary(), args...)
	cmd.Env = envWithConfigHome(r.configHome)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("botmeshctl %s failed: %w\nstderr: %s",
			strings.Join(args, " "), err, stderr.String())
	}

	return stdout.Bytes(), nil
}

// getBinary returns the path to the botmeshctl binary, building it on
// first use.
func (r *CTLRunner) getBinary() string {
	if r.binary != "" {
		return r.binary
	}

	if path, err := exec.LookPath("botmeshctl"); err == nil {
		r.binary = path
		return r.binary
	}

	projectRoot := findProjectRootForCLI()
	localBinary := filepath.Join(projectRoot, "botmeshctl")
	if _, err := os.Stat(localBinary); err == nil {
		r.binary = localBinary
		return r.binary
	}

	cmd := exec.Command("go", "build", "-o", localBinary, "./cmd/botmeshctl/")
	cmd.Dir = projectRoot
	if _, err := cmd.CombinedOutput(); err != nil {
		// Fall back to the bare name and let the caller see the real error
		r.binary = "botmeshctl"
		return r.binary
	}

	r.binary = localBinary
	return r.binary
}

// envWithConfigHome returns the process environment with XDG_CONFIG_HOME
// replaced by the given directory.
func envWithConfigHome(configHome string) []string {
	var env []string
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, "XDG_CONFIG_HOME=") {
			env = append(env, e)
		}
	}
	return append(env, "XDG_CONFIG_HOME="+configHome)
}

// findProjectRootForCLI locates the project root by looking for go.mod.
func findProjectRootForCLI() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

// ParseJSONResponse parses a JSON response into the given struct.
func ParseJSONResponse(output []byte, v any) error {
	if err := json.Unmarshal(output, v); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w\nraw: %s", err, string(output))
	}
	return nil
}

// RunBotmesh executes the botmesh (server) binary with the given
// arguments. Useful for commands like `botmesh status`.
func RunBotmesh(t *testing.T, args ...string) ([]byte, error) {
	t.Helper()

	binary := findBotmeshBinary(t)
	cmd := exec.Command(binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("botmesh %s failed: %w\nstderr: %s",
			strings.Join(args, " "), err, stderr.String())
	}

	return stdout.Bytes(), nil
}
