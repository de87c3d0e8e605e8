package commands

import (
	"fmt"
	"net/url"

	"github.com/botmesh/botmesh/cmd/botmeshctl/cmdutil"
	"github.com/botmesh/botmesh/internal/cli/credentials"
	"github.com/botmesh/botmesh/internal/cli/prompt"
	"github.com/botmesh/botmesh/pkg/apiclient"
	"github.com/spf13/cobra"
)

var (
	loginServer  string
	loginToken   string
	loginSubject string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with a BotMesh server",
	Long: `Exchange a static operator token for a short-lived session token and
store it.

On first login, you must specify the server URL. Subsequent logins will
use the stored server URL unless overridden. The operator token itself is
never written to disk; only the issued session token is stored.

Examples:
  # First login to a server (prompts for the operator token)
  botmeshctl login --server http://localhost:8420

  # Login with token on command line (less secure)
  botmeshctl login --server http://localhost:8420 --operator-token secret

  # Re-login to stored server after the session expires
  botmeshctl login`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginServer, "server", "", "Server URL (required on first login)")
	loginCmd.Flags().StringVar(&loginToken, "operator-token", "", "Static operator token")
	loginCmd.Flags().StringVar(&loginSubject, "subject", "operator", "Subject recorded in the issued session token")
}

func runLogin(cmd *cobra.Command, args []string) error {
	// Load credential store
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	// Determine server URL
	serverURLStr := loginServer
	if serverURLStr == "" {
		// Try to get from current context
		ctx, err := store.GetCurrentContext()
		if err != nil || ctx == nil || ctx.ServerURL == "" {
			return fmt.Errorf("no server URL specified and no saved context found\n\n" +
				"Specify server URL:\n" +
				"  botmeshctl login --server http://localhost:8420")
		}
		serverURLStr = ctx.ServerURL
	}

	// Validate server URL
	parsedURL, err := url.Parse(serverURLStr)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if parsedURL.Scheme == "" {
		parsedURL.Scheme = "http"
		serverURLStr = parsedURL.String()
	}

	// Get operator token (prompt if not provided)
	operatorToken := loginToken
	if operatorToken == "" {
		operatorToken, err = prompt.Password("Operator token")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	// Create API client
	client := apiclient.New(serverURLStr)

	// Exchange the operator token for a session token
	fmt.Printf("Authenticating with %s as %s...\n", serverURLStr, loginSubject)
	session, err := client.IssueToken(operatorToken, loginSubject)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	// Determine context name
	contextName := store.GetCurrentContextName()
	if contextName == "" {
		contextName = credentials.GenerateContextName(serverURLStr)
	}

	// Save credentials
	ctx := &credentials.Context{
		ServerURL:    serverURLStr,
		Subject:      loginSubject,
		SessionToken: session.Token,
		ExpiresAt:    session.ExpiresAt,
	}

	if err := store.SetContext(contextName, ctx); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	if err := store.UseContext(contextName); err != nil {
		return fmt.Errorf("failed to set current context: %w", err)
	}

	fmt.Printf("Logged in successfully as %s\n", loginSubject)
	fmt.Printf("Session expires in %s\n", session.ExpiresInDuration())
	fmt.Printf("Context: %s\n", contextName)
	fmt.Printf("Credentials saved to: %s\n", store.ConfigPath())

	return nil
}
