package plan

import (
	"fmt"
	"os"

	"github.com/botmesh/botmesh/cmd/botmeshctl/cmdutil"
	"github.com/spf13/cobra"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Discard the memoized startup plan",
	Long: `Discard the server's memoized startup plan.

The next plan request or utility startup recomputes the plan from the
current plugin catalog and policy. Running plugin instances are not
affected.

Requires an admin session.

Examples:
  # Invalidate the plan
  botmeshctl plan invalidate`,
	RunE: runInvalidate,
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	res, err := client.InvalidatePlan()
	if err != nil {
		return fmt.Errorf("failed to invalidate startup plan: %w", err)
	}

	return cmdutil.PrintResourceWithSuccess(os.Stdout, res, "Startup plan invalidated")
}
