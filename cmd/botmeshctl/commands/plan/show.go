package plan

import (
	"fmt"
	"os"

	"github.com/botmesh/botmesh/cmd/botmeshctl/cmdutil"
	"github.com/botmesh/botmesh/internal/cli/output"
	"github.com/botmesh/botmesh/internal/cli/timeutil"
	"github.com/botmesh/botmesh/pkg/plugin/planner"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current startup plan",
	Long: `Show the server's startup plan: enabled services and the
dependency-ordered utilities they require.

The server computes the plan on demand if no memoized plan exists.

Examples:
  # Show the plan as table
  botmeshctl plan show

  # Show as JSON
  botmeshctl plan show -o json`,
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	plan, err := client.GetPlan()
	if err != nil {
		return fmt.Errorf("failed to get startup plan: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, plan)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, plan)
	default:
		printPlanTable(plan)
	}

	return nil
}

func printPlanTable(plan *planner.Plan) {
	fmt.Println()
	fmt.Println("Startup Plan")
	fmt.Println("============")
	fmt.Println()

	if len(plan.EnabledServices) == 0 {
		fmt.Println("  No services enabled.")
	} else {
		fmt.Printf("  Enabled services (%d):\n", len(plan.EnabledServices))
		for _, name := range plan.EnabledServices {
			fmt.Printf("    - %s\n", name)
		}
	}
	fmt.Println()

	if len(plan.DependencyOrder) == 0 {
		fmt.Println("  No utilities required.")
	} else {
		fmt.Printf("  Utility startup order (%d):\n", len(plan.DependencyOrder))
		for i, name := range plan.DependencyOrder {
			fmt.Printf("    %2d. %s\n", i+1, name)
		}
	}
	fmt.Println()

	fmt.Printf("  Services discovered:  %d\n", plan.TotalServices)
	fmt.Printf("  Utilities discovered: %d\n", plan.TotalUtilities)
	fmt.Printf("  Computed at:          %s\n", plan.ComputedAt.Local().Format(timeutil.LocalTimeFormat))
	fmt.Println()
}
