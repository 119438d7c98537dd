package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/korora-tech/dhd/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var (
		names   []string
		tags    []string
		allTags bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would change",
		Long: `Plan extracts the modules, evaluates their conditions against the
host, lowers selected actions to steps, and probes each step's
current state without changing anything. The output is exactly
what 'apply' would do.`,
		Example: `  # Plan everything
  dhd plan

  # Plan specific modules (dependencies are pulled in)
  dhd plan --module shell --module git

  # Plan by tag
  dhd plan --tag workstation`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			plan, gateResult, err := app.buildPlan(ctx, selectionFlags(names, tags, allTags))
			if err != nil {
				return err
			}
			if err := gateResult.Err(); err != nil {
				return err
			}

			executor := engine.NewExecutor(engine.ExecutorOptions{
				Workers: app.settings.Concurrency,
				DryRun:  true,
			})
			report := executor.Execute(ctx, plan)

			if jsonOutput {
				return printJSON(report)
			}
			printReport(os.Stdout, report)
			if report.Failed() {
				return fmt.Errorf("%d module(s) failed during state probes", report.Totals.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&names, "module", "m", nil, "select modules by name")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "select modules by tag")
	cmd.Flags().BoolVar(&allTags, "all-tags", false, "require all given tags instead of any")

	return cmd
}
