package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/korora-tech/dhd/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
		Long: `History reads the run database written by apply. Requires the
stateDB setting to point at a database file.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func openHistory(cmd *cobra.Command) (*app, *stores.HistoryStore, error) {
	app, ctx, err := newApp(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	if app.settings.StateDB == "" {
		return nil, nil, fmt.Errorf("no stateDB configured, run history is disabled")
	}
	store, err := stores.OpenHistory(ctx, app.settings.StateDB)
	if err != nil {
		return nil, nil, err
	}
	return app, store, nil
}

func newHistoryListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(runs)
			}

			if len(runs) == 0 {
				fmt.Println("no recorded runs")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%s  %-9s  %s  %ds changed=%d failed=%d\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Status, r.ID,
					int(r.Duration().Seconds()),
					r.Totals.Changed, r.Totals.Failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum runs to list")
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the full report of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var keep time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			pruned, err := store.Prune(cmd.Context(), time.Now().Add(-keep))
			if err != nil {
				return err
			}
			fmt.Printf("pruned %d run(s)\n", pruned)
			return nil
		},
	}

	cmd.Flags().DurationVar(&keep, "keep", 30*24*time.Hour, "retention window")
	return cmd
}
