package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/korora-tech/dhd/pkg/engine"
	"github.com/korora-tech/dhd/pkg/stores"
	"github.com/korora-tech/dhd/pkg/telemetry"
)

func newApplyCommand() *cobra.Command {
	var (
		names   []string
		tags    []string
		allTags bool
		dryRun  bool
		workers int
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge the host to the declared state",
		Long: `Apply plans the selected modules and executes the resulting steps
concurrently, respecting module dependencies. Steps already in
their desired state are left untouched. The run is recorded in the
history database when one is configured.`,
		Example: `  # Converge everything
  dhd apply

  # Preview without changing anything
  dhd apply --dry-run

  # Converge one module and its dependencies
  dhd apply --module shell`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			if workers > 0 {
				app.settings.Concurrency = workers
			}

			report, err := runApply(ctx, app, selectionFlags(names, tags, allTags), dryRun)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				printReport(os.Stdout, report)
			}
			if report.Failed() {
				return fmt.Errorf("%d module(s) failed", report.Totals.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&names, "module", "m", nil, "select modules by name")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "select modules by tag")
	cmd.Flags().BoolVar(&allTags, "all-tags", false, "require all given tags instead of any")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "report intended changes without applying")
	cmd.Flags().IntVar(&workers, "workers", 0, "override configured concurrency")

	return cmd
}

// runApply is the shared plan-gate-execute-record pipeline, also used
// by watch mode.
func runApply(ctx context.Context, app *app, sel engine.Selection, dryRun bool) (*engine.Report, error) {
	tracer, err := telemetry.NewTracer(ctx, app.settings.Tracing, "dhd")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := tracer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			app.logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	ctx, planSpan := tracer.Start(ctx, "plan")
	plan, gateResult, err := app.buildPlan(ctx, sel)
	planSpan.End()
	if err != nil {
		return nil, err
	}
	if err := gateResult.Err(); err != nil {
		return nil, err
	}

	var metrics *telemetry.Metrics
	if app.settings.Metrics.Enabled {
		metrics = telemetry.NewMetrics()
		if app.settings.Metrics.Listen != "" {
			go serveMetrics(app, metrics)
		}
	}

	opts := engine.ExecutorOptions{
		Workers: app.settings.Concurrency,
		DryRun:  dryRun,
	}
	if metrics != nil {
		opts.Metrics = metrics
	}

	ctx, execSpan := tracer.Start(ctx, "execute")
	report := engine.NewExecutor(opts).Execute(ctx, plan)
	execSpan.End()

	if app.settings.StateDB != "" && !dryRun {
		if err := recordRun(ctx, app, report); err != nil {
			app.logger.Warn().Err(err).Msg("recording run failed")
		}
	}
	return report, nil
}

func recordRun(ctx context.Context, app *app, report *engine.Report) error {
	store, err := stores.OpenHistory(ctx, app.settings.StateDB)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveRun(ctx, report)
}

func serveMetrics(app *app, metrics *telemetry.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	app.logger.Info().Str("listen", app.settings.Metrics.Listen).Msg("serving metrics")
	if err := http.ListenAndServe(app.settings.Metrics.Listen, mux); err != nil {
		app.logger.Warn().Err(err).Msg("metrics listener failed")
	}
}
