package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/korora-tech/dhd/pkg/config"
	"github.com/korora-tech/dhd/pkg/engine"
	"github.com/korora-tech/dhd/pkg/facts"
	"github.com/korora-tech/dhd/pkg/modules"
	"github.com/korora-tech/dhd/pkg/policy"
	"github.com/korora-tech/dhd/pkg/system"
	"github.com/korora-tech/dhd/pkg/telemetry"
)

// app bundles the pieces every command needs: loaded settings, the
// logger, and the runner commands execute through.
type app struct {
	settings config.Settings
	logger   zerolog.Logger
	runner   *system.ExecRunner
}

// newApp loads settings, builds the logger, detects privilege
// escalation, and returns a context carrying the logger.
func newApp(ctx context.Context) (*app, context.Context, error) {
	settings, path, err := config.Discover(configPath)
	if err != nil {
		return nil, ctx, err
	}
	if logLevel != "" {
		settings.Logging.Level = logLevel
	}

	logger, err := telemetry.NewLogger(settings.Logging)
	if err != nil {
		return nil, ctx, err
	}
	ctx = logger.WithContext(ctx)

	if path != "" {
		logger.Debug().Str("path", path).Msg("settings loaded")
	} else {
		logger.Debug().Msg("no settings file found, using defaults")
	}

	probe := system.NewExecRunner(nil)
	escalator, err := system.DetectEscalator(probe.LookPath)
	if err != nil {
		logger.Warn().Err(err).Msg("privileged actions will fail")
		escalator = nil
	}

	return &app{
		settings: settings,
		logger:   logger,
		runner:   system.NewExecRunner(escalator),
	}, ctx, nil
}

// loadModules discovers and extracts every module source. Extraction
// errors are joined so the user sees all of them at once.
func (a *app) loadModules() ([]*modules.Module, error) {
	srcs, err := modules.DiscoverSources(a.settings.ModuleDir)
	if err != nil {
		return nil, fmt.Errorf("discovering module sources in %s: %w", a.settings.ModuleDir, err)
	}
	if len(srcs) == 0 {
		return nil, fmt.Errorf("no %s sources found under %s", modules.SourceExt, a.settings.ModuleDir)
	}

	extracted, errs := modules.NewExtractor(modules.DefaultContext()).ExtractAll(srcs)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	mods := make([]*modules.Module, len(extracted))
	for i := range extracted {
		mods[i] = &extracted[i]
	}
	return mods, nil
}

// buildPlan runs the full planning pipeline: extract, collect facts,
// plan, and gate with policies.
func (a *app) buildPlan(ctx context.Context, sel engine.Selection) (*engine.Plan, *policy.Result, error) {
	mods, err := a.loadModules()
	if err != nil {
		return nil, nil, err
	}

	snap := facts.Collect(ctx, a.runner)
	provider, err := facts.NewProvider(snap, a.runner)
	if err != nil {
		return nil, nil, err
	}

	env := &engine.Env{Runner: a.runner, Snapshot: snap}
	plan, err := engine.NewPlanner(env).Plan(ctx, mods, sel, provider)
	if err != nil {
		return nil, nil, err
	}

	gate, err := policy.NewGate(ctx, a.logger)
	if err != nil {
		return nil, nil, err
	}
	if a.settings.PolicyDir != "" {
		if err := gate.LoadDir(ctx, a.settings.PolicyDir); err != nil {
			return nil, nil, err
		}
	}
	result, err := gate.EvaluatePlan(ctx, plan)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range result.Warnings {
		a.logger.Warn().Str("policy", w.Policy).Msg(w.Message)
	}

	return plan, result, nil
}

func selectionFlags(names, tags []string, allTags bool) engine.Selection {
	return engine.Selection{Names: names, Tags: tags, AllTags: allTags}
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport renders a run report for humans.
func printReport(w io.Writer, report *engine.Report) {
	for _, m := range report.Modules {
		if m.Status == engine.ModuleSkipped {
			reason := string(m.Reason)
			if m.Condition != "" && m.Reason == engine.SkipConditionFalse {
				reason = fmt.Sprintf("condition %s is false", m.Condition)
			}
			fmt.Fprintf(w, "  ~ %-24s skipped (%s)\n", m.Name, reason)
			continue
		}

		marker := " "
		switch m.Status {
		case engine.ModuleChanged:
			marker = "+"
		case engine.ModuleFailed:
			marker = "!"
		}
		fmt.Fprintf(w, "  %s %-24s %s\n", marker, m.Name, m.Status)
		for _, action := range m.Actions {
			for _, atom := range action.Atoms {
				if atom.State == engine.StateSatisfied {
					continue
				}
				fmt.Fprintf(w, "      %-10s %s\n", atom.State, atom.Description)
				if atom.Error != "" {
					fmt.Fprintf(w, "                 %s\n", atom.Error)
				}
			}
		}
	}

	verb := "applied"
	if report.DryRun {
		verb = "planned"
	}
	fmt.Fprintf(w, "\nRun %s: %s in %s (%d satisfied, %d changed, %d failed, %d skipped)\n",
		report.RunID, verb, report.Duration().Round(time.Millisecond),
		report.Totals.Satisfied, report.Totals.Changed, report.Totals.Failed, report.Totals.Skipped)
}
