package engine

import (
	"time"

	"github.com/google/uuid"
)

// AtomReport records one atom's outcome.
type AtomReport struct {
	Description string        `json:"description"`
	State       NodeState     `json:"state"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// ActionReport groups the atoms one action lowered to.
type ActionReport struct {
	Description string       `json:"description"`
	Kind        string       `json:"kind"`
	Atoms       []AtomReport `json:"atoms"`
}

// ModuleReport summarizes one module.
type ModuleReport struct {
	Name      string         `json:"name"`
	Status    ModuleStatus   `json:"status"`
	Reason    SkipReason     `json:"reason,omitempty"`
	Condition string         `json:"condition,omitempty"`
	Actions   []ActionReport `json:"actions,omitempty"`
	// Error is the first atom error, for failed modules.
	Error string `json:"error,omitempty"`
}

// Report is the serializable outcome of one run.
type Report struct {
	RunID      string         `json:"run_id"`
	DryRun     bool           `json:"dry_run"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Status     ModuleStatus   `json:"status"`
	Modules    []ModuleReport `json:"modules"`
	Totals     ReportTotals   `json:"totals"`
}

// ReportTotals counts modules per outcome.
type ReportTotals struct {
	Satisfied int `json:"satisfied"`
	Changed   int `json:"changed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Failed reports whether any module failed.
func (r *Report) Failed() bool { return r.Totals.Failed > 0 }

func buildReport(plan *Plan, states []NodeState, errs []error, durations []time.Duration, dryRun bool, start, end time.Time) *Report {
	report := &Report{
		RunID:      uuid.NewString(),
		DryRun:     dryRun,
		StartedAt:  start,
		FinishedAt: end,
	}

	for _, pm := range plan.Modules {
		mr := ModuleReport{
			Name:      pm.Module.Name,
			Condition: pm.Condition,
		}

		if pm.Skipped {
			mr.Status = ModuleSkipped
			mr.Reason = pm.Reason
		} else {
			var nodeStates []NodeState
			var currentAction *ActionReport
			for _, id := range pm.NodeIDs {
				node := plan.Graph.Node(id)
				nodeStates = append(nodeStates, states[id])

				ar := AtomReport{
					Description: node.Atom.Describe(),
					State:       states[id],
					Duration:    durations[id],
				}
				if errs[id] != nil {
					ar.Error = errs[id].Error()
					if mr.Error == "" {
						mr.Error = errs[id].Error()
					}
				}

				if currentAction == nil || currentAction.Description != node.Action {
					mr.Actions = append(mr.Actions, ActionReport{
						Description: node.Action,
						Kind:        string(node.Kind),
					})
					currentAction = &mr.Actions[len(mr.Actions)-1]
				}
				currentAction.Atoms = append(currentAction.Atoms, ar)
			}
			mr.Status = rollUp(nodeStates)
		}

		switch mr.Status {
		case ModuleSatisfied:
			report.Totals.Satisfied++
		case ModuleChanged:
			report.Totals.Changed++
		case ModuleFailed:
			report.Totals.Failed++
		case ModuleSkipped:
			report.Totals.Skipped++
		}
		report.Modules = append(report.Modules, mr)
	}

	switch {
	case report.Totals.Failed > 0:
		report.Status = ModuleFailed
	case report.Totals.Changed > 0:
		report.Status = ModuleChanged
	default:
		report.Status = ModuleSatisfied
	}
	return report
}
