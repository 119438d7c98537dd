package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/korora-tech/dhd/pkg/conditions"
	"github.com/korora-tech/dhd/pkg/modules"
)

// Selection narrows the module set for a run. Empty Names and Tags
// select everything. A named or tagged module pulls its whole
// dependency closure into the plan.
type Selection struct {
	// Names selects modules by exact name.
	Names []string
	// Tags selects modules carrying any of the tags, or all of them
	// when AllTags is set.
	Tags    []string
	AllTags bool
}

func (s Selection) empty() bool { return len(s.Names) == 0 && len(s.Tags) == 0 }

func (s Selection) matches(m *modules.Module) bool {
	if s.empty() {
		return true
	}
	for _, name := range s.Names {
		if m.Name == name {
			return true
		}
	}
	if len(s.Tags) == 0 {
		return false
	}
	if s.AllTags {
		for _, tag := range s.Tags {
			if !m.HasTag(tag) {
				return false
			}
		}
		return true
	}
	for _, tag := range s.Tags {
		if m.HasTag(tag) {
			return true
		}
	}
	return false
}

// SkipReason explains why a module contributes no atoms to the plan.
type SkipReason string

const (
	SkipNotSelected    SkipReason = "not selected"
	SkipConditionFalse SkipReason = "condition false"
)

// PlannedModule is one module's slot in a plan. Skipped modules carry
// a reason and no node IDs.
type PlannedModule struct {
	Module  *modules.Module
	NodeIDs []int
	Skipped bool
	Reason  SkipReason
	// Condition holds the evaluated gate's description for reporting.
	Condition string
}

// Plan is the executable output of planning: the atom graph plus the
// per-module bookkeeping reports are built from.
type Plan struct {
	Graph   *Graph
	Modules []PlannedModule
}

// Planner lowers modules into plans.
type Planner struct {
	env *Env
}

// NewPlanner creates a planner that binds atoms through env.
func NewPlanner(env *Env) *Planner {
	return &Planner{env: env}
}

// Plan validates dependencies, applies the selection, evaluates
// conditions once against the facts snapshot, lowers actions and wires
// edges. Unknown dependencies and dependency cycles are fatal and
// reported before any atom exists.
func (p *Planner) Plan(ctx context.Context, mods []*modules.Module, sel Selection, facts conditions.FactProvider) (*Plan, error) {
	log := zerolog.Ctx(ctx)

	byName := make(map[string]*modules.Module, len(mods))
	for _, m := range mods {
		byName[m.Name] = m
	}

	// Dependency references and cycles are structural defects of the
	// whole module set, checked before selection.
	deps := make(map[string][]string, len(mods))
	order := make([]string, 0, len(mods))
	for _, m := range mods {
		order = append(order, m.Name)
		for _, dep := range m.Dependencies {
			if _, ok := byName[dep]; !ok {
				return nil, &UnknownDependencyError{Module: m.Name, Dependency: dep}
			}
		}
		deps[m.Name] = m.Dependencies
	}
	if cycle := moduleCycle(deps, order); cycle != nil {
		return nil, &DependencyCycleError{Cycle: cycle}
	}

	// Selection closure: selected modules plus everything they depend
	// on, transitively.
	selected := make(map[string]bool, len(mods))
	var pull func(name string)
	pull = func(name string) {
		if selected[name] {
			return
		}
		selected[name] = true
		for _, dep := range deps[name] {
			pull(dep)
		}
	}
	for _, m := range mods {
		if sel.matches(m) {
			pull(m.Name)
		}
	}

	graph := NewGraph()
	plan := &Plan{Graph: graph}
	planned := make(map[string]*PlannedModule, len(mods))

	for _, m := range mods {
		pm := PlannedModule{Module: m}
		if m.Condition != nil {
			pm.Condition = m.Condition.Describe()
		}

		switch {
		case !selected[m.Name]:
			pm.Skipped = true
			pm.Reason = SkipNotSelected

		case !conditions.Evaluate(ctx, m.Condition, facts):
			pm.Skipped = true
			pm.Reason = SkipConditionFalse
			log.Debug().Str("module", m.Name).Str("condition", pm.Condition).
				Msg("module gated off by condition")

		default:
			for _, action := range m.Actions {
				lowered, err := Lower(action, p.env)
				if err != nil {
					return nil, &LoweringError{Module: m.Name, Action: action.Describe(), Err: err}
				}
				for _, atom := range lowered {
					id := graph.AddNode(m.Name, action.Describe(), action.Kind(), atom)
					// Declaration order chains atoms within a module.
					if n := len(pm.NodeIDs); n > 0 {
						graph.AddEdge(pm.NodeIDs[n-1], id)
					}
					pm.NodeIDs = append(pm.NodeIDs, id)
				}
			}
		}

		plan.Modules = append(plan.Modules, pm)
		planned[m.Name] = &plan.Modules[len(plan.Modules)-1]
	}

	// A dependency edge runs from the dependency's last atom to the
	// dependent's first atom. Dependencies without atoms contribute
	// their own tails transitively; a condition-skipped dependency
	// does not block its dependents.
	tails := make(map[string][]int, len(mods))
	var tailsOf func(name string) []int
	tailsOf = func(name string) []int {
		if t, ok := tails[name]; ok {
			return t
		}
		tails[name] = nil // cycle-proof: planning already rejected cycles
		pm := planned[name]
		var t []int
		if !pm.Skipped && len(pm.NodeIDs) > 0 {
			t = []int{pm.NodeIDs[len(pm.NodeIDs)-1]}
		} else if !pm.Skipped {
			for _, dep := range deps[name] {
				t = append(t, tailsOf(dep)...)
			}
		}
		tails[name] = t
		return t
	}

	for _, pm := range plan.Modules {
		if pm.Skipped || len(pm.NodeIDs) == 0 {
			continue
		}
		first := pm.NodeIDs[0]
		for _, dep := range pm.Module.Dependencies {
			for _, tail := range tailsOf(dep) {
				graph.AddEdge(tail, first)
			}
		}
	}

	log.Info().
		Int("modules", len(plan.Modules)).
		Int("atoms", graph.Len()).
		Msg("plan built")
	return plan, nil
}
