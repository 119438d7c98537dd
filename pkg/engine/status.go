package engine

// NodeState tracks one atom through execution.
type NodeState string

const (
	// StatePending means predecessors have not finished yet.
	StatePending NodeState = "pending"
	// StateReady means every predecessor converged; the node is queued.
	StateReady NodeState = "ready"
	// StateRunning means a worker holds the node.
	StateRunning NodeState = "running"
	// StateSatisfied means Check found the desired state already held.
	StateSatisfied NodeState = "satisfied"
	// StateChanged means Apply ran (or would run, under dry-run).
	StateChanged NodeState = "changed"
	// StateFailed means Check or Apply returned an error.
	StateFailed NodeState = "failed"
	// StateSkipped means a predecessor failed or was skipped.
	StateSkipped NodeState = "skipped"
)

// Terminal reports whether the state is an execution outcome.
func (s NodeState) Terminal() bool {
	switch s {
	case StateSatisfied, StateChanged, StateFailed, StateSkipped:
		return true
	}
	return false
}

// severity orders outcomes for module roll-up; higher dominates.
func (s NodeState) severity() int {
	switch s {
	case StateFailed:
		return 3
	case StateSkipped:
		return 2
	case StateChanged:
		return 1
	default:
		return 0
	}
}

// ModuleStatus summarizes a module after a run.
type ModuleStatus string

const (
	// ModuleSatisfied means every atom was already in its desired state.
	ModuleSatisfied ModuleStatus = "satisfied"
	// ModuleChanged means at least one atom converged and none failed.
	ModuleChanged ModuleStatus = "changed"
	// ModuleFailed means at least one atom failed.
	ModuleFailed ModuleStatus = "failed"
	// ModuleSkipped means the module's condition was false, it was not
	// selected, or a dependency prevented its atoms from running.
	ModuleSkipped ModuleStatus = "skipped"
)

// rollUp folds atom outcomes into a module status. The worst outcome
// wins: failed > skipped > changed > satisfied.
func rollUp(states []NodeState) ModuleStatus {
	worst := StateSatisfied
	for _, s := range states {
		if s.severity() > worst.severity() {
			worst = s
		}
	}
	switch worst {
	case StateFailed:
		return ModuleFailed
	case StateSkipped:
		return ModuleSkipped
	case StateChanged:
		return ModuleChanged
	default:
		return ModuleSatisfied
	}
}
