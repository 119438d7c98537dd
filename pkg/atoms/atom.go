// Package atoms holds the smallest executable units of change. An
// atom probes current state with Check and converges it with Apply.
// Atoms are produced by the planner's lowering tables and consumed
// exactly once by the executor.
package atoms

import "context"

// Status is the outcome of a Check probe.
type Status int

const (
	// StatusSatisfied means the desired state already holds; Apply
	// will be skipped.
	StatusSatisfied Status = iota
	// StatusNeedsChange means Apply must run to converge.
	StatusNeedsChange
)

func (s Status) String() string {
	if s == StatusSatisfied {
		return "satisfied"
	}
	return "needs-change"
}

// Atom is one idempotent unit of system change. Check never mutates
// anything. Apply converges the host to the desired state and must be
// safe to call when the state already holds.
type Atom interface {
	Check(ctx context.Context) (Status, error)
	Apply(ctx context.Context) error
	Describe() string
}
