// Package engine plans modules into an atom graph and executes it.
// The pipeline is: select -> evaluate conditions -> lower actions to
// atoms -> wire dependency edges -> run.
package engine

import (
	"fmt"
	"strings"
)

// UnknownDependencyError is returned by planning when a module depends
// on a name no extracted module declares. It is fatal: no atom runs.
type UnknownDependencyError struct {
	Module     string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("module %q depends on unknown module %q", e.Module, e.Dependency)
}

// DependencyCycleError is returned by planning when module dependencies
// form a cycle. It is fatal: no atom runs.
type DependencyCycleError struct {
	// Cycle holds the module names along one detected cycle, in order.
	Cycle []string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// AtomCheckError wraps a failure of an atom's state probe.
type AtomCheckError struct {
	Module string
	Atom   string
	Err    error
}

func (e *AtomCheckError) Error() string {
	return fmt.Sprintf("checking %s (module %s): %v", e.Atom, e.Module, e.Err)
}

func (e *AtomCheckError) Unwrap() error { return e.Err }

// AtomApplyError wraps a failure of an atom's convergence step.
type AtomApplyError struct {
	Module string
	Atom   string
	Err    error
}

func (e *AtomApplyError) Error() string {
	return fmt.Sprintf("applying %s (module %s): %v", e.Atom, e.Module, e.Err)
}

func (e *AtomApplyError) Unwrap() error { return e.Err }

// LoweringError is returned by planning when an action cannot be
// turned into atoms, for example when no package manager is available.
type LoweringError struct {
	Module string
	Action string
	Err    error
}

func (e *LoweringError) Error() string {
	return fmt.Sprintf("lowering %s (module %s): %v", e.Action, e.Module, e.Err)
}

func (e *LoweringError) Unwrap() error { return e.Err }

// PolicyViolationError is returned when the plan policy gate denies a
// plan before execution.
type PolicyViolationError struct {
	Denials []string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("plan denied by policy: %s", strings.Join(e.Denials, "; "))
}
