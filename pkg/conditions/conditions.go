// Package conditions defines the boolean expression trees that gate
// modules, and their evaluation against a fact provider.
package conditions

import (
	"fmt"
	"strings"
)

// Condition is a node in a module gate expression. Conditions are
// stateless and side-effect free; all probing happens through the
// FactProvider at evaluation time.
type Condition interface {
	Describe() string
}

// CompareOp is the comparison applied by a Property leaf.
type CompareOp string

const (
	OpEquals     CompareOp = "equals"
	OpNotEquals  CompareOp = "not_equals"
	OpContains   CompareOp = "contains"
	OpStartsWith CompareOp = "starts_with"
	OpEndsWith   CompareOp = "ends_with"
)

// AllOf is true when every child is true. Children are evaluated in
// declaration order and evaluation stops at the first false child.
type AllOf struct {
	Conditions []Condition
}

func (c AllOf) Describe() string {
	return fmt.Sprintf("all of %d conditions", len(c.Conditions))
}

// AnyOf is true when at least one child is true. Evaluation stops at
// the first true child.
type AnyOf struct {
	Conditions []Condition
}

func (c AnyOf) Describe() string {
	return fmt.Sprintf("any of %d conditions", len(c.Conditions))
}

// Not negates its child.
type Not struct {
	Condition Condition
}

func (c Not) Describe() string {
	return fmt.Sprintf("not (%s)", c.Condition.Describe())
}

// Property compares a named system property against a literal value.
type Property struct {
	Path  string
	Op    CompareOp
	Value string
}

func (c Property) Describe() string {
	op := map[CompareOp]string{
		OpEquals:     "==",
		OpNotEquals:  "!=",
		OpContains:   "contains",
		OpStartsWith: "starts with",
		OpEndsWith:   "ends with",
	}[c.Op]
	return fmt.Sprintf("property %s %s %q", c.Path, op, c.Value)
}

// FileExists is true when the path names an existing regular file.
type FileExists struct {
	Path string
}

func (c FileExists) Describe() string { return fmt.Sprintf("file exists: %s", c.Path) }

// DirectoryExists is true when the path names an existing directory.
type DirectoryExists struct {
	Path string
}

func (c DirectoryExists) Describe() string { return fmt.Sprintf("directory exists: %s", c.Path) }

// CommandExists is true when the command resolves on PATH.
type CommandExists struct {
	Command string
}

func (c CommandExists) Describe() string { return fmt.Sprintf("command exists: %s", c.Command) }

// CommandSucceeds is true when running the command exits zero.
type CommandSucceeds struct {
	Command string
	Args    []string
}

func (c CommandSucceeds) Describe() string {
	if len(c.Args) == 0 {
		return fmt.Sprintf("command succeeds: %s", c.Command)
	}
	return fmt.Sprintf("command succeeds: %s %s", c.Command, strings.Join(c.Args, " "))
}

// CommandContains is true when the command exits zero and its stdout
// contains the needle.
type CommandContains struct {
	Command string
	Args    []string
	Needle  string
}

func (c CommandContains) Describe() string {
	return fmt.Sprintf("output of %s contains %q", c.Command, c.Needle)
}

// EnvVar is true when the variable is set and, if HasValue, equals Value.
type EnvVar struct {
	Name     string
	Value    string
	HasValue bool
}

func (c EnvVar) Describe() string {
	if c.HasValue {
		return fmt.Sprintf("environment variable %s = %s", c.Name, c.Value)
	}
	return fmt.Sprintf("environment variable %s is set", c.Name)
}
