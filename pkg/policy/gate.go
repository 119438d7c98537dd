// Package policy gates plans with Rego rules before execution. Each
// policy is a Rego module whose deny rules block the run and whose
// warn rules are surfaced without blocking it.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/korora-tech/dhd/pkg/engine"
)

// Policy is one Rego module with its origin for error messages.
type Policy struct {
	Name   string
	Source string
	Rego   string
}

// Violation is one deny result, attributed to its policy.
type Violation struct {
	Policy  string `json:"policy"`
	Message string `json:"message"`
}

// Result is the outcome of evaluating every loaded policy against a
// plan.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
	Warnings   []Violation `json:"warnings,omitempty"`
}

// Allowed reports whether the plan may execute.
func (r *Result) Allowed() bool { return len(r.Violations) == 0 }

// Err converts denials into the error the engine propagates, or nil
// when the plan is allowed.
func (r *Result) Err() error {
	if r.Allowed() {
		return nil
	}
	denials := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		denials = append(denials, fmt.Sprintf("%s: %s", v.Policy, v.Message))
	}
	return &engine.PolicyViolationError{Denials: denials}
}

type compiledPolicy struct {
	policy Policy
	query  rego.PreparedEvalQuery
}

// Gate holds compiled policies and evaluates plans against them.
type Gate struct {
	logger   zerolog.Logger
	policies []compiledPolicy
}

// NewGate compiles the built-in policies. Additional policies come
// from LoadDir.
func NewGate(ctx context.Context, logger zerolog.Logger) (*Gate, error) {
	g := &Gate{logger: logger.With().Str("component", "policy").Logger()}
	for _, p := range builtinPolicies {
		if err := g.compile(ctx, p); err != nil {
			return nil, fmt.Errorf("compiling built-in policy %s: %w", p.Name, err)
		}
	}
	return g, nil
}

// Len returns the number of loaded policies.
func (g *Gate) Len() int { return len(g.policies) }

// Add compiles and registers one policy.
func (g *Gate) Add(ctx context.Context, p Policy) error {
	return g.compile(ctx, p)
}

func (g *Gate) compile(ctx context.Context, p Policy) error {
	module, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return fmt.Errorf("parsing policy %s: %w", p.Name, err)
	}
	pkg := strings.TrimPrefix(module.Package.Path.String(), "data.")

	query, err := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(fmt.Sprintf("data.%s", pkg)),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("preparing policy %s: %w", p.Name, err)
	}

	g.policies = append(g.policies, compiledPolicy{policy: p, query: query})
	g.logger.Debug().Str("policy", p.Name).Str("package", pkg).Msg("policy compiled")
	return nil
}

// EvaluatePlan runs every policy against the plan. Evaluation errors
// fail closed: a policy that cannot be evaluated denies the plan.
func (g *Gate) EvaluatePlan(ctx context.Context, plan *engine.Plan) (*Result, error) {
	input, err := planInput(plan)
	if err != nil {
		return nil, fmt.Errorf("building policy input: %w", err)
	}

	result := &Result{}
	for _, cp := range g.policies {
		denials, warnings, err := g.evaluate(ctx, cp, input)
		if err != nil {
			return nil, fmt.Errorf("evaluating policy %s: %w", cp.policy.Name, err)
		}
		for _, msg := range denials {
			result.Violations = append(result.Violations, Violation{Policy: cp.policy.Name, Message: msg})
		}
		for _, msg := range warnings {
			result.Warnings = append(result.Warnings, Violation{Policy: cp.policy.Name, Message: msg})
		}
	}

	g.logger.Debug().
		Int("policies", len(g.policies)).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Msg("plan policy evaluation finished")
	return result, nil
}

func (g *Gate) evaluate(ctx context.Context, cp compiledPolicy, input any) (denials, warnings []string, err error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, nil, err
	}

	for _, r := range results {
		for _, expr := range r.Expressions {
			doc, ok := expr.Value.(map[string]any)
			if !ok {
				continue
			}
			denials = append(denials, messagesOf(doc["deny"])...)
			warnings = append(warnings, messagesOf(doc["warn"])...)
		}
	}
	return denials, warnings, nil
}

func messagesOf(value any) []string {
	set, ok := value.([]any)
	if !ok {
		return nil
	}
	msgs := make([]string, 0, len(set))
	for _, v := range set {
		switch m := v.(type) {
		case string:
			msgs = append(msgs, m)
		default:
			msgs = append(msgs, fmt.Sprintf("%v", v))
		}
	}
	return msgs
}

// moduleInput is the per-module document policies match against. The
// action spec is the action's own JSON shape, so rules can reach
// fields like spec.privileged directly.
type moduleInput struct {
	Name    string        `json:"name"`
	Tags    []string      `json:"tags,omitempty"`
	Skipped bool          `json:"skipped"`
	Actions []actionInput `json:"actions"`
}

type actionInput struct {
	Kind     string          `json:"kind"`
	Describe string          `json:"describe"`
	Spec     json.RawMessage `json:"spec"`
}

func planInput(plan *engine.Plan) (map[string]any, error) {
	mods := make([]moduleInput, 0, len(plan.Modules))
	for _, pm := range plan.Modules {
		mi := moduleInput{
			Name:    pm.Module.Name,
			Tags:    pm.Module.Tags,
			Skipped: pm.Skipped,
			Actions: []actionInput{},
		}
		for _, action := range pm.Module.Actions {
			spec, err := json.Marshal(action)
			if err != nil {
				return nil, fmt.Errorf("encoding action in module %s: %w", pm.Module.Name, err)
			}
			mi.Actions = append(mi.Actions, actionInput{
				Kind:     string(action.Kind()),
				Describe: action.Describe(),
				Spec:     spec,
			})
		}
		mods = append(mods, mi)
	}

	// Round-trip through JSON so rego sees plain maps.
	blob, err := json.Marshal(map[string]any{"modules": mods})
	if err != nil {
		return nil, err
	}
	var input map[string]any
	if err := json.Unmarshal(blob, &input); err != nil {
		return nil, err
	}
	return input, nil
}
