package conditions

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// FactProvider answers condition leaf queries about system state. It
// must be safe to call repeatedly; the evaluator performs no caching.
type FactProvider interface {
	// Property returns the value of a dotted property path such as
	// "os.distro". An unknown path is an error.
	Property(path string) (string, error)

	// CommandExists reports whether the command resolves on PATH.
	CommandExists(name string) bool

	// CommandOutput runs the command and returns its stdout and
	// whether it exited zero.
	CommandOutput(ctx context.Context, name string, args []string) (string, bool, error)

	// FileExists reports whether path is an existing regular file.
	FileExists(path string) bool

	// DirectoryExists reports whether path is an existing directory.
	DirectoryExists(path string) bool

	// EnvVar looks up an environment variable.
	EnvVar(name string) (string, bool)
}

// Evaluate resolves a condition tree against the provider. A nil
// condition is true. Combinators short-circuit in declaration order.
// A leaf whose probe fails evaluates to false rather than aborting:
// an unqueryable fact conservatively skips the gated module.
func Evaluate(ctx context.Context, cond Condition, facts FactProvider) bool {
	if cond == nil {
		return true
	}
	log := zerolog.Ctx(ctx)

	switch c := cond.(type) {
	case AllOf:
		for _, child := range c.Conditions {
			if !Evaluate(ctx, child, facts) {
				return false
			}
		}
		return true

	case AnyOf:
		for _, child := range c.Conditions {
			if Evaluate(ctx, child, facts) {
				return true
			}
		}
		return false

	case Not:
		return !Evaluate(ctx, c.Condition, facts)

	case Property:
		value, err := facts.Property(c.Path)
		if err != nil {
			log.Debug().Err(err).Str("property", c.Path).
				Msg("Property lookup failed, condition degrades to false")
			return false
		}
		switch c.Op {
		case OpEquals:
			return value == c.Value
		case OpNotEquals:
			return value != c.Value
		case OpContains:
			return strings.Contains(value, c.Value)
		case OpStartsWith:
			return strings.HasPrefix(value, c.Value)
		case OpEndsWith:
			return strings.HasSuffix(value, c.Value)
		default:
			return false
		}

	case FileExists:
		return facts.FileExists(c.Path)

	case DirectoryExists:
		return facts.DirectoryExists(c.Path)

	case CommandExists:
		return facts.CommandExists(c.Command)

	case CommandSucceeds:
		_, ok, err := facts.CommandOutput(ctx, c.Command, c.Args)
		if err != nil {
			log.Debug().Err(err).Str("command", c.Command).
				Msg("Command probe failed, condition degrades to false")
			return false
		}
		return ok

	case CommandContains:
		out, ok, err := facts.CommandOutput(ctx, c.Command, c.Args)
		if err != nil {
			log.Debug().Err(err).Str("command", c.Command).
				Msg("Command probe failed, condition degrades to false")
			return false
		}
		return ok && strings.Contains(out, c.Needle)

	case EnvVar:
		value, set := facts.EnvVar(c.Name)
		if !set {
			return false
		}
		if c.HasValue {
			return value == c.Value
		}
		return true

	default:
		log.Warn().Str("condition", cond.Describe()).
			Msg("Unknown condition type, degrading to false")
		return false
	}
}
