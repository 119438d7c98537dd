package atoms

import (
	"context"
	"fmt"

	"github.com/korora-tech/dhd/pkg/system"
)

// GitConfigEntry converges one git configuration key in one scope.
// Actions with many entries lower to one atom each.
type GitConfigEntry struct {
	Scope  string
	Key    string
	Value  string
	Runner system.Runner
}

func (a *GitConfigEntry) Describe() string {
	return fmt.Sprintf("git config --%s %s", a.Scope, a.Key)
}

func (a *GitConfigEntry) Check(ctx context.Context) (Status, error) {
	res, err := a.Runner.Run(ctx, system.RunOptions{
		Command: "git",
		Args:    []string{"config", "--" + a.Scope, "--get", a.Key},
	})
	if err != nil {
		return StatusNeedsChange, err
	}
	// --get exits 1 when the key is unset.
	if res.Ok() && res.Stdout == a.Value {
		return StatusSatisfied, nil
	}
	return StatusNeedsChange, nil
}

func (a *GitConfigEntry) Apply(ctx context.Context) error {
	res, err := a.Runner.Run(ctx, system.RunOptions{
		Command:    "git",
		Args:       []string{"config", "--" + a.Scope, a.Key, a.Value},
		Privileged: a.Scope == "system",
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("setting %s: %s", a.Key, res.Stderr)
	}
	return nil
}
