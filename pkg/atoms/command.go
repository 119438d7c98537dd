package atoms

import (
	"context"
	"fmt"
	"strings"

	"github.com/korora-tech/dhd/pkg/system"
)

// Command runs a user-declared command. Idempotence is the author's
// contract; Check always reports a needed change.
type Command struct {
	Command    string
	Args       []string
	Cwd        string
	Shell      bool
	Privileged bool
	Runner     system.Runner
}

func (a *Command) Describe() string {
	if len(a.Args) == 0 {
		return fmt.Sprintf("run %s", a.Command)
	}
	return fmt.Sprintf("run %s %s", a.Command, strings.Join(a.Args, " "))
}

func (a *Command) Check(ctx context.Context) (Status, error) {
	return StatusNeedsChange, nil
}

func (a *Command) Apply(ctx context.Context) error {
	res, err := a.Runner.Run(ctx, system.RunOptions{
		Command:    a.Command,
		Args:       a.Args,
		Cwd:        a.Cwd,
		Shell:      a.Shell,
		Privileged: a.Privileged,
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("command exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}
