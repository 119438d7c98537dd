package atoms

import (
	"context"
	"fmt"
	"strings"

	"github.com/korora-tech/dhd/pkg/system"
)

// UserGroups ensures a user belongs to the given supplementary groups.
type UserGroups struct {
	User   string
	Groups []string
	Append bool
	Runner system.Runner
}

func (a *UserGroups) Describe() string {
	return fmt.Sprintf("groups of %s include %s", a.User, strings.Join(a.Groups, ", "))
}

func (a *UserGroups) Check(ctx context.Context) (Status, error) {
	res, err := a.Runner.Run(ctx, system.RunOptions{Command: "id", Args: []string{"-nG", a.User}})
	if err != nil {
		return StatusNeedsChange, err
	}
	if !res.Ok() {
		return StatusNeedsChange, fmt.Errorf("querying groups of %s: %s", a.User, res.Stderr)
	}
	current := make(map[string]bool)
	for _, g := range strings.Fields(res.Stdout) {
		current[g] = true
	}
	for _, g := range a.Groups {
		if !current[g] {
			return StatusNeedsChange, nil
		}
	}
	return StatusSatisfied, nil
}

func (a *UserGroups) Apply(ctx context.Context) error {
	args := []string{}
	if a.Append {
		args = append(args, "-aG")
	} else {
		args = append(args, "-G")
	}
	args = append(args, strings.Join(a.Groups, ","), a.User)

	res, err := a.Runner.Run(ctx, system.RunOptions{
		Command:    "usermod",
		Args:       args,
		Privileged: true,
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("usermod %s: %s", a.User, res.Stderr)
	}
	return nil
}
