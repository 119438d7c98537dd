package atoms

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/korora-tech/dhd/pkg/system"
)

const (
	systemUnitDir = "/etc/systemd/system"
	userUnitDir   = ".config/systemd/user"
)

// systemctlArgs prefixes --user for user-scope units.
func systemctlArgs(scope string, args ...string) []string {
	if scope == "user" {
		return append([]string{"--user"}, args...)
	}
	return args
}

// UnitWrite places a systemd unit file and reloads the daemon when the
// content changed.
type UnitWrite struct {
	Name    string
	Content string
	Scope   string
	Home    string
	Runner  system.Runner
}

func (a *UnitWrite) unitPath() string {
	if a.Scope == "user" {
		return filepath.Join(a.Home, userUnitDir, a.Name)
	}
	return filepath.Join(systemUnitDir, a.Name)
}

func (a *UnitWrite) Describe() string { return fmt.Sprintf("unit file %s", a.unitPath()) }

func (a *UnitWrite) Check(ctx context.Context) (Status, error) {
	write := &FileWrite{Destination: a.unitPath(), Content: a.Content, Mode: "0644"}
	return write.Check(ctx)
}

func (a *UnitWrite) Apply(ctx context.Context) error {
	write := &FileWrite{
		Destination: a.unitPath(),
		Content:     a.Content,
		Mode:        "0644",
		Privileged:  a.Scope != "user",
		Runner:      a.Runner,
	}
	if err := write.Apply(ctx); err != nil {
		return err
	}
	res, err := a.Runner.Run(ctx, system.RunOptions{
		Command:    "systemctl",
		Args:       systemctlArgs(a.Scope, "daemon-reload"),
		Privileged: a.Scope != "user",
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("daemon-reload failed: %s", res.Stderr)
	}
	return nil
}

// UnitEnable ensures a unit is enabled.
type UnitEnable struct {
	Name   string
	Scope  string
	Runner system.Runner
}

func (a *UnitEnable) Describe() string { return fmt.Sprintf("enable %s", a.Name) }

func (a *UnitEnable) Check(ctx context.Context) (Status, error) {
	res, err := a.Runner.Run(ctx, system.RunOptions{
		Command: "systemctl",
		Args:    systemctlArgs(a.Scope, "is-enabled", a.Name),
	})
	if err != nil {
		return StatusNeedsChange, err
	}
	if res.Ok() && res.Stdout == "enabled" {
		return StatusSatisfied, nil
	}
	return StatusNeedsChange, nil
}

func (a *UnitEnable) Apply(ctx context.Context) error {
	res, err := a.Runner.Run(ctx, system.RunOptions{
		Command:    "systemctl",
		Args:       systemctlArgs(a.Scope, "enable", a.Name),
		Privileged: a.Scope != "user",
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("enabling %s: %s", a.Name, res.Stderr)
	}
	return nil
}

// UnitDisable ensures a unit is disabled.
type UnitDisable struct {
	Name   string
	Scope  string
	Runner system.Runner
}

func (a *UnitDisable) Describe() string { return fmt.Sprintf("disable %s", a.Name) }

func (a *UnitDisable) Check(ctx context.Context) (Status, error) {
	res, err := a.Runner.Run(ctx, system.RunOptions{
		Command: "systemctl",
		Args:    systemctlArgs(a.Scope, "is-enabled", a.Name),
	})
	if err != nil {
		return StatusNeedsChange, err
	}
	if !res.Ok() || res.Stdout == "disabled" {
		return StatusSatisfied, nil
	}
	return StatusNeedsChange, nil
}

func (a *UnitDisable) Apply(ctx context.Context) error {
	res, err := a.Runner.Run(ctx, system.RunOptions{
		Command:    "systemctl",
		Args:       systemctlArgs(a.Scope, "disable", a.Name),
		Privileged: a.Scope != "user",
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("disabling %s: %s", a.Name, res.Stderr)
	}
	return nil
}

// ServiceState converges a unit's running state: started, stopped,
// restarted or reloaded. The restarted and reloaded states always
// report a needed change.
type ServiceState struct {
	Name   string
	State  string
	Scope  string
	Runner system.Runner
}

func (a *ServiceState) Describe() string { return fmt.Sprintf("%s %s", a.State, a.Name) }

func (a *ServiceState) Check(ctx context.Context) (Status, error) {
	switch a.State {
	case "restarted", "reloaded":
		return StatusNeedsChange, nil
	}
	res, err := a.Runner.Run(ctx, system.RunOptions{
		Command: "systemctl",
		Args:    systemctlArgs(a.Scope, "is-active", a.Name),
	})
	if err != nil {
		return StatusNeedsChange, err
	}
	active := res.Ok() && res.Stdout == "active"
	switch a.State {
	case "started":
		if active {
			return StatusSatisfied, nil
		}
	case "stopped":
		if !active {
			return StatusSatisfied, nil
		}
	}
	return StatusNeedsChange, nil
}

func (a *ServiceState) Apply(ctx context.Context) error {
	verb := map[string]string{
		"started":   "start",
		"stopped":   "stop",
		"restarted": "restart",
		"reloaded":  "reload",
	}[a.State]
	if verb == "" {
		return fmt.Errorf("unknown service state %q", a.State)
	}
	res, err := a.Runner.Run(ctx, system.RunOptions{
		Command:    "systemctl",
		Args:       systemctlArgs(a.Scope, verb, a.Name),
		Privileged: a.Scope != "user",
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("%s %s: %s", verb, a.Name, res.Stderr)
	}
	return nil
}
