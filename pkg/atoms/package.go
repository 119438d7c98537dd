package atoms

import (
	"context"
	"fmt"

	"github.com/korora-tech/dhd/pkg/system"
)

// PackageInstall ensures one package is installed through one manager.
// The planner lowers a multi-package action to one atom per package so
// partial failures stay visible.
type PackageInstall struct {
	Manager system.Manager
	Package string
	Runner  system.Runner
}

func (a *PackageInstall) Describe() string {
	return fmt.Sprintf("install %s via %s", a.Package, a.Manager.Name)
}

func (a *PackageInstall) Check(ctx context.Context) (Status, error) {
	installed, err := a.Manager.Installed(ctx, a.Runner, a.Package)
	if err != nil {
		return StatusNeedsChange, err
	}
	if installed {
		return StatusSatisfied, nil
	}
	return StatusNeedsChange, nil
}

func (a *PackageInstall) Apply(ctx context.Context) error {
	res, err := a.Runner.Run(ctx, a.Manager.InstallCommand([]string{a.Package}))
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("%s failed to install %s: %s", a.Manager.Name, a.Package, res.Stderr)
	}
	return nil
}

// PackageRemove ensures one package is absent.
type PackageRemove struct {
	Manager system.Manager
	Package string
	Runner  system.Runner
}

func (a *PackageRemove) Describe() string {
	return fmt.Sprintf("remove %s via %s", a.Package, a.Manager.Name)
}

func (a *PackageRemove) Check(ctx context.Context) (Status, error) {
	installed, err := a.Manager.Installed(ctx, a.Runner, a.Package)
	if err != nil {
		return StatusNeedsChange, err
	}
	if installed {
		return StatusNeedsChange, nil
	}
	return StatusSatisfied, nil
}

func (a *PackageRemove) Apply(ctx context.Context) error {
	res, err := a.Runner.Run(ctx, a.Manager.RemoveCommand([]string{a.Package}))
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("%s failed to remove %s: %s", a.Manager.Name, a.Package, res.Stderr)
	}
	return nil
}
