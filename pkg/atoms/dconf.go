package atoms

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/korora-tech/dhd/pkg/system"
)

// DconfImport loads a keyfile into a dconf settings path. Check
// compares the current dump against the keyfile; Backup snapshots the
// current dump before importing.
type DconfImport struct {
	Source string
	Path   string
	Backup bool
	Runner system.Runner
}

func (a *DconfImport) Describe() string {
	return fmt.Sprintf("dconf import %s into %s", a.Source, a.Path)
}

func (a *DconfImport) Check(ctx context.Context) (Status, error) {
	desired, err := os.ReadFile(a.Source)
	if err != nil {
		return StatusNeedsChange, fmt.Errorf("reading keyfile %s: %w", a.Source, err)
	}
	res, err := a.Runner.Run(ctx, system.RunOptions{Command: "dconf", Args: []string{"dump", a.Path}})
	if err != nil {
		return StatusNeedsChange, err
	}
	if res.Ok() && strings.TrimRight(res.Stdout, "\n") == strings.TrimRight(string(desired), "\n") {
		return StatusSatisfied, nil
	}
	return StatusNeedsChange, nil
}

func (a *DconfImport) Apply(ctx context.Context) error {
	desired, err := os.ReadFile(a.Source)
	if err != nil {
		return fmt.Errorf("reading keyfile %s: %w", a.Source, err)
	}

	if a.Backup {
		res, err := a.Runner.Run(ctx, system.RunOptions{Command: "dconf", Args: []string{"dump", a.Path}})
		if err != nil {
			return err
		}
		if res.Ok() && res.Stdout != "" {
			backup := fmt.Sprintf("%s.bak-%s", a.Source, time.Now().Format(backupSuffixFormat))
			if err := os.MkdirAll(filepath.Dir(backup), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(backup, []byte(res.Stdout), 0o644); err != nil {
				return fmt.Errorf("writing dconf backup %s: %w", backup, err)
			}
			zerolog.Ctx(ctx).Info().Str("path", a.Path).Str("backup", backup).Msg("backed up dconf settings")
		}
	}

	res, err := a.Runner.Run(ctx, system.RunOptions{
		Command: "dconf",
		Args:    []string{"load", a.Path},
		Stdin:   string(desired),
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("dconf load %s: %s", a.Path, res.Stderr)
	}
	return nil
}
