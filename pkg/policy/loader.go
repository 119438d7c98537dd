package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDir compiles every .rego file under dir, recursively. A missing
// directory is not an error so a fresh install needs no policy setup.
func (g *Gate) LoadDir(ctx context.Context, dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading policy directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("policy path %s is not a directory", dir)
	}

	loaded := 0
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading policy %s: %w", path, err)
		}

		name := strings.TrimSuffix(filepath.Base(path), ".rego")
		if err := g.compile(ctx, Policy{Name: name, Source: path, Rego: string(raw)}); err != nil {
			return err
		}
		loaded++
		return nil
	})
	if err != nil {
		return err
	}

	g.logger.Debug().Int("count", loaded).Str("dir", dir).Msg("policies loaded")
	return nil
}
