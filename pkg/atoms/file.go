package atoms

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/korora-tech/dhd/pkg/system"
)

// backupSuffixFormat timestamps backups next to the file they shadow.
const backupSuffixFormat = "20060102-150405"

// parseMode reads a 3 or 4 digit octal string; empty means fallback.
func parseMode(mode string, fallback os.FileMode) (os.FileMode, error) {
	if mode == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid file mode %q: %w", mode, err)
	}
	return os.FileMode(n), nil
}

// backupFile copies path to path.bak-<timestamp> when it exists.
func backupFile(ctx context.Context, path string) error {
	current, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s for backup: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	backup := fmt.Sprintf("%s.bak-%s", path, time.Now().Format(backupSuffixFormat))
	if err := os.WriteFile(backup, current, info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing backup %s: %w", backup, err)
	}
	zerolog.Ctx(ctx).Info().Str("path", path).Str("backup", backup).Msg("backed up file")
	return nil
}

// placeFile installs content at dest with the given mode, escalating
// through the runner when privileged. Privileged placement stages the
// content in a temp file and moves it with install(1) so the write and
// chmod land atomically under the escalated user.
func placeFile(ctx context.Context, runner system.Runner, dest string, content []byte, mode os.FileMode, privileged bool) error {
	if !privileged {
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("creating parent of %s: %w", dest, err)
		}
		if err := os.WriteFile(dest, content, mode); err != nil {
			return fmt.Errorf("writing %s: %w", dest, err)
		}
		// WriteFile only applies the mode on creation.
		return os.Chmod(dest, mode)
	}

	tmp, err := os.CreateTemp("", "dhd-place-*")
	if err != nil {
		return fmt.Errorf("staging %s: %w", dest, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("staging %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	res, err := runner.Run(ctx, system.RunOptions{
		Command:    "install",
		Args:       []string{"-D", "-m", fmt.Sprintf("%04o", mode), tmp.Name(), dest},
		Privileged: true,
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("installing %s: %s", dest, res.Stderr)
	}
	return nil
}

// FileWrite converges a file to literal content.
type FileWrite struct {
	Destination string
	Content     string
	Mode        string
	Privileged  bool
	Backup      bool
	Runner      system.Runner
}

func (a *FileWrite) Describe() string { return fmt.Sprintf("write %s", a.Destination) }

func (a *FileWrite) Check(ctx context.Context) (Status, error) {
	mode, err := parseMode(a.Mode, 0o644)
	if err != nil {
		return StatusNeedsChange, err
	}
	current, err := os.ReadFile(a.Destination)
	if os.IsNotExist(err) {
		return StatusNeedsChange, nil
	}
	if err != nil {
		return StatusNeedsChange, fmt.Errorf("reading %s: %w", a.Destination, err)
	}
	if !bytes.Equal(current, []byte(a.Content)) {
		return StatusNeedsChange, nil
	}
	if a.Mode != "" {
		info, err := os.Stat(a.Destination)
		if err != nil {
			return StatusNeedsChange, err
		}
		if info.Mode().Perm() != mode.Perm() {
			return StatusNeedsChange, nil
		}
	}
	return StatusSatisfied, nil
}

func (a *FileWrite) Apply(ctx context.Context) error {
	mode, err := parseMode(a.Mode, 0o644)
	if err != nil {
		return err
	}
	if a.Backup {
		if err := backupFile(ctx, a.Destination); err != nil {
			return err
		}
	}
	return placeFile(ctx, a.Runner, a.Destination, []byte(a.Content), mode, a.Privileged)
}

// CopyFile converges a destination to the content of a source file.
type CopyFile struct {
	Source      string
	Destination string
	Mode        string
	Privileged  bool
	Backup      bool
	Runner      system.Runner
}

func (a *CopyFile) Describe() string {
	return fmt.Sprintf("copy %s to %s", a.Source, a.Destination)
}

func (a *CopyFile) Check(ctx context.Context) (Status, error) {
	src, err := os.ReadFile(a.Source)
	if err != nil {
		return StatusNeedsChange, fmt.Errorf("reading source %s: %w", a.Source, err)
	}
	dst, err := os.ReadFile(a.Destination)
	if os.IsNotExist(err) {
		return StatusNeedsChange, nil
	}
	if err != nil {
		return StatusNeedsChange, fmt.Errorf("reading %s: %w", a.Destination, err)
	}
	if !bytes.Equal(src, dst) {
		return StatusNeedsChange, nil
	}
	return StatusSatisfied, nil
}

func (a *CopyFile) Apply(ctx context.Context) error {
	content, err := os.ReadFile(a.Source)
	if err != nil {
		return fmt.Errorf("reading source %s: %w", a.Source, err)
	}
	mode := os.FileMode(0o644)
	if a.Mode != "" {
		if mode, err = parseMode(a.Mode, 0o644); err != nil {
			return err
		}
	} else if info, err := os.Stat(a.Source); err == nil {
		mode = info.Mode().Perm()
	}
	if a.Backup {
		if err := backupFile(ctx, a.Destination); err != nil {
			return err
		}
	}
	return placeFile(ctx, a.Runner, a.Destination, content, mode, a.Privileged)
}

// Directory ensures a directory exists with the requested mode.
type Directory struct {
	Path       string
	Mode       string
	Privileged bool
	Runner     system.Runner
}

func (a *Directory) Describe() string { return fmt.Sprintf("directory %s", a.Path) }

func (a *Directory) Check(ctx context.Context) (Status, error) {
	info, err := os.Stat(a.Path)
	if os.IsNotExist(err) {
		return StatusNeedsChange, nil
	}
	if err != nil {
		return StatusNeedsChange, err
	}
	if !info.IsDir() {
		return StatusNeedsChange, fmt.Errorf("%s exists and is not a directory", a.Path)
	}
	return StatusSatisfied, nil
}

func (a *Directory) Apply(ctx context.Context) error {
	mode, err := parseMode(a.Mode, 0o755)
	if err != nil {
		return err
	}
	if !a.Privileged {
		return os.MkdirAll(a.Path, mode)
	}
	res, err := a.Runner.Run(ctx, system.RunOptions{
		Command:    "install",
		Args:       []string{"-d", "-m", fmt.Sprintf("%04o", mode), a.Path},
		Privileged: true,
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("creating %s: %s", a.Path, res.Stderr)
	}
	return nil
}

// Symlink converges Target to a symbolic link pointing at Source.
type Symlink struct {
	Source string
	Target string
	Force  bool
}

func (a *Symlink) Describe() string { return fmt.Sprintf("symlink %s -> %s", a.Target, a.Source) }

func (a *Symlink) Check(ctx context.Context) (Status, error) {
	current, err := os.Readlink(a.Target)
	if err == nil && current == a.Source {
		return StatusSatisfied, nil
	}
	if err == nil {
		return StatusNeedsChange, nil
	}
	if _, statErr := os.Lstat(a.Target); statErr == nil {
		// Exists but is not a symlink.
		if !a.Force {
			return StatusNeedsChange, fmt.Errorf("%s exists and is not a symlink", a.Target)
		}
		return StatusNeedsChange, nil
	}
	return StatusNeedsChange, nil
}

func (a *Symlink) Apply(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(a.Target), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", a.Target, err)
	}
	if _, err := os.Lstat(a.Target); err == nil {
		current, err := os.Readlink(a.Target)
		if err == nil && current == a.Source {
			return nil
		}
		if err != nil && !a.Force {
			return fmt.Errorf("%s exists and is not a symlink", a.Target)
		}
		if err := os.Remove(a.Target); err != nil {
			return fmt.Errorf("replacing %s: %w", a.Target, err)
		}
	}
	if err := os.Symlink(a.Source, a.Target); err != nil {
		return fmt.Errorf("linking %s: %w", a.Target, err)
	}
	return nil
}
