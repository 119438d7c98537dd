// Package system wraps the host interfaces the engine touches:
// process execution, privilege escalation and package managers.
// Everything above this package talks to a Runner so tests can swap in
// a recording fake.
package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Result captures one finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Ok reports whether the command exited zero.
func (r Result) Ok() bool { return r.ExitCode == 0 }

// Combined returns stdout and stderr joined, for probes that match
// against whatever the command printed.
func (r Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner executes commands on the host. Run returns an error only when
// the command could not be started or was interrupted; a non-zero exit
// is reported through Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, opts RunOptions) (Result, error)
	LookPath(name string) (string, bool)
}

// RunOptions describes one command invocation.
type RunOptions struct {
	Command    string
	Args       []string
	Cwd        string
	Stdin      string
	Shell      bool
	Privileged bool
}

// ExecRunner runs commands through os/exec. Privileged commands are
// re-rooted through the host's escalation command (sudo, doas or
// run0), probed once and cached.
type ExecRunner struct {
	escalator *Escalator
}

// NewExecRunner creates a runner using the given escalator. A nil
// escalator means privileged commands fail.
func NewExecRunner(escalator *Escalator) *ExecRunner {
	return &ExecRunner{escalator: escalator}
}

func (r *ExecRunner) Run(ctx context.Context, opts RunOptions) (Result, error) {
	name := opts.Command
	args := opts.Args

	if opts.Shell {
		script := opts.Command
		if len(opts.Args) > 0 {
			script = script + " " + strings.Join(opts.Args, " ")
		}
		name = "sh"
		args = []string{"-c", script}
	}

	if opts.Privileged {
		if r.escalator == nil {
			return Result{}, fmt.Errorf("privileged command %s requested but no escalation available", name)
		}
		name, args = r.escalator.Wrap(name, args)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Cwd
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	zerolog.Ctx(ctx).Debug().
		Str("command", name).
		Strs("args", args).
		Bool("privileged", opts.Privileged).
		Msg("running command")

	err := cmd.Run()
	res := Result{
		Stdout: strings.TrimRight(stdout.String(), "\n"),
		Stderr: strings.TrimRight(stderr.String(), "\n"),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, nil
		}
		return res, fmt.Errorf("running %s: %w", name, err)
	}
	return res, nil
}

func (r *ExecRunner) LookPath(name string) (string, bool) {
	path, err := exec.LookPath(name)
	return path, err == nil
}
