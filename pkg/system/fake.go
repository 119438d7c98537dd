package system

import (
	"context"
	"strings"
	"sync"
)

// FakeRunner is a Runner for tests. Responses are keyed by the joined
// command line; unmatched commands succeed with empty output. Every
// call is recorded.
type FakeRunner struct {
	mu        sync.Mutex
	Responses map[string]Result
	Errors    map[string]error
	Paths     map[string]string
	Calls     []RunOptions
}

// NewFakeRunner creates an empty fake.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Responses: make(map[string]Result),
		Errors:    make(map[string]error),
		Paths:     make(map[string]string),
	}
}

// CommandLine is the response key for a set of run options.
func CommandLine(opts RunOptions) string {
	parts := append([]string{opts.Command}, opts.Args...)
	return strings.Join(parts, " ")
}

func (f *FakeRunner) Run(_ context.Context, opts RunOptions) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, opts)
	key := CommandLine(opts)
	if err, ok := f.Errors[key]; ok {
		return Result{}, err
	}
	return f.Responses[key], nil
}

func (f *FakeRunner) LookPath(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path, ok := f.Paths[name]
	return path, ok
}

// Ran reports whether a command line was executed.
func (f *FakeRunner) Ran(commandLine string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, call := range f.Calls {
		if CommandLine(call) == commandLine {
			return true
		}
	}
	return false
}
