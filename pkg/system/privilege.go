package system

import "fmt"

// escalationCommands in probe order. The first one present on PATH
// wins.
var escalationCommands = []string{"sudo", "doas", "run0"}

// Escalator rewrites a command so it runs with elevated privileges.
type Escalator struct {
	command string
}

// DetectEscalator probes the host for a privilege-escalation command.
// It returns an error when none is installed.
func DetectEscalator(lookPath func(string) (string, bool)) (*Escalator, error) {
	for _, name := range escalationCommands {
		if _, ok := lookPath(name); ok {
			return &Escalator{command: name}, nil
		}
	}
	return nil, fmt.Errorf("no privilege escalation command found (tried %v)", escalationCommands)
}

// Command returns the escalation command name.
func (e *Escalator) Command() string { return e.command }

// Wrap prefixes the invocation with the escalation command.
func (e *Escalator) Wrap(name string, args []string) (string, []string) {
	wrapped := make([]string, 0, len(args)+1)
	wrapped = append(wrapped, name)
	wrapped = append(wrapped, args...)
	return e.command, wrapped
}
