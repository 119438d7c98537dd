package system

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed managers.yaml
var managersYAML []byte

// checkSpec describes how a manager answers "is this package installed".
type checkSpec struct {
	Bin  string   `yaml:"bin"`
	Args []string `yaml:"args"`
	// Contains, when set, requires the probe output to contain the
	// expanded needle instead of relying on the exit code.
	Contains string `yaml:"contains"`
}

// Manager is one row of the package manager table.
type Manager struct {
	Name       string    `yaml:"name"`
	Bin        string    `yaml:"bin"`
	Install    []string  `yaml:"install"`
	Remove     []string  `yaml:"remove"`
	Check      checkSpec `yaml:"check"`
	Privileged bool      `yaml:"privileged"`
}

type managerTable struct {
	Managers []Manager `yaml:"managers"`
}

var (
	managersOnce   sync.Once
	managersByName map[string]Manager
	managerOrder   []string
)

func loadManagers() {
	managersOnce.Do(func() {
		var table managerTable
		if err := yaml.Unmarshal(managersYAML, &table); err != nil {
			panic(fmt.Sprintf("embedded manager table is invalid: %v", err))
		}
		managersByName = make(map[string]Manager, len(table.Managers))
		for _, m := range table.Managers {
			managersByName[m.Name] = m
			managerOrder = append(managerOrder, m.Name)
		}
	})
}

// ManagerByName looks up a manager row by its table name.
func ManagerByName(name string) (Manager, bool) {
	loadManagers()
	m, ok := managersByName[name]
	return m, ok
}

// DetectManager returns the first system package manager found on
// PATH, in table order. Language-level managers (npm, cargo) and
// flatpak are never auto-selected; they must be named explicitly.
func DetectManager(lookPath func(string) (string, bool)) (Manager, error) {
	loadManagers()
	for _, name := range managerOrder {
		switch name {
		case "npm", "cargo", "flatpak":
			continue
		}
		m := managersByName[name]
		if _, ok := lookPath(m.Bin); ok {
			return m, nil
		}
	}
	return Manager{}, fmt.Errorf("no supported package manager found on PATH")
}

// InstallCommand builds the install invocation for the given packages.
func (m Manager) InstallCommand(pkgs []string) RunOptions {
	return RunOptions{
		Command:    m.Bin,
		Args:       append(append([]string{}, m.Install...), pkgs...),
		Privileged: m.Privileged,
	}
}

// RemoveCommand builds the remove invocation for the given packages.
func (m Manager) RemoveCommand(pkgs []string) RunOptions {
	return RunOptions{
		Command:    m.Bin,
		Args:       append(append([]string{}, m.Remove...), pkgs...),
		Privileged: m.Privileged,
	}
}

// Installed probes whether one package is present.
func (m Manager) Installed(ctx context.Context, runner Runner, pkg string) (bool, error) {
	args := make([]string, 0, len(m.Check.Args))
	for _, a := range m.Check.Args {
		args = append(args, strings.ReplaceAll(a, "{pkg}", pkg))
	}
	res, err := runner.Run(ctx, RunOptions{Command: m.Check.Bin, Args: args})
	if err != nil {
		return false, fmt.Errorf("probing %s for %s: %w", m.Name, pkg, err)
	}
	if m.Check.Contains != "" {
		needle := strings.ReplaceAll(m.Check.Contains, "{pkg}", pkg)
		return res.Ok() && strings.Contains(res.Combined(), needle), nil
	}
	return res.Ok(), nil
}
