package engine

import (
	"fmt"
	"sort"

	"github.com/korora-tech/dhd/pkg/atoms"
	"github.com/korora-tech/dhd/pkg/facts"
	"github.com/korora-tech/dhd/pkg/modules"
	"github.com/korora-tech/dhd/pkg/system"
)

// Env carries what lowering needs to bind atoms to the host: the
// runner atoms will execute through and the facts snapshot taken at
// planning time.
type Env struct {
	Runner   system.Runner
	Snapshot facts.Snapshot

	// detected caches the auto-detected package manager.
	detected *system.Manager
}

// manager resolves the package manager for an action: an explicit name
// must exist on PATH; an empty name falls back to host detection,
// cached for the run.
func (e *Env) manager(name string) (system.Manager, error) {
	if name != "" {
		m, ok := system.ManagerByName(name)
		if !ok {
			return system.Manager{}, fmt.Errorf("unknown package manager %q", name)
		}
		if _, found := e.Runner.LookPath(m.Bin); !found {
			return system.Manager{}, fmt.Errorf("package manager %s is not installed", name)
		}
		return m, nil
	}
	if e.detected == nil {
		m, err := system.DetectManager(e.Runner.LookPath)
		if err != nil {
			return system.Manager{}, err
		}
		e.detected = &m
	}
	return *e.detected, nil
}

type lowerFunc func(modules.Action, *Env) ([]atoms.Atom, error)

// lowerings maps each action kind to its lowering. One action may
// produce several atoms; they run in the returned order.
var lowerings = map[modules.Kind]lowerFunc{
	modules.KindPackageInstall: lowerPackageInstall,
	modules.KindPackageRemove:  lowerPackageRemove,
	modules.KindFileWrite:      lowerFileWrite,
	modules.KindCopyFile:       lowerCopyFile,
	modules.KindDirectory:      lowerDirectory,
	modules.KindExecuteCommand: lowerExecuteCommand,
	modules.KindSymlink:        lowerSymlink,
	modules.KindGitConfig:      lowerGitConfig,
	modules.KindHTTPDownload:   lowerHTTPDownload,
	modules.KindSystemdService: lowerSystemdService,
	modules.KindSystemdSocket:  lowerSystemdSocket,
	modules.KindServiceManage:  lowerServiceManage,
	modules.KindUserGroup:      lowerUserGroup,
	modules.KindDconfImport:    lowerDconfImport,
}

// Lower turns one action into its atoms.
func Lower(action modules.Action, env *Env) ([]atoms.Atom, error) {
	fn, ok := lowerings[action.Kind()]
	if !ok {
		return nil, fmt.Errorf("no lowering for action kind %q", action.Kind())
	}
	return fn(action, env)
}

func lowerPackageInstall(action modules.Action, env *Env) ([]atoms.Atom, error) {
	a := action.(modules.PackageInstall)
	mgr, err := env.manager(a.Manager)
	if err != nil {
		return nil, err
	}
	out := make([]atoms.Atom, 0, len(a.Names))
	for _, name := range a.Names {
		out = append(out, &atoms.PackageInstall{Manager: mgr, Package: name, Runner: env.Runner})
	}
	return out, nil
}

func lowerPackageRemove(action modules.Action, env *Env) ([]atoms.Atom, error) {
	a := action.(modules.PackageRemove)
	mgr, err := env.manager(a.Manager)
	if err != nil {
		return nil, err
	}
	out := make([]atoms.Atom, 0, len(a.Names))
	for _, name := range a.Names {
		out = append(out, &atoms.PackageRemove{Manager: mgr, Package: name, Runner: env.Runner})
	}
	return out, nil
}

func lowerFileWrite(action modules.Action, env *Env) ([]atoms.Atom, error) {
	a := action.(modules.FileWrite)
	return []atoms.Atom{&atoms.FileWrite{
		Destination: a.Destination,
		Content:     a.Content,
		Mode:        a.Mode,
		Privileged:  a.Privileged,
		Backup:      a.Backup,
		Runner:      env.Runner,
	}}, nil
}

func lowerCopyFile(action modules.Action, env *Env) ([]atoms.Atom, error) {
	a := action.(modules.CopyFile)
	return []atoms.Atom{&atoms.CopyFile{
		Source:      a.Source,
		Destination: a.Destination,
		Mode:        a.Mode,
		Privileged:  a.Privileged,
		Backup:      a.Backup,
		Runner:      env.Runner,
	}}, nil
}

func lowerDirectory(action modules.Action, env *Env) ([]atoms.Atom, error) {
	a := action.(modules.Directory)
	return []atoms.Atom{&atoms.Directory{
		Path:       a.Path,
		Mode:       a.Mode,
		Privileged: a.Privileged,
		Runner:     env.Runner,
	}}, nil
}

func lowerExecuteCommand(action modules.Action, env *Env) ([]atoms.Atom, error) {
	a := action.(modules.ExecuteCommand)
	return []atoms.Atom{&atoms.Command{
		Command:    a.Command,
		Args:       a.Args,
		Cwd:        a.Cwd,
		Shell:      a.Shell,
		Privileged: a.Privileged,
		Runner:     env.Runner,
	}}, nil
}

func lowerSymlink(action modules.Action, _ *Env) ([]atoms.Atom, error) {
	a := action.(modules.Symlink)
	return []atoms.Atom{&atoms.Symlink{Source: a.Source, Target: a.Target, Force: a.Force}}, nil
}

func lowerGitConfig(action modules.Action, env *Env) ([]atoms.Atom, error) {
	a := action.(modules.GitConfig)
	scope := a.Scope
	if scope == "" {
		scope = "global"
	}
	keys := make([]string, 0, len(a.Entries))
	for k := range a.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]atoms.Atom, 0, len(keys))
	for _, k := range keys {
		out = append(out, &atoms.GitConfigEntry{Scope: scope, Key: k, Value: a.Entries[k], Runner: env.Runner})
	}
	return out, nil
}

func lowerHTTPDownload(action modules.Action, env *Env) ([]atoms.Atom, error) {
	a := action.(modules.HTTPDownload)
	return []atoms.Atom{&atoms.Download{
		URL:         a.URL,
		Destination: a.Destination,
		Checksum:    a.Checksum,
		Mode:        a.Mode,
		Privileged:  a.Privileged,
		Runner:      env.Runner,
	}}, nil
}

func lowerSystemdService(action modules.Action, env *Env) ([]atoms.Atom, error) {
	a := action.(modules.SystemdService)
	out := []atoms.Atom{&atoms.UnitWrite{
		Name:    a.Name,
		Content: a.Content,
		Scope:   a.Scope,
		Home:    env.Snapshot.User.Home,
		Runner:  env.Runner,
	}}
	if a.Enable {
		out = append(out, &atoms.UnitEnable{Name: a.Name, Scope: a.Scope, Runner: env.Runner})
	}
	if a.Start {
		out = append(out, &atoms.ServiceState{Name: a.Name, State: "started", Scope: a.Scope, Runner: env.Runner})
	}
	return out, nil
}

func lowerSystemdSocket(action modules.Action, env *Env) ([]atoms.Atom, error) {
	a := action.(modules.SystemdSocket)
	out := []atoms.Atom{&atoms.UnitWrite{
		Name:    a.Name,
		Content: a.Content,
		Scope:   a.Scope,
		Home:    env.Snapshot.User.Home,
		Runner:  env.Runner,
	}}
	if a.Enable {
		out = append(out, &atoms.UnitEnable{Name: a.Name, Scope: a.Scope, Runner: env.Runner})
	}
	if a.Start {
		out = append(out, &atoms.ServiceState{Name: a.Name, State: "started", Scope: a.Scope, Runner: env.Runner})
	}
	return out, nil
}

func lowerServiceManage(action modules.Action, env *Env) ([]atoms.Atom, error) {
	a := action.(modules.ServiceManage)
	var out []atoms.Atom
	if a.Enabled != nil {
		if *a.Enabled {
			out = append(out, &atoms.UnitEnable{Name: a.Name, Scope: a.Scope, Runner: env.Runner})
		} else {
			out = append(out, &atoms.UnitDisable{Name: a.Name, Scope: a.Scope, Runner: env.Runner})
		}
	}
	if a.State != "" {
		out = append(out, &atoms.ServiceState{Name: a.Name, State: a.State, Scope: a.Scope, Runner: env.Runner})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("service_manage for %s declares neither state nor enabled", a.Name)
	}
	return out, nil
}

func lowerUserGroup(action modules.Action, env *Env) ([]atoms.Atom, error) {
	a := action.(modules.UserGroup)
	user := a.User
	if user == "" {
		user = env.Snapshot.User.Name
	}
	if user == "" {
		return nil, fmt.Errorf("user_group has no user and the invoking user is unknown")
	}
	return []atoms.Atom{&atoms.UserGroups{User: user, Groups: a.Groups, Append: a.Append, Runner: env.Runner}}, nil
}

func lowerDconfImport(action modules.Action, env *Env) ([]atoms.Atom, error) {
	a := action.(modules.DconfImport)
	return []atoms.Atom{&atoms.DconfImport{Source: a.Source, Path: a.Path, Backup: a.Backup, Runner: env.Runner}}, nil
}
