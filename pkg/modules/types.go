package modules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/korora-tech/dhd/pkg/conditions"
)

// Module is a named, independently selectable unit of declared
// configuration intent. Modules are produced once by the extractor and
// are immutable afterwards.
type Module struct {
	// Name uniquely identifies the module across all sources.
	Name string `json:"name"`

	// Description is an optional human-readable summary.
	Description string `json:"description,omitempty"`

	// Tags select the module via --tag on the command line.
	Tags []string `json:"tags,omitempty"`

	// Dependencies are module names that must fully complete first.
	Dependencies []string `json:"dependencies,omitempty"`

	// Condition gates whether the module applies. Nil means always.
	Condition conditions.Condition `json:"-"`

	// Actions are applied in declaration order.
	Actions []Action `json:"-"`

	// Origin identifies the source the module was extracted from,
	// for error messages.
	Origin string `json:"origin,omitempty"`
}

// HasTag reports whether the module carries the given tag.
func (m *Module) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Kind discriminates the closed action vocabulary.
type Kind string

const (
	KindPackageInstall Kind = "package_install"
	KindPackageRemove  Kind = "package_remove"
	KindFileWrite      Kind = "file_write"
	KindCopyFile       Kind = "copy_file"
	KindDirectory      Kind = "directory"
	KindExecuteCommand Kind = "execute_command"
	KindSymlink        Kind = "symlink"
	KindGitConfig      Kind = "git_config"
	KindHTTPDownload   Kind = "http_download"
	KindSystemdService Kind = "systemd_service"
	KindSystemdSocket  Kind = "systemd_socket"
	KindServiceManage  Kind = "service_manage"
	KindUserGroup      Kind = "user_group"
	KindDconfImport    Kind = "dconf_import"
)

// Action is a high-level, user-authored desired effect. Concrete
// actions are plain structs; dispatch happens through a lowering table
// keyed by Kind, not through behavior on the action itself.
type Action interface {
	Kind() Kind
	Describe() string
}

// PackageInstall installs one or more packages through a package manager.
type PackageInstall struct {
	Names   []string `json:"names" validate:"min=1,dive,required"`
	Manager string   `json:"manager,omitempty" validate:"omitempty,oneof=apt pacman paru dnf zypper brew npm cargo flatpak"`
}

func (a PackageInstall) Kind() Kind { return KindPackageInstall }
func (a PackageInstall) Describe() string {
	return fmt.Sprintf("install packages %s", strings.Join(a.Names, ", "))
}

// PackageRemove removes packages through a package manager.
type PackageRemove struct {
	Names   []string `json:"names" validate:"min=1,dive,required"`
	Manager string   `json:"manager,omitempty" validate:"omitempty,oneof=apt pacman paru dnf zypper brew npm cargo flatpak"`
}

func (a PackageRemove) Kind() Kind { return KindPackageRemove }
func (a PackageRemove) Describe() string {
	return fmt.Sprintf("remove packages %s", strings.Join(a.Names, ", "))
}

// FileWrite writes literal content to a destination file.
type FileWrite struct {
	Destination string `json:"destination" validate:"required"`
	Content     string `json:"content"`
	Mode        string `json:"mode,omitempty" validate:"omitempty,number,len=3|len=4"`
	Privileged  bool   `json:"privileged,omitempty"`
	Backup      bool   `json:"backup,omitempty"`
}

func (a FileWrite) Kind() Kind       { return KindFileWrite }
func (a FileWrite) Describe() string { return fmt.Sprintf("write file %s", a.Destination) }

// CopyFile copies a source file to a destination.
type CopyFile struct {
	Source      string `json:"source" validate:"required"`
	Destination string `json:"destination" validate:"required"`
	Mode        string `json:"mode,omitempty" validate:"omitempty,number,len=3|len=4"`
	Privileged  bool   `json:"privileged,omitempty"`
	Backup      bool   `json:"backup,omitempty"`
}

func (a CopyFile) Kind() Kind { return KindCopyFile }
func (a CopyFile) Describe() string {
	return fmt.Sprintf("copy %s to %s", a.Source, a.Destination)
}

// Directory ensures a directory exists.
type Directory struct {
	Path       string `json:"path" validate:"required"`
	Mode       string `json:"mode,omitempty" validate:"omitempty,number,len=3|len=4"`
	Privileged bool   `json:"privileged,omitempty"`
}

func (a Directory) Kind() Kind       { return KindDirectory }
func (a Directory) Describe() string { return fmt.Sprintf("create directory %s", a.Path) }

// ExecuteCommand runs an arbitrary command. Idempotence is the
// author's responsibility; the lowered atom always reports a needed
// change.
type ExecuteCommand struct {
	Command    string   `json:"command" validate:"required"`
	Args       []string `json:"args,omitempty"`
	Cwd        string   `json:"cwd,omitempty"`
	Shell      bool     `json:"shell,omitempty"`
	Privileged bool     `json:"privileged,omitempty"`
}

func (a ExecuteCommand) Kind() Kind { return KindExecuteCommand }
func (a ExecuteCommand) Describe() string {
	if len(a.Args) == 0 {
		return fmt.Sprintf("run %s", a.Command)
	}
	return fmt.Sprintf("run %s %s", a.Command, strings.Join(a.Args, " "))
}

// Symlink links Target to Source.
type Symlink struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
	Force  bool   `json:"force,omitempty"`
}

func (a Symlink) Kind() Kind { return KindSymlink }
func (a Symlink) Describe() string {
	return fmt.Sprintf("link %s to %s", a.Target, a.Source)
}

// GitConfig sets git configuration entries in a scope.
type GitConfig struct {
	Scope   string            `json:"scope,omitempty" validate:"omitempty,oneof=global system local"`
	Entries map[string]string `json:"entries" validate:"min=1"`
}

func (a GitConfig) Kind() Kind { return KindGitConfig }
func (a GitConfig) Describe() string {
	keys := make([]string, 0, len(a.Entries))
	for k := range a.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("set git config %s", strings.Join(keys, ", "))
}

// HTTPDownload fetches a URL to a destination, optionally verifying a
// SHA-256 checksum.
type HTTPDownload struct {
	URL         string `json:"url" validate:"required,url"`
	Destination string `json:"destination" validate:"required"`
	Checksum    string `json:"checksum,omitempty" validate:"omitempty,len=64,hexadecimal"`
	Mode        string `json:"mode,omitempty" validate:"omitempty,number,len=3|len=4"`
	Privileged  bool   `json:"privileged,omitempty"`
}

func (a HTTPDownload) Kind() Kind { return KindHTTPDownload }
func (a HTTPDownload) Describe() string {
	return fmt.Sprintf("download %s to %s", a.URL, a.Destination)
}

// SystemdService declares a systemd service unit with its content and
// desired enablement state.
type SystemdService struct {
	Name    string `json:"name" validate:"required"`
	Content string `json:"content" validate:"required"`
	Scope   string `json:"scope,omitempty" validate:"omitempty,oneof=user system"`
	Enable  bool   `json:"enable,omitempty"`
	Start   bool   `json:"start,omitempty"`
}

func (a SystemdService) Kind() Kind       { return KindSystemdService }
func (a SystemdService) Describe() string { return fmt.Sprintf("systemd service %s", a.Name) }

// SystemdSocket declares a systemd socket unit.
type SystemdSocket struct {
	Name    string `json:"name" validate:"required"`
	Content string `json:"content" validate:"required"`
	Scope   string `json:"scope,omitempty" validate:"omitempty,oneof=user system"`
	Enable  bool   `json:"enable,omitempty"`
	Start   bool   `json:"start,omitempty"`
}

func (a SystemdSocket) Kind() Kind       { return KindSystemdSocket }
func (a SystemdSocket) Describe() string { return fmt.Sprintf("systemd socket %s", a.Name) }

// ServiceManage changes the running/enabled state of an existing unit.
type ServiceManage struct {
	Name    string `json:"name" validate:"required"`
	State   string `json:"state,omitempty" validate:"omitempty,oneof=started stopped restarted reloaded"`
	Enabled *bool  `json:"enabled,omitempty"`
	Scope   string `json:"scope,omitempty" validate:"omitempty,oneof=user system"`
}

func (a ServiceManage) Kind() Kind       { return KindServiceManage }
func (a ServiceManage) Describe() string { return fmt.Sprintf("manage service %s", a.Name) }

// UserGroup adds a user to supplementary groups. An empty User means
// the invoking user.
type UserGroup struct {
	User   string   `json:"user,omitempty"`
	Groups []string `json:"groups" validate:"min=1,dive,required"`
	Append bool     `json:"append,omitempty"`
}

func (a UserGroup) Kind() Kind { return KindUserGroup }
func (a UserGroup) Describe() string {
	who := a.User
	if who == "" {
		who = "current user"
	}
	return fmt.Sprintf("add %s to groups %s", who, strings.Join(a.Groups, ", "))
}

// DconfImport loads a dconf keyfile under a settings path.
type DconfImport struct {
	Source string `json:"source" validate:"required"`
	Path   string `json:"path" validate:"required,startswith=/"`
	Backup bool   `json:"backup,omitempty"`
}

func (a DconfImport) Kind() Kind       { return KindDconfImport }
func (a DconfImport) Describe() string { return fmt.Sprintf("import dconf settings at %s", a.Path) }
