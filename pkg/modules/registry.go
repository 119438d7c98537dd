package modules

import (
	"fmt"
	"sort"
	"strings"
)

// constructors maps the action vocabulary's constructor names to
// builders. The extractor only recognizes calls whose name appears
// here; everything else is an unsupported construct.
var constructors = map[string]func(*argReader) Action{
	"package_install": func(r *argReader) Action {
		return PackageInstall{
			Names:   r.stringList("names"),
			Manager: r.optionalString("manager"),
		}
	},
	"package_remove": func(r *argReader) Action {
		return PackageRemove{
			Names:   r.stringList("names"),
			Manager: r.optionalString("manager"),
		}
	},
	"file_write": func(r *argReader) Action {
		return FileWrite{
			Destination: r.string("destination"),
			Content:     r.string("content"),
			Mode:        r.optionalString("mode"),
			Privileged:  r.bool("privileged"),
			Backup:      r.bool("backup"),
		}
	},
	"copy_file": func(r *argReader) Action {
		return CopyFile{
			Source:      r.string("source"),
			Destination: r.string("destination"),
			Mode:        r.optionalString("mode"),
			Privileged:  r.bool("privileged"),
			Backup:      r.bool("backup"),
		}
	},
	"directory": func(r *argReader) Action {
		return Directory{
			Path:       r.string("path"),
			Mode:       r.optionalString("mode"),
			Privileged: r.bool("privileged"),
		}
	},
	"execute_command": func(r *argReader) Action {
		return ExecuteCommand{
			Command:    r.string("command"),
			Args:       r.optionalStringList("args"),
			Cwd:        r.optionalString("cwd"),
			Shell:      r.bool("shell"),
			Privileged: r.bool("privileged"),
		}
	},
	"symlink": func(r *argReader) Action {
		return Symlink{
			Source: r.string("source"),
			Target: r.string("target"),
			Force:  r.bool("force"),
		}
	},
	"git_config": func(r *argReader) Action {
		return GitConfig{
			Scope:   r.optionalString("scope"),
			Entries: r.stringMap("entries"),
		}
	},
	"http_download": func(r *argReader) Action {
		return HTTPDownload{
			URL:         r.string("url"),
			Destination: r.string("destination"),
			Checksum:    r.optionalString("checksum"),
			Mode:        r.optionalString("mode"),
			Privileged:  r.bool("privileged"),
		}
	},
	"systemd_service": func(r *argReader) Action {
		return SystemdService{
			Name:    r.string("name"),
			Content: r.string("content"),
			Scope:   r.optionalString("scope"),
			Enable:  r.bool("enable"),
			Start:   r.bool("start"),
		}
	},
	"systemd_socket": func(r *argReader) Action {
		return SystemdSocket{
			Name:    r.string("name"),
			Content: r.string("content"),
			Scope:   r.optionalString("scope"),
			Enable:  r.bool("enable"),
		}
	},
	"service_manage": func(r *argReader) Action {
		return ServiceManage{
			Name:    r.string("name"),
			State:   r.optionalString("state"),
			Enabled: r.boolPtr("enabled"),
			Scope:   r.optionalString("scope"),
		}
	},
	"user_group": func(r *argReader) Action {
		return UserGroup{
			User:   r.optionalString("user"),
			Groups: r.stringList("groups"),
			Append: r.boolWithDefault("append", true),
		}
	},
	"dconf_import": func(r *argReader) Action {
		return DconfImport{
			Source: r.string("source"),
			Path:   r.string("path"),
			Backup: r.bool("backup"),
		}
	},
}

// argReader pulls typed values out of an action's keyword arguments
// and records every problem rather than stopping at the first, so a
// single error message covers the whole call.
type argReader struct {
	action string
	args   map[string]any
	used   map[string]bool
	probs  []string
}

func (r *argReader) string(name string) string {
	v, ok := r.take(name)
	if !ok {
		r.probs = append(r.probs, fmt.Sprintf("missing required argument %q", name))
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.mismatch(name, "string", v)
		return ""
	}
	return s
}

func (r *argReader) optionalString(name string) string {
	v, ok := r.take(name)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.mismatch(name, "string", v)
		return ""
	}
	return s
}

func (r *argReader) stringList(name string) []string {
	v, ok := r.take(name)
	if !ok {
		r.probs = append(r.probs, fmt.Sprintf("missing required argument %q", name))
		return nil
	}
	return r.asStringList(name, v)
}

func (r *argReader) optionalStringList(name string) []string {
	v, ok := r.take(name)
	if !ok {
		return nil
	}
	return r.asStringList(name, v)
}

func (r *argReader) asStringList(name string, v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case string:
		// A single string is accepted where a list is expected.
		return []string{t}
	default:
		r.mismatch(name, "list of strings", v)
		return nil
	}
}

func (r *argReader) stringMap(name string) map[string]string {
	v, ok := r.take(name)
	if !ok {
		r.probs = append(r.probs, fmt.Sprintf("missing required argument %q", name))
		return nil
	}
	m, ok := v.(map[string]string)
	if !ok {
		r.mismatch(name, "dict of strings", v)
		return nil
	}
	return m
}

func (r *argReader) bool(name string) bool {
	return r.boolWithDefault(name, false)
}

func (r *argReader) boolWithDefault(name string, def bool) bool {
	v, ok := r.take(name)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		r.mismatch(name, "bool", v)
		return def
	}
	return b
}

func (r *argReader) boolPtr(name string) *bool {
	v, ok := r.take(name)
	if !ok {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		r.mismatch(name, "bool", v)
		return nil
	}
	return &b
}

func (r *argReader) take(name string) (any, bool) {
	r.used[name] = true
	v, ok := r.args[name]
	return v, ok
}

func (r *argReader) mismatch(name, want string, got any) {
	r.probs = append(r.probs, fmt.Sprintf("argument %q must be a %s, got %T", name, want, got))
}

// finish reports accumulated problems plus any arguments the
// constructor never asked for.
func (r *argReader) finish() error {
	var unknown []string
	for name := range r.args {
		if !r.used[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	probs := r.probs
	for _, name := range unknown {
		probs = append(probs, fmt.Sprintf("unknown argument %q", name))
	}
	if len(probs) == 0 {
		return nil
	}
	return fmt.Errorf("%s(...): %s", r.action, strings.Join(probs, "; "))
}
