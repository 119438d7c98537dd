// Package facts collects a point-in-time snapshot of host properties
// and answers the probes conditions are built from. The snapshot is
// taken once per run; conditions never observe mid-run changes.
package facts

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/korora-tech/dhd/pkg/system"
)

// OSFacts describes the operating system, read from /etc/os-release
// and uname.
type OSFacts struct {
	Family   string `json:"family"`
	Distro   string `json:"distro"`
	Version  string `json:"version"`
	Codename string `json:"codename"`
	Kernel   string `json:"kernel"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname"`
}

// UserFacts describes the invoking user.
type UserFacts struct {
	Name  string `json:"name"`
	Home  string `json:"home"`
	Shell string `json:"shell"`
	UID   string `json:"uid"`
}

// HardwareFacts carries coarse hardware properties.
type HardwareFacts struct {
	CPUs int `json:"cpus"`
}

// Snapshot is the full fact set for one run.
type Snapshot struct {
	OS          OSFacts       `json:"os"`
	User        UserFacts     `json:"user"`
	Hardware    HardwareFacts `json:"hardware"`
	PkgManager  string        `json:"pkg_manager,omitempty"`
	CollectedAt time.Time     `json:"collected_at"`
}

// Collect gathers the snapshot from the local host. Individual probe
// failures leave their fields empty rather than failing the run.
func Collect(ctx context.Context, runner system.Runner) Snapshot {
	log := zerolog.Ctx(ctx)
	snap := Snapshot{CollectedAt: time.Now().UTC()}

	snap.OS.Arch = runtime.GOARCH
	snap.OS.Family = runtime.GOOS
	if hostname, err := os.Hostname(); err == nil {
		snap.OS.Hostname = hostname
	}

	if release, err := parseOSRelease("/etc/os-release"); err == nil {
		snap.OS.Distro = release["ID"]
		snap.OS.Version = release["VERSION_ID"]
		snap.OS.Codename = release["VERSION_CODENAME"]
	} else {
		log.Debug().Err(err).Msg("os-release unavailable")
	}

	if res, err := runner.Run(ctx, system.RunOptions{Command: "uname", Args: []string{"-r"}}); err == nil && res.Ok() {
		snap.OS.Kernel = res.Stdout
	}

	if u, err := user.Current(); err == nil {
		snap.User.Name = u.Username
		snap.User.Home = u.HomeDir
		snap.User.UID = u.Uid
	}
	snap.User.Shell = os.Getenv("SHELL")

	snap.Hardware.CPUs = runtime.NumCPU()

	if mgr, err := system.DetectManager(runner.LookPath); err == nil {
		snap.PkgManager = mgr.Name
	}

	return snap
}

func parseOSRelease(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fields := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[key] = strings.Trim(value, `"'`)
	}
	return fields, scanner.Err()
}

// Provider answers condition probes against a snapshot and the live
// host. Property lookups are served from the snapshot's JSON form;
// command, file and environment probes hit the host directly.
type Provider struct {
	snapshot string
	runner   system.Runner
}

// NewProvider builds a Provider over the given snapshot.
func NewProvider(snap Snapshot, runner system.Runner) (*Provider, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding facts snapshot: %w", err)
	}
	return &Provider{snapshot: string(raw), runner: runner}, nil
}

// Property resolves a dotted path such as os.distro or user.home.
func (p *Provider) Property(path string) (string, error) {
	v := gjson.Get(p.snapshot, path)
	if !v.Exists() {
		return "", fmt.Errorf("unknown fact property %q", path)
	}
	return v.String(), nil
}

func (p *Provider) CommandExists(name string) bool {
	_, ok := p.runner.LookPath(name)
	return ok
}

// CommandOutput runs a probe command, returning its combined output
// and whether it exited zero.
func (p *Provider) CommandOutput(ctx context.Context, name string, args []string) (string, bool, error) {
	res, err := p.runner.Run(ctx, system.RunOptions{Command: name, Args: args})
	if err != nil {
		return "", false, err
	}
	return res.Combined(), res.Ok(), nil
}

func (p *Provider) FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (p *Provider) DirectoryExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (p *Provider) EnvVar(name string) (string, bool) {
	return os.LookupEnv(name)
}
