package system

import (
	"context"
	"strings"
	"testing"
)

func TestDetectEscalator_ProbeOrder(t *testing.T) {
	lookPath := func(paths ...string) func(string) (string, bool) {
		return func(name string) (string, bool) {
			for _, p := range paths {
				if p == name {
					return "/usr/bin/" + name, true
				}
			}
			return "", false
		}
	}

	esc, err := DetectEscalator(lookPath("doas", "sudo"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if esc.Command() != "sudo" {
		t.Errorf("Expected sudo to win over doas, got %q", esc.Command())
	}

	esc, err = DetectEscalator(lookPath("run0"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if esc.Command() != "run0" {
		t.Errorf("Expected run0 fallback, got %q", esc.Command())
	}

	if _, err := DetectEscalator(lookPath()); err == nil {
		t.Error("Expected an error when no escalation command exists")
	}
}

func TestEscalator_Wrap(t *testing.T) {
	esc := &Escalator{command: "doas"}
	name, args := esc.Wrap("systemctl", []string{"restart", "sshd"})
	if name != "doas" {
		t.Errorf("Expected doas, got %q", name)
	}
	if len(args) != 3 || args[0] != "systemctl" || args[2] != "sshd" {
		t.Errorf("Unexpected wrapped args: %v", args)
	}
}

func TestManagerByName_TableLoads(t *testing.T) {
	for _, name := range []string{"apt", "pacman", "paru", "dnf", "zypper", "brew", "npm", "cargo", "flatpak"} {
		m, ok := ManagerByName(name)
		if !ok {
			t.Fatalf("Expected manager %q in the table", name)
		}
		if m.Bin == "" || len(m.Install) == 0 || len(m.Remove) == 0 {
			t.Errorf("Manager %q is missing commands: %+v", name, m)
		}
	}
	if _, ok := ManagerByName("pip"); ok {
		t.Error("Expected pip to be absent from the table")
	}
}

func TestDetectManager_SkipsLanguageManagers(t *testing.T) {
	lookPath := func(name string) (string, bool) {
		if name == "npm" || name == "pacman" {
			return "/usr/bin/" + name, true
		}
		return "", false
	}

	m, err := DetectManager(lookPath)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if m.Name != "pacman" {
		t.Errorf("Expected pacman, got %q", m.Name)
	}

	onlyNpm := func(name string) (string, bool) {
		if name == "npm" {
			return "/usr/bin/npm", true
		}
		return "", false
	}
	if _, err := DetectManager(onlyNpm); err == nil {
		t.Error("Expected detection to fail when only npm is present")
	}
}

func TestManager_InstallCommand(t *testing.T) {
	m, _ := ManagerByName("apt")
	opts := m.InstallCommand([]string{"git", "curl"})
	if opts.Command != "apt-get" {
		t.Errorf("Expected apt-get, got %q", opts.Command)
	}
	line := CommandLine(opts)
	if line != "apt-get install -y git curl" {
		t.Errorf("Unexpected install command line: %q", line)
	}
	if !opts.Privileged {
		t.Error("Expected apt installs to be privileged")
	}

	m, _ = ManagerByName("brew")
	if m.InstallCommand([]string{"jq"}).Privileged {
		t.Error("Expected brew installs to be unprivileged")
	}
}

func TestManager_Installed_ExitCodeProbe(t *testing.T) {
	m, _ := ManagerByName("pacman")
	runner := NewFakeRunner()
	runner.Responses["pacman -Qi git"] = Result{ExitCode: 0}
	runner.Responses["pacman -Qi missing"] = Result{ExitCode: 1}

	got, err := m.Installed(context.Background(), runner, "git")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !got {
		t.Error("Expected git to be reported installed")
	}

	got, err = m.Installed(context.Background(), runner, "missing")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got {
		t.Error("Expected missing to be reported not installed")
	}
}

func TestManager_Installed_ContainsProbe(t *testing.T) {
	m, _ := ManagerByName("cargo")
	runner := NewFakeRunner()
	runner.Responses["cargo install --list"] = Result{Stdout: "ripgrep v14.1.0:\n    rg"}

	got, err := m.Installed(context.Background(), runner, "ripgrep")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !got {
		t.Error("Expected ripgrep to be reported installed via output probe")
	}

	got, _ = m.Installed(context.Background(), runner, "fd-find")
	if got {
		t.Error("Expected fd-find to be reported not installed")
	}
}

func TestResult_Combined(t *testing.T) {
	r := Result{Stdout: "out", Stderr: "err"}
	if got := r.Combined(); !strings.Contains(got, "out") || !strings.Contains(got, "err") {
		t.Errorf("Expected combined output to carry both streams, got %q", got)
	}
	if got := (Result{Stdout: "only"}).Combined(); got != "only" {
		t.Errorf("Expected stdout passthrough, got %q", got)
	}
}
