package facts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/korora-tech/dhd/pkg/system"
)

func testSnapshot() Snapshot {
	return Snapshot{
		OS: OSFacts{
			Family:   "linux",
			Distro:   "arch",
			Version:  "rolling",
			Kernel:   "6.10.2-arch1-1",
			Arch:     "amd64",
			Hostname: "workstation",
		},
		User: UserFacts{
			Name:  "alice",
			Home:  "/home/alice",
			Shell: "/bin/zsh",
		},
		Hardware:    HardwareFacts{CPUs: 16},
		PkgManager:  "pacman",
		CollectedAt: time.Now().UTC(),
	}
}

func TestProvider_Property(t *testing.T) {
	provider, err := NewProvider(testSnapshot(), system.NewFakeRunner())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	cases := []struct {
		path string
		want string
	}{
		{"os.distro", "arch"},
		{"os.family", "linux"},
		{"user.name", "alice"},
		{"user.home", "/home/alice"},
		{"hardware.cpus", "16"},
		{"pkg_manager", "pacman"},
	}
	for _, tc := range cases {
		got, err := provider.Property(tc.path)
		if err != nil {
			t.Errorf("Property(%q): unexpected error: %v", tc.path, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Property(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestProvider_Property_UnknownPath(t *testing.T) {
	provider, err := NewProvider(testSnapshot(), system.NewFakeRunner())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := provider.Property("os.flavor"); err == nil {
		t.Error("Expected an error for an unknown fact path")
	}
}

func TestProvider_CommandExists(t *testing.T) {
	runner := system.NewFakeRunner()
	runner.Paths["git"] = "/usr/bin/git"

	provider, _ := NewProvider(testSnapshot(), runner)
	if !provider.CommandExists("git") {
		t.Error("Expected git to exist")
	}
	if provider.CommandExists("missing") {
		t.Error("Expected missing to not exist")
	}
}

func TestProvider_CommandOutput(t *testing.T) {
	runner := system.NewFakeRunner()
	runner.Responses["uname -r"] = system.Result{Stdout: "6.10.2-zen1"}
	runner.Responses["false"] = system.Result{ExitCode: 1}

	provider, _ := NewProvider(testSnapshot(), runner)

	out, ok, err := provider.CommandOutput(context.Background(), "uname", []string{"-r"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !ok || out != "6.10.2-zen1" {
		t.Errorf("Expected successful probe output, got ok=%v out=%q", ok, out)
	}

	_, ok, err = provider.CommandOutput(context.Background(), "false", nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if ok {
		t.Error("Expected non-zero exit to report ok=false")
	}
}

func TestProvider_FileAndDirectoryExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "present")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	provider, _ := NewProvider(testSnapshot(), system.NewFakeRunner())

	if !provider.FileExists(file) {
		t.Error("Expected FileExists to find the file")
	}
	if provider.FileExists(dir) {
		t.Error("Expected FileExists to be false for a directory")
	}
	if !provider.DirectoryExists(dir) {
		t.Error("Expected DirectoryExists to find the directory")
	}
	if provider.DirectoryExists(file) {
		t.Error("Expected DirectoryExists to be false for a file")
	}
	if provider.FileExists(filepath.Join(dir, "absent")) {
		t.Error("Expected FileExists to be false for a missing path")
	}
}

func TestProvider_EnvVar(t *testing.T) {
	t.Setenv("DHD_TEST_FACT", "on")
	provider, _ := NewProvider(testSnapshot(), system.NewFakeRunner())

	value, ok := provider.EnvVar("DHD_TEST_FACT")
	if !ok || value != "on" {
		t.Errorf("Expected set variable, got ok=%v value=%q", ok, value)
	}
	if _, ok := provider.EnvVar("DHD_TEST_FACT_MISSING"); ok {
		t.Error("Expected unset variable to report ok=false")
	}
}

func TestParseOSRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "os-release")
	content := `NAME="Arch Linux"
ID=arch
# comment
VERSION_ID=rolling
VERSION_CODENAME=
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	fields, err := parseOSRelease(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if fields["ID"] != "arch" {
		t.Errorf("Expected ID arch, got %q", fields["ID"])
	}
	if fields["NAME"] != "Arch Linux" {
		t.Errorf("Expected quotes stripped, got %q", fields["NAME"])
	}
	if fields["VERSION_ID"] != "rolling" {
		t.Errorf("Expected VERSION_ID rolling, got %q", fields["VERSION_ID"])
	}
}
