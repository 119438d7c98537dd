package atoms

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/korora-tech/dhd/pkg/system"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestDownload_FetchesAndVerifies(t *testing.T) {
	payload := []byte("#!/bin/sh\necho tool\n")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "bin", "tool")
	atom := &Download{
		URL:         server.URL + "/tool",
		Destination: dest,
		Checksum:    sha256Hex(payload),
		Mode:        "0755",
		Runner:      system.NewFakeRunner(),
	}

	status, _ := atom.Check(context.Background())
	if status != StatusNeedsChange {
		t.Errorf("Expected needs-change for a missing file, got %v", status)
	}

	if err := atom.Apply(context.Background()); err != nil {
		t.Fatalf("Expected apply to succeed, got: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("Expected file, got: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Unexpected content: %q", got)
	}
	info, _ := os.Stat(dest)
	if info.Mode().Perm() != 0o755 {
		t.Errorf("Expected mode 0755, got %o", info.Mode().Perm())
	}

	status, err = atom.Check(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if status != StatusSatisfied {
		t.Errorf("Expected satisfied after a verified download, got %v", status)
	}
}

func TestDownload_ChecksumMismatchFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("tampered"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "tool")
	atom := &Download{
		URL:         server.URL,
		Destination: dest,
		Checksum:    sha256Hex([]byte("expected")),
		Runner:      system.NewFakeRunner(),
	}

	if err := atom.Apply(context.Background()); err == nil {
		t.Fatal("Expected a checksum mismatch error")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("Expected nothing written on checksum mismatch")
	}
}

func TestDownload_ChecksumDriftTriggersRefetch(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(dest, []byte("old build"), 0o755); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	atom := &Download{
		URL:         "https://example.invalid/tool",
		Destination: dest,
		Checksum:    sha256Hex([]byte("new build")),
		Runner:      system.NewFakeRunner(),
	}
	status, err := atom.Check(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if status != StatusNeedsChange {
		t.Errorf("Expected needs-change for stale content, got %v", status)
	}
}

func TestDownload_NoChecksumTrustsExistingFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(dest, []byte("whatever"), 0o755); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	atom := &Download{URL: "https://example.invalid/tool", Destination: dest, Runner: system.NewFakeRunner()}
	status, err := atom.Check(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if status != StatusSatisfied {
		t.Errorf("Expected an existing file to satisfy without a checksum, got %v", status)
	}
}

func TestDownload_HTTPErrorFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	atom := &Download{
		URL:         server.URL,
		Destination: filepath.Join(t.TempDir(), "tool"),
		Runner:      system.NewFakeRunner(),
	}
	if err := atom.Apply(context.Background()); err == nil {
		t.Error("Expected a non-200 response to fail")
	}
}
