package atoms

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/korora-tech/dhd/pkg/system"
)

// Download fetches a URL to a destination file. With a checksum the
// atom is fully idempotent: a destination matching the checksum is
// satisfied without touching the network. Without one, an existing
// destination is trusted as-is.
type Download struct {
	URL         string
	Destination string
	Checksum    string
	Mode        string
	Privileged  bool
	Runner      system.Runner
	Client      *http.Client
}

func (a *Download) Describe() string {
	return fmt.Sprintf("download %s to %s", a.URL, a.Destination)
}

func (a *Download) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

func (a *Download) Check(ctx context.Context) (Status, error) {
	current, err := os.ReadFile(a.Destination)
	if os.IsNotExist(err) {
		return StatusNeedsChange, nil
	}
	if err != nil {
		return StatusNeedsChange, fmt.Errorf("reading %s: %w", a.Destination, err)
	}
	if a.Checksum == "" {
		return StatusSatisfied, nil
	}
	sum := sha256.Sum256(current)
	if hex.EncodeToString(sum[:]) == strings.ToLower(a.Checksum) {
		return StatusSatisfied, nil
	}
	return StatusNeedsChange, nil
}

func (a *Download) Apply(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", a.URL, err)
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", a.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: unexpected status %s", a.URL, resp.Status)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading body of %s: %w", a.URL, err)
	}

	if a.Checksum != "" {
		sum := sha256.Sum256(content)
		got := hex.EncodeToString(sum[:])
		if got != strings.ToLower(a.Checksum) {
			return fmt.Errorf("checksum mismatch for %s: want %s, got %s", a.URL, strings.ToLower(a.Checksum), got)
		}
	}

	mode, err := parseMode(a.Mode, 0o644)
	if err != nil {
		return err
	}
	return placeFile(ctx, a.Runner, a.Destination, content, mode, a.Privileged)
}
