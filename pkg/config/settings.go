// Package config loads engine settings from dhd.cue. Settings cover
// the engine's own knobs; the modules themselves live in .dhd sources
// under the configured directory.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"

	"github.com/korora-tech/dhd/pkg/telemetry"
)

// DefaultFile is the settings file name looked up in the working
// directory and in ~/.config/dhd/.
const DefaultFile = "dhd.cue"

//go:embed schema.cue
var schemaSource string

// Settings is the engine configuration.
type Settings struct {
	// ModuleDir is the directory searched for .dhd module sources.
	ModuleDir string `json:"moduleDir" validate:"required"`

	// Concurrency bounds the executor worker pool.
	Concurrency int `json:"concurrency" validate:"min=1,max=256"`

	// StateDB is the sqlite file run history is written to. Empty
	// disables persistence.
	StateDB string `json:"stateDB"`

	// PolicyDir holds .rego policies applied to plans before
	// execution. Empty disables the gate.
	PolicyDir string `json:"policyDir"`

	Logging telemetry.LoggingConfig `json:"logging"`
	Metrics telemetry.MetricsConfig `json:"metrics"`
	Tracing telemetry.TracingConfig `json:"tracing"`
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{
		ModuleDir:   "modules",
		Concurrency: 4,
		Logging:     telemetry.LoggingConfig{Level: "info", Format: "console", Output: "stderr"},
	}
}

// Load reads and validates a settings file. The file is unified with
// the embedded schema so unknown fields and type mismatches are CUE
// errors with positions, then range-checked with the struct validator.
func Load(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings %s: %w", path, err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if schema.Err() != nil {
		return Settings{}, fmt.Errorf("compiling settings schema: %w", schema.Err())
	}

	value := ctx.CompileBytes(raw, cue.Filename(path))
	if value.Err() != nil {
		return Settings{}, fmt.Errorf("parsing %s: %s", path, cueerrors.Details(value.Err(), nil))
	}

	unified := schema.LookupPath(cue.ParsePath("#Settings")).Unify(value)
	if err := unified.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings in %s: %s", path, cueerrors.Details(err, nil))
	}

	settings := Default()
	if err := unified.Decode(&settings); err != nil {
		return Settings{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(settings); err != nil {
		return Settings{}, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return settings, nil
}

// Discover finds the settings file: an explicit path wins, then
// ./dhd.cue, then ~/.config/dhd/dhd.cue. Missing everywhere yields
// defaults without error.
func Discover(explicit string) (Settings, string, error) {
	if explicit != "" {
		s, err := Load(explicit)
		return s, explicit, err
	}

	candidates := []string{DefaultFile}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "dhd", DefaultFile))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			s, err := Load(path)
			return s, path, err
		}
	}
	return Default(), "", nil
}
