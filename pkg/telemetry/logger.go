// Package telemetry wires logging, metrics and tracing for the engine.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string `json:"level"`
	// Format is console or json.
	Format string `json:"format"`
	// Output is stdout, stderr or a file path.
	Output string `json:"output"`
}

// NewLogger builds the root logger. Component loggers hang off it via
// With().Str("component", ...).
func NewLogger(cfg LoggingConfig) (zerolog.Logger, error) {
	var writer io.Writer
	switch cfg.Output {
	case "", "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("opening log output: %w", err)
		}
		writer = file
	}

	if cfg.Format != "json" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(levelOrDefault(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger(), nil
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}
