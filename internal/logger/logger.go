// Package logger builds the zerolog logger shared by the CLI, the relay and
// the HTTP API.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourorg/apitester/internal/config"
)

// New returns a logger writing to stderr at the configured level. Pretty
// output uses the console writer.
func New(cfg config.LogConfig) zerolog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Nop discards everything; used by tests and library callers without a logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
