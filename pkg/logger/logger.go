// Package logger builds the root zerolog logger every component derives
// from. Level and format are per-instance rather than global, so tests can
// build isolated loggers against a buffer.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level  string    // debug, info, warn, error; anything else falls back to info
	Pretty bool      // human-readable console output for development
	Out    io.Writer // defaults to os.Stdout
}

// New creates the root logger. Component loggers are derived from it with
// `log.With().Str("component", ...)`, so the service tag set here ends up on
// every line the process emits.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "custodian").
		Logger()
}
