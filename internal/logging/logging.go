// ABOUTME: Structured logging setup shared by the client and dev server
// ABOUTME: slog text handler with level parsing and optional file redirect
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects log level and destination.
type Config struct {
	// Level is one of debug, info, warn, error. Anything else means info.
	Level string

	// File redirects output to a path instead of stderr. The TUI sets
	// this so logs never fight the terminal.
	File string
}

// ParseLevel maps a level name onto a slog level. Unknown names and the
// empty string mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger from config. The returned close function releases
// the log file, if any; call it on shutdown.
func New(cfg Config) (*slog.Logger, func() error, error) {
	level := ParseLevel(cfg.Level)

	var out io.Writer = os.Stderr
	closeFn := func() error { return nil }
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		out = f
		closeFn = f.Close
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})
	return slog.New(handler), closeFn, nil
}

// Component returns a child logger tagged with a component attribute.
// A nil parent falls back to slog.Default().
func Component(log *slog.Logger, name string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With("component", name)
}

// Discard returns a logger that drops everything. Tests use it to keep
// output quiet.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
