// Package logging builds the slog logger shared by the CLI and the
// repository. Level and sink can be overridden from the environment so
// tests and cron jobs can redirect output without touching config.yaml.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment overrides.
const (
	EnvLevel = "DAYBOOK_LOG_LEVEL"
	EnvSink  = "DAYBOOK_LOG_SINK" // "file:/path/to/log"
)

// ParseLevel maps a level name to a slog.Level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// New returns a text logger writing to w. level wins over DAYBOOK_LOG_LEVEL
// when it is set. A "file:" sink in DAYBOOK_LOG_SINK replaces w; the
// returned func closes it.
func New(level string, w io.Writer) (*slog.Logger, func() error) {
	if strings.TrimSpace(level) == "" {
		level = os.Getenv(EnvLevel)
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	if sink := os.Getenv(EnvSink); strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			return slog.New(slog.NewTextHandler(f, opts)), f.Close
		}
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
	}
	return slog.New(slog.NewTextHandler(w, opts)), func() error { return nil }
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
