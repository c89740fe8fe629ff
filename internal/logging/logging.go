// Package logging sets up tpik's structured logger.
//
// The picker owns the terminal, so logs go to a file in the state
// directory rather than stderr.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/timvw/tpik/internal/paths"
)

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New returns a JSON logger writing to w at the given level.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// Open creates a logger appending to path. An empty path or "off" discards logs.
// The returned close function is always non-nil.
func Open(path, level string) (*slog.Logger, func() error, error) {
	if path == "" || path == "off" {
		return slog.New(slog.DiscardHandler), func() error { return nil }, nil
	}
	if _, err := paths.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return New(f, level), f.Close, nil
}
