package mux

import (
	"fmt"
	"log/slog"
)

// FromName creates a Multiplexer by name. An empty name selects tmux.
func FromName(name string, log *slog.Logger, previewLimit int) (Multiplexer, error) {
	switch name {
	case "", "tmux":
		return NewTmux(WithLogger(log), WithPreviewLimit(previewLimit)), nil
	case "zellij":
		return nil, fmt.Errorf("zellij support is not yet implemented")
	default:
		return nil, fmt.Errorf("unknown multiplexer: %q (supported: tmux)", name)
	}
}
