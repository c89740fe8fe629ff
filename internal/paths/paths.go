// Package paths resolves tpik's per-user directories.
//
// Layout (XDG-style):
//
//	Config: $XDG_CONFIG_HOME/tpik/config.yaml   (override: TPIK_CONFIG_DIR)
//	State:  $XDG_CONFIG_HOME/tpik/{favorites,history,templates}  (override: TPIK_STATE_DIR)
//
// State lives next to the config by default so that the flat favorites,
// history and templates files stay hand-editable in one place.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "tpik"

// ConfigDir resolves the config directory.
// Priority: TPIK_CONFIG_DIR > $XDG_CONFIG_HOME/tpik > ~/.config/tpik.
func ConfigDir() string {
	if env := os.Getenv("TPIK_CONFIG_DIR"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", appName)
}

// StateDir resolves the directory holding favorites, history and templates.
// Priority: TPIK_STATE_DIR > ConfigDir().
func StateDir() string {
	if env := os.Getenv("TPIK_STATE_DIR"); env != "" {
		return env
	}
	return ConfigDir()
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// EnsureDir creates dir if it doesn't exist and returns it.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dir %s: %w", dir, err)
	}
	return dir, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !hasHomePrefix(path) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

func hasHomePrefix(path string) bool {
	return len(path) >= 2 && path[0] == '~' && path[1] == '/'
}
