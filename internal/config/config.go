// Package config loads tpik configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (TPIK_*, OTEL_EXPORTER_OTLP_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. $TPIK_CONFIG
//  2. .tpik.yaml in current directory
//  3. ~/.config/tpik/config.yaml (see package paths)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/timvw/tpik/internal/model"
	"github.com/timvw/tpik/internal/paths"
)

// LogFileName is the log file created in the state directory when log_file is unset.
const LogFileName = "tpik.log"

// Config holds all tpik configuration.
type Config struct {
	// Multiplexer backend. Only "tmux" is implemented.
	Mux string `yaml:"mux"`

	// Picker
	Theme          string `yaml:"theme"`           // "dark" or "light"
	DefaultDir     string `yaml:"default_dir"`     // Directory for new sessions when none is given
	PreviewWindows int    `yaml:"preview_windows"` // Window names shown per session

	// Files
	StateDir string `yaml:"state_dir"` // favorites, history, templates
	LogFile  string `yaml:"log_file"`  // "off" disables logging
	LogLevel string `yaml:"log_level"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs, e.g. "Authorization=Basic abc123"

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Mux:            "tmux",
		Theme:          "dark",
		PreviewWindows: model.PreviewLimit,
		LogLevel:       "info",
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values.
func Load() (*Config, error) {
	cfg := Defaults()

	path, data, err := findConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	// Environment variables override everything
	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogPath returns the log file path, or "" when logging is off.
func (c *Config) LogPath() string {
	switch c.LogFile {
	case "off":
		return ""
	case "":
		return filepath.Join(c.StateDir, LogFileName)
	default:
		return c.LogFile
	}
}

// finish validates values and resolves directories.
func (c *Config) finish() error {
	switch c.Theme {
	case "dark", "light":
	default:
		return fmt.Errorf("invalid theme %q: want dark or light", c.Theme)
	}
	if c.PreviewWindows < 0 {
		return fmt.Errorf("invalid preview_windows %d: must not be negative", c.PreviewWindows)
	}
	if c.StateDir == "" {
		c.StateDir = paths.StateDir()
	}
	c.StateDir = paths.ExpandHome(c.StateDir)
	c.DefaultDir = paths.ExpandHome(c.DefaultDir)
	if c.LogFile != "off" {
		c.LogFile = paths.ExpandHome(c.LogFile)
	}
	return nil
}

// findConfigFile searches for a config file and returns its path and contents.
// No config file is not an error; an explicit $TPIK_CONFIG that cannot be read is.
func findConfigFile() (string, []byte, error) {
	// 1. Explicit path
	if path := os.Getenv("TPIK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", nil, fmt.Errorf("reading config file: %w", err)
		}
		return path, data, nil
	}

	// 2. Current directory
	if data, err := os.ReadFile(".tpik.yaml"); err == nil {
		return ".tpik.yaml", data, nil
	}

	// 3. XDG config dir / ~/.config
	path := paths.ConfigPath()
	if data, err := os.ReadFile(path); err == nil {
		return path, data, nil
	}

	return "", nil, nil
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.Mux != "" {
		cfg.Mux = file.Mux
	}
	if file.Theme != "" {
		cfg.Theme = file.Theme
	}
	if file.DefaultDir != "" {
		cfg.DefaultDir = file.DefaultDir
	}
	if file.PreviewWindows != 0 {
		cfg.PreviewWindows = file.PreviewWindows
	}
	if file.StateDir != "" {
		cfg.StateDir = file.StateDir
	}
	if file.LogFile != "" {
		cfg.LogFile = file.LogFile
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) error {
	if v := os.Getenv("TPIK_MUX"); v != "" {
		cfg.Mux = v
	}
	if v := os.Getenv("TPIK_THEME"); v != "" {
		cfg.Theme = v
	}
	if v := os.Getenv("TPIK_DEFAULT_DIR"); v != "" {
		cfg.DefaultDir = v
	}
	if v := os.Getenv("TPIK_PREVIEW_WINDOWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TPIK_PREVIEW_WINDOWS %q: %w", v, err)
		}
		cfg.PreviewWindows = n
	}
	if v := os.Getenv("TPIK_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("TPIK_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("TPIK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}
	return nil
}
