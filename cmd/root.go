package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/tpik/internal/config"
	"github.com/timvw/tpik/internal/logging"
	"github.com/timvw/tpik/internal/mux"
	telem "github.com/timvw/tpik/internal/otel"
	"github.com/timvw/tpik/internal/store"
)

var (
	// Global flags.
	flagMux      string
	flagStateDir string
	flagTheme    string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "tpik",
	Short: "Interactive tmux session picker",
	Long: `tpik lists your tmux sessions and lets you switch, attach, create,
rename, close and favorite them from a single keyboard-driven screen.

Press a number to jump to a session. Favorites, recent history and session
templates are kept as plain files in the state directory so they survive
restarts and can be edited by hand.

Inside tmux, selecting a session switches the current client. Outside tmux,
it attaches. When stdout is not a terminal, the session list is printed
instead of starting the picker.

Configuration is loaded from .tpik.yaml, ~/.config/tpik/config.yaml or
environment variables. See the README for all configuration options.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPicker(cmd)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagMux, "mux", envOrDefault("TPIK_MUX", ""), "terminal multiplexer (default: tmux)")
	rootCmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", envOrDefault("TPIK_STATE_DIR", ""), "directory holding favorites, history and templates")
	rootCmd.PersistentFlags().StringVar(&flagTheme, "theme", envOrDefault("TPIK_THEME", ""), "color theme: dark, light")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", envOrDefault("TPIK_LOG_LEVEL", ""), "log level: debug, info, warn, error")
}

// newMux builds the gateway named by config.
var newMux = mux.FromName

// app bundles what every command needs.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	tel   *telem.Telemetry
	mux   mux.Multiplexer
	store *store.Store

	closeLog func() error
	closed   bool
}

// newApp loads configuration (defaults -> config file -> env vars -> flags)
// and builds the logger, telemetry, multiplexer and store.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if flagMux != "" {
		cfg.Mux = flagMux
	}
	if flagStateDir != "" {
		cfg.StateDir = flagStateDir
	}
	if flagTheme != "" {
		cfg.Theme = flagTheme
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	log, closeLog, err := logging.Open(cfg.LogPath(), cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if cfg.ConfigFile != "" {
		log.Debug("config loaded", slog.String("path", cfg.ConfigFile))
	}

	// Wire build version into OTEL service metadata
	telem.Version = Version

	// Initialize OTEL (no-op if no endpoint configured)
	tel, err := telem.Init(ctx, telem.OTELConfig{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		log.Warn("otel init failed", slog.String("error", err.Error()))
		tel = telem.Noop()
	}

	m, err := newMux(cfg.Mux, log, cfg.PreviewWindows)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      log,
		tel:      tel,
		mux:      m,
		store:    store.New(cfg.StateDir, log),
		closeLog: closeLog,
	}, nil
}

// Close flushes telemetry and closes the log file. Safe to call twice.
func (a *app) Close(ctx context.Context) {
	if a.closed {
		return
	}
	a.closed = true
	a.tel.Shutdown(ctx)
	_ = a.closeLog()
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
