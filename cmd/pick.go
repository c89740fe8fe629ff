package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/timvw/tpik/internal/controller"
	"github.com/timvw/tpik/internal/model"
	"github.com/timvw/tpik/internal/picker"
)

// runPicker runs the interactive picker, or prints the list when stdout is
// not a terminal.
func runPicker(cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return printSessions(ctx, cmd.OutOrStdout(), a, model.FilterState{}, false)
	}

	ctl, err := controller.New(ctx, a.mux, a.store, controller.Options{
		DefaultDir: a.cfg.DefaultDir,
		Logger:     a.log,
		Telemetry:  a.tel,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", a.mux.Name(), err)
	}

	p := &picker.Picker{
		Controller: ctl,
		Theme:      picker.ThemeByName(a.cfg.Theme),
	}
	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("picker: %w", err)
	}

	switch ctl.ExitReason() {
	case controller.ExitRestart:
		a.log.Info("restarting after detach")
		a.Close(ctx)
		restart()
	case controller.ExitHandoff:
		a.log.Debug("handed off", slog.String("session", ctl.HandoffTarget()))
	}
	return nil
}

// restart replaces this process with a fresh picker. On success, this
// never returns. On failure, it prints a warning and returns so the
// process exits normally.
func restart() {
	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not resolve executable path: %v\n", err)
		return
	}
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not restart tpik: %v\n", err)
	}
}
