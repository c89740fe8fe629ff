package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/timvw/tpik/internal/controller"
)

var (
	flagNewDir      string
	flagNewTemplate int
)

var newCmd = &cobra.Command{
	Use:   "new <name> [command...]",
	Short: "Create a session and switch to it",
	Long: `Create a new detached session and then switch to it (inside tmux) or
attach to it (outside tmux).

Without --dir the session starts in the configured default directory, or
your home directory. Without a command the first window runs your shell.
Dots and colons in the name are replaced by dashes.

With --template N the Nth stored template (see "tpik templates") supplies
the directory and command; <name> then overrides the template's name and
may be omitted.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		ctl, err := controller.New(ctx, a.mux, a.store, controller.Options{
			DefaultDir: a.cfg.DefaultDir,
			Logger:     a.log,
			Telemetry:  a.tel,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", a.mux.Name(), err)
		}

		if flagNewTemplate > 0 {
			t, err := ctl.Template(flagNewTemplate)
			if err != nil {
				return describe(err)
			}
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			return describe(ctl.InstantiateTemplate(ctx, t, name))
		}

		if len(args) == 0 {
			return fmt.Errorf("a session name is required")
		}
		command := strings.Join(args[1:], " ")
		return describe(ctl.CreateSession(ctx, args[0], flagNewDir, command))
	},
}

func init() {
	newCmd.Flags().StringVarP(&flagNewDir, "dir", "d", "", "working directory for the first window")
	newCmd.Flags().IntVarP(&flagNewTemplate, "template", "t", 0, "create from the Nth stored template")
	rootCmd.AddCommand(newCmd)
}

// describe turns a controller error into the message the picker would show.
func describe(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(controller.Describe(err))
}
