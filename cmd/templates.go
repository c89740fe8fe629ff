package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/timvw/tpik/internal/controller"
	"github.com/timvw/tpik/internal/model"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List session templates",
	Long: `List stored session templates with the numbers the picker uses.

A template is a name, a base directory and an optional command for the
first window. Use "tpik new --template N" or the picker's t key to create
a session from one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		for i, t := range a.store.LoadTemplates() {
			line := fmt.Sprintf("%d. %s  %s", i+1, t.Name, t.Dir)
			if t.Command != "" {
				line += "  " + t.Command
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

var templatesAddCmd = &cobra.Command{
	Use:   "add <name> <dir> [command...]",
	Short: "Store a new session template",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		dir, err := controller.CheckDir(args[1])
		if err != nil {
			return err
		}
		t := model.Template{
			Name:    strings.TrimSpace(args[0]),
			Dir:     dir,
			Command: strings.Join(args[2:], " "),
		}
		if err := a.store.AppendTemplate(t); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved template %d: %s\n", len(a.store.LoadTemplates()), t.Name)
		return nil
	},
}

func init() {
	templatesCmd.AddCommand(templatesAddCmd)
	rootCmd.AddCommand(templatesCmd)
}
