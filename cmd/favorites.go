package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timvw/tpik/internal/controller"
)

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"fav"},
	Short:   "List favorite session names",
	Long: `List favorite session names in favorites order.

Favorites are kept even while no live session has the name, so a session
you recreate every morning stays a favorite.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		for _, name := range a.store.LoadFavorites().Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add <name>...",
	Short: "Mark sessions as favorites",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		favs := a.store.LoadFavorites()
		for _, arg := range args {
			name := controller.SanitizeName(arg)
			if name == "" {
				return fmt.Errorf("%q: %w", arg, controller.ErrEmptyName)
			}
			favs.Add(name)
		}
		return a.store.SaveFavorites(favs)
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:     "remove <name>...",
	Aliases: []string{"rm"},
	Short:   "Remove sessions from favorites",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		favs := a.store.LoadFavorites()
		changed := false
		for _, name := range args {
			if favs.Remove(name) {
				changed = true
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "not a favorite: %s\n", name)
			}
		}
		if !changed {
			return nil
		}
		return a.store.SaveFavorites(favs)
	},
}

func init() {
	favoritesCmd.AddCommand(favoritesAddCmd, favoritesRemoveCmd)
	rootCmd.AddCommand(favoritesCmd)
}
