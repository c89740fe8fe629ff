package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/timvw/tpik/internal/filter"
	"github.com/timvw/tpik/internal/model"
)

var (
	flagListFavorites bool
	flagListRecent    bool
	flagListSearch    string
	flagListJSON      bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions with their picker indices",
	Long: `List live sessions in the order the picker shows them.

The first column is the index the picker would assign, so "tpik list" and
the interactive picker agree on numbering for the same filter. A "*" marks
favorites and a "+" marks sessions with an attached client.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagListFavorites && flagListRecent {
			return fmt.Errorf("--favorites and --recent are mutually exclusive")
		}
		st := model.FilterState{Search: flagListSearch}
		switch {
		case flagListFavorites:
			st.Mode = model.FilterFavorites
		case flagListRecent:
			st.Mode = model.FilterRecent
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		return printSessions(cmd.Context(), cmd.OutOrStdout(), a, st, flagListJSON)
	},
}

func init() {
	listCmd.Flags().BoolVar(&flagListFavorites, "favorites", false, "only favorite sessions, in favorites order")
	listCmd.Flags().BoolVar(&flagListRecent, "recent", false, "only recently used sessions, most recent first")
	listCmd.Flags().StringVar(&flagListSearch, "search", "", "only sessions whose name contains this text (case-sensitive)")
	listCmd.Flags().BoolVar(&flagListJSON, "json", false, "print rows as JSON")
	rootCmd.AddCommand(listCmd)
}

// printSessions lists live sessions through the same filter as the picker.
func printSessions(ctx context.Context, w io.Writer, a *app, st model.FilterState, asJSON bool) error {
	live, err := a.mux.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	list := filter.Compute(live, a.store.LoadFavorites(), a.store.LoadHistory(), st)

	if asJSON {
		rows := list.Rows
		if rows == nil {
			rows = []model.Row{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	return renderList(w, list)
}

// renderList writes one aligned line per row.
func renderList(w io.Writer, list model.VisibleList) error {
	indexWidth := len(strconv.Itoa(list.Len()))
	nameWidth := 0
	for _, r := range list.Rows {
		if n := runewidth.StringWidth(r.Session.Name); n > nameWidth {
			nameWidth = n
		}
	}

	for _, r := range list.Rows {
		marks := []byte("  ")
		if r.Favorite {
			marks[0] = '*'
		}
		if r.Session.Attached {
			marks[1] = '+'
		}
		_, err := fmt.Fprintf(w, "%*d %s %s  %s  %3dw  %s\n",
			indexWidth, r.Index, marks,
			runewidth.FillRight(r.Session.Name, nameWidth),
			runewidth.FillRight(r.Session.Created(), 11),
			r.Session.WindowCount,
			r.Session.PreviewText())
		if err != nil {
			return err
		}
	}
	return nil
}
