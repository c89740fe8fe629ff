// Package filter computes the visible session list from live sessions and
// persisted user state. It is pure: no I/O, no clock, no map iteration in
// the output path, so equal inputs always produce the same rows.
package filter

import (
	"strings"

	"github.com/timvw/tpik/internal/model"
)

// Compute returns the ordered, 1-based indexed rows for st.
//
//   - FilterNone keeps the multiplexer's order.
//   - FilterFavorites follows favorites order.
//   - FilterRecent follows history order (most recent first).
//
// A non-empty search keeps names containing it (case-sensitive).
// The returned list has Generation 0; the caller stamps it.
func Compute(live []model.Session, favs model.FavoriteSet, history []string, st model.FilterState) model.VisibleList {
	byName := make(map[string]model.Session, len(live))
	for _, s := range live {
		byName[s.Name] = s
	}

	var base []model.Session
	switch st.Mode {
	case model.FilterFavorites:
		base = pick(byName, favs.Names())
	case model.FilterRecent:
		base = pick(byName, history)
	default:
		base = live
	}

	rows := make([]model.Row, 0, len(base))
	for _, s := range base {
		if st.Search != "" && !strings.Contains(s.Name, st.Search) {
			continue
		}
		rows = append(rows, model.Row{
			Index:    len(rows) + 1,
			Session:  s,
			Favorite: favs.Has(s.Name),
		})
	}
	return model.VisibleList{Rows: rows}
}

// pick returns the live sessions named in order, skipping unknown and repeated names.
func pick(byName map[string]model.Session, order []string) []model.Session {
	seen := make(map[string]bool, len(order))
	var out []model.Session
	for _, name := range order {
		s, ok := byName[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, s)
	}
	return out
}
