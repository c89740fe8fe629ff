package model

import (
	"fmt"
	"strings"
	"time"
)

// PreviewLimit is the number of window names kept in a session preview.
const PreviewLimit = 3

// Session represents a live multiplexer session.
// Sessions are rebuilt from scratch on every refresh and never mutated.
type Session struct {
	// Name is unique among live sessions.
	Name string `json:"name"`
	// CreatedAt is when the multiplexer created the session.
	CreatedAt time.Time `json:"created_at"`
	// WindowCount is the number of windows in the session.
	WindowCount int `json:"window_count"`
	// Attached reports whether at least one client is attached.
	Attached bool `json:"attached"`
	// WindowPreview holds up to PreviewLimit window names, in window order.
	WindowPreview []string `json:"window_preview,omitempty"`
	// PreviewTruncated is true when the session has more windows than the preview shows.
	PreviewTruncated bool `json:"preview_truncated,omitempty"`
}

// Window is a single window inside a session.
type Window struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Preview builds a window preview from an ordered window list.
func Preview(windows []Window, limit int) ([]string, bool) {
	if limit <= 0 {
		limit = PreviewLimit
	}
	var names []string
	for i, w := range windows {
		if i >= limit {
			return names, true
		}
		names = append(names, w.Name)
	}
	return names, false
}

// PreviewText renders the preview as a single comma-separated line.
func (s Session) PreviewText() string {
	text := strings.Join(s.WindowPreview, ", ")
	if s.PreviewTruncated {
		text += ", …"
	}
	return text
}

// Created formats the creation time the way the picker lists it.
// A zero time renders as "unknown".
func (s Session) Created() string {
	if s.CreatedAt.IsZero() {
		return "unknown"
	}
	return s.CreatedAt.Local().Format("01/02 15:04")
}

// Template describes a reusable session recipe.
type Template struct {
	Name string `json:"name"`
	// Dir is the working directory of the first window.
	Dir string `json:"dir"`
	// Command runs in the first window. Empty opens an interactive shell.
	Command string `json:"command,omitempty"`
}

// Validate checks that the template can be stored as a single record.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	if strings.TrimSpace(t.Dir) == "" {
		return fmt.Errorf("template directory is required")
	}
	for _, field := range []string{t.Name, t.Dir, t.Command} {
		if strings.ContainsAny(field, "|\n\r") {
			return fmt.Errorf("template fields must not contain '|' or line breaks: %q", field)
		}
	}
	return nil
}

// FilterMode selects the base set of the visible list.
type FilterMode int

const (
	FilterNone FilterMode = iota
	FilterFavorites
	FilterRecent
)

func (m FilterMode) String() string {
	switch m {
	case FilterFavorites:
		return "favorites"
	case FilterRecent:
		return "recent"
	default:
		return "none"
	}
}

// ParseFilterMode parses the textual form used by CLI flags.
func ParseFilterMode(s string) (FilterMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "all":
		return FilterNone, nil
	case "favorites", "fav":
		return FilterFavorites, nil
	case "recent", "history":
		return FilterRecent, nil
	default:
		return FilterNone, fmt.Errorf("unknown filter %q (supported: none, favorites, recent)", s)
	}
}

// FilterState is the process-local filter configuration.
type FilterState struct {
	Mode   FilterMode
	Search string
}

// IsZero reports whether no filter or search is active.
func (f FilterState) IsZero() bool {
	return f.Mode == FilterNone && f.Search == ""
}

// Row is one entry of the visible list.
type Row struct {
	// Index is the 1-based display index.
	Index    int     `json:"index"`
	Session  Session `json:"session"`
	Favorite bool    `json:"favorite"`
}

// VisibleList is the filtered, indexed projection of live sessions.
type VisibleList struct {
	// Generation identifies the recompute that produced this list.
	Generation uint64 `json:"generation"`
	Rows       []Row  `json:"rows"`
}

// Len returns the number of rows.
func (v VisibleList) Len() int {
	return len(v.Rows)
}

// At returns the row with the given 1-based index.
func (v VisibleList) At(index int) (Row, bool) {
	if index < 1 || index > len(v.Rows) {
		return Row{}, false
	}
	return v.Rows[index-1], true
}
