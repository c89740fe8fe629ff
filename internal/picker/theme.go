package picker

import "github.com/charmbracelet/lipgloss"

// Theme defines all colors used by the picker.
// Use DarkTheme() or LightTheme() to get a pre-built theme,
// or construct a custom Theme.
type Theme struct {
	Primary         lipgloss.Color // warm accent: cursor, title
	Secondary       lipgloss.Color // cool accent: selected row text
	Accent          lipgloss.Color // prompt labels, active filter badge
	Error           lipgloss.Color // failed commands
	Warning         lipgloss.Color // favorite star, close confirmation
	Success         lipgloss.Color // attached marker
	Info            lipgloss.Color // window preview
	Text            lipgloss.Color // primary text
	TextMuted       lipgloss.Color // secondary text: dates, hints
	BackgroundPanel lipgloss.Color // prompt panel background
	BackgroundElem  lipgloss.Color // highlighted row background
	Border          lipgloss.Color // separators
}

// DarkTheme returns the default dark theme.
func DarkTheme() Theme {
	return Theme{
		Primary:         lipgloss.Color("#fab283"),
		Secondary:       lipgloss.Color("#5c9cf5"),
		Accent:          lipgloss.Color("#9d7cd8"),
		Error:           lipgloss.Color("#e06c75"),
		Warning:         lipgloss.Color("#f5a742"),
		Success:         lipgloss.Color("#7fd88f"),
		Info:            lipgloss.Color("#56b6c2"),
		Text:            lipgloss.Color("#eeeeee"),
		TextMuted:       lipgloss.Color("#808080"),
		BackgroundPanel: lipgloss.Color("#141414"),
		BackgroundElem:  lipgloss.Color("#1e1e1e"),
		Border:          lipgloss.Color("#484848"),
	}
}

// LightTheme returns a light theme for bright terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Primary:         lipgloss.Color("#b35c00"),
		Secondary:       lipgloss.Color("#0550ae"),
		Accent:          lipgloss.Color("#6639ba"),
		Error:           lipgloss.Color("#cf222e"),
		Warning:         lipgloss.Color("#bf8700"),
		Success:         lipgloss.Color("#116329"),
		Info:            lipgloss.Color("#0969da"),
		Text:            lipgloss.Color("#1f2328"),
		TextMuted:       lipgloss.Color("#656d76"),
		BackgroundPanel: lipgloss.Color("#ffffff"),
		BackgroundElem:  lipgloss.Color("#f6f8fa"),
		Border:          lipgloss.Color("#d0d7de"),
	}
}

// ThemeByName returns a theme by name. Defaults to dark.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

// styles holds all lipgloss styles derived from a Theme.
type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	selected lipgloss.Style
	favorite lipgloss.Style
	attached lipgloss.Style
	preview  lipgloss.Style
	badge    lipgloss.Style
	prompt   lipgloss.Style
	warn     lipgloss.Style
	err      lipgloss.Style
	dim      lipgloss.Style
	text     lipgloss.Style
	status   lipgloss.Style

	// Hints
	hintKey  lipgloss.Style
	hintDesc lipgloss.Style
}

// newStyles builds all styles from a theme.
func newStyles(t Theme) styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		header:   lipgloss.NewStyle().Foreground(t.Border),
		selected: lipgloss.NewStyle().Bold(true).Foreground(t.Secondary).Background(t.BackgroundElem),
		favorite: lipgloss.NewStyle().Foreground(t.Warning),
		attached: lipgloss.NewStyle().Foreground(t.Success),
		preview:  lipgloss.NewStyle().Foreground(t.Info),
		badge:    lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		prompt:   lipgloss.NewStyle().Bold(true).Foreground(t.Accent).Background(t.BackgroundPanel),
		warn:     lipgloss.NewStyle().Bold(true).Foreground(t.Warning),
		err:      lipgloss.NewStyle().Foreground(t.Error),
		dim:      lipgloss.NewStyle().Foreground(t.TextMuted),
		text:     lipgloss.NewStyle().Foreground(t.Text),
		status:   lipgloss.NewStyle().Foreground(t.TextMuted),

		hintKey:  lipgloss.NewStyle().Foreground(t.Text),
		hintDesc: lipgloss.NewStyle().Foreground(t.TextMuted),
	}
}
