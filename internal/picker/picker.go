// Package picker is the interactive front end: a bubbletea program that
// renders the controller's visible list and maps keys to controller commands.
// It holds no session state of its own.
package picker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/timvw/tpik/internal/controller"
	"github.com/timvw/tpik/internal/model"
)

// Picker runs the interactive session picker.
type Picker struct {
	Controller *controller.Controller
	Theme      Theme
}

// Run loads the session list and runs the program until the user quits or
// control is handed to the multiplexer. It returns ErrNotAvailable when the
// multiplexer disappears.
func (p *Picker) Run(ctx context.Context) error {
	ctl := p.Controller
	if err := ctl.Refresh(ctx); err != nil && ctl.State() == controller.Fatal {
		return err
	}

	m := newModel(ctx, ctl, p.Theme)
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil {
		return err
	}
	if ctl.State() == controller.Fatal {
		return controller.ErrNotAvailable
	}
	return nil
}

// handoffDoneMsg reports the end of a command run with the terminal released.
type handoffDoneMsg struct {
	err error
}

// handoffCmd implements tea.ExecCommand. Attaching needs the real terminal,
// so the controller call runs while bubbletea has let go of it.
type handoffCmd struct {
	ctx context.Context
	run func(context.Context) error
}

func (h handoffCmd) Run() error {
	return h.run(h.ctx)
}

func (h handoffCmd) SetStdin(io.Reader)  {}
func (h handoffCmd) SetStdout(io.Writer) {}
func (h handoffCmd) SetStderr(io.Writer) {}

// pickerModel implements tea.Model
type pickerModel struct {
	ctx context.Context
	ctl *controller.Controller
	st  styles

	list   model.VisibleList
	cursor int
	digits string // pending multi-digit index

	// prompt state
	input   textinput.Model
	prompts []string
	answers []string
	target  int // row index the prompt applies to

	// template picker state
	templates []model.Template
	template  *model.Template

	failed bool

	// dimensions
	width  int
	height int
}

func newModel(ctx context.Context, ctl *controller.Controller, theme Theme) *pickerModel {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 60

	m := &pickerModel{
		ctx:   ctx,
		ctl:   ctl,
		st:    newStyles(theme),
		input: ti,
	}
	m.sync()
	return m
}

func (m *pickerModel) Init() tea.Cmd {
	return nil
}

func (m *pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case handoffDoneMsg:
		return m, m.after(msg.err)
	}

	return m, nil
}

// sync pulls the current visible list from the controller. The list shown by
// the next View is exactly this one, so index commands resolve against it.
func (m *pickerModel) sync() {
	m.list = m.ctl.CurrentVisibleList()
	if m.cursor >= m.list.Len() {
		m.cursor = m.list.Len() - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.ctl.State() != controller.AwaitingInput {
		m.prompts = nil
		m.answers = nil
		m.target = 0
		m.templates = nil
		m.template = nil
		m.input.Blur()
	}
}

// after refreshes the view after a controller command and quits when the loop is over.
func (m *pickerModel) after(err error) tea.Cmd {
	m.failed = err != nil
	m.sync()
	switch m.ctl.State() {
	case controller.Exiting, controller.Fatal:
		return tea.Quit
	}
	return nil
}

// handoff runs a command that may attach. Outside tmux the terminal is
// released first; inside, switch-client does not need it.
func (m *pickerModel) handoff(run func(context.Context) error) tea.Cmd {
	if m.ctl.Where().Inside {
		return m.after(run(m.ctx))
	}
	return tea.Exec(handoffCmd{ctx: m.ctx, run: run}, func(err error) tea.Msg {
		return handoffDoneMsg{err: err}
	})
}

func (m *pickerModel) cursorRow() (model.Row, bool) {
	return m.list.At(m.cursor + 1)
}

func (m *pickerModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.ctl.Quit()
		return m, tea.Quit
	}
	if m.ctl.State() == controller.AwaitingInput {
		switch m.ctl.Operation() {
		case controller.OpConfirmClose:
			return m.handleConfirmKey(msg)
		case controller.OpTemplate:
			if m.template == nil {
				return m.handleTemplateKey(msg)
			}
		}
		return m.handleInputKey(msg)
	}
	return m.handleListKey(msg)
}

func (m *pickerModel) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
		return m, m.typeDigit(key)
	}

	switch key {
	case "q":
		m.ctl.Quit()
		return m, tea.Quit

	case "esc":
		m.digits = ""

	case "up", "k":
		m.digits = ""
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		m.digits = ""
		if m.cursor < m.list.Len()-1 {
			m.cursor++
		}

	case "enter":
		if m.digits != "" {
			n, _ := strconv.Atoi(m.digits)
			m.digits = ""
			return m, m.selectIndex(n)
		}
		if row, ok := m.cursorRow(); ok {
			return m, m.selectIndex(row.Index)
		}

	case " ", "space", "s":
		if row, ok := m.cursorRow(); ok {
			return m, m.after(m.ctl.ToggleFavorite(m.ctx, row.Index))
		}

	case "f":
		return m, m.after(m.ctl.ToggleFilter(model.FilterFavorites))

	case "h":
		return m, m.after(m.ctl.ToggleFilter(model.FilterRecent))

	case "/":
		return m, m.startPrompt(controller.OpSearch, 0, m.ctl.Filter().Search, "Search")

	case "c":
		return m, m.after(m.ctl.ClearFilters())

	case "n":
		return m, m.startPrompt(controller.OpCreate, 0, "",
			"Session name", "Directory (blank for default)", "Command (blank for shell)")

	case "r":
		if row, ok := m.cursorRow(); ok {
			return m, m.startPrompt(controller.OpRename, row.Index, row.Session.Name,
				fmt.Sprintf("New name for %s", row.Session.Name))
		}

	case "x":
		if row, ok := m.cursorRow(); ok {
			return m, m.after(m.ctl.CloseSession(row.Index))
		}

	case "t":
		return m, m.openTemplates()

	case "d":
		return m, m.after(m.ctl.DetachAndRestart(m.ctx))

	case "w":
		return m, m.after(m.ctl.OpenTree(m.ctx))

	case "ctrl+r", "f5":
		return m, m.after(m.ctl.Refresh(m.ctx))
	}

	return m, nil
}

// typeDigit selects as soon as no further digit could form a valid index.
func (m *pickerModel) typeDigit(d string) tea.Cmd {
	m.digits += d
	n, _ := strconv.Atoi(m.digits)
	if n == 0 || n*10 > m.list.Len() {
		m.digits = ""
		return m.selectIndex(n)
	}
	return nil
}

func (m *pickerModel) selectIndex(n int) tea.Cmd {
	if _, ok := m.list.At(n); !ok {
		return m.after(m.ctl.SelectByIndex(m.ctx, n))
	}
	return m.handoff(func(ctx context.Context) error {
		return m.ctl.SelectByIndex(ctx, n)
	})
}

func (m *pickerModel) startPrompt(op controller.Operation, target int, value string, labels ...string) tea.Cmd {
	if err := m.ctl.Begin(op); err != nil {
		return m.after(err)
	}
	m.digits = ""
	m.prompts = labels
	m.answers = nil
	m.target = target
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
	return textinput.Blink
}

func (m *pickerModel) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.ctl.CancelInput()
		return m, m.after(nil)

	case "enter":
		m.answers = append(m.answers, m.input.Value())
		if len(m.answers) < len(m.prompts) {
			m.input.SetValue("")
			return m, nil
		}
		return m, m.submit()
	}

	// Forward all other keys to the text input component
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit dispatches a completed prompt.
func (m *pickerModel) submit() tea.Cmd {
	a := m.answers
	switch m.ctl.Operation() {
	case controller.OpSearch:
		return m.after(m.ctl.SetSearch(a[0]))

	case controller.OpCreate:
		name, dir, command := a[0], a[1], a[2]
		return m.handoff(func(ctx context.Context) error {
			return m.ctl.CreateSession(ctx, name, dir, command)
		})

	case controller.OpRename:
		return m.after(m.ctl.RenameSession(m.ctx, m.target, a[0]))

	case controller.OpTemplate:
		t, name := *m.template, a[0]
		return m.handoff(func(ctx context.Context) error {
			return m.ctl.InstantiateTemplate(ctx, t, name)
		})

	case controller.OpAddTemplate:
		return m.after(m.ctl.AddTemplate(model.Template{Name: a[0], Dir: a[1], Command: a[2]}))
	}

	m.ctl.CancelInput()
	return m.after(nil)
}

func (m *pickerModel) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		return m, m.after(m.ctl.ConfirmClose(m.ctx, true))
	case "n", "N", "esc", "q":
		return m, m.after(m.ctl.ConfirmClose(m.ctx, false))
	}
	return m, nil
}

func (m *pickerModel) openTemplates() tea.Cmd {
	if err := m.ctl.Begin(controller.OpTemplate); err != nil {
		return m.after(err)
	}
	m.digits = ""
	m.templates = m.ctl.Templates()
	m.template = nil
	return nil
}

func (m *pickerModel) handleTemplateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch {
	case key == "esc" || key == "q":
		m.ctl.CancelInput()
		return m, m.after(nil)

	case key == "a":
		return m, m.startPrompt(controller.OpAddTemplate, 0, "",
			"Template name", "Directory", "Command (optional)")

	case len(key) == 1 && key[0] >= '1' && key[0] <= '9':
		t, err := m.ctl.Template(int(key[0] - '0'))
		if err != nil {
			return m, m.after(err)
		}
		m.template = &t
		m.prompts = []string{fmt.Sprintf("Session name (blank for %s)", t.Name)}
		m.answers = nil
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m *pickerModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	m.viewHeader(&b)

	if m.ctl.State() == controller.AwaitingInput && m.ctl.Operation() == controller.OpTemplate && m.template == nil {
		m.viewTemplates(&b)
	} else {
		m.viewList(&b)
	}

	m.viewFooter(&b)
	return b.String()
}

func (m *pickerModel) viewHeader(b *strings.Builder) {
	b.WriteString(m.st.title.Render("tpik"))
	f := m.ctl.Filter()
	if f.Mode != model.FilterNone {
		b.WriteString("  ")
		b.WriteString(m.st.badge.Render("[" + f.Mode.String() + "]"))
	}
	if f.Search != "" {
		b.WriteString("  ")
		b.WriteString(m.st.badge.Render("/" + f.Search))
	}
	b.WriteString("  ")
	if w := m.ctl.Where(); w.Inside {
		b.WriteString(m.st.dim.Render("in " + w.Current))
	} else {
		b.WriteString(m.st.dim.Render("outside tmux"))
	}
	b.WriteString("\n")
}

func (m *pickerModel) viewList(b *strings.Builder) {
	if m.list.Len() == 0 {
		if m.ctl.Filter().IsZero() {
			b.WriteString("  No sessions. Press n to create one.\n")
		} else {
			b.WriteString("  No sessions match. Press c to clear filters.\n")
		}
		return
	}

	// Layout widths: cursor | index | marks | name | created | windows | preview
	indexWidth := len(strconv.Itoa(m.list.Len()))
	nameWidth := 8
	for _, r := range m.list.Rows {
		if w := runewidth.StringWidth(r.Session.Name); w > nameWidth {
			nameWidth = w
		}
	}
	if maxName := m.width / 3; nameWidth > maxName && maxName >= 8 {
		nameWidth = maxName
	}
	fixed := 2 + indexWidth + 1 + 4 + nameWidth + 2 + 11 + 2 + 4 + 2
	previewWidth := m.width - fixed
	if previewWidth < 0 {
		previewWidth = 0
	}

	// Rows available between header and footer
	maxVisible := m.height - 5
	if maxVisible < 2 {
		maxVisible = 2
	}
	if maxVisible > m.list.Len() {
		maxVisible = m.list.Len()
	}

	// Compute scroll window [start, end) that keeps cursor visible
	start := 0
	end := maxVisible
	if m.cursor >= end {
		end = m.cursor + 1
		start = end - maxVisible
	}

	for i := start; i < end; i++ {
		r := m.list.Rows[i]
		s := r.Session

		star := " "
		if r.Favorite {
			star = "★"
		}
		dot := " "
		if s.Attached {
			dot = "●"
		}
		name := runewidth.FillRight(runewidth.Truncate(s.Name, nameWidth, "…"), nameWidth)
		created := runewidth.FillRight(s.Created(), 11)
		windows := fmt.Sprintf("%3dw", s.WindowCount)
		preview := runewidth.Truncate(s.PreviewText(), previewWidth, "…")

		if i == m.cursor {
			line := fmt.Sprintf("→ %*d %s %s %s  %s  %s  %s", indexWidth, r.Index, star, dot, name, created, windows, preview)
			b.WriteString(m.st.selected.Render(runewidth.FillRight(line, m.width)))
		} else {
			b.WriteString(fmt.Sprintf("  %*d ", indexWidth, r.Index))
			b.WriteString(m.st.favorite.Render(star))
			b.WriteString(" ")
			b.WriteString(m.st.attached.Render(dot))
			b.WriteString(" ")
			b.WriteString(m.st.text.Render(name))
			b.WriteString("  ")
			b.WriteString(m.st.dim.Render(created))
			b.WriteString("  ")
			b.WriteString(m.st.dim.Render(windows))
			b.WriteString("  ")
			b.WriteString(m.st.preview.Render(preview))
		}
		b.WriteString("\n")
	}

	summary := fmt.Sprintf("  %d sessions", m.list.Len())
	if start > 0 || end < m.list.Len() {
		summary += fmt.Sprintf(" | showing %d-%d", start+1, end)
	}
	b.WriteString(m.st.dim.Render(summary))
	b.WriteString("\n")
}

func (m *pickerModel) viewTemplates(b *strings.Builder) {
	b.WriteString(m.st.header.Render("  Templates"))
	b.WriteString("\n")
	if len(m.templates) == 0 {
		b.WriteString("  No templates. Press a to add one.\n")
		return
	}
	for i, t := range m.templates {
		line := fmt.Sprintf("  %d. %s  %s", i+1, t.Name, m.st.dim.Render(t.Dir))
		if t.Command != "" {
			line += "  " + m.st.preview.Render(t.Command)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func (m *pickerModel) viewFooter(b *strings.Builder) {
	state, op := m.ctl.State(), m.ctl.Operation()

	switch {
	case state == controller.AwaitingInput && op == controller.OpConfirmClose:
		b.WriteString(m.st.warn.Render("  " + m.ctl.Message()))
		b.WriteString("\n")
		return

	case state == controller.AwaitingInput && len(m.answers) < len(m.prompts):
		label := m.prompts[len(m.answers)]
		if len(m.prompts) > 1 {
			label = fmt.Sprintf("%s (%d/%d)", label, len(m.answers)+1, len(m.prompts))
		}
		b.WriteString(m.st.prompt.Render("  " + label))
		b.WriteString("\n  ")
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(m.hints("enter", "next", "esc", "cancel"))
		b.WriteString("\n")
		return

	case state == controller.AwaitingInput && op == controller.OpTemplate:
		b.WriteString(m.hints("1-9", "use", "a", "add", "esc", "back"))
		b.WriteString("\n")

	default:
		b.WriteString(m.hints(
			"1-9", "select", "space", "fav", "f", "favorites", "h", "recent", "/", "search",
			"c", "clear", "n", "new", "r", "rename", "x", "kill", "t", "templates",
			"d", "detach", "w", "tree", "q", "quit"))
		b.WriteString("\n")
	}

	if m.digits != "" {
		b.WriteString(m.st.badge.Render("  go to " + m.digits + "_"))
		b.WriteString("\n")
	}
	if msg := m.ctl.Message(); msg != "" {
		if m.failed {
			b.WriteString(m.st.err.Render("  " + msg))
		} else {
			b.WriteString(m.st.status.Render("  " + msg))
		}
		b.WriteString("\n")
	}
}

// hints renders key/description pairs.
func (m *pickerModel) hints(pairs ...string) string {
	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, m.st.hintKey.Render(pairs[i])+" "+m.st.hintDesc.Render(pairs[i+1]))
	}
	return "  " + strings.Join(parts, "  ")
}
