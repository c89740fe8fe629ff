package picker

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/timvw/tpik/internal/controller"
	"github.com/timvw/tpik/internal/model"
	"github.com/timvw/tpik/internal/mux"
	"github.com/timvw/tpik/internal/store"
)

// fakeMux records mutating calls and serves a fixed session list.
type fakeMux struct {
	sessions []model.Session
	where    mux.Context
	calls    []string
}

func (f *fakeMux) Name() string                              { return "fake" }
func (f *fakeMux) Available() error                          { return nil }
func (f *fakeMux) DetectContext(context.Context) mux.Context { return f.where }

func (f *fakeMux) ListSessions(context.Context) ([]model.Session, error) {
	out := make([]model.Session, len(f.sessions))
	copy(out, f.sessions)
	return out, nil
}

func (f *fakeMux) ListWindows(context.Context, string) ([]model.Window, error) { return nil, nil }

func (f *fakeMux) Attach(_ context.Context, name string) error {
	f.calls = append(f.calls, "attach "+name)
	return nil
}

func (f *fakeMux) SwitchTo(_ context.Context, name string) error {
	f.calls = append(f.calls, "switch "+name)
	return nil
}

func (f *fakeMux) DetachClient(context.Context) error {
	f.calls = append(f.calls, "detach")
	return nil
}

func (f *fakeMux) CreateSession(_ context.Context, name, dir, command string) error {
	f.calls = append(f.calls, fmt.Sprintf("create %s %s", name, command))
	f.sessions = append(f.sessions, model.Session{Name: name, WindowCount: 1})
	return nil
}

func (f *fakeMux) KillSession(_ context.Context, name string) error {
	f.calls = append(f.calls, "kill "+name)
	for i, s := range f.sessions {
		if s.Name == name {
			f.sessions = append(f.sessions[:i], f.sessions[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeMux) RenameSession(_ context.Context, oldName, newName string) error {
	f.calls = append(f.calls, "rename "+oldName+" "+newName)
	for i := range f.sessions {
		if f.sessions[i].Name == oldName {
			f.sessions[i].Name = newName
		}
	}
	return nil
}

func (f *fakeMux) ChooseTree(context.Context) error {
	f.calls = append(f.calls, "tree")
	return nil
}

// newTestModel creates a sized picker model over a fake running inside tmux.
func newTestModel(t *testing.T, names ...string) (*pickerModel, *fakeMux, *store.Store) {
	t.Helper()
	f := &fakeMux{where: mux.Context{Inside: true, Current: "home"}}
	for _, n := range names {
		f.sessions = append(f.sessions, model.Session{Name: n, WindowCount: 2, WindowPreview: []string{"editor", "shell"}})
	}
	st := store.New(t.TempDir(), nil)
	ctl, err := controller.New(context.Background(), f, st, controller.Options{DefaultDir: t.TempDir()})
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}
	if err := ctl.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	m := newModel(context.Background(), ctl, DarkTheme())
	m.width = 100
	m.height = 30
	return m, f, st
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends keys in order and returns the last command.
func press(m *pickerModel, keys ...string) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		_, cmd = m.Update(key(k))
	}
	return cmd
}

func typeText(m *pickerModel, s string) {
	for _, r := range s {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestDigitSelectsInside(t *testing.T) {
	m, f, st := newTestModel(t, "alpha", "beta", "gamma")

	cmd := press(m, "2")

	if !isQuit(cmd) {
		t.Error("expected quit after hand-off")
	}
	if len(f.calls) != 1 || f.calls[0] != "switch beta" {
		t.Errorf("calls: got %v, want [switch beta]", f.calls)
	}
	if h := st.LoadHistory(); len(h) == 0 || h[0] != "beta" {
		t.Errorf("history: got %v", h)
	}
	if m.ctl.ExitReason() != controller.ExitHandoff {
		t.Errorf("exit reason: got %v, want ExitHandoff", m.ctl.ExitReason())
	}
}

func TestDigitOutOfRange(t *testing.T) {
	m, f, _ := newTestModel(t, "alpha", "beta")

	cmd := press(m, "7")

	if isQuit(cmd) {
		t.Error("out-of-range index must not quit")
	}
	if len(f.calls) != 0 {
		t.Errorf("unexpected calls: %v", f.calls)
	}
	if !m.failed || !strings.Contains(m.ctl.Message(), "choose 1-2") {
		t.Errorf("message: got %q", m.ctl.Message())
	}
}

func TestMultiDigitIndex(t *testing.T) {
	var names []string
	for i := 1; i <= 12; i++ {
		names = append(names, fmt.Sprintf("s%02d", i))
	}
	m, f, _ := newTestModel(t, names...)

	press(m, "1")
	if len(f.calls) != 0 || m.digits != "1" {
		t.Fatalf("expected pending digit, calls=%v digits=%q", f.calls, m.digits)
	}
	press(m, "2")
	if len(f.calls) != 1 || f.calls[0] != "switch s12" {
		t.Errorf("calls: got %v, want [switch s12]", f.calls)
	}
}

func TestPendingDigitCommittedByEnter(t *testing.T) {
	var names []string
	for i := 1; i <= 12; i++ {
		names = append(names, fmt.Sprintf("s%02d", i))
	}
	m, f, _ := newTestModel(t, names...)

	press(m, "1", "enter")
	if len(f.calls) != 1 || f.calls[0] != "switch s01" {
		t.Errorf("calls: got %v, want [switch s01]", f.calls)
	}
}

func TestEnterSelectsCursorRow(t *testing.T) {
	m, f, _ := newTestModel(t, "alpha", "beta", "gamma")

	press(m, "down", "down", "up", "enter")
	if len(f.calls) != 1 || f.calls[0] != "switch beta" {
		t.Errorf("calls: got %v, want [switch beta]", f.calls)
	}
}

func TestSelectCurrentStaysOpen(t *testing.T) {
	m, f, _ := newTestModel(t, "home", "work")

	cmd := press(m, "1")
	if isQuit(cmd) {
		t.Error("selecting the current session must not quit")
	}
	if len(f.calls) != 0 {
		t.Errorf("unexpected calls: %v", f.calls)
	}
}

func TestSpaceTogglesFavorite(t *testing.T) {
	m, _, st := newTestModel(t, "alpha", "beta")

	press(m, "down", "space")
	if !st.LoadFavorites().Has("beta") {
		t.Error("expected beta to be a favorite")
	}
	row, _ := m.list.At(2)
	if !row.Favorite {
		t.Error("expected row 2 to be marked favorite")
	}

	press(m, "s")
	if st.LoadFavorites().Has("beta") {
		t.Error("expected beta to be removed from favorites")
	}
}

func TestFilterKeys(t *testing.T) {
	m, _, st := newTestModel(t, "alpha", "beta", "gamma")
	if err := st.SaveFavorites(model.NewFavoriteSet("gamma")); err != nil {
		t.Fatal(err)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})

	press(m, "f")
	if m.list.Len() != 1 || m.list.Rows[0].Session.Name != "gamma" {
		t.Errorf("favorites filter: got %d rows", m.list.Len())
	}
	press(m, "f")
	if m.list.Len() != 3 {
		t.Errorf("toggling off: got %d rows, want 3", m.list.Len())
	}
	press(m, "h")
	if m.ctl.Filter().Mode != model.FilterRecent {
		t.Errorf("mode: got %v, want recent", m.ctl.Filter().Mode)
	}
	press(m, "c")
	if !m.ctl.Filter().IsZero() {
		t.Errorf("filters not cleared: %+v", m.ctl.Filter())
	}
}

func TestSearchPrompt(t *testing.T) {
	m, _, _ := newTestModel(t, "dev-api", "prod", "dev-web")

	press(m, "/")
	if m.ctl.State() != controller.AwaitingInput {
		t.Fatalf("state: got %v, want awaiting-input", m.ctl.State())
	}
	typeText(m, "dev")
	press(m, "enter")

	if m.ctl.State() != controller.Browsing {
		t.Errorf("state: got %v, want browsing", m.ctl.State())
	}
	if m.list.Len() != 2 {
		t.Errorf("rows: got %d, want 2", m.list.Len())
	}
}

func TestEscCancelsPrompt(t *testing.T) {
	m, f, _ := newTestModel(t, "alpha")

	press(m, "n")
	typeText(m, "new")
	press(m, "esc")

	if m.ctl.State() != controller.Browsing {
		t.Errorf("state: got %v, want browsing", m.ctl.State())
	}
	if len(m.prompts) != 0 {
		t.Errorf("prompts not reset: %v", m.prompts)
	}
	if len(f.calls) != 0 {
		t.Errorf("unexpected calls: %v", f.calls)
	}
}

func TestCreatePrompts(t *testing.T) {
	m, f, _ := newTestModel(t, "alpha")

	press(m, "n")
	typeText(m, "api")
	press(m, "enter") // name
	press(m, "enter") // default directory
	typeText(m, "htop")
	cmd := press(m, "enter")

	if !isQuit(cmd) {
		t.Error("expected quit after create")
	}
	want := []string{"create api htop", "switch api"}
	if strings.Join(f.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls: got %v, want %v", f.calls, want)
	}
}

func TestRenamePrompt(t *testing.T) {
	m, f, st := newTestModel(t, "alpha", "beta")
	if err := st.SaveFavorites(model.NewFavoriteSet("alpha")); err != nil {
		t.Fatal(err)
	}

	press(m, "r")
	if got := m.input.Value(); got != "alpha" {
		t.Errorf("prefill: got %q, want %q", got, "alpha")
	}
	m.input.SetValue("")
	typeText(m, "omega")
	press(m, "enter")

	if len(f.calls) != 1 || f.calls[0] != "rename alpha omega" {
		t.Errorf("calls: got %v", f.calls)
	}
	if !st.LoadFavorites().Has("omega") {
		t.Error("favorite not migrated")
	}
}

func TestCloseConfirm(t *testing.T) {
	m, f, _ := newTestModel(t, "alpha", "beta")

	press(m, "down", "x")
	if m.ctl.Operation() != controller.OpConfirmClose {
		t.Fatalf("operation: got %v, want confirm close", m.ctl.Operation())
	}
	if !strings.Contains(m.View(), "Kill session beta?") {
		t.Error("view should ask for confirmation")
	}
	press(m, "y")

	if len(f.calls) != 1 || f.calls[0] != "kill beta" {
		t.Errorf("calls: got %v", f.calls)
	}
	if m.list.Len() != 1 {
		t.Errorf("rows: got %d, want 1", m.list.Len())
	}
}

func TestCloseDecline(t *testing.T) {
	m, f, _ := newTestModel(t, "alpha", "beta")

	press(m, "x", "n")
	if len(f.calls) != 0 {
		t.Errorf("unexpected calls: %v", f.calls)
	}
	if m.ctl.State() != controller.Browsing {
		t.Errorf("state: got %v, want browsing", m.ctl.State())
	}
}

func TestTemplateFlow(t *testing.T) {
	m, f, st := newTestModel(t, "alpha")
	dir := t.TempDir()
	if err := st.AppendTemplate(model.Template{Name: "api", Dir: dir, Command: "make run"}); err != nil {
		t.Fatal(err)
	}

	press(m, "t")
	if !strings.Contains(m.View(), "1. api") {
		t.Error("template list not shown")
	}
	press(m, "1")
	cmd := press(m, "enter")

	if !isQuit(cmd) {
		t.Error("expected quit after instantiating template")
	}
	if len(f.calls) != 2 || f.calls[0] != "create api make run" {
		t.Errorf("calls: got %v", f.calls)
	}
}

func TestAddTemplate(t *testing.T) {
	m, _, st := newTestModel(t)
	dir := t.TempDir()

	press(m, "t", "a")
	typeText(m, "web")
	press(m, "enter")
	typeText(m, dir)
	press(m, "enter")
	press(m, "enter")

	got := st.LoadTemplates()
	if len(got) != 1 || got[0].Name != "web" || got[0].Dir != dir {
		t.Errorf("templates: got %+v", got)
	}
}

func TestDetachAndRestart(t *testing.T) {
	m, f, _ := newTestModel(t, "alpha")

	cmd := press(m, "d")
	if !isQuit(cmd) {
		t.Error("expected quit")
	}
	if m.ctl.ExitReason() != controller.ExitRestart {
		t.Errorf("exit reason: got %v, want ExitRestart", m.ctl.ExitReason())
	}
	if len(f.calls) != 1 || f.calls[0] != "detach" {
		t.Errorf("calls: got %v", f.calls)
	}
}

func TestQuit(t *testing.T) {
	m, _, _ := newTestModel(t, "alpha")

	if !isQuit(press(m, "q")) {
		t.Error("expected quit")
	}
	if m.ctl.ExitReason() != controller.ExitQuit {
		t.Errorf("exit reason: got %v, want ExitQuit", m.ctl.ExitReason())
	}
}

func TestOutsideSelectReleasesTerminal(t *testing.T) {
	m, f, _ := newTestModel(t, "alpha")
	outside := &fakeMux{sessions: f.sessions}
	ctl, err := controller.New(context.Background(), outside, store.New(t.TempDir(), nil), controller.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := ctl.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	m = newModel(context.Background(), ctl, DarkTheme())

	cmd := press(m, "1")
	if cmd == nil {
		t.Fatal("expected an exec command")
	}
	if len(outside.calls) != 0 {
		t.Fatalf("attach ran before the terminal was released: %v", outside.calls)
	}

	h := handoffCmd{ctx: context.Background(), run: func(ctx context.Context) error {
		return ctl.SelectByIndex(ctx, 1)
	}}
	_, cmd = m.Update(handoffDoneMsg{err: h.Run()})

	if !isQuit(cmd) {
		t.Error("expected quit after attach returned")
	}
	if len(outside.calls) != 1 || outside.calls[0] != "attach alpha" {
		t.Errorf("calls: got %v", outside.calls)
	}
}

func TestView(t *testing.T) {
	m, _, st := newTestModel(t, "alpha", "beta")
	if err := st.SaveFavorites(model.NewFavoriteSet("beta")); err != nil {
		t.Fatal(err)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})

	out := m.View()
	for _, want := range []string{"tpik", "alpha", "beta", "★", "editor, shell", "in home"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewEmpty(t *testing.T) {
	m, _, _ := newTestModel(t)
	if !strings.Contains(m.View(), "No sessions") {
		t.Error("expected empty-state hint")
	}
}

func TestThemeByName(t *testing.T) {
	if ThemeByName("light").Text != LightTheme().Text {
		t.Error("light theme not selected")
	}
	if ThemeByName("anything").Text != DarkTheme().Text {
		t.Error("unknown name should fall back to dark")
	}
}
