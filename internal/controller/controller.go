// Package controller drives the picker: it reconciles live multiplexer state
// with persisted favorites, history and templates, owns the filter state and
// the visible list, and turns UI commands into gateway and store calls.
//
// The controller is single-threaded. Every command runs to completion before
// the next one; nothing refreshes in the background.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/tpik/internal/filter"
	"github.com/timvw/tpik/internal/model"
	"github.com/timvw/tpik/internal/mux"
	telem "github.com/timvw/tpik/internal/otel"
	"github.com/timvw/tpik/internal/paths"
	"github.com/timvw/tpik/internal/store"
)

// State is the controller's interaction state.
type State int

const (
	Browsing State = iota
	AwaitingInput
	Exiting
	Fatal
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting-input"
	case Exiting:
		return "exiting"
	case Fatal:
		return "fatal"
	default:
		return "browsing"
	}
}

// Operation is what an AwaitingInput state is collecting input for.
type Operation int

const (
	OpNone Operation = iota
	OpSearch
	OpCreate
	OpRename
	OpConfirmClose
	OpTemplate
	OpAddTemplate
)

// ExitReason tells the launcher why the loop ended.
type ExitReason int

const (
	ExitNone ExitReason = iota
	// ExitQuit is a normal quit.
	ExitQuit
	// ExitHandoff means terminal control went to the multiplexer.
	ExitHandoff
	// ExitRestart means the client was detached and the picker should relaunch.
	ExitRestart
)

// Options configures a Controller.
type Options struct {
	// DefaultDir is used when a new session is created without a directory.
	DefaultDir string
	Logger     *slog.Logger
	Telemetry  *telem.Telemetry
}

// Controller composes the gateway, the store and the filter engine.
type Controller struct {
	mux        mux.Multiplexer
	store      *store.Store
	log        *slog.Logger
	tracer     trace.Tracer
	metrics    *telem.Metrics
	defaultDir string
	where      mux.Context

	state        State
	op           Operation
	exit         ExitReason
	handoff      string
	pendingClose string
	message      string

	filter     model.FilterState
	live       []model.Session
	favs       model.FavoriteSet
	history    []string
	visible    model.VisibleList
	generation uint64
	rendered   uint64
}

// New creates a controller. It fails with ErrNotAvailable when the
// multiplexer cannot be invoked. The inside/outside context is detected
// here once and stays fixed for the controller's lifetime.
func New(ctx context.Context, m mux.Multiplexer, st *store.Store, opts Options) (*Controller, error) {
	if err := m.Available(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = telem.Noop()
	}
	c := &Controller{
		mux:        m,
		store:      st,
		log:        log,
		tracer:     tel.Tracer,
		metrics:    tel.Metrics,
		defaultDir: opts.DefaultDir,
		where:      m.DetectContext(ctx),
	}
	c.log.Debug("controller started",
		slog.Bool("inside", c.where.Inside),
		slog.String("current", c.where.Current))
	return c, nil
}

// State returns the interaction state.
func (c *Controller) State() State { return c.state }

// Operation returns the operation awaiting input, or OpNone.
func (c *Controller) Operation() Operation { return c.op }

// ExitReason returns why the loop ended, or ExitNone while it runs.
func (c *Controller) ExitReason() ExitReason { return c.exit }

// HandoffTarget returns the session control was handed to, if any.
func (c *Controller) HandoffTarget() string { return c.handoff }

// Where returns the startup context.
func (c *Controller) Where() mux.Context { return c.where }

// Filter returns the current filter state.
func (c *Controller) Filter() model.FilterState { return c.filter }

// Message returns the last status line.
func (c *Controller) Message() string { return c.message }

// PendingClose returns the session awaiting close confirmation.
func (c *Controller) PendingClose() string { return c.pendingClose }

// Refresh re-reads live sessions and persisted state and recomputes the visible list.
// ErrNotAvailable moves the controller to Fatal.
func (c *Controller) Refresh(ctx context.Context) error {
	if err := c.active(); err != nil {
		return err
	}
	ctx, span := c.tracer.Start(ctx, "refresh")
	defer span.End()

	start := time.Now()
	live, err := c.mux.ListSessions(ctx)
	c.metrics.RecordGatewayCall(ctx, "list-sessions", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrNotAvailable) {
			c.state = Fatal
			c.log.Error("multiplexer unavailable", slog.String("error", err.Error()))
		} else {
			c.log.Warn("list sessions failed", slog.String("error", err.Error()))
		}
		return c.fail(fmt.Errorf("refresh: %w", err))
	}

	c.live = live
	c.favs = c.store.LoadFavorites()
	c.history = c.store.LoadHistory()
	c.recompute()

	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("sessions", len(live)), attribute.Int("visible", c.visible.Len()))
	c.metrics.RecordRefresh(ctx, elapsed, len(live))
	c.log.Debug("refreshed",
		slog.Int("sessions", len(live)),
		slog.Int("visible", c.visible.Len()),
		slog.Duration("elapsed", elapsed))
	return nil
}

// CurrentVisibleList returns the latest visible list and marks it as rendered.
// Index-taking commands resolve against the list returned here.
func (c *Controller) CurrentVisibleList() model.VisibleList {
	c.rendered = c.generation
	rows := make([]model.Row, len(c.visible.Rows))
	copy(rows, c.visible.Rows)
	return model.VisibleList{Generation: c.visible.Generation, Rows: rows}
}

// SelectByIndex switches to (inside) or attaches to (outside) the indexed session.
// Selecting the session tpik already runs in is a no-op.
func (c *Controller) SelectByIndex(ctx context.Context, i int) error {
	if err := c.active(); err != nil {
		return err
	}
	row, err := c.resolve(i)
	if err != nil {
		return c.fail(err)
	}
	name := row.Session.Name
	if c.where.Inside && name == c.where.Current {
		c.toBrowsing()
		c.message = fmt.Sprintf("Already in %s", name)
		return nil
	}

	if err := c.store.RecordHistory(name); err != nil {
		c.log.Warn("history not recorded", slog.String("session", name), slog.String("error", err.Error()))
	}
	return c.enter(ctx, name, "select")
}

// ToggleFavorite flips the indexed session's favorite flag and persists it immediately.
func (c *Controller) ToggleFavorite(ctx context.Context, i int) error {
	if err := c.active(); err != nil {
		return err
	}
	row, err := c.resolve(i)
	if err != nil {
		return c.fail(err)
	}
	name := row.Session.Name

	// Start from disk so changes made by another instance are kept.
	favs := c.store.LoadFavorites()
	on := favs.Toggle(name)
	if err := c.store.SaveFavorites(favs); err != nil {
		return c.fail(err)
	}
	c.favs = favs
	c.metrics.RecordFavoriteToggle(ctx, on)
	c.recompute()
	c.toBrowsing()
	if on {
		c.message = fmt.Sprintf("Added %s to favorites", name)
	} else {
		c.message = fmt.Sprintf("Removed %s from favorites", name)
	}
	return nil
}

// ToggleFilter sets mode, or clears it when mode is already active.
func (c *Controller) ToggleFilter(mode model.FilterMode) error {
	if err := c.active(); err != nil {
		return err
	}
	if c.filter.Mode == mode {
		c.filter.Mode = model.FilterNone
	} else {
		c.filter.Mode = mode
	}
	c.recompute()
	c.toBrowsing()
	c.message = fmt.Sprintf("Filter: %s", c.filter.Mode)
	return nil
}

// SetSearch sets the search term. Blank clears it.
func (c *Controller) SetSearch(term string) error {
	if err := c.active(); err != nil {
		return err
	}
	c.filter.Search = strings.TrimSpace(term)
	c.recompute()
	c.toBrowsing()
	if c.filter.Search == "" {
		c.message = "Search cleared"
	} else {
		c.message = fmt.Sprintf("Search: %s", c.filter.Search)
	}
	return nil
}

// ClearFilters resets mode and search.
func (c *Controller) ClearFilters() error {
	if err := c.active(); err != nil {
		return err
	}
	c.filter = model.FilterState{}
	c.recompute()
	c.toBrowsing()
	c.message = "Filters cleared"
	return nil
}

// Begin moves to AwaitingInput for op.
func (c *Controller) Begin(op Operation) error {
	if err := c.active(); err != nil {
		return err
	}
	c.state = AwaitingInput
	c.op = op
	return nil
}

// CancelInput abandons the operation awaiting input.
func (c *Controller) CancelInput() {
	if c.state != AwaitingInput {
		return
	}
	c.toBrowsing()
	c.message = "Cancelled"
}

// CreateSession creates a session and hands control to it.
// An empty dir means the configured default directory.
func (c *Controller) CreateSession(ctx context.Context, name, dir, command string) error {
	if err := c.active(); err != nil {
		return err
	}
	name = SanitizeName(name)
	if name == "" {
		return c.fail(ErrEmptyName)
	}
	dir, err := c.resolveDir(dir)
	if err != nil {
		return c.fail(err)
	}
	if err := c.create(ctx, name, dir, strings.TrimSpace(command)); err != nil {
		return c.fail(err)
	}
	return c.enter(ctx, name, "create")
}

// CloseSession proposes killing the indexed session. ConfirmClose completes it.
func (c *Controller) CloseSession(i int) error {
	if err := c.active(); err != nil {
		return err
	}
	row, err := c.resolve(i)
	if err != nil {
		return c.fail(err)
	}
	name := row.Session.Name
	if c.where.Inside && name == c.where.Current {
		return c.fail(ErrCurrentSession)
	}
	c.state = AwaitingInput
	c.op = OpConfirmClose
	c.pendingClose = name
	c.message = fmt.Sprintf("Kill session %s? (y/n)", name)
	return nil
}

// ConfirmClose kills the proposed session when confirm is true, or drops the proposal.
func (c *Controller) ConfirmClose(ctx context.Context, confirm bool) error {
	if err := c.active(); err != nil {
		return err
	}
	if c.state != AwaitingInput || c.op != OpConfirmClose || c.pendingClose == "" {
		return c.fail(ErrNoPendingClose)
	}
	name := c.pendingClose
	c.toBrowsing()
	if !confirm {
		c.message = fmt.Sprintf("Kept %s", name)
		return nil
	}

	err := c.mux.KillSession(ctx, name)
	c.metrics.RecordGatewayCall(ctx, "kill-session", err)
	if err != nil {
		return c.fail(err)
	}
	favs := c.store.LoadFavorites()
	if favs.Remove(name) {
		if err := c.store.SaveFavorites(favs); err != nil {
			c.log.Warn("favorite not removed", slog.String("session", name), slog.String("error", err.Error()))
		}
	}
	c.reload(ctx)
	c.message = fmt.Sprintf("Killed %s", name)
	return nil
}

// RenameSession renames the indexed session and migrates its favorite entry.
func (c *Controller) RenameSession(ctx context.Context, i int, newName string) error {
	if err := c.active(); err != nil {
		return err
	}
	row, err := c.resolve(i)
	if err != nil {
		return c.fail(err)
	}
	oldName := row.Session.Name
	newName = SanitizeName(newName)
	switch {
	case newName == "":
		return c.fail(ErrEmptyName)
	case newName == oldName:
		return c.fail(ErrSameName)
	}

	err = c.mux.RenameSession(ctx, oldName, newName)
	c.metrics.RecordGatewayCall(ctx, "rename-session", err)
	if err != nil {
		return c.fail(err)
	}
	favs := c.store.LoadFavorites()
	if favs.Rename(oldName, newName) {
		if err := c.store.SaveFavorites(favs); err != nil {
			c.log.Warn("favorite not migrated",
				slog.String("from", oldName), slog.String("to", newName), slog.String("error", err.Error()))
		}
	}
	if c.where.Current == oldName {
		c.where.Current = newName
	}
	c.reload(ctx)
	c.message = fmt.Sprintf("Renamed %s to %s", oldName, newName)
	return nil
}

// Templates returns the stored templates in display order.
func (c *Controller) Templates() []model.Template {
	return c.store.LoadTemplates()
}

// Template returns the n-th (1-based) stored template.
func (c *Controller) Template(n int) (model.Template, error) {
	if err := c.active(); err != nil {
		return model.Template{}, err
	}
	templates := c.store.LoadTemplates()
	if n < 1 || n > len(templates) {
		return model.Template{}, c.fail(fmt.Errorf("%w: template %d (have %d)", ErrIndexOutOfRange, n, len(templates)))
	}
	return templates[n-1], nil
}

// InstantiateTemplate creates a session from t and hands control to it.
// overrideName replaces the template's name when non-blank.
func (c *Controller) InstantiateTemplate(ctx context.Context, t model.Template, overrideName string) error {
	if err := c.active(); err != nil {
		return err
	}
	name := SanitizeName(overrideName)
	if name == "" {
		name = SanitizeName(t.Name)
	}
	if name == "" {
		return c.fail(ErrEmptyName)
	}
	dir, err := CheckDir(t.Dir)
	if err != nil {
		return c.fail(err)
	}
	if err := c.create(ctx, name, dir, t.Command); err != nil {
		return c.fail(err)
	}
	return c.enter(ctx, name, "template")
}

// AddTemplate validates and appends a template.
func (c *Controller) AddTemplate(t model.Template) error {
	if err := c.active(); err != nil {
		return err
	}
	t.Name = strings.TrimSpace(t.Name)
	t.Command = strings.TrimSpace(t.Command)
	if t.Name == "" {
		return c.fail(ErrEmptyName)
	}
	dir, err := CheckDir(t.Dir)
	if err != nil {
		return c.fail(err)
	}
	t.Dir = dir
	if err := c.store.AppendTemplate(t); err != nil {
		return c.fail(err)
	}
	c.toBrowsing()
	c.message = fmt.Sprintf("Saved template %s", t.Name)
	return nil
}

// DetachAndRestart detaches the current client and asks the launcher to relaunch.
func (c *Controller) DetachAndRestart(ctx context.Context) error {
	if err := c.active(); err != nil {
		return err
	}
	if !c.where.Inside {
		return c.fail(ErrNotInside)
	}
	err := c.mux.DetachClient(ctx)
	c.metrics.RecordGatewayCall(ctx, "detach-client", err)
	if err != nil {
		return c.fail(err)
	}
	c.finish(ExitRestart, "")
	return nil
}

// OpenTree hands control to the multiplexer's own session tree.
func (c *Controller) OpenTree(ctx context.Context) error {
	if err := c.active(); err != nil {
		return err
	}
	if !c.where.Inside {
		return c.fail(ErrNotInside)
	}
	err := c.mux.ChooseTree(ctx)
	c.metrics.RecordGatewayCall(ctx, "choose-tree", err)
	if err != nil {
		return c.fail(err)
	}
	c.metrics.RecordSelection(ctx, "tree")
	c.finish(ExitHandoff, "")
	return nil
}

// Quit ends the loop normally.
func (c *Controller) Quit() {
	if c.state == Fatal {
		return
	}
	c.finish(ExitQuit, "")
}

// enter switches or attaches to name and ends the loop on success.
func (c *Controller) enter(ctx context.Context, name, action string) error {
	var err error
	op := "attach-session"
	if c.where.Inside {
		op = "switch-client"
		err = c.mux.SwitchTo(ctx, name)
	} else {
		err = c.mux.Attach(ctx, name)
	}
	c.metrics.RecordGatewayCall(ctx, op, err)
	if err != nil {
		c.reload(ctx)
		return c.fail(err)
	}
	c.metrics.RecordSelection(ctx, action)
	c.log.Info("handoff", slog.String("session", name), slog.String("action", action), slog.String("op", op))
	c.finish(ExitHandoff, name)
	return nil
}

func (c *Controller) create(ctx context.Context, name, dir, command string) error {
	err := c.mux.CreateSession(ctx, name, dir, command)
	c.metrics.RecordGatewayCall(ctx, "new-session", err)
	if err != nil {
		return err
	}
	c.log.Info("session created", slog.String("session", name), slog.String("dir", dir))
	return nil
}

// resolve maps a display index to a row of the rendered list.
func (c *Controller) resolve(i int) (model.Row, error) {
	if c.rendered != c.generation {
		return model.Row{}, ErrStaleView
	}
	row, ok := c.visible.At(i)
	if !ok {
		if c.visible.Len() == 0 {
			return model.Row{}, fmt.Errorf("%w: %d (no sessions listed)", ErrIndexOutOfRange, i)
		}
		return model.Row{}, fmt.Errorf("%w: %d (choose 1-%d)", ErrIndexOutOfRange, i, c.visible.Len())
	}
	return row, nil
}

func (c *Controller) resolveDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = c.defaultDir
	}
	if strings.TrimSpace(dir) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("%w: no directory given and no home directory", ErrDirectoryNotFound)
		}
		dir = home
	}
	return CheckDir(dir)
}

// CheckDir expands "~" and requires an existing directory.
func CheckDir(dir string) (string, error) {
	dir = paths.ExpandHome(strings.TrimSpace(dir))
	if dir == "" {
		return "", fmt.Errorf("%w: empty path", ErrDirectoryNotFound)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
	}
	return dir, nil
}

// recompute rebuilds the visible list and invalidates the previously rendered indices.
func (c *Controller) recompute() {
	c.generation++
	c.visible = filter.Compute(c.live, c.favs, c.history, c.filter)
	c.visible.Generation = c.generation
}

// reload refreshes after a successful mutation; failures only reach the log and status line.
func (c *Controller) reload(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn("refresh after command failed", slog.String("error", err.Error()))
	}
}

func (c *Controller) active() error {
	switch c.state {
	case Exiting:
		return ErrExiting
	case Fatal:
		return ErrNotAvailable
	}
	return nil
}

// fail records err as the status line and returns it. The state returns to
// Browsing unless the loop has already ended.
func (c *Controller) fail(err error) error {
	if c.state != Fatal && c.state != Exiting {
		c.toBrowsing()
	}
	c.message = Describe(err)
	return err
}

func (c *Controller) toBrowsing() {
	c.state = Browsing
	c.op = OpNone
	c.pendingClose = ""
}

func (c *Controller) finish(reason ExitReason, target string) {
	c.state = Exiting
	c.op = OpNone
	c.exit = reason
	c.handoff = target
}

// SanitizeName trims name and replaces characters tmux does not allow in session names.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	return strings.NewReplacer(".", "-", ":", "-").Replace(name)
}
