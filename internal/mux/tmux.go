package mux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/timvw/tpik/internal/model"
)

// Field layouts for list queries. Names go last so that SplitN keeps
// any tab inside a session or window name intact.
const (
	sessionFormat = "#{session_id}\t#{session_created}\t#{session_windows}\t#{session_attached}\t#{session_name}"
	windowFormat  = "#{session_id}\t#{window_index}\t#{window_name}"
)

// Runner executes a tmux invocation.
type Runner interface {
	// Output runs tmux with captured stdout and stderr.
	Output(ctx context.Context, args ...string) (stdout, stderr string, err error)
	// Interactive runs tmux bound to the process terminal.
	Interactive(ctx context.Context, args ...string) error
}

// Tmux implements the Multiplexer interface for tmux.
type Tmux struct {
	bin          string
	runner       Runner
	lookPath     func(string) (string, error)
	getenv       func(string) string
	previewLimit int
	log          *slog.Logger
}

// Option configures a Tmux gateway.
type Option func(*Tmux)

// WithRunner replaces the process runner (used by tests).
func WithRunner(r Runner) Option {
	return func(t *Tmux) { t.runner = r }
}

// WithLookPath replaces the binary lookup (used by tests).
func WithLookPath(fn func(string) (string, error)) Option {
	return func(t *Tmux) { t.lookPath = fn }
}

// WithGetenv replaces environment lookup (used by tests).
func WithGetenv(fn func(string) string) Option {
	return func(t *Tmux) { t.getenv = fn }
}

// WithPreviewLimit sets how many window names each session preview keeps.
func WithPreviewLimit(n int) Option {
	return func(t *Tmux) {
		if n > 0 {
			t.previewLimit = n
		}
	}
}

// WithLogger sets the logger for gateway calls.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tmux) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTmux creates a new tmux multiplexer.
func NewTmux(opts ...Option) *Tmux {
	t := &Tmux{
		bin:          "tmux",
		lookPath:     exec.LookPath,
		getenv:       os.Getenv,
		previewLimit: model.PreviewLimit,
		log:          slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.runner == nil {
		t.runner = execRunner{bin: t.bin}
	}
	return t
}

// Name returns "tmux".
func (t *Tmux) Name() string {
	return "tmux"
}

// Available checks that the tmux binary is on PATH.
func (t *Tmux) Available() error {
	if _, err := t.lookPath(t.bin); err != nil {
		return fmt.Errorf("%w: %s not found in PATH", ErrNotAvailable, t.bin)
	}
	return nil
}

// DetectContext reads $TMUX and, when set, asks tmux for the current session name.
func (t *Tmux) DetectContext(ctx context.Context) Context {
	if t.getenv("TMUX") == "" {
		return Context{}
	}
	c := Context{Inside: true}
	out, err := t.run(ctx, "display-message", "display-message", "-p", "#S")
	if err != nil {
		t.log.Warn("current session lookup failed", slog.String("error", err.Error()))
		return c
	}
	c.Current = strings.TrimSpace(out)
	return c
}

// ListSessions returns all tmux sessions with a window preview.
// It issues one list-sessions and one list-windows call regardless of session count.
func (t *Tmux) ListSessions(ctx context.Context) ([]model.Session, error) {
	if err := t.Available(); err != nil {
		return nil, err
	}
	out, err := t.run(ctx, "list-sessions", "list-sessions", "-F", sessionFormat)
	if err != nil {
		if isNoServer(err) {
			return nil, nil
		}
		return nil, err
	}
	records := parseSessions(out)
	if len(records) == 0 {
		return nil, nil
	}

	// Previews are best-effort: sessions are still listed without them.
	windows := map[string][]model.Window{}
	if wout, err := t.run(ctx, "list-windows", "list-windows", "-a", "-F", windowFormat); err == nil {
		windows = parseWindowsBySession(wout)
	} else {
		t.log.Warn("window preview unavailable", slog.String("error", err.Error()))
	}

	sessions := make([]model.Session, 0, len(records))
	for _, r := range records {
		s := r.session
		s.WindowPreview, s.PreviewTruncated = model.Preview(windows[r.id], t.previewLimit)
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// ListWindows returns the windows of a session in index order.
func (t *Tmux) ListWindows(ctx context.Context, session string) ([]model.Window, error) {
	out, err := t.run(ctx, "list-windows", "list-windows", "-t", exact(session), "-F", windowFormat)
	if err != nil {
		return nil, err
	}
	var windows []model.Window
	for _, ws := range parseWindowsBySession(out) {
		windows = append(windows, ws...)
	}
	return windows, nil
}

// Attach runs tmux attach-session on the current terminal.
func (t *Tmux) Attach(ctx context.Context, name string) error {
	t.log.Debug("tmux call", slog.String("op", "attach-session"), slog.String("session", name))
	if err := t.runner.Interactive(ctx, "attach-session", "-t", exact(name)); err != nil {
		return t.classify("attach-session", "", err)
	}
	return nil
}

// SwitchTo switches the current tmux client to another session.
func (t *Tmux) SwitchTo(ctx context.Context, name string) error {
	_, err := t.run(ctx, "switch-client", "switch-client", "-t", exact(name))
	return err
}

// DetachClient detaches the current tmux client.
func (t *Tmux) DetachClient(ctx context.Context) error {
	_, err := t.run(ctx, "detach-client", "detach-client")
	return err
}

// CreateSession starts a detached session in dir.
func (t *Tmux) CreateSession(ctx context.Context, name, dir, command string) error {
	args := []string{"new-session", "-d", "-s", name}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	if command != "" {
		args = append(args, command)
	}
	_, err := t.run(ctx, "new-session", args...)
	return err
}

// KillSession kills a tmux session.
func (t *Tmux) KillSession(ctx context.Context, name string) error {
	_, err := t.run(ctx, "kill-session", "kill-session", "-t", exact(name))
	return err
}

// RenameSession renames a tmux session.
func (t *Tmux) RenameSession(ctx context.Context, oldName, newName string) error {
	_, err := t.run(ctx, "rename-session", "rename-session", "-t", exact(oldName), newName)
	return err
}

// ChooseTree opens tmux's session tree in the current client.
func (t *Tmux) ChooseTree(ctx context.Context) error {
	_, err := t.run(ctx, "choose-tree", "choose-tree", "-s")
	return err
}

// run executes a captured tmux command and maps failures to gateway errors.
func (t *Tmux) run(ctx context.Context, op string, args ...string) (string, error) {
	start := time.Now()
	stdout, stderr, err := t.runner.Output(ctx, args...)
	t.log.Debug("tmux call",
		slog.String("op", op),
		slog.Duration("elapsed", time.Since(start)),
		slog.Bool("ok", err == nil))
	if err != nil {
		return "", t.classify(op, stderr, err)
	}
	return stdout, nil
}

func (t *Tmux) classify(op, stderr string, err error) error {
	stderr = strings.TrimSpace(stderr)
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	case strings.Contains(stderr, "duplicate session"):
		return &CallError{Op: op, Stderr: stderr, Err: ErrNameConflict}
	default:
		return &CallError{Op: op, Stderr: stderr, Err: err}
	}
}

// isNoServer reports whether a list failure only means that no sessions exist.
func isNoServer(err error) bool {
	var ce *CallError
	if !errors.As(err, &ce) {
		return false
	}
	return strings.Contains(ce.Stderr, "no server running") ||
		strings.Contains(ce.Stderr, "no sessions") ||
		strings.Contains(ce.Stderr, "error connecting to")
}

// exact prefixes a session target with "=" so tmux does not fall back to prefix matching.
func exact(name string) string {
	return "=" + name
}

type sessionRecord struct {
	id      string
	session model.Session
}

// parseSessions parses list-sessions output. Malformed lines are skipped.
func parseSessions(output string) []sessionRecord {
	var records []sessionRecord
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 5)
		if len(parts) != 5 || parts[0] == "" || parts[4] == "" {
			continue
		}
		created, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		windows, err := strconv.Atoi(parts[2])
		if err != nil || windows < 0 {
			continue
		}
		attached, err := strconv.Atoi(parts[3])
		if err != nil {
			continue
		}
		records = append(records, sessionRecord{
			id: parts[0],
			session: model.Session{
				Name:        parts[4],
				CreatedAt:   time.Unix(created, 0),
				WindowCount: windows,
				Attached:    attached > 0,
			},
		})
	}
	return records
}

// parseWindowsBySession parses list-windows output grouped by session id.
func parseWindowsBySession(output string) map[string][]model.Window {
	result := map[string][]model.Window{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		idx, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		result[parts[0]] = append(result[parts[0]], model.Window{Index: idx, Name: parts[2]})
	}
	return result
}

// execRunner runs the real tmux binary.
type execRunner struct {
	bin string
}

func (r execRunner) Output(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, r.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func (r execRunner) Interactive(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
