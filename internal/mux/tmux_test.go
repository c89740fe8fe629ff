package mux

import (
	"context"
	"errors"
	"os/exec"
	"reflect"
	"strings"
	"testing"

	"github.com/timvw/tpik/internal/model"
)

// fakeRunner records invocations and replays canned responses keyed by subcommand.
type fakeRunner struct {
	calls       [][]string
	stdout      map[string]string
	stderr      map[string]string
	errs        map[string]error
	interactive [][]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		stdout: map[string]string{},
		stderr: map[string]string{},
		errs:   map[string]error{},
	}
}

func (f *fakeRunner) Output(_ context.Context, args ...string) (string, string, error) {
	f.calls = append(f.calls, args)
	op := args[0]
	return f.stdout[op], f.stderr[op], f.errs[op]
}

func (f *fakeRunner) Interactive(_ context.Context, args ...string) error {
	f.interactive = append(f.interactive, args)
	return f.errs[args[0]]
}

func newTestTmux(r *fakeRunner, env map[string]string) *Tmux {
	return NewTmux(
		WithRunner(r),
		WithLookPath(func(string) (string, error) { return "/usr/bin/tmux", nil }),
		WithGetenv(func(k string) string { return env[k] }),
	)
}

func TestParseSessions(t *testing.T) {
	output := "$0\t1704067200\t1\t0\talpha\n" +
		"$1\t1704067300\t4\t2\tbeta\n" +
		"garbage line\n" +
		"$2\tnot-a-number\t1\t0\tbroken\n" +
		"$3\t1704067400\t2\t0\twith\ttab\n"

	records := parseSessions(output)
	if len(records) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(records))
	}

	if records[0].session.Name != "alpha" || records[0].id != "$0" {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[0].session.Attached {
		t.Error("alpha should not be attached")
	}
	if records[0].session.CreatedAt.Unix() != 1704067200 {
		t.Errorf("alpha CreatedAt = %d", records[0].session.CreatedAt.Unix())
	}
	if !records[1].session.Attached {
		t.Error("beta has two clients and should be attached")
	}
	if records[1].session.WindowCount != 4 {
		t.Errorf("beta WindowCount = %d, want 4", records[1].session.WindowCount)
	}
	if records[2].session.Name != "with\ttab" {
		t.Errorf("tab in name should survive, got %q", records[2].session.Name)
	}
}

func TestParseSessionsEmpty(t *testing.T) {
	if got := parseSessions(""); len(got) != 0 {
		t.Errorf("expected 0 sessions for empty input, got %d", len(got))
	}
}

func TestParseWindowsBySession(t *testing.T) {
	output := "$0\t0\teditor\n$0\t1\tserver\n$1\t0\tmain\nbad\n$1\tx\tskipped\n"
	got := parseWindowsBySession(output)
	if len(got["$0"]) != 2 || got["$0"][1].Name != "server" {
		t.Errorf("$0 windows = %+v", got["$0"])
	}
	if len(got["$1"]) != 1 || got["$1"][0].Name != "main" {
		t.Errorf("$1 windows = %+v", got["$1"])
	}
}

func TestListSessions_WithPreview(t *testing.T) {
	r := newFakeRunner()
	r.stdout["list-sessions"] = "$0\t1704067200\t4\t0\tdev\n$1\t1704067300\t1\t1\tops\n"
	r.stdout["list-windows"] = "$0\t0\ta\n$0\t1\tb\n$0\t2\tc\n$0\t3\td\n$1\t0\tshell\n"
	tm := newTestTmux(r, nil)

	sessions, err := tm.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if got := strings.Join(sessions[0].WindowPreview, ","); got != "a,b,c" {
		t.Errorf("dev preview = %q, want a,b,c", got)
	}
	if !sessions[0].PreviewTruncated {
		t.Error("dev preview should be truncated")
	}
	if sessions[1].PreviewTruncated || len(sessions[1].WindowPreview) != 1 {
		t.Errorf("ops preview = %+v", sessions[1])
	}
}

func TestListSessions_NoServerIsEmpty(t *testing.T) {
	r := newFakeRunner()
	r.stderr["list-sessions"] = "no server running on /tmp/tmux-1000/default"
	r.errs["list-sessions"] = errors.New("exit status 1")
	tm := newTestTmux(r, nil)

	sessions, err := tm.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected no sessions, got %d", len(sessions))
	}
}

func TestListSessions_PreviewFailureKeepsSessions(t *testing.T) {
	r := newFakeRunner()
	r.stdout["list-sessions"] = "$0\t1704067200\t1\t0\tdev\n"
	r.errs["list-windows"] = errors.New("exit status 1")
	tm := newTestTmux(r, nil)

	sessions, err := tm.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || len(sessions[0].WindowPreview) != 0 {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestListSessions_NotInstalled(t *testing.T) {
	r := newFakeRunner()
	tm := NewTmux(
		WithRunner(r),
		WithLookPath(func(string) (string, error) { return "", exec.ErrNotFound }),
	)

	_, err := tm.ListSessions(context.Background())
	if !errors.Is(err, ErrNotAvailable) {
		t.Fatalf("expected ErrNotAvailable, got %v", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("no tmux call expected, got %v", r.calls)
	}
}

func TestCreateSession_Args(t *testing.T) {
	tests := []struct {
		name    string
		dir     string
		command string
		want    string
	}{
		{"shell", "/work", "", "new-session -d -s web -c /work"},
		{"with command", "/work", "npm run dev", "new-session -d -s web -c /work npm run dev"},
		{"no dir", "", "", "new-session -d -s web"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeRunner()
			tm := newTestTmux(r, nil)
			if err := tm.CreateSession(context.Background(), "web", tt.dir, tt.command); err != nil {
				t.Fatalf("CreateSession: %v", err)
			}
			if got := strings.Join(r.calls[0], " "); got != tt.want {
				t.Errorf("args = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreateSession_DuplicateIsNameConflict(t *testing.T) {
	r := newFakeRunner()
	r.stderr["new-session"] = "duplicate session: web\n"
	r.errs["new-session"] = errors.New("exit status 1")
	tm := newTestTmux(r, nil)

	err := tm.CreateSession(context.Background(), "web", "/tmp", "")
	if !errors.Is(err, ErrNameConflict) {
		t.Fatalf("expected ErrNameConflict, got %v", err)
	}
	var ce *CallError
	if !errors.As(err, &ce) || ce.Stderr != "duplicate session: web" {
		t.Errorf("expected CallError carrying stderr, got %#v", err)
	}
}

func TestRenameSession_Conflict(t *testing.T) {
	r := newFakeRunner()
	r.stderr["rename-session"] = "duplicate session: taken"
	r.errs["rename-session"] = errors.New("exit status 1")
	tm := newTestTmux(r, nil)

	err := tm.RenameSession(context.Background(), "old", "taken")
	if !errors.Is(err, ErrNameConflict) {
		t.Fatalf("expected ErrNameConflict, got %v", err)
	}
	if got := strings.Join(r.calls[0], " "); got != "rename-session -t =old taken" {
		t.Errorf("args = %q", got)
	}
}

func TestListWindows(t *testing.T) {
	r := newFakeRunner()
	r.stdout["list-windows"] = "$2\t0\teditor\n$2\t1\tlogs\ngarbage\n$2\tnan\tskipped\n"
	tm := newTestTmux(r, nil)

	windows, err := tm.ListWindows(context.Background(), "dev")
	if err != nil {
		t.Fatalf("ListWindows: %v", err)
	}
	want := []model.Window{{Index: 0, Name: "editor"}, {Index: 1, Name: "logs"}}
	if !reflect.DeepEqual(windows, want) {
		t.Errorf("windows: got %+v, want %+v", windows, want)
	}

	if len(r.calls) != 1 {
		t.Fatalf("expected 1 tmux call, got %d", len(r.calls))
	}
	args := strings.Join(r.calls[0], " ")
	if wantArgs := "list-windows -t =dev -F " + windowFormat; args != wantArgs {
		t.Errorf("args: got %q, want %q", args, wantArgs)
	}
}

func TestListWindows_Failure(t *testing.T) {
	r := newFakeRunner()
	r.stderr["list-windows"] = "can't find session: ghost"
	r.errs["list-windows"] = errors.New("exit status 1")
	tm := newTestTmux(r, nil)

	_, err := tm.ListWindows(context.Background(), "ghost")
	var ce *CallError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CallError, got %v", err)
	}
	if ce.Op != "list-windows" {
		t.Errorf("op: got %q, want %q", ce.Op, "list-windows")
	}
}

func TestKillSession_GenericFailure(t *testing.T) {
	r := newFakeRunner()
	r.stderr["kill-session"] = "can't find session: ghost"
	r.errs["kill-session"] = errors.New("exit status 1")
	tm := newTestTmux(r, nil)

	err := tm.KillSession(context.Background(), "ghost")
	var ce *CallError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CallError, got %v", err)
	}
	if errors.Is(err, ErrNameConflict) {
		t.Error("kill failure must not be a name conflict")
	}
	if !strings.Contains(err.Error(), "can't find session") {
		t.Errorf("error should carry tmux text: %v", err)
	}
}

func TestAttach_UsesInteractiveRunner(t *testing.T) {
	r := newFakeRunner()
	tm := newTestTmux(r, nil)
	if err := tm.Attach(context.Background(), "dev"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if len(r.interactive) != 1 || strings.Join(r.interactive[0], " ") != "attach-session -t =dev" {
		t.Errorf("interactive calls = %v", r.interactive)
	}
}

func TestDetectContext(t *testing.T) {
	t.Run("outside tmux", func(t *testing.T) {
		r := newFakeRunner()
		c := newTestTmux(r, map[string]string{}).DetectContext(context.Background())
		if c.Inside || c.Current != "" {
			t.Errorf("context = %+v", c)
		}
		if len(r.calls) != 0 {
			t.Errorf("no tmux call expected outside tmux, got %v", r.calls)
		}
	})

	t.Run("inside tmux", func(t *testing.T) {
		r := newFakeRunner()
		r.stdout["display-message"] = "work\n"
		c := newTestTmux(r, map[string]string{"TMUX": "/tmp/tmux-1000/default,123,0"}).DetectContext(context.Background())
		if !c.Inside || c.Current != "work" {
			t.Errorf("context = %+v", c)
		}
	})
}

func TestFromName(t *testing.T) {
	if _, err := FromName("", nil, 0); err != nil {
		t.Errorf("default should be tmux: %v", err)
	}
	if _, err := FromName("screen", nil, 0); err == nil {
		t.Error("expected error for unknown multiplexer")
	}
}
