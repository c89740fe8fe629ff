// Package mux provides an abstraction over terminal multiplexers.
//
// This package is pure transport. It reports the multiplexer's view of the
// world (sessions, windows, attachment) and issues commands against it. It
// owns no state: every call goes to the external process.
package mux

import (
	"context"
	"errors"
	"fmt"

	"github.com/timvw/tpik/internal/model"
)

var (
	// ErrNotAvailable means the multiplexer binary is not installed.
	ErrNotAvailable = errors.New("multiplexer not available")
	// ErrNameConflict means a session with the requested name already exists.
	ErrNameConflict = errors.New("session name already exists")
)

// CallError is a failed external command. It carries the multiplexer's own error text.
type CallError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *CallError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Context describes where this process runs relative to the multiplexer.
type Context struct {
	// Inside is true when the process runs inside a managed session.
	Inside bool
	// Current is the name of that session, if it could be resolved.
	Current string
}

// Multiplexer abstracts terminal multiplexer operations.
// Every method is a single synchronous call; nothing is retried.
type Multiplexer interface {
	// Name returns the multiplexer name (e.g., "tmux").
	Name() string

	// Available returns ErrNotAvailable if the multiplexer cannot be invoked.
	Available() error

	// DetectContext reports whether this process runs inside a session.
	DetectContext(ctx context.Context) Context

	// ListSessions returns all live sessions in the multiplexer's order.
	// Malformed records are skipped. No running server yields an empty list.
	ListSessions(ctx context.Context) ([]model.Session, error)

	// ListWindows returns the windows of one session.
	ListWindows(ctx context.Context, session string) ([]model.Window, error)

	// Attach binds the current terminal to a session from outside the multiplexer.
	// It blocks until the client detaches.
	Attach(ctx context.Context, name string) error

	// SwitchTo moves the current client to another session.
	SwitchTo(ctx context.Context, name string) error

	// DetachClient detaches the current client.
	DetachClient(ctx context.Context) error

	// CreateSession starts a detached session. An empty command opens a shell.
	CreateSession(ctx context.Context, name, dir, command string) error

	// KillSession destroys a session.
	KillSession(ctx context.Context, name string) error

	// RenameSession renames a session. Fails with ErrNameConflict if newName is taken.
	RenameSession(ctx context.Context, oldName, newName string) error

	// ChooseTree opens the multiplexer's native session picker.
	ChooseTree(ctx context.Context) error
}
