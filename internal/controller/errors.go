package controller

import (
	"errors"
	"fmt"
	"strings"

	"github.com/timvw/tpik/internal/mux"
)

var (
	// ErrNotAvailable means the multiplexer is missing. Fatal at startup.
	ErrNotAvailable = mux.ErrNotAvailable
	// ErrNameConflict means the requested session name is taken.
	ErrNameConflict = mux.ErrNameConflict

	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrStaleView         = errors.New("session list changed since it was shown")
	ErrEmptyName         = errors.New("name is empty")
	ErrSameName          = errors.New("new name equals the current name")
	ErrDirectoryNotFound = errors.New("directory not found")
	ErrCurrentSession    = errors.New("cannot close the session tpik is running in")
	ErrNoPendingClose    = errors.New("no close awaiting confirmation")
	ErrNotInside         = errors.New("not running inside a session")
	ErrExiting           = errors.New("picker is exiting")
)

// Describe renders err as a short status line for the user.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var ce *mux.CallError
	switch {
	case errors.Is(err, ErrNotAvailable):
		return "tmux is not installed or not on PATH"
	case errors.Is(err, ErrNameConflict):
		return "A session with that name already exists, pick another name"
	case errors.Is(err, ErrIndexOutOfRange):
		return capitalize(err.Error())
	case errors.Is(err, ErrStaleView):
		return "The list changed, check the numbers and try again"
	case errors.Is(err, ErrEmptyName):
		return "Name cannot be empty"
	case errors.Is(err, ErrSameName):
		return "New name is the same as the old one"
	case errors.Is(err, ErrDirectoryNotFound):
		return capitalize(err.Error())
	case errors.Is(err, ErrCurrentSession):
		return "Cannot close the current session"
	case errors.Is(err, ErrNoPendingClose):
		return "Nothing to confirm"
	case errors.Is(err, ErrNotInside):
		return "Only available inside tmux"
	case errors.As(err, &ce):
		return fmt.Sprintf("tmux %s failed: %s", ce.Op, firstLine(ce.Error()))
	default:
		return capitalize(firstLine(err.Error()))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
