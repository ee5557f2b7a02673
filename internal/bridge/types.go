// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package bridge manages one persistent tmux pane per session and provides
// exit-sentinel completion detection.
package bridge

import (
	"context"
	"errors"
	"fmt"
)

// ErrPaneMissing reports a pane that was killed externally. Recoverable:
// callers may recreate the pane and resume.
var ErrPaneMissing = errors.New("pane missing")

// TransportError reports a tmux subprocess failure. Fatal for the operation;
// the session stays alive.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("tmux %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Signal identifies a control action sent to a pane.
type Signal int

const (
	// SignalInterrupt sends a single Ctrl-C.
	SignalInterrupt Signal = iota
	// SignalDoubleInterrupt sends Ctrl-C twice, for CLIs that trap the first.
	SignalDoubleInterrupt
	// SignalClear clears the pane.
	SignalClear
)

// TmuxExecutor executes tmux commands.
type TmuxExecutor interface {
	// HasSession checks if a tmux session exists.
	HasSession(ctx context.Context, session string) bool
	// NewSession creates a new detached tmux session.
	NewSession(ctx context.Context, session, workdir string) error
	// KillSession kills a tmux session.
	KillSession(ctx context.Context, session string) error
	// CapturePane captures the pane content including scrollback.
	CapturePane(ctx context.Context, target string, withHistory bool) ([]byte, error)
	// SendKeys sends keys to a pane.
	SendKeys(ctx context.Context, target string, keys string, literal bool) error
	// SendText sends text via paste-buffer (handles special chars).
	SendText(ctx context.Context, target string, text string) error
	// DisplayMessage expands a tmux format string for a pane.
	DisplayMessage(ctx context.Context, target, format string) (string, error)
	// ResizeWindow resizes a window.
	ResizeWindow(ctx context.Context, target string, cols, rows int) error
	// SetOption sets a tmux option for a session.
	SetOption(ctx context.Context, session, name, value string) error
}

// PaneState describes what the bridge observed about a pane's foreground
// process when text was last sent.
type PaneState struct {
	ForegroundCommand string
	ShellReady        bool
	MarkerAppended    bool
	Marker            string
}
