// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Shells whose presence as the pane's foreground process means the pane is
// ready for a new command line.
var readyShells = map[string]bool{
	"bash": true,
	"zsh":  true,
	"fish": true,
	"sh":   true,
	"dash": true,
}

// markerPattern matches an echoed exit sentinel with its exit code. The
// literal "$?" in the typed command line does not match; only the expanded
// form does.
var markerPattern = regexp.MustCompile(`__EXIT__([0-9a-f]{8})__(\d+)__`)

// Bridge manages a persistent tmux pane per session.
type Bridge struct {
	mu      sync.Mutex
	tmux    TmuxExecutor
	log     *zap.Logger
	markers map[string]string // session id -> outstanding marker nonce
}

// New creates a bridge over the given executor.
func New(tmux TmuxExecutor, log *zap.Logger) *Bridge {
	return &Bridge{
		tmux:    tmux,
		log:     log,
		markers: make(map[string]string),
	}
}

// PaneName derives the tmux session name for a session id.
func PaneName(sessionID string) string {
	// tmux dislikes dots and colons in session names
	r := strings.NewReplacer(".", "_", ":", "_")
	return "tc-" + r.Replace(sessionID)
}

// EnsurePane creates the pane for a session if absent. Idempotent.
func (b *Bridge) EnsurePane(ctx context.Context, sessionID, workdir string) error {
	pane := PaneName(sessionID)
	if b.tmux.HasSession(ctx, pane) {
		return nil
	}
	if err := b.tmux.NewSession(ctx, pane, workdir); err != nil {
		return &TransportError{Op: "new-session", Err: err}
	}
	// Preserve scrollback during screen clears (tmux 3.2+); older versions
	// reject the option, which is fine.
	b.tmux.SetOption(ctx, pane, "scroll-on-clear", "off")
	return nil
}

// HasPane reports whether the session's pane exists.
func (b *Bridge) HasPane(ctx context.Context, sessionID string) bool {
	return b.tmux.HasSession(ctx, PaneName(sessionID))
}

// KillPane destroys the session's pane.
func (b *Bridge) KillPane(ctx context.Context, sessionID string) error {
	pane := PaneName(sessionID)
	if !b.tmux.HasSession(ctx, pane) {
		return nil
	}
	if err := b.tmux.KillSession(ctx, pane); err != nil {
		return &TransportError{Op: "kill-session", Err: err}
	}
	b.mu.Lock()
	delete(b.markers, sessionID)
	b.mu.Unlock()
	return nil
}

// SendText injects text into the session's pane, optionally appending a
// completion sentinel, and submits it with Enter. The returned PaneState
// records what readiness decision was made.
func (b *Bridge) SendText(ctx context.Context, sessionID, text string, appendMarker bool) (PaneState, error) {
	pane := PaneName(sessionID)
	if !b.tmux.HasSession(ctx, pane) {
		return PaneState{}, fmt.Errorf("session %s: %w", sessionID, ErrPaneMissing)
	}

	state := PaneState{}
	if appendMarker {
		state.ForegroundCommand = b.foregroundCommand(ctx, pane)
		state.ShellReady = shellReady(state.ForegroundCommand)
		if state.ShellReady && !startsShell(text) {
			nonce := newNonce()
			state.Marker = nonce
			state.MarkerAppended = true
			text = text + fmt.Sprintf(`; echo "__EXIT__%s__$?__"`, nonce)
			b.mu.Lock()
			b.markers[sessionID] = nonce
			b.mu.Unlock()
		}
	}

	if err := b.tmux.SendText(ctx, pane, text); err != nil {
		// paste-buffer can fail on some terminals; fall back to literal keys
		if err := b.tmux.SendKeys(ctx, pane, text, true); err != nil {
			return state, &TransportError{Op: "send-text", Err: err}
		}
	}
	if err := b.tmux.SendKeys(ctx, pane, "Enter", false); err != nil {
		return state, &TransportError{Op: "send-enter", Err: err}
	}
	return state, nil
}

// foregroundCommand queries the pane's current foreground process name.
// Detection failure defaults to empty, which shellReady treats as ready so
// regular commands still receive a sentinel.
func (b *Bridge) foregroundCommand(ctx context.Context, pane string) string {
	out, err := b.tmux.DisplayMessage(ctx, pane, "#{pane_current_command}")
	if err != nil {
		return ""
	}
	return out
}

// shellReady reports whether the foreground process is an interactive shell.
// An empty name (introspection failed) defaults to ready.
func shellReady(command string) bool {
	if command == "" {
		return true
	}
	return readyShells[baseName(command)]
}

// startsShell reports whether the outgoing text itself starts a new shell.
// The new shell would echo the sentinel before the user is done with it, so
// no sentinel is appended in that case.
func startsShell(text string) bool {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return false
	}
	return readyShells[baseName(fields[0])]
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// CapturePane returns a byte snapshot of the visible plus scrollback content.
func (b *Bridge) CapturePane(ctx context.Context, sessionID string) ([]byte, error) {
	pane := PaneName(sessionID)
	if !b.tmux.HasSession(ctx, pane) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrPaneMissing)
	}
	out, err := b.tmux.CapturePane(ctx, pane, true)
	if err != nil {
		return nil, &TransportError{Op: "capture-pane", Err: err}
	}
	return out, nil
}

// DetectExit scans a capture for the session's outstanding sentinel. When
// found it returns the exit code and clears the marker.
func (b *Bridge) DetectExit(sessionID string, capture []byte) (code int, found bool) {
	b.mu.Lock()
	nonce, ok := b.markers[sessionID]
	b.mu.Unlock()
	if !ok {
		return 0, false
	}

	for _, m := range markerPattern.FindAllSubmatch(capture, -1) {
		if string(m[1]) != nonce {
			continue
		}
		code, err := strconv.Atoi(string(m[2]))
		if err != nil {
			continue
		}
		b.mu.Lock()
		delete(b.markers, sessionID)
		b.mu.Unlock()
		return code, true
	}
	return 0, false
}

// PendingMarker reports whether a sentinel is outstanding for the session.
func (b *Bridge) PendingMarker(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.markers[sessionID]
	return ok
}

// Signal sends a control action to the session's pane.
func (b *Bridge) Signal(ctx context.Context, sessionID string, sig Signal) error {
	pane := PaneName(sessionID)
	if !b.tmux.HasSession(ctx, pane) {
		return fmt.Errorf("session %s: %w", sessionID, ErrPaneMissing)
	}

	var err error
	switch sig {
	case SignalInterrupt:
		err = b.tmux.SendKeys(ctx, pane, "C-c", false)
	case SignalDoubleInterrupt:
		if err = b.tmux.SendKeys(ctx, pane, "C-c", false); err == nil {
			err = b.tmux.SendKeys(ctx, pane, "C-c", false)
		}
	case SignalClear:
		err = b.tmux.SendKeys(ctx, pane, "C-l", false)
	default:
		return fmt.Errorf("unknown signal %d", sig)
	}
	if err != nil {
		return &TransportError{Op: "send-keys", Err: err}
	}
	return nil
}

// Resize resizes the session's pane.
func (b *Bridge) Resize(ctx context.Context, sessionID string, cols, rows int) error {
	pane := PaneName(sessionID)
	if !b.tmux.HasSession(ctx, pane) {
		return fmt.Errorf("session %s: %w", sessionID, ErrPaneMissing)
	}
	if err := b.tmux.ResizeWindow(ctx, pane, cols, rows); err != nil {
		return &TransportError{Op: "resize-window", Err: err}
	}
	return nil
}

func newNonce() string {
	return uuid.NewString()[:8]
}
