// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"sync"
)

// MockTmuxExecutor is an in-memory TmuxExecutor for tests.
type MockTmuxExecutor struct {
	mu sync.Mutex

	Sessions map[string]bool
	// Captures maps target -> content returned by CapturePane.
	Captures map[string][]byte
	// Foreground maps target -> value returned for #{pane_current_command}.
	Foreground map[string]string
	// SentText records SendText calls as "target\x00text".
	SentText []string
	// SentKeys records SendKeys calls as "target\x00keys".
	SentKeys []string
	// Resizes records ResizeWindow calls.
	Resizes []string

	// FailDisplay makes DisplayMessage return an error (introspection failure).
	FailDisplay bool
	// FailSendText makes SendText fail so the SendKeys fallback runs.
	FailSendText bool
}

// NewMockTmuxExecutor creates an empty mock.
func NewMockTmuxExecutor() *MockTmuxExecutor {
	return &MockTmuxExecutor{
		Sessions:   make(map[string]bool),
		Captures:   make(map[string][]byte),
		Foreground: make(map[string]string),
	}
}

func (m *MockTmuxExecutor) HasSession(ctx context.Context, session string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Sessions[session]
}

func (m *MockTmuxExecutor) NewSession(ctx context.Context, session, workdir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Sessions[session] {
		return fmt.Errorf("duplicate session %s", session)
	}
	m.Sessions[session] = true
	return nil
}

func (m *MockTmuxExecutor) KillSession(ctx context.Context, session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Sessions, session)
	return nil
}

func (m *MockTmuxExecutor) CapturePane(ctx context.Context, target string, withHistory bool) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Captures[target], nil
}

func (m *MockTmuxExecutor) SendKeys(ctx context.Context, target string, keys string, literal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentKeys = append(m.SentKeys, target+"\x00"+keys)
	return nil
}

func (m *MockTmuxExecutor) SendText(ctx context.Context, target string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSendText {
		return fmt.Errorf("paste-buffer unavailable")
	}
	m.SentText = append(m.SentText, target+"\x00"+text)
	return nil
}

func (m *MockTmuxExecutor) DisplayMessage(ctx context.Context, target, format string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDisplay {
		return "", fmt.Errorf("display-message failed")
	}
	return m.Foreground[target], nil
}

func (m *MockTmuxExecutor) ResizeWindow(ctx context.Context, target string, cols, rows int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resizes = append(m.Resizes, fmt.Sprintf("%s %dx%d", target, cols, rows))
	return nil
}

func (m *MockTmuxExecutor) SetOption(ctx context.Context, session, name, value string) error {
	return nil
}

// LastText returns the most recently sent text for a target, or "".
func (m *MockTmuxExecutor) LastText(target string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := target + "\x00"
	for i := len(m.SentText) - 1; i >= 0; i-- {
		if len(m.SentText[i]) > len(prefix) && m.SentText[i][:len(prefix)] == prefix {
			return m.SentText[i][len(prefix):]
		}
	}
	return ""
}
