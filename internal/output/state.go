// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"sync"
	"time"
)

// ActivityState is the per-session pipeline state surfaced in listings.
type ActivityState string

const (
	// StateIdle means nothing is in flight.
	StateIdle ActivityState = "idle"
	// StateInputHighlight means user text was just submitted.
	StateInputHighlight ActivityState = "input-highlight"
	// StateTempOutputHighlight means a tool invocation is in flight.
	StateTempOutputHighlight ActivityState = "temp-output-highlight"
	// StateOutputHighlight means the agent turn completed.
	StateOutputHighlight ActivityState = "output-highlight"
)

// HookEvent is a lifecycle event emitted by the agent CLI's hooks.
type HookEvent string

const (
	HookUserPromptSubmit HookEvent = "user_prompt_submit"
	HookToolUse          HookEvent = "tool_use"
	HookToolDone         HookEvent = "tool_done"
	HookAgentStop        HookEvent = "agent_stop"
)

// silenceIdle is the fallback window after which stream silence demotes the
// state to idle when no hooks are arriving.
const silenceIdle = 90 * time.Second

type sessionState struct {
	state      ActivityState
	hookDriven bool
	activeTool string
	lastOutput time.Time
	summary    string
	summaryAt  time.Time
}

// StateTracker tracks activity state per session. Hook-driven state is
// preferred; stream silence is the fallback.
type StateTracker struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
	now      func() time.Time
}

// NewStateTracker creates an empty tracker.
func NewStateTracker() *StateTracker {
	return &StateTracker{
		sessions: make(map[string]*sessionState),
		now:      time.Now,
	}
}

func (t *StateTracker) get(sessionID string) *sessionState {
	s, ok := t.sessions[sessionID]
	if !ok {
		s = &sessionState{state: StateIdle}
		t.sessions[sessionID] = s
	}
	return s
}

// ApplyHook transitions state from an agent CLI hook event. On agent_stop the
// provided summary is stored with a timestamp.
func (t *StateTracker) ApplyHook(sessionID string, hook HookEvent, tool, summary string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(sessionID)
	s.hookDriven = true

	switch hook {
	case HookUserPromptSubmit:
		s.state = StateInputHighlight
		s.activeTool = ""
	case HookToolUse:
		s.state = StateTempOutputHighlight
		s.activeTool = tool
	case HookToolDone:
		s.state = StateTempOutputHighlight
		s.activeTool = ""
	case HookAgentStop:
		s.state = StateOutputHighlight
		s.activeTool = ""
		if summary != "" {
			s.summary = summary
			s.summaryAt = t.now()
		}
	}
}

// NoteOutput records stream activity for the silence fallback.
func (t *StateTracker) NoteOutput(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(sessionID)
	s.lastOutput = t.now()
	if !s.hookDriven {
		s.state = StateOutputHighlight
	}
}

// ResetActivity is the explicit activity-reset token.
func (t *StateTracker) ResetActivity(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(sessionID)
	s.state = StateIdle
	s.activeTool = ""
}

// State returns the current state, applying the silence fallback for
// sessions without hook data.
func (t *StateTracker) State(sessionID string) ActivityState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return StateIdle
	}
	if !s.hookDriven && !s.lastOutput.IsZero() && t.now().Sub(s.lastOutput) > silenceIdle {
		return StateIdle
	}
	return s.state
}

// ActiveTool returns the in-flight tool name, or "".
func (t *StateTracker) ActiveTool(sessionID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[sessionID]; ok {
		return s.activeTool
	}
	return ""
}

// Summary returns the stored agent_stop summary and its timestamp.
func (t *StateTracker) Summary(sessionID string) (string, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[sessionID]; ok {
		return s.summary, s.summaryAt
	}
	return "", time.Time{}
}

// Forget drops tracked state for a closed session.
func (t *StateTracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}
