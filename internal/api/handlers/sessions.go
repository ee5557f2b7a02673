// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/instruktai/teleclaude/internal/commands"
	"github.com/instruktai/teleclaude/internal/output"
	"github.com/instruktai/teleclaude/internal/session"
	"github.com/instruktai/teleclaude/internal/store"
	"github.com/instruktai/teleclaude/internal/transcript"
)

// SessionHandler serves the /sessions surface.
type SessionHandler struct {
	cmds     *commands.Handlers
	sessions *session.Manager
	tracker  *output.StateTracker
	machine  string
}

// NewSessionHandler creates the handler.
func NewSessionHandler(cmds *commands.Handlers, sessions *session.Manager, tracker *output.StateTracker, machine string) *SessionHandler {
	return &SessionHandler{cmds: cmds, sessions: sessions, tracker: tracker, machine: machine}
}

// Hook handles POST /sessions/{session_id}/hook: agent CLI lifecycle events
// posted by the hook receiver. Hook-driven activity state is preferred over
// the stream-silence fallback.
func (h *SessionHandler) Hook(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	var body struct {
		Event   string `json:"event"`
		Tool    string `json:"tool,omitempty"`
		Summary string `json:"summary,omitempty"`
		// NativeSessionID reports the agent CLI's continuation handle once
		// the first turn established it.
		NativeSessionID string `json:"native_session_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Event == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "event is required")
		return
	}

	hook := output.HookEvent(body.Event)
	switch hook {
	case output.HookUserPromptSubmit, output.HookToolUse, output.HookToolDone, output.HookAgentStop:
	default:
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "unknown hook event "+body.Event)
		return
	}

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		WriteError(w, http.StatusNotFound, ErrNotFound, "unknown session "+sessionID)
		return
	}

	h.tracker.ApplyHook(sessionID, hook, body.Tool, body.Summary)
	if hook == output.HookAgentStop && body.Summary != "" {
		h.sessions.RecordSummary(r.Context(), sessionID, body.Summary)
	}
	if body.NativeSessionID != "" && sess.NativeSessionID == "" {
		sess.NativeSessionID = body.NativeSessionID
		h.sessions.Update(r.Context(), sess)
	}
	WriteJSON(w, http.StatusOK, nil)
}

// List handles GET /sessions?computer=…
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	computer := r.URL.Query().Get("computer")
	WriteResult(w, h.cmds.ListSessionsOn(r.Context(), computer))
}

// Create handles POST /sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "unreadable body")
		return
	}
	res := h.cmds.NewSession(r.Context(), body, commands.Meta{AdapterKind: store.KindRest})
	WriteResult(w, res)
}

// End handles DELETE /sessions/{session_id}?computer=…
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	args, _ := json.Marshal(map[string]string{
		"session_id": sessionID,
		"computer":   r.URL.Query().Get("computer"),
	})
	res := h.cmds.EndSession(r.Context(), args, commands.Meta{AdapterKind: store.KindRest})
	WriteResult(w, res)
}

// Message handles POST /sessions/{session_id}/message.
func (h *SessionHandler) Message(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "text is required")
		return
	}
	res := h.cmds.Message(r.Context(), body.Text, commands.Meta{
		AdapterKind: store.KindRest,
		SessionID:   sessionID,
	})
	WriteResult(w, res)
}

// Transcript handles GET /sessions/{session_id}/transcript.
func (h *SessionHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrNotFound, "unknown session "+sessionID)
			return
		}
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	if sess.NativeSessionID == "" {
		WriteJSON(w, http.StatusOK, []transcript.Entry{})
		return
	}

	entries, err := transcript.Read(sess.ProjectDir, sess.NativeSessionID)
	if err != nil {
		WriteError(w, http.StatusNotFound, ErrNotFound, "transcript unavailable")
		return
	}
	WriteJSON(w, http.StatusOK, entries)
}
