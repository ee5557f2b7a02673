// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/bridge"
	"github.com/instruktai/teleclaude/internal/output"
	"github.com/instruktai/teleclaude/internal/project"
	"github.com/instruktai/teleclaude/internal/relay"
	"github.com/instruktai/teleclaude/internal/session"
	"github.com/instruktai/teleclaude/internal/store"
)

// Meta identifies where an operation came from.
type Meta struct {
	AdapterKind    store.AdapterKind `json:"adapter_kind,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
	UserName       string            `json:"user_name,omitempty"`
	PlatformUserID string            `json:"platform_user_id,omitempty"`
	SourceMachine  string            `json:"source_machine,omitempty"`
}

// Remote dispatches an operation to a peer machine.
type Remote interface {
	Send(ctx context.Context, target, targetSession, op string, args interface{}, initiatorSession string) Result
	// OnlinePeers lists the machines currently within heartbeat TTL.
	OnlinePeers() []string
}

// Handlers is the shared dispatch for operations invoked identically by
// every adapter, the mesh consumer, and the tool server.
type Handlers struct {
	sessions  *session.Manager
	bridge    *bridge.Bridge
	scheduler *output.Scheduler
	tracker   *output.StateTracker
	relay     *relay.Manager
	remote    Remote
	machine   string
	filesDir  string
	roots     []string
	log       *zap.Logger
}

// NewHandlers wires the command handlers.
func NewHandlers(sessions *session.Manager, br *bridge.Bridge, scheduler *output.Scheduler, tracker *output.StateTracker, rel *relay.Manager, remote Remote, machine, filesDir string, projectRoots []string, log *zap.Logger) *Handlers {
	return &Handlers{
		sessions:  sessions,
		bridge:    br,
		scheduler: scheduler,
		tracker:   tracker,
		relay:     rel,
		remote:    remote,
		machine:   machine,
		filesDir:  filesDir,
		roots:     projectRoots,
		log:       log,
	}
}

// Operation names.
const (
	OpNewSession = "new_session"
	OpEndSession = "end_session"
	OpCancel     = "cancel"
	OpResize     = "resize"
	OpResume     = "resume"
	OpEscalate   = "escalate"
	OpListSess   = "list_sessions"
	OpListProj   = "list_projects"
	OpSendText   = "send_text"
	OpDeploy     = "deploy"
	OpPin        = "pin_session"
	OpUnpin      = "unpin_session"
	OpListSticky = "list_sticky"
)

// Handle dispatches a named operation with JSON arguments and returns the
// envelope. Unknown operations return a precise invalid-input error.
func (h *Handlers) Handle(ctx context.Context, op string, args json.RawMessage, meta Meta) Result {
	switch op {
	case OpNewSession:
		return h.NewSession(ctx, args, meta)
	case OpEndSession:
		return h.EndSession(ctx, args, meta)
	case OpCancel:
		return h.Cancel(ctx, args)
	case OpResize:
		return h.Resize(ctx, args)
	case OpResume:
		return h.ResumeOp(ctx, args, meta)
	case OpEscalate:
		return h.Escalate(ctx, args, meta)
	case OpListSess:
		return h.ListSessions(ctx)
	case OpListProj:
		var p struct {
			Computer string `json:"computer,omitempty"`
		}
		json.Unmarshal(args, &p)
		return h.ListProjectsOn(ctx, p.Computer)
	case OpDeploy:
		// Operational convenience: acknowledge so the initiator can track
		// which peers accepted the deploy request.
		return Success(map[string]string{"machine": h.machine, "status": "accepted"})
	case OpPin:
		return h.Pin(ctx, args, meta)
	case OpUnpin:
		return h.Unpin(ctx, args, meta)
	case OpListSticky:
		return h.ListSticky(ctx)
	case OpSendText:
		var p struct {
			SessionID string `json:"session_id"`
			Text      string `json:"text"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return Failure(Invalid("malformed send_text args: %v", err))
		}
		m := meta
		m.SessionID = p.SessionID
		return h.Message(ctx, p.Text, m)
	default:
		return Failure(Invalid("unknown operation %q", op))
	}
}

// NewSessionArgs are the new_session arguments.
type NewSessionArgs struct {
	Computer        string                `json:"computer,omitempty"`
	ProjectDir      string                `json:"project_dir"`
	Agent           store.AgentVariant    `json:"agent,omitempty"`
	ThinkingMode    store.ThinkingMode    `json:"thinking_mode,omitempty"`
	Title           string                `json:"title,omitempty"`
	AdapterTypes    []store.AdapterKind   `json:"adapter_types,omitempty"`
	AdapterMetadata store.AdapterMetadata `json:"adapter_metadata,omitempty"`
	HumanRole       store.HumanRole       `json:"human_role,omitempty"`
	HumanEmail      string                `json:"human_email,omitempty"`
	Message         string                `json:"message,omitempty"`
}

// NewSession creates a session, locally or on a peer.
func (h *Handlers) NewSession(ctx context.Context, args json.RawMessage, meta Meta) Result {
	var p NewSessionArgs
	if err := json.Unmarshal(args, &p); err != nil {
		return Failure(Invalid("malformed new_session args: %v", err))
	}
	if p.ProjectDir == "" {
		return Failure(Invalid("project_dir is required"))
	}

	if p.Computer != "" && p.Computer != h.machine {
		if h.remote == nil {
			return Failure(NotFound("computer %q unknown and no mesh available", p.Computer))
		}
		return h.remote.Send(ctx, p.Computer, "", OpNewSession, p, meta.SessionID)
	}

	if len(p.AdapterTypes) == 0 && meta.AdapterKind != "" {
		p.AdapterTypes = []store.AdapterKind{meta.AdapterKind}
	}

	sess, err := h.sessions.Create(ctx, session.CreateParams{
		Computer:        h.machine,
		ProjectDir:      p.ProjectDir,
		Agent:           p.Agent,
		ThinkingMode:    p.ThinkingMode,
		Title:           p.Title,
		AdapterTypes:    p.AdapterTypes,
		AdapterMetadata: p.AdapterMetadata,
		HumanRole:       p.HumanRole,
		HumanEmail:      p.HumanEmail,
		InitiatorID:     meta.SessionID,
	})
	if err != nil {
		if errors.Is(err, session.ErrNestedGathering) {
			return Failure(Ceiling("nested gathering rejected"))
		}
		return Failure(err)
	}

	if h.scheduler != nil {
		h.scheduler.Start(context.WithoutCancel(ctx), sess.ID, "")
	}
	if p.Message != "" {
		if res := h.Message(ctx, p.Message, Meta{SessionID: sess.ID}); !res.OK() {
			h.log.Warn("initial message failed", zap.String("session", sess.ID))
		}
	}
	return Success(sess)
}

// EndSession closes a session, locally or on a peer.
func (h *Handlers) EndSession(ctx context.Context, args json.RawMessage, meta Meta) Result {
	var p struct {
		SessionID string `json:"session_id"`
		Computer  string `json:"computer,omitempty"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return Failure(Invalid("malformed end_session args: %v", err))
	}
	if p.Computer != "" && p.Computer != h.machine {
		if h.remote == nil {
			return Failure(NotFound("computer %q unknown and no mesh available", p.Computer))
		}
		return h.remote.Send(ctx, p.Computer, p.SessionID, OpEndSession, p, meta.SessionID)
	}

	if h.scheduler != nil {
		h.scheduler.Stop(p.SessionID)
	}
	if h.tracker != nil {
		h.tracker.Forget(p.SessionID)
	}
	if err := h.sessions.Close(ctx, p.SessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Failure(NotFound("session %s", p.SessionID))
		}
		return Failure(err)
	}
	return Success(nil)
}

// Cancel interrupts the session's foreground work.
func (h *Handlers) Cancel(ctx context.Context, args json.RawMessage) Result {
	var p struct {
		SessionID string `json:"session_id"`
		Double    bool   `json:"double,omitempty"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return Failure(Invalid("malformed cancel args: %v", err))
	}

	sig := bridge.SignalInterrupt
	if p.Double {
		sig = bridge.SignalDoubleInterrupt
	}
	if err := h.bridge.Signal(ctx, p.SessionID, sig); err != nil {
		return h.paneError(ctx, p.SessionID, err)
	}
	if h.tracker != nil {
		h.tracker.ResetActivity(p.SessionID)
	}
	return Success(nil)
}

// Resize changes the pane dimensions.
func (h *Handlers) Resize(ctx context.Context, args json.RawMessage) Result {
	var p struct {
		SessionID string `json:"session_id"`
		Cols      int    `json:"cols"`
		Rows      int    `json:"rows"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return Failure(Invalid("malformed resize args: %v", err))
	}
	if p.Cols <= 0 || p.Rows <= 0 {
		return Failure(Invalid("cols and rows must be positive"))
	}
	if err := h.bridge.Resize(ctx, p.SessionID, p.Cols, p.Rows); err != nil {
		return h.paneError(ctx, p.SessionID, err)
	}
	return Success(nil)
}

// ResumeOp resumes a session by internal or native key.
func (h *Handlers) ResumeOp(ctx context.Context, args json.RawMessage, meta Meta) Result {
	var p struct {
		Kind       session.ResumeKind `json:"kind"`
		Key        string             `json:"key"`
		ProjectDir string             `json:"project_dir,omitempty"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return Failure(Invalid("malformed resume args: %v", err))
	}

	fallback := session.CreateParams{
		ProjectDir:   p.ProjectDir,
		AdapterTypes: []store.AdapterKind{meta.AdapterKind},
	}
	if meta.AdapterKind == "" {
		fallback.AdapterTypes = []store.AdapterKind{store.KindRest}
	}

	res, err := h.sessions.Resume(ctx, h.meshQuerier(), p.Kind, p.Key, fallback)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Failure(NotFound("no session for %s %s", p.Kind, p.Key))
		}
		return Failure(err)
	}
	if res.Session != nil && h.scheduler != nil {
		h.scheduler.Start(context.WithoutCancel(ctx), res.Session.ID, res.Session.OutputBaseline)
	}
	return Success(res)
}

// Escalate diverts a customer session to the help desk.
func (h *Handlers) Escalate(ctx context.Context, args json.RawMessage, meta Meta) Result {
	var p struct {
		SessionID      string `json:"session_id,omitempty"`
		CustomerName   string `json:"customer_name"`
		Reason         string `json:"reason"`
		ContextSummary string `json:"context_summary,omitempty"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return Failure(Invalid("malformed escalate args: %v", err))
	}
	if p.SessionID == "" {
		p.SessionID = meta.SessionID
	}
	if p.SessionID == "" {
		return Failure(Invalid("escalate requires a session"))
	}
	if h.relay == nil {
		return Failure(NotFound("help-desk relay not configured"))
	}

	threadID, err := h.relay.Escalate(ctx, p.SessionID, p.CustomerName, p.Reason, p.ContextSummary)
	if err != nil {
		return Failure(err)
	}
	return Success(map[string]string{"thread_id": threadID})
}

// ListSessionsOn routes a session listing to the named machine.
func (h *Handlers) ListSessionsOn(ctx context.Context, computer string) Result {
	if computer == "" || computer == h.machine {
		return h.ListSessions(ctx)
	}
	if h.remote == nil {
		return Failure(NotFound("computer %q unknown and no mesh available", computer))
	}
	return h.remote.Send(ctx, computer, "", OpListSess, nil, "")
}

// ListProjectsOn routes a project listing to the named machine.
func (h *Handlers) ListProjectsOn(ctx context.Context, computer string) Result {
	if computer == "" || computer == h.machine {
		projects, err := project.Discover(h.roots)
		if err != nil {
			return Failure(err)
		}
		return Success(projects)
	}
	if h.remote == nil {
		return Failure(NotFound("computer %q unknown and no mesh available", computer))
	}
	return h.remote.Send(ctx, computer, "", OpListProj, nil, "")
}

// DeployTo dispatches the deploy convenience to the named peers, reporting
// per-target outcomes. Cross-machine failure is reported per target.
func (h *Handlers) DeployTo(ctx context.Context, computers []string) Result {
	results := make(map[string]string, len(computers))
	for _, target := range computers {
		if target == h.machine {
			results[target] = "skipped (local)"
			continue
		}
		if h.remote == nil {
			results[target] = "no mesh available"
			continue
		}
		res := h.remote.Send(ctx, target, "", OpDeploy, nil, "")
		if res.OK() {
			results[target] = "accepted"
		} else {
			results[target] = res.Error.Message
		}
	}
	return Success(results)
}

// Pin adds a session to the sticky set. A refusal at the cap is silent per
// the ceiling policy: the envelope succeeds and reports pinned=false.
func (h *Handlers) Pin(ctx context.Context, args json.RawMessage, meta Meta) Result {
	sessionID, res := h.stickyTarget(ctx, args, meta)
	if res != nil {
		return *res
	}

	if err := h.sessions.AddSticky(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrStickyCapReached) {
			return Success(map[string]interface{}{"pinned": false, "reason": "sticky cap reached"})
		}
		return Failure(err)
	}
	return Success(map[string]interface{}{"pinned": true})
}

// Unpin removes a session from the sticky set. Removals are always allowed.
func (h *Handlers) Unpin(ctx context.Context, args json.RawMessage, meta Meta) Result {
	sessionID, res := h.stickyTarget(ctx, args, meta)
	if res != nil {
		return *res
	}
	if err := h.sessions.RemoveSticky(ctx, sessionID); err != nil {
		return Failure(err)
	}
	return Success(map[string]interface{}{"pinned": false})
}

// ListSticky returns the pinned session ids, oldest pin first.
func (h *Handlers) ListSticky(ctx context.Context) Result {
	ids, err := h.sessions.Sticky(ctx)
	if err != nil {
		return Failure(err)
	}
	if ids == nil {
		ids = []string{}
	}
	return Success(ids)
}

// stickyTarget resolves the session id for pin operations, defaulting to
// the caller's own session.
func (h *Handlers) stickyTarget(ctx context.Context, args json.RawMessage, meta Meta) (string, *Result) {
	var p struct {
		SessionID string `json:"session_id,omitempty"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &p); err != nil {
			res := Failure(Invalid("malformed pin args: %v", err))
			return "", &res
		}
	}
	if p.SessionID == "" {
		p.SessionID = meta.SessionID
	}
	if p.SessionID == "" {
		res := Failure(Invalid("session_id is required"))
		return "", &res
	}
	if _, err := h.sessions.Get(ctx, p.SessionID); err != nil {
		res := Failure(NotFound("session %s", p.SessionID))
		return "", &res
	}
	return p.SessionID, nil
}

// ListSessions returns active sessions on this machine.
func (h *Handlers) ListSessions(ctx context.Context) Result {
	sessions, err := h.sessions.List(ctx, true)
	if err != nil {
		return Failure(err)
	}
	return Success(sessions)
}

// Message routes inbound user text: relay diversion first, then pane
// injection with a completion sentinel.
func (h *Handlers) Message(ctx context.Context, text string, meta Meta) Result {
	sess, err := h.sessions.Get(ctx, meta.SessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return Failure(err)
		}
		// The session may live on a peer. Commands arriving from the mesh
		// never re-fan out (loop prevention).
		if h.remote != nil && meta.SourceMachine == "" {
			args := map[string]string{"session_id": meta.SessionID, "text": text}
			for _, peer := range h.remote.OnlinePeers() {
				if res := h.remote.Send(ctx, peer, meta.SessionID, OpSendText, args, ""); res.OK() {
					return res
				}
			}
		}
		return Failure(NotFound("session %s", meta.SessionID))
	}

	if h.relay != nil && sess.HumanRole == store.RoleCustomer {
		diverted, err := h.relay.HandleCustomerMessage(ctx, sess, meta.UserName, string(meta.AdapterKind), text)
		if err != nil {
			return Failure(err)
		}
		if diverted {
			return Success(map[string]bool{"diverted": true})
		}
	}

	if _, err := h.bridge.SendText(ctx, sess.ID, relay.Sanitize(text), true); err != nil {
		return h.paneError(ctx, sess.ID, err)
	}

	if h.tracker != nil {
		h.tracker.ApplyHook(sess.ID, output.HookUserPromptSubmit, "", "")
	}
	h.sessions.Touch(ctx, sess.ID)
	if sess.Status == store.StatusIdleCompacted {
		sess.Status = store.StatusActive
		if err := h.sessions.Update(ctx, sess); err != nil {
			h.log.Warn("reactivate failed", zap.String("session", sess.ID), zap.Error(err))
		}
	}
	return Success(nil)
}

// Voice handles a voice note. The core has no transcriber: an empty payload
// is invalid input, and any other payload gets a not-found failure.
func (h *Handlers) Voice(ctx context.Context, blob []byte, meta Meta) Result {
	if len(blob) == 0 {
		return Failure(Invalid("empty voice payload"))
	}
	return Failure(NotFound("voice transcription is not available on %s", h.machine))
}

// File persists an inbound file next to the session and tells the agent
// where it landed.
func (h *Handlers) File(ctx context.Context, blob []byte, filename string, meta Meta) Result {
	if filename == "" {
		return Failure(Invalid("filename is required"))
	}
	sess, err := h.sessions.Get(ctx, meta.SessionID)
	if err != nil {
		return Failure(NotFound("session %s", meta.SessionID))
	}

	dir := filepath.Join(h.filesDir, sess.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Failure(fmt.Errorf("create files dir: %w", err))
	}
	path := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return Failure(fmt.Errorf("write file: %w", err))
	}

	note := fmt.Sprintf("The user sent a file, saved at: %s", path)
	if _, err := h.bridge.SendText(ctx, sess.ID, note, false); err != nil {
		return h.paneError(ctx, sess.ID, err)
	}
	return Success(map[string]string{"path": path})
}

// paneError recovers a missing pane once (stale state), then surfaces.
func (h *Handlers) paneError(ctx context.Context, sessionID string, err error) Result {
	if !errors.Is(err, bridge.ErrPaneMissing) {
		return Failure(Transient(err))
	}

	sess, getErr := h.sessions.Get(ctx, sessionID)
	if getErr != nil {
		return Failure(NotFound("session %s", sessionID))
	}
	if recreateErr := h.bridge.EnsurePane(ctx, sessionID, sess.ProjectDir); recreateErr != nil {
		return Failure(Stale(fmt.Errorf("pane gone and recreation failed: %w", recreateErr)))
	}
	h.log.Info("pane recreated after external kill", zap.String("session", sessionID))
	return Failure(Stale(err))
}

// meshQuerier adapts the remote dispatcher into the resume lookup.
func (h *Handlers) meshQuerier() session.MeshQuerier {
	if h.remote == nil {
		return nil
	}
	return &remoteQuerier{h: h}
}

type remoteQuerier struct {
	h *Handlers
}

// FindSession asks every online peer for the session. First hit wins.
// Lookups ride the list_sessions op: each peer answers with its active
// sessions and the caller matches locally.
func (q *remoteQuerier) FindSession(ctx context.Context, kind session.ResumeKind, key string) (*session.RemoteSession, error) {
	for _, peer := range q.h.remote.OnlinePeers() {
		res := q.h.remote.Send(ctx, peer, "", OpListSess, nil, "")
		if !res.OK() {
			continue
		}
		var sessions []*store.Session
		if err := res.Decode(&sessions); err != nil {
			continue
		}
		for _, s := range sessions {
			if (kind == session.ResumeByID && s.ID == key) || s.NativeSessionID == key {
				return &session.RemoteSession{ID: s.ID, Computer: s.Computer, Title: s.Title}, nil
			}
		}
	}
	return nil, nil
}
