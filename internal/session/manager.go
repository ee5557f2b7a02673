// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session owns session creation, idle policy, sticky pins, and
// resume.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/agent"
	"github.com/instruktai/teleclaude/internal/bridge"
	"github.com/instruktai/teleclaude/internal/config"
	"github.com/instruktai/teleclaude/internal/output"
	"github.com/instruktai/teleclaude/internal/store"
)

// ErrStickyCapReached marks a silently refused sticky addition.
var ErrStickyCapReached = errors.New("sticky cap reached")

// ErrNestedGathering marks a rejected recursive top-level operation.
var ErrNestedGathering = errors.New("nested gathering rejected")

// Notifier receives lifecycle signals the manager does not own.
type Notifier interface {
	// SessionCreated fires after a session row exists and its pane is up.
	SessionCreated(ctx context.Context, sess *store.Session)
	// SessionClosed fires after a session is closed.
	SessionClosed(ctx context.Context, sess *store.Session)
	// MemoryExtractionRequested fires when idle compaction wants a memory
	// pass before /compact is injected.
	MemoryExtractionRequested(ctx context.Context, sess *store.Session)
}

// CreateParams are the arguments for session creation.
type CreateParams struct {
	Computer        string
	ProjectDir      string
	Agent           store.AgentVariant
	ThinkingMode    store.ThinkingMode
	Title           string
	AdapterTypes    []store.AdapterKind
	AdapterMetadata store.AdapterMetadata
	HumanRole       store.HumanRole
	HumanEmail      string
	InitiatorID     string
	// ResumeNative re-invokes the agent CLI with --resume <handle>.
	ResumeNative string
}

// Manager creates, finds, and retires sessions.
type Manager struct {
	store    *store.Store
	bridge   *bridge.Bridge
	launcher *agent.Launcher
	notifier Notifier
	cfg      config.SessionsConfig
	machine  string
	prep     *output.PrepLock
	log      *zap.Logger
	now      func() time.Time
}

// NewManager wires the session manager.
func NewManager(st *store.Store, br *bridge.Bridge, launcher *agent.Launcher, notifier Notifier, cfg config.SessionsConfig, machine string, log *zap.Logger) *Manager {
	return &Manager{
		store:    st,
		bridge:   br,
		launcher: launcher,
		notifier: notifier,
		cfg:      cfg,
		machine:  machine,
		prep:     output.NewPrepLock(),
		log:      log,
		now:      time.Now,
	}
}

// Create provisions a pane, starts the agent CLI in it, persists the row,
// and returns the session.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*store.Session, error) {
	if p.ProjectDir == "" {
		return nil, fmt.Errorf("project_dir is required")
	}
	if len(p.AdapterTypes) == 0 {
		return nil, fmt.Errorf("at least one adapter binding is required")
	}
	if p.Agent == "" {
		p.Agent = store.AgentClaude
	}
	if p.ThinkingMode == "" {
		p.ThinkingMode = store.ThinkingMedium
	}
	if p.HumanRole == "" {
		p.HumanRole = store.RoleAdmin
	}

	if err := m.guardNesting(ctx, p.InitiatorID); err != nil {
		return nil, err
	}

	cmdLine, err := m.launcher.CommandLine(p.Agent, p.ThinkingMode, p.ResumeNative)
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := &store.Session{
		ID:                 uuid.NewString(),
		Computer:           m.machine,
		ProjectDir:         p.ProjectDir,
		Agent:              p.Agent,
		ThinkingMode:       p.ThinkingMode,
		Title:              p.Title,
		Status:             store.StatusActive,
		AdapterTypes:       p.AdapterTypes,
		AdapterMetadata:    p.AdapterMetadata,
		InitiatorSessionID: p.InitiatorID,
		HumanRole:          p.HumanRole,
		HumanEmail:         p.HumanEmail,
		NativeSessionID:    p.ResumeNative,
		CreatedAt:          now,
		LastActivityAt:     now,
	}
	sess.Pane = bridge.PaneName(sess.ID)
	sess.IdentityKey = sess.DeriveIdentityKey()

	// Prep is single-flight per (canonical project root, session id); the
	// key is project-scoped, so prep on one repo never blocks another.
	release := m.prep.Acquire(p.ProjectDir, sess.ID)
	defer release()

	if err := m.bridge.EnsurePane(ctx, sess.ID, p.ProjectDir); err != nil {
		return nil, fmt.Errorf("provision pane: %w", err)
	}
	// Start the agent CLI; no sentinel, the CLI is long-running.
	if _, err := m.bridge.SendText(ctx, sess.ID, cmdLine, false); err != nil {
		m.bridge.KillPane(ctx, sess.ID)
		return nil, fmt.Errorf("launch agent: %w", err)
	}

	if err := m.store.CreateSession(ctx, sess); err != nil {
		m.bridge.KillPane(ctx, sess.ID)
		return nil, err
	}

	if m.notifier != nil {
		m.notifier.SessionCreated(ctx, sess)
	}
	m.log.Info("session created",
		zap.String("session", sess.ID),
		zap.String("agent", string(sess.Agent)),
		zap.String("project", sess.ProjectDir))
	return sess, nil
}

// guardNesting rejects a top-level create that would recursively start
// another gathering from inside an active relay or nested AI chain.
func (m *Manager) guardNesting(ctx context.Context, initiatorID string) error {
	if initiatorID == "" {
		return nil
	}
	initiator, err := m.store.GetSession(ctx, initiatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if initiator.RelayStatus == store.RelayActive {
		return ErrNestedGathering
	}
	if initiator.InitiatorSessionID != "" {
		// Two levels of AI-to-AI nesting is the ceiling.
		return ErrNestedGathering
	}
	return nil
}

// Get returns a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*store.Session, error) {
	return m.store.GetSession(ctx, id)
}

// GetSession implements the adapter.SessionLookup interface.
func (m *Manager) GetSession(ctx context.Context, id string) (*store.Session, error) {
	return m.store.GetSession(ctx, id)
}

// List returns sessions, optionally only active ones.
func (m *Manager) List(ctx context.Context, activeOnly bool) ([]*store.Session, error) {
	if activeOnly {
		return m.store.ListSessions(ctx, store.StatusActive)
	}
	return m.store.ListSessions(ctx, "")
}

// Update persists a mutated session row.
func (m *Manager) Update(ctx context.Context, sess *store.Session) error {
	return m.store.UpdateSession(ctx, sess)
}

// Touch bumps last activity.
func (m *Manager) Touch(ctx context.Context, id string) error {
	return m.store.TouchActivity(ctx, id, m.now())
}

// RecordSummary stores the latest agent-turn summary for listings.
func (m *Manager) RecordSummary(ctx context.Context, id, summary string) error {
	return m.store.SetSummary(ctx, id, summary, m.now())
}

// Close soft-closes a session: the pane is killed, the row survives.
func (m *Manager) Close(ctx context.Context, id string) error {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status == store.StatusClosed {
		return nil
	}

	if err := m.bridge.KillPane(ctx, id); err != nil {
		m.log.Warn("kill pane failed on close", zap.String("session", id), zap.Error(err))
	}
	sess.Status = store.StatusClosed
	sess.LastActivityAt = m.now()
	if err := m.store.UpdateSession(ctx, sess); err != nil {
		return err
	}
	m.store.RemoveSticky(ctx, id)

	if m.notifier != nil {
		m.notifier.SessionClosed(ctx, sess)
	}
	m.log.Info("session closed", zap.String("session", id))
	return nil
}

// AddSticky pins a session, silently refusing beyond the cap.
func (m *Manager) AddSticky(ctx context.Context, id string) error {
	ids, err := m.store.ListSticky(ctx)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	if len(ids) >= m.cfg.StickyCap {
		m.log.Debug("sticky add refused at cap", zap.String("session", id))
		return ErrStickyCapReached
	}
	return m.store.AddSticky(ctx, id, m.now())
}

// RemoveSticky unpins a session. Removals are always allowed.
func (m *Manager) RemoveSticky(ctx context.Context, id string) error {
	return m.store.RemoveSticky(ctx, id)
}

// Sticky lists pinned session ids.
func (m *Manager) Sticky(ctx context.Context) ([]string, error) {
	return m.store.ListSticky(ctx)
}
