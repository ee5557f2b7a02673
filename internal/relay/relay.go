// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package relay implements help-desk diversion: customer-session input is
// diverted to an admin thread and back, preserving identity and context.
package relay

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/store"
)

// agentMention matches a word-boundary @agent token. "engagement" and
// "user@agent.com" do not match; a leading line start or whitespace is
// required before the token.
var agentMention = regexp.MustCompile(`(?i)(^|\s)@agent\b`)

// Role labels a relay message author.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Message is one entry of a relay conversation window.
type Message struct {
	Role Role
	Name string
	Text string
	Time time.Time
}

// ThreadPlatform is the admin chat surface relay threads live on.
type ThreadPlatform interface {
	// CreateThread opens a forum thread and returns its channel id.
	CreateThread(ctx context.Context, title, openingPost string) (string, error)
	// PostToThread appends a message to a thread.
	PostToThread(ctx context.Context, threadID, text string) error
}

// PaneInjector injects sanitized text into a session's pane and resets the
// output baseline so the injection is not echoed back as session output.
type PaneInjector interface {
	InjectText(ctx context.Context, sessionID, text string) error
}

// CustomerDeliverer returns admin replies to the customer on their
// originating adapter.
type CustomerDeliverer interface {
	DeliverToCustomer(ctx context.Context, sess *store.Session, text string) error
}

// Sessions is the session persistence surface the relay needs.
type Sessions interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
	GetSessionByRelayChannel(ctx context.Context, channelID string) (*store.Session, error)
	UpdateSession(ctx context.Context, sess *store.Session) error
}

// Notifier announces relay lifecycle to admins.
type Notifier interface {
	RelayOpened(ctx context.Context, sess *store.Session, threadID, reason string)
}

// Manager owns relay state and routing.
type Manager struct {
	sessions  Sessions
	threads   ThreadPlatform
	injector  PaneInjector
	deliverer CustomerDeliverer
	notifier  Notifier
	log       *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	windows map[string][]Message // session id -> conversation window
}

// NewManager wires the relay.
func NewManager(sessions Sessions, threads ThreadPlatform, injector PaneInjector, deliverer CustomerDeliverer, notifier Notifier, log *zap.Logger) *Manager {
	return &Manager{
		sessions:  sessions,
		threads:   threads,
		injector:  injector,
		deliverer: deliverer,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
		windows:   make(map[string][]Message),
	}
}

// Escalate creates the admin thread, activates relay state, and notifies
// admins. Customer sessions only.
func (m *Manager) Escalate(ctx context.Context, sessionID, customerName, reason, contextSummary string) (string, error) {
	sess, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.HumanRole != store.RoleCustomer {
		return "", fmt.Errorf("escalate is customer-only (session role %s)", sess.HumanRole)
	}
	if sess.RelayStatus == store.RelayActive {
		return sess.RelayChannelID, nil
	}

	title := fmt.Sprintf("Help desk: %s", customerName)
	var post strings.Builder
	fmt.Fprintf(&post, "**Reason:** %s\n", reason)
	if contextSummary != "" {
		fmt.Fprintf(&post, "**Context:** %s\n", contextSummary)
	}
	fmt.Fprintf(&post, "**Session:** %s\n", sess.ID)

	threadID, err := m.threads.CreateThread(ctx, title, post.String())
	if err != nil {
		return "", fmt.Errorf("create relay thread: %w", err)
	}

	sess.RelayStatus = store.RelayActive
	sess.RelayChannelID = threadID
	sess.RelayStartedAt = m.now()
	if err := m.sessions.UpdateSession(ctx, sess); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.windows[sess.ID] = nil
	m.mu.Unlock()

	if m.notifier != nil {
		m.notifier.RelayOpened(ctx, sess, threadID, reason)
	}
	m.log.Info("relay opened",
		zap.String("session", sess.ID), zap.String("thread", threadID))
	return threadID, nil
}

// Active reports whether the session is currently diverted.
func (m *Manager) Active(sess *store.Session) bool {
	return sess.RelayStatus == store.RelayActive
}

// HandleCustomerMessage diverts an inbound customer message to the relay
// thread. Returns true when the message was diverted and must NOT be
// injected into the pane.
func (m *Manager) HandleCustomerMessage(ctx context.Context, sess *store.Session, name, platform, text string) (bool, error) {
	if !m.Active(sess) {
		return false, nil
	}

	m.record(sess.ID, Message{Role: RoleCustomer, Name: name, Text: text, Time: m.now()})

	line := fmt.Sprintf("%s (%s): %s", name, platform, text)
	if err := m.threads.PostToThread(ctx, sess.RelayChannelID, line); err != nil {
		return true, fmt.Errorf("forward to thread: %w", err)
	}
	return true, nil
}

// HandleThreadMessage processes an admin-side thread message: either a
// handback trigger or a reply forwarded to the customer. Bot messages are
// ignored entirely.
func (m *Manager) HandleThreadMessage(ctx context.Context, threadID, authorName string, isBot bool, text string) error {
	if isBot {
		return nil
	}
	sess, err := m.sessions.GetSessionByRelayChannel(ctx, threadID)
	if err != nil {
		return err
	}

	if agentMention.MatchString(text) {
		return m.handback(ctx, sess)
	}

	m.record(sess.ID, Message{Role: RoleAdmin, Name: authorName, Text: text, Time: m.now()})

	if err := m.deliverer.DeliverToCustomer(ctx, sess, text); err != nil {
		return fmt.Errorf("deliver to customer: %w", err)
	}
	return nil
}

// handback compiles the relay conversation window, injects it into the
// pane, and clears relay state so the agent resumes with full context.
func (m *Manager) handback(ctx context.Context, sess *store.Session) error {
	m.mu.Lock()
	window := m.windows[sess.ID]
	delete(m.windows, sess.ID)
	m.mu.Unlock()

	block := CompileContext(window, sess.RelayStartedAt)
	if err := m.injector.InjectText(ctx, sess.ID, Sanitize(block)); err != nil {
		return fmt.Errorf("inject relay context: %w", err)
	}

	sess.RelayStatus = store.RelayNone
	sess.RelayChannelID = ""
	sess.RelayStartedAt = time.Time{}
	if err := m.sessions.UpdateSession(ctx, sess); err != nil {
		return err
	}
	m.log.Info("relay handed back", zap.String("session", sess.ID))
	return nil
}

func (m *Manager) record(sessionID string, msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[sessionID] = append(m.windows[sessionID], msg)
}

// CompileContext renders the conversation window since the relay started,
// chronologically ordered with role labels.
func CompileContext(window []Message, since time.Time) string {
	var b strings.Builder
	b.WriteString("Help-desk relay conversation while you were away:\n")
	for _, msg := range window {
		if !since.IsZero() && msg.Time.Before(since) {
			continue
		}
		label := "Customer"
		if msg.Role == RoleAdmin {
			label = "Admin"
		}
		fmt.Fprintf(&b, "[%s %s] %s\n", label, msg.Name, msg.Text)
	}
	b.WriteString("Please continue assisting the customer with this context.")
	return b.String()
}

// Sanitize strips ANSI escapes and control bytes from text bound for the
// terminal pane.
func Sanitize(text string) string {
	stripped := ansi.Strip(text)
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if r == '\n' || r == '\t' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
