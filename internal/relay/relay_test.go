// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/store"
)

type fakeSessions struct {
	byID map[string]*store.Session
}

func (f *fakeSessions) GetSession(ctx context.Context, id string) (*store.Session, error) {
	if s, ok := f.byID[id]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeSessions) GetSessionByRelayChannel(ctx context.Context, channelID string) (*store.Session, error) {
	for _, s := range f.byID {
		if s.RelayStatus == store.RelayActive && s.RelayChannelID == channelID {
			return s, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeSessions) UpdateSession(ctx context.Context, sess *store.Session) error {
	f.byID[sess.ID] = sess
	return nil
}

type fakeThreads struct {
	threads map[string][]string
	nextID  int
}

func (f *fakeThreads) CreateThread(ctx context.Context, title, openingPost string) (string, error) {
	f.nextID++
	id := fmt.Sprintf("thread-%d", f.nextID)
	f.threads[id] = []string{openingPost}
	return id, nil
}

func (f *fakeThreads) PostToThread(ctx context.Context, threadID, text string) error {
	f.threads[threadID] = append(f.threads[threadID], text)
	return nil
}

type fakeInjector struct {
	injected []string
}

func (f *fakeInjector) InjectText(ctx context.Context, sessionID, text string) error {
	f.injected = append(f.injected, text)
	return nil
}

type fakeDeliverer struct {
	delivered []string
}

func (f *fakeDeliverer) DeliverToCustomer(ctx context.Context, sess *store.Session, text string) error {
	f.delivered = append(f.delivered, text)
	return nil
}

func setup() (*Manager, *fakeSessions, *fakeThreads, *fakeInjector, *fakeDeliverer) {
	sessions := &fakeSessions{byID: map[string]*store.Session{
		"cust-1": {
			ID:           "cust-1",
			Status:       store.StatusActive,
			HumanRole:    store.RoleCustomer,
			AdapterTypes: []store.AdapterKind{store.KindTelegram},
		},
	}}
	threads := &fakeThreads{threads: make(map[string][]string)}
	injector := &fakeInjector{}
	deliverer := &fakeDeliverer{}
	m := NewManager(sessions, threads, injector, deliverer, nil, zap.NewNop())
	return m, sessions, threads, injector, deliverer
}

func TestEscalate_OpensThreadAndActivatesRelay(t *testing.T) {
	m, sessions, threads, _, _ := setup()
	ctx := context.Background()

	threadID, err := m.Escalate(ctx, "cust-1", "Alice", "billing issue", "premium plan")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", threadID)

	sess := sessions.byID["cust-1"]
	assert.Equal(t, store.RelayActive, sess.RelayStatus)
	assert.Equal(t, threadID, sess.RelayChannelID)
	assert.False(t, sess.RelayStartedAt.IsZero())

	opening := threads.threads[threadID][0]
	assert.Contains(t, opening, "billing issue")
	assert.Contains(t, opening, "premium plan")
	assert.Contains(t, opening, "cust-1")

	// Idempotent: a second escalate returns the existing thread.
	again, err := m.Escalate(ctx, "cust-1", "Alice", "billing issue", "")
	require.NoError(t, err)
	assert.Equal(t, threadID, again)
}

func TestEscalate_CustomerOnly(t *testing.T) {
	m, sessions, _, _, _ := setup()
	sessions.byID["adm-1"] = &store.Session{ID: "adm-1", HumanRole: store.RoleAdmin}
	_, err := m.Escalate(context.Background(), "adm-1", "Bob", "x", "")
	assert.Error(t, err)
}

func TestCustomerMessage_DivertedNotInjected(t *testing.T) {
	m, _, threads, injector, _ := setup()
	ctx := context.Background()

	threadID, err := m.Escalate(ctx, "cust-1", "Alice", "billing", "")
	require.NoError(t, err)

	sess, _ := m.sessions.GetSession(ctx, "cust-1")
	diverted, err := m.HandleCustomerMessage(ctx, sess, "Alice", "telegram", "my invoice is wrong")
	require.NoError(t, err)
	assert.True(t, diverted)

	assert.Contains(t, threads.threads[threadID], "Alice (telegram): my invoice is wrong")
	assert.Empty(t, injector.injected, "diverted input must not reach the pane")
}

func TestCustomerMessage_InactiveRelayPassesThrough(t *testing.T) {
	m, sessions, _, _, _ := setup()
	sess := sessions.byID["cust-1"]
	diverted, err := m.HandleCustomerMessage(context.Background(), sess, "Alice", "telegram", "hello")
	require.NoError(t, err)
	assert.False(t, diverted)
}

func TestThreadMessage_ForwardedToCustomer(t *testing.T) {
	m, _, _, _, deliverer := setup()
	ctx := context.Background()

	threadID, err := m.Escalate(ctx, "cust-1", "Alice", "billing", "")
	require.NoError(t, err)

	require.NoError(t, m.HandleThreadMessage(ctx, threadID, "Bob", false, "Looking into it now"))
	assert.Equal(t, []string{"Looking into it now"}, deliverer.delivered)

	// Bot messages are ignored.
	require.NoError(t, m.HandleThreadMessage(ctx, threadID, "relay-bot", true, "forwarded text"))
	assert.Len(t, deliverer.delivered, 1)
}

func TestHandback_CompilesContextAndClearsRelay(t *testing.T) {
	m, sessions, _, injector, _ := setup()
	ctx := context.Background()

	threadID, err := m.Escalate(ctx, "cust-1", "Alice", "billing", "")
	require.NoError(t, err)

	sess, _ := m.sessions.GetSession(ctx, "cust-1")
	_, err = m.HandleCustomerMessage(ctx, sess, "Alice", "telegram", "invoice \x1b[31mwrong\x1b[0m")
	require.NoError(t, err)
	require.NoError(t, m.HandleThreadMessage(ctx, threadID, "Bob", false, "refund issued"))

	require.NoError(t, m.HandleThreadMessage(ctx, threadID, "Bob", false, "@agent take it from here"))

	require.Len(t, injector.injected, 1)
	block := injector.injected[0]
	// Chronological, labelled, sanitized.
	customerIdx := strings.Index(block, "[Customer Alice] invoice wrong")
	adminIdx := strings.Index(block, "[Admin Bob] refund issued")
	assert.GreaterOrEqual(t, customerIdx, 0)
	assert.Greater(t, adminIdx, customerIdx)
	assert.NotContains(t, block, "\x1b")

	got := sessions.byID["cust-1"]
	assert.Equal(t, store.RelayNone, got.RelayStatus)
	assert.Empty(t, got.RelayChannelID)
	assert.True(t, got.RelayStartedAt.IsZero())
}

func TestAgentMention_WordBoundary(t *testing.T) {
	tests := []struct {
		text  string
		match bool
	}{
		{"@agent please resume", true},
		{"ok @agent", true},
		{"@AGENT summary", true},
		{"boosting engagement metrics", false},
		{"mail user@agent.com about it", false},
		{"@agents assemble", false},
		{"see @agent.", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.match, agentMention.MatchString(tt.text), tt.text)
	}
}

func TestSanitize(t *testing.T) {
	in := "\x1b[1mbold\x1b[0m\x07 line\nnext\ttab\x00"
	out := Sanitize(in)
	assert.Equal(t, "bold line\nnext\ttab", out)
}

func TestCompileContext_FiltersBeforeWindow(t *testing.T) {
	start := time.Now()
	window := []Message{
		{Role: RoleCustomer, Name: "A", Text: "old", Time: start.Add(-time.Hour)},
		{Role: RoleAdmin, Name: "B", Text: "new", Time: start.Add(time.Minute)},
	}
	block := CompileContext(window, start)
	assert.NotContains(t, block, "old")
	assert.Contains(t, block, "[Admin B] new")
}
