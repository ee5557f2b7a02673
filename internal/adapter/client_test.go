// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/commands"
	"github.com/instruktai/teleclaude/internal/store"
)

// MockAdapter records sends and deletes.
type MockAdapter struct {
	mu       sync.Mutex
	kind     store.AdapterKind
	mode     RenderMode
	Sent     []string
	Deleted  []string
	FailSend bool
	nextID   int
}

func NewMockAdapter(kind store.AdapterKind) *MockAdapter {
	return &MockAdapter{kind: kind, mode: RenderHuman}
}

func (m *MockAdapter) Kind() store.AdapterKind { return m.kind }
func (m *MockAdapter) RenderMode() RenderMode  { return m.mode }

func (m *MockAdapter) Start(ctx context.Context) error { return nil }
func (m *MockAdapter) Stop(ctx context.Context) error  { return nil }

func (m *MockAdapter) SendMessage(ctx context.Context, sess *store.Session, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return "", fmt.Errorf("rate limited")
	}
	m.Sent = append(m.Sent, text)
	m.nextID++
	return fmt.Sprintf("m%d", m.nextID), nil
}

func (m *MockAdapter) DeleteMessage(ctx context.Context, sess *store.Session, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, messageID)
	return nil
}

func (m *MockAdapter) DeliverToSession(ctx context.Context, sess *store.Session, text, originHint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, originHint+": "+text)
	return nil
}

func (m *MockAdapter) SentCopy() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// mockLookup serves sessions from a map.
type mockLookup struct {
	mu       sync.Mutex
	sessions map[string]*store.Session
}

func (m *mockLookup) GetSession(ctx context.Context, id string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func testClient(sessions ...*store.Session) (*Client, *mockLookup) {
	lookup := &mockLookup{sessions: make(map[string]*store.Session)}
	for _, s := range sessions {
		lookup.sessions[s.ID] = s
	}
	return NewClient(lookup, time.Second, zap.NewNop()), lookup
}

func activeSession(id string, kinds ...store.AdapterKind) *store.Session {
	return &store.Session{
		ID:           id,
		Status:       store.StatusActive,
		AdapterTypes: kinds,
	}
}

func TestSendMessage_BroadcastsToAllBoundAdapters(t *testing.T) {
	sess := activeSession("s1", store.KindRedis, store.KindTelegram)
	c, _ := testClient(sess)

	redis := NewMockAdapter(store.KindRedis)
	tg := NewMockAdapter(store.KindTelegram)
	discord := NewMockAdapter(store.KindDiscord) // not bound
	c.Register(redis)
	c.Register(tg)
	c.Register(discord)

	c.SendMessage(context.Background(), "s1", "hello\n")

	assert.Equal(t, []string{"hello\n"}, redis.SentCopy())
	assert.Equal(t, []string{"hello\n"}, tg.SentCopy())
	assert.Empty(t, discord.SentCopy())
}

func TestSendMessage_PerAdapterFailureIsIsolated(t *testing.T) {
	sess := activeSession("s1", store.KindRedis, store.KindTelegram)
	c, _ := testClient(sess)

	redis := NewMockAdapter(store.KindRedis)
	redis.FailSend = true
	tg := NewMockAdapter(store.KindTelegram)
	c.Register(redis)
	c.Register(tg)

	c.SendMessage(context.Background(), "s1", "hi")
	assert.Equal(t, []string{"hi"}, tg.SentCopy())
}

func TestSendMessage_DropsUnknownAndClosed(t *testing.T) {
	closed := activeSession("s2", store.KindRedis)
	closed.Status = store.StatusClosed
	c, _ := testClient(closed)

	redis := NewMockAdapter(store.KindRedis)
	c.Register(redis)

	c.SendMessage(context.Background(), "ghost", "x")
	c.SendMessage(context.Background(), "s2", "x")
	assert.Empty(t, redis.SentCopy())
}

func TestSendMessage_OrderPreservedPerAdapter(t *testing.T) {
	sess := activeSession("s1", store.KindRedis)
	c, _ := testClient(sess)
	redis := NewMockAdapter(store.KindRedis)
	c.Register(redis)

	for i := 0; i < 10; i++ {
		c.SendMessage(context.Background(), "s1", fmt.Sprintf("msg-%d", i))
	}

	sent := redis.SentCopy()
	require.Len(t, sent, 10)
	for i, text := range sent {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), text)
	}
}

func TestNotices_DeletedOnNextSubstantiveMessage(t *testing.T) {
	sess := activeSession("s1", store.KindTelegram)
	c, _ := testClient(sess)
	tg := NewMockAdapter(store.KindTelegram)
	c.Register(tg)

	c.SendNotice(context.Background(), "s1", "working on it…")
	c.SendMessage(context.Background(), "s1", "done")

	assert.Equal(t, []string{"m1"}, tg.Deleted)
	assert.Equal(t, []string{"working on it…", "done"}, tg.SentCopy())
}

func TestHandleEvent_Dedupe(t *testing.T) {
	c, _ := testClient()
	var calls int
	c.SetDispatcher(func(ctx context.Context, event Event, meta Metadata) commands.Result {
		calls++
		return commands.Success(nil)
	})

	meta := Metadata{Kind: store.KindTelegram, SessionID: "s1", MessageID: "42"}
	ev := Event{Type: EventMessage, Text: "hello"}

	res := c.HandleEvent(context.Background(), ev, meta)
	assert.True(t, res.OK())
	// Same session + origin message id from a second adapter: dropped.
	meta2 := meta
	meta2.Kind = store.KindRest
	res = c.HandleEvent(context.Background(), ev, meta2)
	assert.True(t, res.OK())
	assert.Equal(t, 1, calls)

	// Different message id passes.
	meta3 := meta
	meta3.MessageID = "43"
	c.HandleEvent(context.Background(), ev, meta3)
	assert.Equal(t, 2, calls)
}

func TestHandleEvent_NoDispatcher(t *testing.T) {
	c, _ := testClient()
	res := c.HandleEvent(context.Background(), Event{Type: EventMessage}, Metadata{})
	require.False(t, res.OK())
	assert.Equal(t, string(commands.KindContract), res.Error.Code)
}
