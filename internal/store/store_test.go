// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "teleclaude.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(id string) *Session {
	now := time.Now().Truncate(time.Second)
	return &Session{
		ID:           id,
		Computer:     "alpha",
		Pane:         "tc-" + id,
		ProjectDir:   "/home/dev/project",
		Agent:        AgentClaude,
		ThinkingMode: ThinkingMedium,
		Title:        "test session",
		Status:       StatusActive,
		AdapterTypes: []AdapterKind{KindTelegram, KindRedis},
		AdapterMetadata: AdapterMetadata{
			Telegram: &TelegramMeta{ChatID: 42, UserID: 7},
			Redis:    &RedisMeta{StreamName: "output:" + id},
		},
		HumanRole:      RoleAdmin,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := testSession("s1")
	sess.IdentityKey = sess.DeriveIdentityKey()
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sess.Computer, got.Computer)
	assert.Equal(t, AgentClaude, got.Agent)
	assert.Equal(t, []AdapterKind{KindTelegram, KindRedis}, got.AdapterTypes)
	require.NotNil(t, got.AdapterMetadata.Telegram)
	assert.Equal(t, int64(42), got.AdapterMetadata.Telegram.ChatID)
	assert.Equal(t, "telegram:7", got.IdentityKey)
	assert.True(t, got.RelayStartedAt.IsZero())
}

func TestGetSession_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetSession(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSession_RelayFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := testSession("s1")
	require.NoError(t, s.CreateSession(ctx, sess))

	sess.RelayStatus = RelayActive
	sess.RelayChannelID = "thread-9"
	sess.RelayStartedAt = time.Now().Truncate(time.Second)
	require.NoError(t, s.UpdateSession(ctx, sess))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, RelayActive, got.RelayStatus)
	assert.Equal(t, "thread-9", got.RelayChannelID)
	assert.False(t, got.RelayStartedAt.IsZero())
}

func TestGetSessionByNative(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := testSession("s1")
	sess.NativeSessionID = "native-abc"
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSessionByNative(ctx, AgentClaude, "native-abc")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)

	_, err = s.GetSessionByNative(ctx, AgentGemini, "native-abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSessions_StatusFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testSession("a")
	b := testSession("b")
	b.Status = StatusClosed
	require.NoError(t, s.CreateSession(ctx, a))
	require.NoError(t, s.CreateSession(ctx, b))

	active, err := s.ListSessions(ctx, StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].ID)

	all, err := s.ListSessions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSticky(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.AddSticky(ctx, "a", now))
	require.NoError(t, s.AddSticky(ctx, "b", now.Add(time.Second)))
	// Duplicate add is ignored
	require.NoError(t, s.AddSticky(ctx, "a", now.Add(2*time.Second)))

	ids, err := s.ListSticky(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, s.RemoveSticky(ctx, "a"))
	ids, err = s.ListSticky(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestPeers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	p := &Peer{Machine: "beta", User: "dev", Host: "beta.local", LastHeartbeat: now}
	require.NoError(t, s.UpsertPeer(ctx, p))

	// Heartbeat refresh updates in place
	p.LastHeartbeat = now.Add(10 * time.Second)
	require.NoError(t, s.UpsertPeer(ctx, p))

	peers, err := s.ListPeers(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, now.Add(10*time.Second).Unix(), peers[0].LastHeartbeat.Unix())

	require.NoError(t, s.PrunePeers(ctx, now.Add(time.Minute)))
	peers, err = s.ListPeers(ctx)
	require.NoError(t, err)
	assert.Empty(t, peers)
}

func TestPeerOnline(t *testing.T) {
	now := time.Now()
	p := &Peer{Machine: "b", LastHeartbeat: now.Add(-20 * time.Second)}
	assert.True(t, p.Online(now, 30*time.Second))
	assert.False(t, p.Online(now, 10*time.Second))
}
