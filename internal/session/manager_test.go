// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/agent"
	"github.com/instruktai/teleclaude/internal/bridge"
	"github.com/instruktai/teleclaude/internal/config"
	"github.com/instruktai/teleclaude/internal/store"
)

type recordingNotifier struct {
	created    []string
	closed     []string
	extraction []string
}

func (n *recordingNotifier) SessionCreated(ctx context.Context, sess *store.Session) {
	n.created = append(n.created, sess.ID)
}

func (n *recordingNotifier) SessionClosed(ctx context.Context, sess *store.Session) {
	n.closed = append(n.closed, sess.ID)
}

func (n *recordingNotifier) MemoryExtractionRequested(ctx context.Context, sess *store.Session) {
	n.extraction = append(n.extraction, sess.ID)
}

func testManager(t *testing.T) (*Manager, *bridge.MockTmuxExecutor, *recordingNotifier) {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mock := bridge.NewMockTmuxExecutor()
	br := bridge.New(mock, zap.NewNop())
	launcher := agent.NewLauncher(config.AgentsConfig{
		ClaudeBinary: "claude", GeminiBinary: "gemini", CodexBinary: "codex",
	})
	notifier := &recordingNotifier{}
	cfg := config.SessionsConfig{StickyCap: 2, IdleTimeout: "30m", CustomerSweep: "72h"}
	return NewManager(st, br, launcher, notifier, cfg, "alpha", zap.NewNop()), mock, notifier
}

func createParams() CreateParams {
	return CreateParams{
		ProjectDir:   "/home/dev/proj",
		Agent:        store.AgentClaude,
		AdapterTypes: []store.AdapterKind{store.KindTelegram},
		HumanRole:    store.RoleAdmin,
	}
}

func TestCreate_ProvisionsPaneAndLaunchesAgent(t *testing.T) {
	m, mock, notifier := testManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, createParams())
	require.NoError(t, err)

	assert.True(t, mock.Sessions[bridge.PaneName(sess.ID)], "pane must exist")
	assert.Equal(t, "claude", mock.LastText(bridge.PaneName(sess.ID)))
	assert.Equal(t, store.StatusActive, sess.Status)
	assert.Equal(t, []string{sess.ID}, notifier.created)

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ProjectDir, got.ProjectDir)
}

func TestCreate_RequiresAdapterBinding(t *testing.T) {
	m, _, _ := testManager(t)
	p := createParams()
	p.AdapterTypes = nil
	_, err := m.Create(context.Background(), p)
	assert.Error(t, err)
}

func TestCreate_ResumeNativePassesFlag(t *testing.T) {
	m, mock, _ := testManager(t)
	p := createParams()
	p.ResumeNative = "native-123"

	sess, err := m.Create(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "claude --resume native-123", mock.LastText(bridge.PaneName(sess.ID)))
	assert.Equal(t, "native-123", sess.NativeSessionID)
}

func TestClose_KillsPaneAndNotifies(t *testing.T) {
	m, mock, notifier := testManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, createParams())
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx, sess.ID))

	assert.False(t, mock.Sessions[bridge.PaneName(sess.ID)])
	assert.Equal(t, []string{sess.ID}, notifier.closed)

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusClosed, got.Status)

	// Idempotent
	require.NoError(t, m.Close(ctx, sess.ID))
}

func TestSticky_CapSilentlyRefusesAdds(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.AddSticky(ctx, "a"))
	require.NoError(t, m.AddSticky(ctx, "b"))
	// Cap is 2: refused, classified but silent for callers that ignore it
	err := m.AddSticky(ctx, "c")
	assert.ErrorIs(t, err, ErrStickyCapReached)

	// Re-adding a member is a no-op, not a refusal
	require.NoError(t, m.AddSticky(ctx, "a"))

	// Removals are always allowed
	require.NoError(t, m.RemoveSticky(ctx, "a"))
	require.NoError(t, m.AddSticky(ctx, "c"))

	ids, err := m.Sticky(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids)
}

func TestGuardNesting_RejectsCreateInsideActiveRelay(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()

	initiator, err := m.Create(ctx, createParams())
	require.NoError(t, err)
	initiator.RelayStatus = store.RelayActive
	initiator.RelayChannelID = "thread-1"
	require.NoError(t, m.Update(ctx, initiator))

	p := createParams()
	p.InitiatorID = initiator.ID
	_, err = m.Create(ctx, p)
	assert.ErrorIs(t, err, ErrNestedGathering)
}

func TestGuardNesting_RejectsDoubleNesting(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()

	root, err := m.Create(ctx, createParams())
	require.NoError(t, err)

	p := createParams()
	p.InitiatorID = root.ID
	child, err := m.Create(ctx, p)
	require.NoError(t, err)

	p2 := createParams()
	p2.InitiatorID = child.ID
	_, err = m.Create(ctx, p2)
	assert.ErrorIs(t, err, ErrNestedGathering)
}

func TestResume_LocalByID(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, createParams())
	require.NoError(t, err)

	res, err := m.Resume(ctx, nil, ResumeByID, sess.ID, CreateParams{})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.Equal(t, sess.ID, res.Session.ID)
	assert.False(t, res.Recreated)
}

type fakeMesh struct {
	remote *RemoteSession
}

func (f *fakeMesh) FindSession(ctx context.Context, kind ResumeKind, key string) (*RemoteSession, error) {
	return f.remote, nil
}

func TestResume_MeshFallback(t *testing.T) {
	m, _, _ := testManager(t)
	mesh := &fakeMesh{remote: &RemoteSession{ID: "r1", Computer: "beta"}}

	res, err := m.Resume(context.Background(), mesh, ResumeByID, "r1", CreateParams{})
	require.NoError(t, err)
	require.NotNil(t, res.Remote)
	assert.Equal(t, "beta", res.Remote.Computer)
}

func TestResume_NativeRecreates(t *testing.T) {
	m, mock, _ := testManager(t)

	res, err := m.Resume(context.Background(), nil, ResumeByNativeGemini, "g-77", createParams())
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.True(t, res.Recreated)
	assert.Equal(t, store.AgentGemini, res.Session.Agent)
	assert.Equal(t, "gemini --resume g-77", mock.LastText(bridge.PaneName(res.Session.ID)))
}

func TestResume_ByIDNotFoundNoNativeFallback(t *testing.T) {
	m, _, _ := testManager(t)
	_, err := m.Resume(context.Background(), nil, ResumeByID, "ghost", CreateParams{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIdleReaper_CompactsIdleAdminSessions(t *testing.T) {
	m, mock, notifier := testManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, createParams())
	require.NoError(t, err)

	// Not yet idle
	reaper := NewIdleReaper(m, zap.NewNop())
	reaper.CompactionPass(ctx)
	assert.Empty(t, notifier.extraction)

	// Make it idle
	m.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	reaper.CompactionPass(ctx)

	assert.Equal(t, []string{sess.ID}, notifier.extraction)
	assert.Equal(t, compactDirective, mock.LastText(bridge.PaneName(sess.ID)))

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusIdleCompacted, got.Status)
	assert.True(t, isIdle(sess, sess.LastActivityAt, 0))
}

func TestIdleReaper_SweepClosesOnlyStaleCustomers(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()

	admin, err := m.Create(ctx, createParams())
	require.NoError(t, err)

	p := createParams()
	p.HumanRole = store.RoleCustomer
	customer, err := m.Create(ctx, p)
	require.NoError(t, err)

	reaper := NewIdleReaper(m, zap.NewNop())

	// 30 minutes of silence: nobody is swept; customers never hit the idle
	// timeout path.
	m.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	reaper.SweepPass(ctx)
	got, _ := m.Get(ctx, customer.ID)
	assert.NotEqual(t, store.StatusClosed, got.Status)

	// 73 hours of silence: the customer is terminated, the admin is not
	// touched by the sweep.
	m.now = func() time.Time { return time.Now().Add(73 * time.Hour) }
	reaper.SweepPass(ctx)

	got, _ = m.Get(ctx, customer.ID)
	assert.Equal(t, store.StatusClosed, got.Status)
	got, _ = m.Get(ctx, admin.ID)
	assert.NotEqual(t, store.StatusClosed, got.Status)
}
