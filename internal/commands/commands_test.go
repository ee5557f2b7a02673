// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/agent"
	"github.com/instruktai/teleclaude/internal/bridge"
	"github.com/instruktai/teleclaude/internal/config"
	"github.com/instruktai/teleclaude/internal/output"
	"github.com/instruktai/teleclaude/internal/relay"
	"github.com/instruktai/teleclaude/internal/session"
	"github.com/instruktai/teleclaude/internal/store"
)

type fakeThreads struct {
	posts map[string][]string
}

func (f *fakeThreads) CreateThread(ctx context.Context, title, openingPost string) (string, error) {
	f.posts["t1"] = []string{openingPost}
	return "t1", nil
}

func (f *fakeThreads) PostToThread(ctx context.Context, threadID, text string) error {
	f.posts[threadID] = append(f.posts[threadID], text)
	return nil
}

type nopInjector struct{}

func (nopInjector) InjectText(ctx context.Context, sessionID, text string) error { return nil }

type nopDeliverer struct{}

func (nopDeliverer) DeliverToCustomer(ctx context.Context, sess *store.Session, text string) error {
	return nil
}

type env struct {
	h       *Handlers
	mock    *bridge.MockTmuxExecutor
	threads *fakeThreads
	mgr     *session.Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mock := bridge.NewMockTmuxExecutor()
	br := bridge.New(mock, zap.NewNop())
	launcher := agent.NewLauncher(config.AgentsConfig{ClaudeBinary: "claude", GeminiBinary: "gemini", CodexBinary: "codex"})
	mgr := session.NewManager(st, br, launcher, nil, config.SessionsConfig{StickyCap: 5}, "alpha", zap.NewNop())

	threads := &fakeThreads{posts: make(map[string][]string)}
	rel := relay.NewManager(st, threads, nopInjector{}, nopDeliverer{}, nil, zap.NewNop())
	tracker := output.NewStateTracker()

	h := NewHandlers(mgr, br, nil, tracker, rel, nil, "alpha", t.TempDir(), nil, zap.NewNop())
	return &env{h: h, mock: mock, threads: threads, mgr: mgr}
}

func raw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandle_UnknownOperation(t *testing.T) {
	e := newEnv(t)
	res := e.h.Handle(context.Background(), "frobnicate", nil, Meta{})
	require.False(t, res.OK())
	assert.Equal(t, string(KindInvalid), res.Error.Code)
	assert.Contains(t, res.Error.Message, "frobnicate")
}

func TestNewSession_DefaultsAdapterFromMeta(t *testing.T) {
	e := newEnv(t)
	res := e.h.Handle(context.Background(), OpNewSession,
		raw(t, map[string]string{"project_dir": "/p"}),
		Meta{AdapterKind: store.KindTelegram})
	require.True(t, res.OK(), "%+v", res.Error)

	var sess store.Session
	require.NoError(t, res.Decode(&sess))
	assert.Equal(t, []store.AdapterKind{store.KindTelegram}, sess.AdapterTypes)
	assert.Equal(t, "alpha", sess.Computer)
}

func TestNewSession_MalformedArgs(t *testing.T) {
	e := newEnv(t)
	res := e.h.Handle(context.Background(), OpNewSession, json.RawMessage(`{"project_dir": 7}`), Meta{})
	require.False(t, res.OK())
	assert.Equal(t, string(KindInvalid), res.Error.Code)
}

func TestMessage_InjectsWithSentinel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	createRes := e.h.NewSession(ctx, raw(t, map[string]string{"project_dir": "/p"}), Meta{AdapterKind: store.KindRest})
	var sess store.Session
	require.NoError(t, createRes.Decode(&sess))
	e.mock.Foreground[bridge.PaneName(sess.ID)] = "bash"

	res := e.h.Message(ctx, "ls -la", Meta{SessionID: sess.ID, AdapterKind: store.KindRest})
	require.True(t, res.OK())

	sent := e.mock.LastText(bridge.PaneName(sess.ID))
	assert.True(t, strings.HasPrefix(sent, "ls -la; echo"))
}

func TestMessage_CustomerRelayDiversion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	createRes := e.h.NewSession(ctx, raw(t, NewSessionArgs{
		ProjectDir: "/p",
		HumanRole:  store.RoleCustomer,
	}), Meta{AdapterKind: store.KindTelegram})
	var sess store.Session
	require.NoError(t, createRes.Decode(&sess))

	escRes := e.h.Escalate(ctx, raw(t, map[string]string{
		"customer_name": "Alice", "reason": "billing",
	}), Meta{SessionID: sess.ID})
	require.True(t, escRes.OK(), "%+v", escRes.Error)

	before := len(e.mock.SentText)
	res := e.h.Message(ctx, "my invoice is wrong", Meta{
		SessionID: sess.ID, AdapterKind: store.KindTelegram, UserName: "Alice",
	})
	require.True(t, res.OK())

	var out map[string]bool
	require.NoError(t, res.Decode(&out))
	assert.True(t, out["diverted"])
	// Nothing reached the pane.
	assert.Len(t, e.mock.SentText, before)
	assert.Contains(t, e.threads.posts["t1"], "Alice (telegram): my invoice is wrong")
}

func TestCancel_UnknownSession(t *testing.T) {
	e := newEnv(t)
	res := e.h.Cancel(context.Background(), raw(t, map[string]string{"session_id": "ghost"}))
	require.False(t, res.OK())
}

func TestResize_Validation(t *testing.T) {
	e := newEnv(t)
	res := e.h.Resize(context.Background(), raw(t, map[string]interface{}{
		"session_id": "s", "cols": 0, "rows": 10,
	}))
	require.False(t, res.OK())
	assert.Equal(t, string(KindInvalid), res.Error.Code)
}

func TestEndSession_ClosesAndIsNotFoundAfterwardsForUnknown(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	createRes := e.h.NewSession(ctx, raw(t, map[string]string{"project_dir": "/p"}), Meta{AdapterKind: store.KindRest})
	var sess store.Session
	require.NoError(t, createRes.Decode(&sess))

	res := e.h.EndSession(ctx, raw(t, map[string]string{"session_id": sess.ID}), Meta{})
	require.True(t, res.OK())

	res = e.h.EndSession(ctx, raw(t, map[string]string{"session_id": "ghost"}), Meta{})
	require.False(t, res.OK())
	assert.Equal(t, string(KindNotFound), res.Error.Code)
}

func TestFile_SavesAndNotifiesPane(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	createRes := e.h.NewSession(ctx, raw(t, map[string]string{"project_dir": "/p"}), Meta{AdapterKind: store.KindRest})
	var sess store.Session
	require.NoError(t, createRes.Decode(&sess))

	res := e.h.File(ctx, []byte("data"), "report.pdf", Meta{SessionID: sess.ID})
	require.True(t, res.OK())

	var out map[string]string
	require.NoError(t, res.Decode(&out))
	assert.True(t, strings.HasSuffix(out["path"], "report.pdf"))
	assert.Contains(t, e.mock.LastText(bridge.PaneName(sess.ID)), out["path"])
}

func TestPin_ThroughDispatchWithCapRefusal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		res := e.h.NewSession(ctx, raw(t, map[string]string{"project_dir": "/p"}), Meta{AdapterKind: store.KindRest})
		var sess store.Session
		require.NoError(t, res.Decode(&sess))
		ids = append(ids, sess.ID)
	}

	// Cap is 5: the first five pins land, the sixth is silently refused
	// with a success envelope.
	for i := 0; i < 5; i++ {
		res := e.h.Handle(ctx, OpPin, raw(t, map[string]string{"session_id": ids[i]}), Meta{})
		require.True(t, res.OK())
		var out map[string]interface{}
		require.NoError(t, res.Decode(&out))
		assert.Equal(t, true, out["pinned"])
	}
	res := e.h.Handle(ctx, OpPin, raw(t, map[string]string{"session_id": ids[5]}), Meta{})
	require.True(t, res.OK())
	var out map[string]interface{}
	require.NoError(t, res.Decode(&out))
	assert.Equal(t, false, out["pinned"])

	var sticky []string
	require.NoError(t, e.h.Handle(ctx, OpListSticky, nil, Meta{}).Decode(&sticky))
	assert.Equal(t, ids[:5], sticky)

	// Removals are always allowed; the freed slot accepts a new pin.
	require.True(t, e.h.Handle(ctx, OpUnpin, raw(t, map[string]string{"session_id": ids[0]}), Meta{}).OK())
	res = e.h.Handle(ctx, OpPin, raw(t, map[string]string{"session_id": ids[5]}), Meta{})
	require.True(t, res.OK())
	require.NoError(t, res.Decode(&out))
	assert.Equal(t, true, out["pinned"])
}

func TestPin_DefaultsToCallerSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res := e.h.NewSession(ctx, raw(t, map[string]string{"project_dir": "/p"}), Meta{AdapterKind: store.KindRest})
	var sess store.Session
	require.NoError(t, res.Decode(&sess))

	require.True(t, e.h.Pin(ctx, nil, Meta{SessionID: sess.ID}).OK())

	var sticky []string
	require.NoError(t, e.h.ListSticky(ctx).Decode(&sticky))
	assert.Equal(t, []string{sess.ID}, sticky)
}

func TestPin_UnknownSession(t *testing.T) {
	e := newEnv(t)
	res := e.h.Pin(context.Background(), raw(t, map[string]string{"session_id": "ghost"}), Meta{})
	require.False(t, res.OK())
	assert.Equal(t, string(KindNotFound), res.Error.Code)
}

func TestResultEnvelope(t *testing.T) {
	res := Success(map[string]int{"n": 1})
	require.True(t, res.OK())
	var v map[string]int
	require.NoError(t, res.Decode(&v))
	assert.Equal(t, 1, v["n"])

	fail := Failure(Invalid("bad %s", "arg"))
	require.False(t, fail.OK())
	assert.Equal(t, string(KindInvalid), fail.Error.Code)
	assert.Error(t, fail.Decode(&v))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("x")))
	assert.Equal(t, KindCeiling, KindOf(Ceiling("cap")))
	assert.Equal(t, KindInternal, KindOf(assert.AnError))
}
