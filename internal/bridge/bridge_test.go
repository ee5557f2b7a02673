// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBridge() (*Bridge, *MockTmuxExecutor) {
	mock := NewMockTmuxExecutor()
	return New(mock, zap.NewNop()), mock
}

func TestEnsurePane_Idempotent(t *testing.T) {
	b, mock := newTestBridge()
	ctx := context.Background()

	require.NoError(t, b.EnsurePane(ctx, "s1", "/project"))
	assert.True(t, mock.Sessions[PaneName("s1")])

	// Second call is a no-op
	require.NoError(t, b.EnsurePane(ctx, "s1", "/project"))
	assert.Len(t, mock.Sessions, 1)
}

func TestSendText_AppendsMarkerWhenShellReady(t *testing.T) {
	b, mock := newTestBridge()
	ctx := context.Background()
	require.NoError(t, b.EnsurePane(ctx, "s1", ""))
	mock.Foreground[PaneName("s1")] = "bash"

	state, err := b.SendText(ctx, "s1", "ls", true)
	require.NoError(t, err)
	assert.True(t, state.ShellReady)
	assert.True(t, state.MarkerAppended)

	sent := mock.LastText(PaneName("s1"))
	assert.True(t, strings.HasPrefix(sent, "ls; echo"))
	assert.Contains(t, sent, "__EXIT__"+state.Marker+"__$?__")
}

func TestSendText_SkipsMarkerWhenTextStartsShell(t *testing.T) {
	b, mock := newTestBridge()
	ctx := context.Background()
	require.NoError(t, b.EnsurePane(ctx, "s1", ""))
	mock.Foreground[PaneName("s1")] = "bash"

	// The nested shell would echo the sentinel before the user is done.
	state, err := b.SendText(ctx, "s1", "bash", true)
	require.NoError(t, err)
	assert.True(t, state.ShellReady)
	assert.False(t, state.MarkerAppended)
	assert.Equal(t, "bash", mock.LastText(PaneName("s1")))
	assert.False(t, b.PendingMarker("s1"))
}

func TestSendText_SkipsMarkerWhenPaneBusy(t *testing.T) {
	b, mock := newTestBridge()
	ctx := context.Background()
	require.NoError(t, b.EnsurePane(ctx, "s1", ""))
	mock.Foreground[PaneName("s1")] = "vim"

	state, err := b.SendText(ctx, "s1", ":wq", true)
	require.NoError(t, err)
	assert.False(t, state.ShellReady)
	assert.False(t, state.MarkerAppended)
}

func TestSendText_DetectionFailureDefaultsToReady(t *testing.T) {
	b, mock := newTestBridge()
	ctx := context.Background()
	require.NoError(t, b.EnsurePane(ctx, "s1", ""))
	mock.FailDisplay = true

	state, err := b.SendText(ctx, "s1", "make test", true)
	require.NoError(t, err)
	assert.True(t, state.ShellReady)
	assert.True(t, state.MarkerAppended)
}

func TestSendText_BackgroundJobGetsMarker(t *testing.T) {
	b, mock := newTestBridge()
	ctx := context.Background()
	require.NoError(t, b.EnsurePane(ctx, "s1", ""))
	mock.Foreground[PaneName("s1")] = "zsh"

	// Sentinel reflects spawn success, not job completion.
	state, err := b.SendText(ctx, "s1", "sleep 1000 &", true)
	require.NoError(t, err)
	assert.True(t, state.MarkerAppended)
}

func TestSendText_PaneMissing(t *testing.T) {
	b, _ := newTestBridge()
	_, err := b.SendText(context.Background(), "ghost", "ls", true)
	assert.ErrorIs(t, err, ErrPaneMissing)
}

func TestSendText_PathQualifiedShell(t *testing.T) {
	b, mock := newTestBridge()
	ctx := context.Background()
	require.NoError(t, b.EnsurePane(ctx, "s1", ""))
	mock.Foreground[PaneName("s1")] = "bash"

	state, err := b.SendText(ctx, "s1", "/usr/bin/zsh", true)
	require.NoError(t, err)
	assert.False(t, state.MarkerAppended)
}

func TestDetectExit(t *testing.T) {
	b, mock := newTestBridge()
	ctx := context.Background()
	require.NoError(t, b.EnsurePane(ctx, "s1", ""))
	mock.Foreground[PaneName("s1")] = "bash"

	state, err := b.SendText(ctx, "s1", "false", true)
	require.NoError(t, err)
	require.True(t, state.MarkerAppended)

	// The echoed command line shows the unexpanded "$?" and must not match.
	echoed := fmt.Sprintf("$ false; echo \"__EXIT__%s__$?__\"\n", state.Marker)
	code, found := b.DetectExit("s1", []byte(echoed))
	assert.False(t, found, "unexpanded sentinel in echoed command line must not match")

	capture := echoed + fmt.Sprintf("__EXIT__%s__1__\n", state.Marker)
	code, found = b.DetectExit("s1", []byte(capture))
	require.True(t, found)
	assert.Equal(t, 1, code)

	// Marker is consumed
	_, found = b.DetectExit("s1", []byte(capture))
	assert.False(t, found)
}

func TestDetectExit_IgnoresForeignNonce(t *testing.T) {
	b, mock := newTestBridge()
	ctx := context.Background()
	require.NoError(t, b.EnsurePane(ctx, "s1", ""))
	mock.Foreground[PaneName("s1")] = "bash"

	_, err := b.SendText(ctx, "s1", "true", true)
	require.NoError(t, err)

	_, found := b.DetectExit("s1", []byte("__EXIT__deadbeef__0__\n"))
	assert.False(t, found)
}

func TestSignal_DoubleInterrupt(t *testing.T) {
	b, mock := newTestBridge()
	ctx := context.Background()
	require.NoError(t, b.EnsurePane(ctx, "s1", ""))

	require.NoError(t, b.Signal(ctx, "s1", SignalDoubleInterrupt))
	var interrupts int
	for _, k := range mock.SentKeys {
		if strings.HasSuffix(k, "\x00C-c") {
			interrupts++
		}
	}
	assert.Equal(t, 2, interrupts)
}

func TestSendText_PasteBufferFallback(t *testing.T) {
	b, mock := newTestBridge()
	ctx := context.Background()
	require.NoError(t, b.EnsurePane(ctx, "s1", ""))
	mock.Foreground[PaneName("s1")] = "bash"
	mock.FailSendText = true

	_, err := b.SendText(ctx, "s1", "ls", false)
	require.NoError(t, err)

	// Text went through send-keys -l instead
	var literal bool
	for _, k := range mock.SentKeys {
		if strings.HasSuffix(k, "\x00ls") {
			literal = true
		}
	}
	assert.True(t, literal)
}

func TestPaneName(t *testing.T) {
	assert.Equal(t, "tc-abc_def", PaneName("abc.def"))
	assert.NotContains(t, PaneName("a:b"), ":")
}
