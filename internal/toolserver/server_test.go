// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package toolserver

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instruktai/teleclaude/internal/commands"
	"github.com/instruktai/teleclaude/internal/store"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Tool: ToolSendMessage, SessionID: "s1", Args: []byte(`{"text":"hi"}`)}
	require.NoError(t, WriteFrame(&buf, req))

	var got Request
	require.NoError(t, ReadFrame(&buf, &got))
	assert.Equal(t, req.Tool, got.Tool)
	assert.Equal(t, req.SessionID, got.SessionID)
	assert.JSONEq(t, string(req.Args), string(got.Args))
}

func TestFrameRoundTrip_Result(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, commands.Success(map[string]int{"n": 3})))

	var res commands.Result
	require.NoError(t, ReadFrame(&buf, &res))
	require.True(t, res.OK())
	var v map[string]int
	require.NoError(t, res.Decode(&v))
	assert.Equal(t, 3, v["n"])
}

func TestReadFrame_TruncatedHeader(t *testing.T) {
	var got Request
	err := ReadFrame(bytes.NewReader([]byte{0, 0}), &got)
	assert.Error(t, err)
}

func TestReadFrame_OversizedFrame(t *testing.T) {
	var got Request
	err := ReadFrame(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF}), &got)
	assert.Error(t, err)
}

func TestRoleGating(t *testing.T) {
	// Admin sees everything except escalate.
	assert.True(t, Allowed(store.RoleAdmin, ToolDeploy))
	assert.True(t, Allowed(store.RoleAdmin, ToolStartSession))
	assert.False(t, Allowed(store.RoleAdmin, ToolEscalate))

	// Member loses deploy.
	assert.False(t, Allowed(store.RoleMember, ToolDeploy))
	assert.True(t, Allowed(store.RoleMember, ToolStartSession))

	// Pins are operator-tier: newcomers may list but not change them.
	assert.True(t, Allowed(store.RoleAdmin, ToolPinSession))
	assert.True(t, Allowed(store.RoleMember, ToolUnpinSession))
	assert.False(t, Allowed(store.RoleNewcomer, ToolPinSession))
	assert.True(t, Allowed(store.RoleNewcomer, ToolListSticky))

	// Customer is the strictest tier and the only one seeing escalate.
	assert.True(t, Allowed(store.RoleCustomer, ToolEscalate))
	assert.True(t, Allowed(store.RoleCustomer, ToolSendMessage))
	assert.True(t, Allowed(store.RoleCustomer, ToolGetSessionData))
	assert.False(t, Allowed(store.RoleCustomer, ToolListComputers))
	assert.False(t, Allowed(store.RoleCustomer, ToolStartSession))
	assert.False(t, Allowed(store.RoleCustomer, ToolDeploy))

	// Unauthorized sees nothing.
	for _, tool := range allTools {
		assert.False(t, Allowed(store.RoleUnauthorized, tool), tool)
	}

	// Unknown roles collapse to unauthorized.
	assert.False(t, Allowed(store.HumanRole("alien"), ToolListSessions))
}

func TestVisibleTools_CustomerSubset(t *testing.T) {
	visible := VisibleTools(store.RoleCustomer)
	assert.ElementsMatch(t,
		[]string{ToolSendMessage, ToolGetSessionData, ToolStopNotifications, ToolEscalate},
		visible)
}
