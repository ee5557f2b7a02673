// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockServer starts a test server for handler; handlers write the API
// envelope themselves (see writeData).
func mockServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func writeData(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

func TestSessions_List(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions", r.URL.Path)
		assert.Equal(t, "beta", r.URL.Query().Get("computer"))
		writeData(w, []SessionInfo{{ID: "s1", Computer: "beta"}})
	})

	c := New(srv.URL)
	sessions, err := c.Sessions.List(context.Background(), "beta")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
}

func TestSessions_Create(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req CreateSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "/home/dev/proj", req.ProjectDir)
		writeData(w, SessionInfo{ID: "s2", ProjectDir: req.ProjectDir})
	})

	c := New(srv.URL)
	info, err := c.Sessions.Create(context.Background(), CreateSessionRequest{ProjectDir: "/home/dev/proj"})
	require.NoError(t, err)
	assert.Equal(t, "s2", info.ID)
}

func TestAPIError(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"code": "NOT_FOUND", "message": "unknown session s9"},
		})
	})

	c := New(srv.URL)
	err := c.Sessions.Message(context.Background(), "s9", "hi")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestNotifications_Query(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("level"))
		assert.Equal(t, "unseen", r.URL.Query().Get("human_status"))
		writeData(w, []Notification{{ID: 1, EventType: "t"}})
	})

	c := New(srv.URL)
	level := 2
	list, err := c.Notifications.List(context.Background(), NotificationQuery{
		Level: &level, HumanStatus: "unseen",
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.EqualValues(t, 1, list[0].ID)
}

func TestNotifications_Claim(t *testing.T) {
	srv := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notifications/7/claim", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "agent-1", body["agent_id"])
		writeData(w, nil)
	})

	c := New(srv.URL)
	require.NoError(t, c.Notifications.Claim(context.Background(), 7, "agent-1"))
}
