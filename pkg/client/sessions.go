// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"net/url"
)

// SessionClient provides session operations.
type SessionClient struct {
	c *Client
}

// SessionInfo is the API projection of a session.
type SessionInfo struct {
	ID              string   `json:"ID"`
	Computer        string   `json:"Computer"`
	ProjectDir      string   `json:"ProjectDir"`
	Agent           string   `json:"Agent"`
	ThinkingMode    string   `json:"ThinkingMode"`
	Title           string   `json:"Title"`
	Status          string   `json:"Status"`
	AdapterTypes    []string `json:"AdapterTypes"`
	NativeSessionID string   `json:"NativeSessionID"`
	LastSummary     string   `json:"LastSummary"`
}

// CreateSessionRequest is the POST /sessions body.
type CreateSessionRequest struct {
	Computer     string `json:"computer,omitempty"`
	ProjectDir   string `json:"project_dir"`
	Agent        string `json:"agent,omitempty"`
	ThinkingMode string `json:"thinking_mode,omitempty"`
	Title        string `json:"title,omitempty"`
	Message      string `json:"message,omitempty"`
}

// List returns sessions, optionally from a remote computer.
func (s *SessionClient) List(ctx context.Context, computer string) ([]SessionInfo, error) {
	path := "/sessions"
	if computer != "" {
		path += "?computer=" + url.QueryEscape(computer)
	}
	var out []SessionInfo
	if err := s.c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create starts a new session.
func (s *SessionClient) Create(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error) {
	var out SessionInfo
	if err := s.c.do(ctx, "POST", "/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// End closes a session.
func (s *SessionClient) End(ctx context.Context, sessionID, computer string) error {
	path := "/sessions/" + url.PathEscape(sessionID)
	if computer != "" {
		path += "?computer=" + url.QueryEscape(computer)
	}
	return s.c.do(ctx, "DELETE", path, nil, nil)
}

// Message sends text to a session.
func (s *SessionClient) Message(ctx context.Context, sessionID, text string) error {
	path := fmt.Sprintf("/sessions/%s/message", url.PathEscape(sessionID))
	return s.c.do(ctx, "POST", path, map[string]string{"text": text}, nil)
}

// TranscriptEntry is one transcript message.
type TranscriptEntry struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Transcript returns the session's transcript projection.
func (s *SessionClient) Transcript(ctx context.Context, sessionID string) ([]TranscriptEntry, error) {
	path := fmt.Sprintf("/sessions/%s/transcript", url.PathEscape(sessionID))
	var out []TranscriptEntry
	if err := s.c.do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Computer is one peer registry entry.
type Computer struct {
	Peer struct {
		Machine string `json:"Machine"`
		User    string `json:"User"`
		Host    string `json:"Host"`
	} `json:"peer"`
	Online bool `json:"online"`
}

// Computers returns the peer registry snapshot.
func (s *SessionClient) Computers(ctx context.Context) ([]Computer, error) {
	var out []Computer
	if err := s.c.do(ctx, "GET", "/computers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
