// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package adapter implements the unified adapter client: the single boundary
// every inbound event crosses in and every outbound message crosses out.
package adapter

import (
	"context"

	"github.com/instruktai/teleclaude/internal/commands"
	"github.com/instruktai/teleclaude/internal/store"
)

// RenderMode selects which form of an output delta an adapter receives.
type RenderMode string

const (
	// RenderHuman is ANSI-stripped, blank-collapsed, tail-truncated output.
	RenderHuman RenderMode = "human"
	// RenderAgent is precise, whitespace- and newline-preserving output.
	RenderAgent RenderMode = "agent"
)

// Metadata travels with every normalized inbound event.
type Metadata struct {
	Kind           store.AdapterKind `json:"kind"`
	SessionID      string            `json:"session_id,omitempty"`
	PlatformUserID string            `json:"platform_user_id,omitempty"`
	UserName       string            `json:"user_name,omitempty"`
	Locale         string            `json:"locale,omitempty"`
	// MessageID is the origin message id, kept for best-effort delete and
	// cross-adapter dedup.
	MessageID string `json:"message_id,omitempty"`
}

// EventType names a normalized inbound event.
type EventType string

const (
	EventCommand EventType = "command"
	EventMessage EventType = "message"
	EventVoice   EventType = "voice"
	EventFile    EventType = "file"
)

// Event is a normalized inbound event.
type Event struct {
	Type EventType `json:"type"`
	// Command fields
	Name string   `json:"name,omitempty"`
	Args []string `json:"args,omitempty"`
	// Message fields
	Text string `json:"text,omitempty"`
	// Voice / file fields
	Blob     []byte `json:"blob,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Adapter is the capability set every I/O surface implements. Adapters
// normalize their transport events and feed them to the client's HandleEvent.
type Adapter interface {
	// Kind identifies the adapter.
	Kind() store.AdapterKind
	// RenderMode declares which output form the adapter wants.
	RenderMode() RenderMode
	// Start begins consuming transport events.
	Start(ctx context.Context) error
	// Stop shuts the transport down.
	Stop(ctx context.Context) error
	// SendMessage delivers text for a session, returning the transport
	// message id when available.
	SendMessage(ctx context.Context, sess *store.Session, text string) (string, error)
	// DeleteMessage removes a previously sent message. Best-effort.
	DeleteMessage(ctx context.Context, sess *store.Session, messageID string) error
	// DeliverToSession forwards text that originated elsewhere (e.g. an
	// admin relay reply) to the session's surface on this adapter.
	DeliverToSession(ctx context.Context, sess *store.Session, text, originHint string) error
}

// Dispatcher routes a normalized event to the shared handler set.
type Dispatcher func(ctx context.Context, event Event, meta Metadata) commands.Result
