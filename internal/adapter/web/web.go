// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package web exposes sessions to browser clients over the multiplexed
// WebSocket connection.
package web

import (
	"context"

	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/adapter"
	"github.com/instruktai/teleclaude/internal/api"
	"github.com/instruktai/teleclaude/internal/commands"
	"github.com/instruktai/teleclaude/internal/store"
)

// Handler receives normalized events.
type Handler func(ctx context.Context, event adapter.Event, meta adapter.Metadata) commands.Result

// Adapter bridges the WebSocket hub to sessions. Outbound deltas are
// broadcast on the "session:{id}" topic; inbound input arrives through the
// hub's input callback.
type Adapter struct {
	hub    *api.Hub
	handle Handler
	log    *zap.Logger
}

// New creates the adapter and wires the hub's input path.
func New(hub *api.Hub, handle Handler, log *zap.Logger) *Adapter {
	a := &Adapter{hub: hub, handle: handle, log: log}
	hub.OnInput(a.onInput)
	return a
}

// Kind identifies the adapter.
func (a *Adapter) Kind() store.AdapterKind { return store.KindWeb }

// RenderMode selects the human form for browser delivery.
func (a *Adapter) RenderMode() adapter.RenderMode { return adapter.RenderHuman }

// Start is a no-op; the hub lives with the API server.
func (a *Adapter) Start(ctx context.Context) error { return nil }

// Stop is a no-op.
func (a *Adapter) Stop(ctx context.Context) error { return nil }

func (a *Adapter) onInput(sessionID, text, clientID string) {
	meta := adapter.Metadata{
		Kind:           store.KindWeb,
		SessionID:      sessionID,
		PlatformUserID: clientID,
	}
	result := a.handle(context.Background(), adapter.Event{Type: adapter.EventMessage, Text: text}, meta)
	if !result.OK() && result.Error != nil {
		a.hub.Broadcast(sessionTopic(sessionID), map[string]string{
			"error": result.Error.Message,
		})
	}
}

// SendMessage broadcasts the delta to the session topic.
func (a *Adapter) SendMessage(ctx context.Context, sess *store.Session, text string) (string, error) {
	a.hub.Broadcast(sessionTopic(sess.ID), map[string]string{"text": text})
	return "", nil
}

// DeleteMessage is a no-op: broadcast frames cannot be recalled.
func (a *Adapter) DeleteMessage(ctx context.Context, sess *store.Session, messageID string) error {
	return nil
}

// DeliverToSession forwards relayed text with its origin label.
func (a *Adapter) DeliverToSession(ctx context.Context, sess *store.Session, text, originHint string) error {
	a.hub.Broadcast(sessionTopic(sess.ID), map[string]string{
		"text":   text,
		"origin": originHint,
	})
	return nil
}

func sessionTopic(sessionID string) string { return "session:" + sessionID }
