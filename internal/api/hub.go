// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api serves the local REST surface over a Unix socket, plus the
// multiplexed notifications WebSocket.
package api

import (
	"sync"

	"go.uber.org/zap"
)

// Hub fans payloads out to WebSocket clients by topic. Subscription filters
// are enforced server-side: a client only receives topics it subscribed to.
type Hub struct {
	mu      sync.RWMutex
	clients map[*HubClient]map[string]bool
	// onInput handles inbound session input messages from web clients.
	onInput func(sessionID, text, clientID string)
	log     *zap.Logger
}

// HubClient is one connected WebSocket client.
type HubClient struct {
	ID   string
	send chan interface{}
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*HubClient]map[string]bool),
		log:     log,
	}
}

// OnInput wires the inbound input handler (the web adapter).
func (h *Hub) OnInput(fn func(sessionID, text, clientID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onInput = fn
}

// register adds a client with an outbound buffer.
func (h *Hub) register(id string) *HubClient {
	c := &HubClient{ID: id, send: make(chan interface{}, 128)}
	h.mu.Lock()
	h.clients[c] = make(map[string]bool)
	h.mu.Unlock()
	return c
}

// unregister drops a client.
func (h *Hub) unregister(c *HubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Subscribe adds a topic for a client.
func (h *Hub) Subscribe(c *HubClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if topics, ok := h.clients[c]; ok {
		topics[topic] = true
	}
}

// Unsubscribe removes a topic for a client.
func (h *Hub) Unsubscribe(c *HubClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if topics, ok := h.clients[c]; ok {
		delete(topics, topic)
	}
}

// Broadcast pushes a payload to every subscriber of the topic. Slow clients
// drop messages rather than block the caller.
func (h *Hub) Broadcast(topic string, payload interface{}) {
	msg := map[string]interface{}{"topic": topic, "payload": payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c, topics := range h.clients {
		if !topics[topic] {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.log.Debug("ws client buffer full, dropping", zap.String("client", c.ID))
		}
	}
}

// HasSubscribers reports whether any client subscribed to the topic.
func (h *Hub) HasSubscribers(topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, topics := range h.clients {
		if topics[topic] {
			return true
		}
	}
	return false
}

func (h *Hub) input(sessionID, text, clientID string) {
	h.mu.RLock()
	fn := h.onInput
	h.mu.RUnlock()
	if fn != nil {
		fn(sessionID, text, clientID)
	}
}
