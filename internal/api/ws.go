// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsEnvelope is the client-to-server message shape on the multiplexed
// connection.
type wsEnvelope struct {
	Action    string `json:"action"` // subscribe | unsubscribe | input
	Topic     string `json:"topic,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// WebSocket serves the single multiplexed connection with topic
// subscriptions.
func (s *Server) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := s.hub.register(uuid.NewString())
	defer s.hub.unregister(client)

	done := make(chan struct{})

	// Read loop: subscriptions and session input.
	go func() {
		defer close(done)
		for {
			var env wsEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			switch env.Action {
			case "subscribe":
				if env.Topic != "" {
					s.hub.Subscribe(client, env.Topic)
				}
			case "unsubscribe":
				if env.Topic != "" {
					s.hub.Unsubscribe(client, env.Topic)
				}
			case "input":
				if env.SessionID != "" {
					s.hub.input(env.SessionID, env.Text, client.ID)
				}
			default:
				s.log.Debug("unknown ws action", zap.String("action", env.Action))
			}
		}
	}()

	// Set up ping/pong
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	pingTicker := time.NewTicker(54 * time.Second)
	defer pingTicker.Stop()

	// Write loop
	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
