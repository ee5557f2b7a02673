// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/api/handlers"
	"github.com/instruktai/teleclaude/internal/api/middleware"
)

// Server serves the REST adapter over a local Unix socket.
type Server struct {
	socketPath string
	hub        *Hub
	httpServer *http.Server
	log        *zap.Logger
}

// Handlers groups the route handlers the server mounts.
type Handlers struct {
	Sessions      *handlers.SessionHandler
	Misc          *handlers.MiscHandler
	Notifications *handlers.NotificationHandler
}

// NewServer builds the router and server. Start listens.
func NewServer(socketPath string, hub *Hub, h Handlers, log *zap.Logger) *Server {
	s := &Server{
		socketPath: socketPath,
		hub:        hub,
		log:        log,
	}

	r := mux.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))

	r.HandleFunc("/sessions", h.Sessions.List).Methods(http.MethodGet)
	r.HandleFunc("/sessions", h.Sessions.Create).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{session_id}", h.Sessions.End).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{session_id}/message", h.Sessions.Message).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{session_id}/transcript", h.Sessions.Transcript).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{session_id}/hook", h.Sessions.Hook).Methods(http.MethodPost)

	r.HandleFunc("/computers", h.Misc.Computers).Methods(http.MethodGet)
	r.HandleFunc("/projects", h.Misc.Projects).Methods(http.MethodGet)
	r.HandleFunc("/agents/availability", h.Misc.AgentAvailability).Methods(http.MethodGet)
	r.HandleFunc("/projects/{path:.+}/todos", h.Misc.Todos).Methods(http.MethodGet)

	r.HandleFunc("/api/notifications", h.Notifications.List).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications/{id}", h.Notifications.Get).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications/{id}/seen", h.Notifications.Seen).Methods(http.MethodPatch)
	r.HandleFunc("/api/notifications/{id}/claim", h.Notifications.Claim).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications/{id}/status", h.Notifications.Status).Methods(http.MethodPatch)
	r.HandleFunc("/api/notifications/{id}/resolve", h.Notifications.Resolve).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.WebSocket)

	s.httpServer = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub exposes the WebSocket hub for delivery wiring.
func (s *Server) Hub() *Hub { return s.hub }

// Start removes any stale socket and begins serving.
func (s *Server) Start() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		s.log.Warn("chmod socket failed", zap.Error(err))
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server stopped", zap.Error(err))
		}
	}()
	s.log.Info("api listening", zap.String("socket", s.socketPath))
	return nil
}

// Stop gracefully shuts the server down and removes the socket.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	os.Remove(s.socketPath)
	return err
}
