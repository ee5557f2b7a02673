// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/instruktai/teleclaude/internal/agent"
	"github.com/instruktai/teleclaude/internal/mesh"
	"github.com/instruktai/teleclaude/internal/project"
)

// MiscHandler serves computers, projects, agents, and todos.
type MiscHandler struct {
	registry *mesh.Registry
	launcher *agent.Launcher
	roots    []string
}

// NewMiscHandler creates the handler.
func NewMiscHandler(registry *mesh.Registry, launcher *agent.Launcher, projectRoots []string) *MiscHandler {
	return &MiscHandler{registry: registry, launcher: launcher, roots: projectRoots}
}

// Computers handles GET /computers.
func (h *MiscHandler) Computers(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.registry.Snapshot())
}

// Projects handles GET /projects.
func (h *MiscHandler) Projects(w http.ResponseWriter, r *http.Request) {
	projects, err := project.Discover(h.roots)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, projects)
}

// AgentAvailability handles GET /agents/availability.
func (h *MiscHandler) AgentAvailability(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.launcher.Probe())
}

// Todos handles GET /projects/{path}/todos. The path variable is the
// URL-encoded project directory.
func (h *MiscHandler) Todos(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	if path == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "project path is required")
		return
	}
	todos, err := project.ReadTodos(path)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	if todos == nil {
		todos = []project.Todo{}
	}
	WriteJSON(w, http.StatusOK, todos)
}
