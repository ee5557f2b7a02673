// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/instruktai/teleclaude/internal/events"
)

// NotificationHandler serves the /api/notifications surface.
type NotificationHandler struct {
	store *events.NotificationStore
}

// NewNotificationHandler creates the handler.
func NewNotificationHandler(store *events.NotificationStore) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// List handles GET /api/notifications with the filter query parameters.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := events.ListFilter{
		Domain:      query.Get("domain"),
		HumanStatus: events.HumanStatus(query.Get("human_status")),
		AgentStatus: events.AgentStatus(query.Get("agent_status")),
		Visibility:  events.Visibility(query.Get("visibility")),
	}
	if lvl := query.Get("level"); lvl != "" {
		n, err := strconv.Atoi(lvl)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "level must be an integer")
			return
		}
		level := events.Level(n)
		filter.Level = &level
	}
	if since := query.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = t
	}
	if limit := query.Get("limit"); limit != "" {
		filter.Limit, _ = strconv.Atoi(limit)
	}
	if offset := query.Get("offset"); offset != "" {
		filter.Offset, _ = strconv.Atoi(offset)
	}

	list, err := h.store.List(r.Context(), filter)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}
	if list == nil {
		list = []*events.Notification{}
	}
	WriteJSON(w, http.StatusOK, list)
}

// Get handles GET /api/notifications/{id}.
func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	n, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

// Seen handles PATCH /api/notifications/{id}/seen?unseen=…
func (h *NotificationHandler) Seen(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	unseen := r.URL.Query().Get("unseen") == "true"
	if err := h.store.MarkSeen(r.Context(), id, unseen); err != nil {
		h.writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, nil)
}

// Claim handles POST /api/notifications/{id}/claim.
func (h *NotificationHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var body struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AgentID == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "agent_id is required")
		return
	}
	if err := h.store.Claim(r.Context(), id, body.AgentID); err != nil {
		if errors.Is(err, events.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrNotFound, err.Error())
			return
		}
		WriteError(w, http.StatusConflict, ErrConflict, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, nil)
}

// Status handles PATCH /api/notifications/{id}/status.
func (h *NotificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var body struct {
		Status  string `json:"status"`
		AgentID string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "malformed body")
		return
	}
	status := events.AgentStatus(body.Status)
	switch status {
	case events.AgentClaimed, events.AgentInProgress, events.AgentResolved:
	default:
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid status "+body.Status)
		return
	}
	if err := h.store.SetAgentStatus(r.Context(), id, status, body.AgentID); err != nil {
		h.writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, nil)
}

// Resolve handles POST /api/notifications/{id}/resolve.
func (h *NotificationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var body struct {
		Summary    string `json:"summary"`
		Link       string `json:"link,omitempty"`
		ResolvedBy string `json:"resolved_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Summary == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "summary is required")
		return
	}
	resolution := map[string]interface{}{
		"summary":     body.Summary,
		"resolved_by": body.ResolvedBy,
	}
	if body.Link != "" {
		resolution["link"] = body.Link
	}
	if err := h.store.Resolve(r.Context(), id, resolution); err != nil {
		h.writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, nil)
}

func (h *NotificationHandler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *NotificationHandler) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, events.ErrNotFound) {
		WriteError(w, http.StatusNotFound, ErrNotFound, err.Error())
		return
	}
	WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
}
