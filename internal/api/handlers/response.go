// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/instruktai/teleclaude/internal/commands"
)

// Response is the standard API response wrapper.
type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorInfo  `json:"error,omitempty"`
	Meta  *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// MetaInfo contains response metadata.
type MetaInfo struct {
	Timestamp time.Time `json:"timestamp"`
}

// Common error codes
const (
	ErrNotFound      = "NOT_FOUND"
	ErrBadRequest    = "BAD_REQUEST"
	ErrInternalError = "INTERNAL_ERROR"
	ErrConflict      = "CONFLICT"
	ErrTransient     = "TRANSIENT"
	ErrSessionError  = "SESSION_ERROR"
)

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	resp := Response{
		Data: data,
		Meta: &MetaInfo{Timestamp: time.Now()},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	resp := Response{
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
		Meta: &MetaInfo{Timestamp: time.Now()},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// WriteResult translates a command envelope into HTTP, mapping the error
// kind to a status code.
func WriteResult(w http.ResponseWriter, res commands.Result) {
	if res.OK() {
		var data interface{}
		if len(res.Data) > 0 {
			data = json.RawMessage(res.Data)
		}
		WriteJSON(w, http.StatusOK, data)
		return
	}

	code := ErrInternalError
	status := http.StatusInternalServerError
	if res.Error != nil {
		switch commands.Kind(res.Error.Code) {
		case commands.KindInvalid:
			code, status = ErrBadRequest, http.StatusBadRequest
		case commands.KindNotFound:
			code, status = ErrNotFound, http.StatusNotFound
		case commands.KindTransient:
			code, status = ErrTransient, http.StatusServiceUnavailable
		case commands.KindCeiling:
			code, status = ErrConflict, http.StatusConflict
		}
		WriteError(w, status, code, res.Error.Message)
		return
	}
	WriteError(w, status, code, "unknown error")
}
