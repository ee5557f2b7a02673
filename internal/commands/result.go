// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package commands implements the shared operation handlers invoked
// identically by every adapter, the mesh consumer, and the tool server.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Result is the dispatch envelope returned by every handler. Callers must
// unwrap it; the raw Data shape is never inspected directly.
type Result struct {
	Status string          `json:"status"` // "success" | "error"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`
}

// ErrorInfo carries a classified error across the envelope boundary.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK reports whether the result is a success envelope.
func (r Result) OK() bool { return r.Status == "success" }

// Decode unmarshals the data payload into v.
func (r Result) Decode(v interface{}) error {
	if !r.OK() {
		if r.Error != nil {
			return fmt.Errorf("%s: %s", r.Error.Code, r.Error.Message)
		}
		return errors.New("error result without detail")
	}
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Success wraps data in a success envelope. A marshal failure is a
// programmer error and is reported as a contract violation envelope.
func Success(data interface{}) Result {
	if data == nil {
		return Result{Status: "success"}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Failure(Contract(fmt.Errorf("marshal result: %w", err)))
	}
	return Result{Status: "success", Data: raw}
}

// Failure wraps an error in an error envelope, classifying it.
func Failure(err error) Result {
	return Result{Status: "error", Error: &ErrorInfo{
		Code:    string(KindOf(err)),
		Message: err.Error(),
	}}
}
