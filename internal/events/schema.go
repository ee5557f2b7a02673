// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Lifecycle declares how an event type projects into notifications.
type Lifecycle struct {
	Creates  bool `json:"creates"`
	Updates  bool `json:"updates"`
	Resolves bool `json:"resolves"`
	// GroupKey names the payload field whose value groups envelopes onto one
	// notification row.
	GroupKey string `json:"group_key,omitempty"`
	// MeaningfulFields are payload fields whose change resets human_status
	// to unseen. Empty means updates are always silent.
	MeaningfulFields []string `json:"meaningful_fields,omitempty"`
}

// Schema is one registry entry describing an event type.
type Schema struct {
	Type              string     `json:"type"`
	Description       string     `json:"description"`
	Level             Level      `json:"level"`
	Domain            string     `json:"domain"`
	Visibility        Visibility `json:"visibility"`
	// IdempotencyFields is the ordered list of payload fields composing the
	// dedup key.
	IdempotencyFields []string   `json:"idempotency_fields,omitempty"`
	Lifecycle         *Lifecycle `json:"lifecycle,omitempty"`
	Actionable        bool       `json:"actionable"`
}

// IdempotencyKey builds the dedup key from the declared fields, in order.
func (s *Schema) IdempotencyKey(payload map[string]interface{}) string {
	if len(s.IdempotencyFields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s.IdempotencyFields)+1)
	parts = append(parts, s.Type)
	for _, field := range s.IdempotencyFields {
		parts = append(parts, fmt.Sprintf("%v", payload[field]))
	}
	return strings.Join(parts, ":")
}

// GroupKeyValue extracts the group key value from a payload, or "".
func (s *Schema) GroupKeyValue(payload map[string]interface{}) string {
	if s.Lifecycle == nil || s.Lifecycle.GroupKey == "" {
		return ""
	}
	if v, ok := payload[s.Lifecycle.GroupKey]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// Registry holds event schemas.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry creates a registry seeded with the built-in schemas.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[string]*Schema)}
	for _, s := range builtinSchemas() {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a schema.
func (r *Registry) Register(s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Type] = s
}

// Lookup returns the schema for an event type.
func (r *Registry) Lookup(eventType string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[eventType]
	return s, ok
}

// Types lists registered event types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func builtinSchemas() []*Schema {
	return []*Schema{
		{
			Type:              "system.daemon.restarted",
			Description:       "The daemon process restarted",
			Level:             LevelInfrastructure,
			Domain:            "system",
			Visibility:        VisibilityLocal,
			IdempotencyFields: []string{"computer", "pid"},
			Lifecycle:         &Lifecycle{Creates: true},
		},
		{
			Type:              "session.created",
			Description:       "A session was created",
			Level:             LevelOperational,
			Domain:            "sessions",
			Visibility:        VisibilityCluster,
			IdempotencyFields: []string{"session_id"},
			Lifecycle:         &Lifecycle{Creates: true, GroupKey: "session_id"},
		},
		{
			Type:              "session.closed",
			Description:       "A session was closed",
			Level:             LevelOperational,
			Domain:            "sessions",
			Visibility:        VisibilityCluster,
			IdempotencyFields: []string{"session_id"},
			Lifecycle: &Lifecycle{
				Resolves: true,
				GroupKey: "session_id",
			},
		},
		{
			Type:              "session.escalated",
			Description:       "A customer session escalated to the help desk",
			Level:             LevelBusiness,
			Domain:            "helpdesk",
			Visibility:        VisibilityCluster,
			IdempotencyFields: []string{"session_id", "thread_id"},
			Lifecycle: &Lifecycle{
				Creates:          true,
				Updates:          true,
				GroupKey:         "session_id",
				MeaningfulFields: []string{"reason"},
			},
			Actionable: true,
		},
		{
			Type:              "memory.extraction.requested",
			Description:       "Idle compaction requested a memory extraction pass",
			Level:             LevelInfrastructure,
			Domain:            "memory",
			Visibility:        VisibilityLocal,
			IdempotencyFields: []string{"session_id", "requested_at"},
			Lifecycle:         &Lifecycle{Creates: true},
		},
		{
			Type:              "agent.turn.completed",
			Description:       "An agent turn completed with a summary",
			Level:             LevelWorkflow,
			Domain:            "sessions",
			Visibility:        VisibilityCluster,
			IdempotencyFields: []string{"session_id", "turn"},
			Lifecycle: &Lifecycle{
				Creates:          true,
				Updates:          true,
				GroupKey:         "session_id",
				MeaningfulFields: []string{"summary"},
			},
		},
		{
			Type:              "job.failed",
			Description:       "A background job failed",
			Level:             LevelInfrastructure,
			Domain:            "jobs",
			Visibility:        VisibilityLocal,
			IdempotencyFields: []string{"job", "attempt"},
			Lifecycle: &Lifecycle{
				Creates:  true,
				Updates:  true,
				GroupKey: "job",
				// No meaningful fields: repeat failures update silently.
			},
		},
	}
}
