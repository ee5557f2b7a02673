// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events implements the event platform core: envelope emission, the
// consumer-group processor, the cartridge pipeline, and the notification
// projection store.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Level grades an event's semantic altitude.
type Level int

const (
	LevelInfrastructure Level = 0
	LevelOperational    Level = 1
	LevelWorkflow       Level = 2
	LevelBusiness       Level = 3
)

// Visibility scopes who may observe an event.
type Visibility string

const (
	VisibilityLocal   Visibility = "local"
	VisibilityCluster Visibility = "cluster"
	VisibilityPublic  Visibility = "public"
)

// Affordance describes an action a consumer may take on an event.
// Structural only; the core never executes affordances.
type Affordance struct {
	Description string `json:"description"`
	ProducesR   string `json:"produces,omitempty"` // produced event type
	Outcome     string `json:"outcome,omitempty"`  // outcome shape
}

// Resolution declares when an event group is terminal.
type Resolution struct {
	TerminalWhen string `json:"terminal_when,omitempty"`
	Shape        string `json:"shape,omitempty"`
}

// Envelope is the five-layer event record. Envelopes are immutable once
// emitted.
type Envelope struct {
	// Identity layer
	Type           string    `json:"type"`
	Version        int       `json:"version"`
	Source         string    `json:"source"`
	Timestamp      time.Time `json:"timestamp"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`

	// Semantic layer
	Level       Level      `json:"level"`
	Domain      string     `json:"domain"`
	Entity      string     `json:"entity,omitempty"`
	Description string     `json:"description"`
	Visibility  Visibility `json:"visibility"`

	// Data layer
	Payload map[string]interface{} `json:"payload,omitempty"`

	// Affordances layer
	Affordances map[string]Affordance `json:"affordances,omitempty"`

	// Resolution layer
	Resolution *Resolution `json:"resolution,omitempty"`

	// Machine is the originating machine, carried for self-origin loop
	// prevention.
	Machine string `json:"machine,omitempty"`
}

// Wire converts the envelope to the string-keyed dictionary used as a stream
// entry.
func (e *Envelope) Wire() (map[string]interface{}, error) {
	values := map[string]interface{}{
		"type":        e.Type,
		"version":     strconv.Itoa(e.Version),
		"source":      e.Source,
		"timestamp":   e.Timestamp.UTC().Format(time.RFC3339Nano),
		"level":       strconv.Itoa(int(e.Level)),
		"domain":      e.Domain,
		"description": e.Description,
		"visibility":  string(e.Visibility),
		"machine":     e.Machine,
	}
	if e.IdempotencyKey != "" {
		values["idempotency_key"] = e.IdempotencyKey
	}
	if e.Entity != "" {
		values["entity"] = e.Entity
	}
	for key, v := range map[string]interface{}{
		"payload":     e.Payload,
		"affordances": e.Affordances,
		"resolution":  e.Resolution,
	} {
		if isNilish(v) {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", key, err)
		}
		values[key] = string(raw)
	}
	return values, nil
}

// ParseWire reconstructs an envelope from stream entry values.
func ParseWire(values map[string]interface{}) (*Envelope, error) {
	e := &Envelope{
		Type:           wireStr(values, "type"),
		Source:         wireStr(values, "source"),
		Domain:         wireStr(values, "domain"),
		Description:    wireStr(values, "description"),
		Entity:         wireStr(values, "entity"),
		IdempotencyKey: wireStr(values, "idempotency_key"),
		Visibility:     Visibility(wireStr(values, "visibility")),
		Machine:        wireStr(values, "machine"),
	}
	if e.Type == "" {
		return nil, fmt.Errorf("wire entry missing type")
	}
	e.Version, _ = strconv.Atoi(wireStr(values, "version"))
	lvl, _ := strconv.Atoi(wireStr(values, "level"))
	e.Level = Level(lvl)
	if ts, err := time.Parse(time.RFC3339Nano, wireStr(values, "timestamp")); err == nil {
		e.Timestamp = ts
	}

	if raw := wireStr(values, "payload"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if raw := wireStr(values, "affordances"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Affordances); err != nil {
			return nil, fmt.Errorf("unmarshal affordances: %w", err)
		}
	}
	if raw := wireStr(values, "resolution"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Resolution); err != nil {
			return nil, fmt.Errorf("unmarshal resolution: %w", err)
		}
	}
	return e, nil
}

func wireStr(values map[string]interface{}, key string) string {
	s, _ := values[key].(string)
	return s
}

func isNilish(v interface{}) bool {
	switch x := v.(type) {
	case map[string]interface{}:
		return len(x) == 0
	case map[string]Affordance:
		return len(x) == 0
	case *Resolution:
		return x == nil
	default:
		return v == nil
	}
}
