// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// Cartridge is one composable stage of the event pipeline. A cartridge may
// return the envelope unchanged (pass), a modified envelope, or nil (drop).
type Cartridge interface {
	Name() string
	Process(ctx context.Context, e *Envelope) (*Envelope, error)
}

// PushCallback is invoked after projection for every surviving envelope.
type PushCallback func(notificationID int64, eventType string, wasCreated bool, isMeaningful bool, level Level)

// DedupCartridge drops envelopes whose idempotency key already has a
// notification row.
type DedupCartridge struct {
	registry *Registry
	store    *NotificationStore
	log      *zap.Logger
}

// NewDedupCartridge creates the dedup stage.
func NewDedupCartridge(registry *Registry, store *NotificationStore, log *zap.Logger) *DedupCartridge {
	return &DedupCartridge{registry: registry, store: store, log: log}
}

func (c *DedupCartridge) Name() string { return "dedup" }

func (c *DedupCartridge) Process(ctx context.Context, e *Envelope) (*Envelope, error) {
	schema, ok := c.registry.Lookup(e.Type)
	if !ok {
		return e, nil
	}

	// updates-only lifecycles bypass dedup so field updates can reach the
	// projector.
	if lc := schema.Lifecycle; lc != nil && !lc.Creates && lc.Updates {
		return e, nil
	}

	key := e.IdempotencyKey
	if key == "" {
		key = schema.IdempotencyKey(e.Payload)
	}
	if key == "" {
		return e, nil
	}
	e.IdempotencyKey = key

	existing, err := c.store.FindByIdempotencyKey(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		c.log.Debug("dropped duplicate envelope",
			zap.String("type", e.Type), zap.String("key", key))
		return nil, nil
	}
	return e, nil
}

// ProjectorCartridge projects envelopes into notification rows per the
// schema lifecycle and fires push callbacks.
type ProjectorCartridge struct {
	registry  *Registry
	store     *NotificationStore
	callbacks []PushCallback
	log       *zap.Logger
}

// NewProjectorCartridge creates the projection stage.
func NewProjectorCartridge(registry *Registry, store *NotificationStore, log *zap.Logger) *ProjectorCartridge {
	return &ProjectorCartridge{registry: registry, store: store, log: log}
}

func (c *ProjectorCartridge) Name() string { return "notification-projector" }

// OnPush registers a delivery callback. Registration happens at startup,
// before the processor runs.
func (c *ProjectorCartridge) OnPush(cb PushCallback) {
	c.callbacks = append(c.callbacks, cb)
}

func (c *ProjectorCartridge) Process(ctx context.Context, e *Envelope) (*Envelope, error) {
	schema, ok := c.registry.Lookup(e.Type)
	if !ok || schema.Lifecycle == nil {
		// No lifecycle: pass-through.
		return e, nil
	}
	lc := schema.Lifecycle

	idemKey := e.IdempotencyKey
	if idemKey == "" {
		idemKey = schema.IdempotencyKey(e.Payload)
	}
	if idemKey == "" {
		// Without a key there is no row identity to project onto.
		return e, nil
	}
	groupKey := schema.GroupKeyValue(e.Payload)

	switch {
	case lc.Resolves:
		n, err := c.store.FindByGroupKey(ctx, resolveTargetType(e.Type), groupKey)
		if errors.Is(err, ErrNotFound) {
			return e, nil
		}
		if err != nil {
			return nil, err
		}
		if err := c.store.Resolve(ctx, n.ID, e.Payload); err != nil {
			return nil, err
		}
		c.push(n.ID, e.Type, false, false, e.Level)

	case lc.Creates && lc.Updates && lc.GroupKey != "":
		existing, err := c.store.FindByGroupKey(ctx, e.Type, groupKey)
		if errors.Is(err, ErrNotFound) {
			n, err := c.store.Insert(ctx, e, idemKey, groupKey)
			if err != nil {
				return nil, err
			}
			c.push(n.ID, e.Type, true, true, e.Level)
			return e, nil
		}
		if err != nil {
			return nil, err
		}
		// Reactivation path: a fresh payload that passed dedup lands on the
		// existing row; meaningful field changes flip human_status back to
		// unseen.
		meaningful := meaningfulChanged(lc.MeaningfulFields, existing.Payload, e.Payload)
		if err := c.store.ApplyUpdate(ctx, existing.ID, e, idemKey, meaningful); err != nil {
			return nil, err
		}
		c.push(existing.ID, e.Type, false, meaningful, e.Level)

	case lc.Creates:
		n, err := c.store.Insert(ctx, e, idemKey, groupKey)
		if err != nil {
			return nil, err
		}
		c.push(n.ID, e.Type, true, true, e.Level)

	case lc.Updates:
		existing, err := c.store.FindByGroupKey(ctx, e.Type, groupKey)
		if errors.Is(err, ErrNotFound) {
			// Nothing to update; the envelope still passes downstream.
			return e, nil
		}
		if err != nil {
			return nil, err
		}
		meaningful := meaningfulChanged(lc.MeaningfulFields, existing.Payload, e.Payload)
		if err := c.store.ApplyUpdate(ctx, existing.ID, e, idemKey, meaningful); err != nil {
			return nil, err
		}
		c.push(existing.ID, e.Type, false, meaningful, e.Level)
	}

	return e, nil
}

func (c *ProjectorCartridge) push(id int64, eventType string, created, meaningful bool, level Level) {
	for _, cb := range c.callbacks {
		cb(id, eventType, created, meaningful, level)
	}
}

// meaningfulChanged reports whether any declared meaningful field differs
// between the stored and incoming payloads. An empty declaration means
// updates are never meaningful (silent updates).
func meaningfulChanged(fields []string, old, new map[string]interface{}) bool {
	for _, f := range fields {
		if !reflect.DeepEqual(old[f], new[f]) {
			return true
		}
	}
	return false
}

// resolveTargetType maps a resolving event type onto the group it resolves.
// Only session.closed is mapped (onto session.created); any other resolving
// type looks up rows of its own type under the same group key.
func resolveTargetType(eventType string) string {
	// session.closed resolves session.created rows.
	if eventType == "session.closed" {
		return "session.created"
	}
	return eventType
}
