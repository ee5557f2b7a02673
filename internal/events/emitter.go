// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventStream is the platform stream name.
const EventStream = "events"

// Emitter serializes envelopes and appends them to the event stream.
type Emitter struct {
	rdb     *redis.Client
	machine string
	maxLen  int64
	log     *zap.Logger
	now     func() time.Time
}

// NewEmitter creates the emitter.
func NewEmitter(rdb *redis.Client, machine string, maxLen int64, log *zap.Logger) *Emitter {
	return &Emitter{rdb: rdb, machine: machine, maxLen: maxLen, log: log, now: time.Now}
}

// EmitParams name the emit arguments.
type EmitParams struct {
	Type        string
	Source      string
	Level       Level
	Domain      string
	Description string
	Payload     map[string]interface{}
	Visibility  Visibility
	Entity      string
}

// Emit builds an envelope and appends it to the events stream with maxlen
// trimming.
func (em *Emitter) Emit(ctx context.Context, p EmitParams) error {
	if p.Visibility == "" {
		p.Visibility = VisibilityLocal
	}
	e := &Envelope{
		Type:        p.Type,
		Version:     1,
		Source:      p.Source,
		Timestamp:   em.now(),
		Level:       p.Level,
		Domain:      p.Domain,
		Entity:      p.Entity,
		Description: p.Description,
		Visibility:  p.Visibility,
		Payload:     p.Payload,
		Machine:     em.machine,
	}
	return em.EmitEnvelope(ctx, e)
}

// EmitEnvelope appends a fully formed envelope.
func (em *Emitter) EmitEnvelope(ctx context.Context, e *Envelope) error {
	if e.Machine == "" {
		e.Machine = em.machine
	}
	values, err := e.Wire()
	if err != nil {
		return err
	}
	err = em.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: EventStream,
		MaxLen: em.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("emit %s: %w", e.Type, err)
	}
	em.log.Debug("event emitted", zap.String("type", e.Type), zap.String("domain", e.Domain))
	return nil
}
