// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package redisadapter exposes sessions on the stream bus: inbound text on a
// shared input stream, outbound deltas on per-session output streams.
package redisadapter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/adapter"
	"github.com/instruktai/teleclaude/internal/commands"
	"github.com/instruktai/teleclaude/internal/mesh"
	"github.com/instruktai/teleclaude/internal/store"
)

// InputStream is the shared stream callers append session input to.
const InputStream = "adapter:redis:input"

// Handler receives normalized events.
type Handler func(ctx context.Context, event adapter.Event, meta adapter.Metadata) commands.Result

// Adapter is the stream-bus I/O surface.
type Adapter struct {
	rdb    *redis.Client
	pub    *mesh.OutputPublisher
	handle Handler
	maxLen int64
	log    *zap.Logger
	cancel context.CancelFunc
}

// New creates the adapter.
func New(rdb *redis.Client, pub *mesh.OutputPublisher, handle Handler, maxLen int64, log *zap.Logger) *Adapter {
	return &Adapter{rdb: rdb, pub: pub, handle: handle, maxLen: maxLen, log: log}
}

// Kind identifies the adapter.
func (a *Adapter) Kind() store.AdapterKind { return store.KindRedis }

// RenderMode selects the precise form: stream consumers are agents.
func (a *Adapter) RenderMode() adapter.RenderMode { return adapter.RenderAgent }

// Start begins consuming the input stream.
func (a *Adapter) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.consume(loopCtx)
	a.log.Info("redis adapter started")
	return nil
}

// Stop halts consumption.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

func (a *Adapter) consume(ctx context.Context) {
	lastID := "$"
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := a.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{InputStream, lastID},
			Count:   32,
			Block:   5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			a.log.Warn("redis input read failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		for _, stream := range res {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				a.dispatch(ctx, msg)
			}
		}
	}
}

func (a *Adapter) dispatch(ctx context.Context, msg redis.XMessage) {
	sessionID, _ := msg.Values["session_id"].(string)
	text, _ := msg.Values["text"].(string)
	if sessionID == "" || text == "" {
		return
	}
	meta := adapter.Metadata{
		Kind:      store.KindRedis,
		SessionID: sessionID,
		MessageID: msg.ID,
	}
	result := a.handle(ctx, adapter.Event{Type: adapter.EventMessage, Text: text}, meta)
	if !result.OK() && result.Error != nil {
		a.log.Warn("redis input rejected",
			zap.String("session", sessionID),
			zap.String("error", result.Error.Message))
	}
}

// SendMessage appends the delta to the session's output stream.
func (a *Adapter) SendMessage(ctx context.Context, sess *store.Session, text string) (string, error) {
	id, err := a.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: mesh.OutputStreamName(sess.ID),
		MaxLen: a.maxLen,
		Approx: true,
		Values: map[string]interface{}{"agent": text},
	}).Result()
	if err != nil {
		return "", err
	}
	return id, nil
}

// DeleteMessage removes the entry from the session's output stream with XDEL.
func (a *Adapter) DeleteMessage(ctx context.Context, sess *store.Session, messageID string) error {
	return a.rdb.XDel(ctx, mesh.OutputStreamName(sess.ID), messageID).Err()
}

// DeliverToSession appends relayed text with its origin label.
func (a *Adapter) DeliverToSession(ctx context.Context, sess *store.Session, text, originHint string) error {
	_, err := a.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: mesh.OutputStreamName(sess.ID),
		MaxLen: a.maxLen,
		Approx: true,
		Values: map[string]interface{}{"agent": text, "origin": originHint},
	}).Result()
	return err
}
