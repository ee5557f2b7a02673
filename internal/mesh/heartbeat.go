// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/store"
)

const heartbeatStream = "heartbeat"

// Heartbeat publishes this machine's liveness and consumes every peer's.
// Heartbeats are idempotent broadcasts, so they use raw stream reads with
// self-origin filtering, not consumer groups.
type Heartbeat struct {
	rdb      *redis.Client
	registry *Registry
	cache    *store.Store
	machine  string
	user     string
	host     string
	binPath  string
	interval time.Duration
	maxLen   int64
	log      *zap.Logger
}

// NewHeartbeat wires the heartbeat publisher and consumer.
func NewHeartbeat(rdb *redis.Client, registry *Registry, cache *store.Store, machine, user string, interval time.Duration, maxLen int64, log *zap.Logger) *Heartbeat {
	host, _ := os.Hostname()
	binPath, _ := os.Executable()
	return &Heartbeat{
		rdb:      rdb,
		registry: registry,
		cache:    cache,
		machine:  machine,
		user:     user,
		host:     host,
		binPath:  binPath,
		interval: interval,
		maxLen:   maxLen,
		log:      log,
	}
}

// Run publishes on the fixed interval and consumes the shared stream until
// the context is cancelled. The local machine is always present in the
// registry.
func (h *Heartbeat) Run(ctx context.Context) {
	h.publish(ctx) // announce immediately so the local machine is present
	go h.consume(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.publish(ctx)
		}
	}
}

func (h *Heartbeat) publish(ctx context.Context) {
	now := time.Now()
	err := h.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: heartbeatStream,
		MaxLen: h.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"machine_name":          h.machine,
			"user":                  h.user,
			"host":                  h.host,
			"transport_binary_path": h.binPath,
			"timestamp":             strconv.FormatInt(now.Unix(), 10),
		},
	}).Err()
	if err != nil {
		h.log.Warn("heartbeat publish failed", zap.Error(err))
	}

	// Observe ourselves regardless of stream health.
	h.registry.Observe(store.Peer{
		Machine:       h.machine,
		User:          h.user,
		Host:          h.host,
		TransportPath: h.binPath,
		LastHeartbeat: now,
	})
}

func (h *Heartbeat) consume(ctx context.Context) {
	lastID := "$"
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := h.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{heartbeatStream, lastID},
			Count:   64,
			Block:   5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			h.log.Warn("heartbeat read failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				h.observe(ctx, msg.Values)
			}
		}
	}
}

func (h *Heartbeat) observe(ctx context.Context, values map[string]interface{}) {
	machine := str(values["machine_name"])
	if machine == "" || machine == h.machine {
		// Skip entries we emitted ourselves.
		return
	}

	ts, _ := strconv.ParseInt(str(values["timestamp"]), 10, 64)
	peer := store.Peer{
		Machine:       machine,
		User:          str(values["user"]),
		Host:          str(values["host"]),
		TransportPath: str(values["transport_binary_path"]),
		LastHeartbeat: time.Unix(ts, 0),
	}
	h.registry.Observe(peer)

	if h.cache != nil {
		if err := h.cache.UpsertPeer(ctx, &peer); err != nil {
			h.log.Debug("peer cache upsert failed", zap.Error(err))
		}
	}
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
