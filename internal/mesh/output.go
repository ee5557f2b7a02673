// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OutputStreamName returns the per-session output stream.
func OutputStreamName(sessionID string) string { return "output:" + sessionID }

// OutputEntry is one dual-mode delta on a session's output stream.
type OutputEntry struct {
	SessionID string `json:"session_id"`
	Machine   string `json:"machine"`
	Human     string `json:"human"`
	Agent     string `json:"agent"`
}

// OutputPublisher fans session output onto per-session streams so remote
// subscribers can mirror activity.
type OutputPublisher struct {
	rdb     *redis.Client
	machine string
	maxLen  int64
	log     *zap.Logger
}

// NewOutputPublisher creates the publisher.
func NewOutputPublisher(rdb *redis.Client, machine string, maxLen int64, log *zap.Logger) *OutputPublisher {
	return &OutputPublisher{rdb: rdb, machine: machine, maxLen: maxLen, log: log}
}

// Publish appends a delta to the session's output stream.
func (p *OutputPublisher) Publish(ctx context.Context, sessionID, human, agent string) {
	err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: OutputStreamName(sessionID),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"machine": p.machine,
			"human":   human,
			"agent":   agent,
		},
	}).Err()
	if err != nil {
		p.log.Warn("output publish failed",
			zap.String("session", sessionID), zap.Error(err))
	}
}

// Subscribe mirrors a remote session's output stream, invoking fn for every
// entry not originated by this machine, until the context is cancelled.
func (p *OutputPublisher) Subscribe(ctx context.Context, sessionID string, fn func(OutputEntry)) {
	lastID := "$"
	stream := OutputStreamName(sessionID)
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := p.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Count:   64,
			Block:   5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			p.log.Warn("output subscribe read failed",
				zap.String("session", sessionID), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		for _, s := range res {
			for _, msg := range s.Messages {
				lastID = msg.ID
				if str(msg.Values["machine"]) == p.machine {
					continue
				}
				fn(OutputEntry{
					SessionID: sessionID,
					Machine:   str(msg.Values["machine"]),
					Human:     str(msg.Values["human"]),
					Agent:     str(msg.Values["agent"]),
				})
			}
		}
	}
}
