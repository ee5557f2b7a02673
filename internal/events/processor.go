// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Processor reads the events stream via a consumer group and runs the
// cartridge pipeline. A cartridge error leaves the entry in the PEL for
// retry; after repeated failures it stays there for an operator, never
// silently dropped.
type Processor struct {
	rdb        *redis.Client
	group      string
	consumer   string
	cartridges []Cartridge
	log        *zap.Logger
}

// NewProcessor creates the consumer-group processor. One consumer per
// daemon process, named {machine}-{pid}.
func NewProcessor(rdb *redis.Client, group, machine string, cartridges []Cartridge, log *zap.Logger) *Processor {
	return &Processor{
		rdb:        rdb,
		group:      group,
		consumer:   fmt.Sprintf("%s-%d", machine, os.Getpid()),
		cartridges: cartridges,
		log:        log,
	}
}

// Run processes until the context is cancelled. On startup the consumer
// group's pending entries are recovered before live reads.
func (p *Processor) Run(ctx context.Context) error {
	err := p.rdb.XGroupCreateMkStream(ctx, EventStream, p.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create %s group: %w", p.group, err)
	}

	// Claim entries stranded by dead consumers of this group.
	p.reclaimStale(ctx)
	// Drain our own pending entries first.
	p.consume(ctx, "0")
	// Then live reads.
	p.consume(ctx, ">")
	return nil
}

func (p *Processor) reclaimStale(ctx context.Context) {
	_, _, err := p.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   EventStream,
		Group:    p.group,
		Consumer: p.consumer,
		MinIdle:  time.Minute,
		Start:    "0",
		Count:    128,
	}).Result()
	if err != nil && err != redis.Nil {
		p.log.Warn("autoclaim failed", zap.Error(err))
	}
}

func (p *Processor) consume(ctx context.Context, fromID string) {
	for {
		if ctx.Err() != nil {
			return
		}
		args := &redis.XReadGroupArgs{
			Group:    p.group,
			Consumer: p.consumer,
			Streams:  []string{EventStream, fromID},
			Count:    16,
		}
		if fromID == ">" {
			args.Block = 5 * time.Second
		}
		res, err := p.rdb.XReadGroup(ctx, args).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				if fromID != ">" {
					return
				}
				continue
			}
			p.log.Warn("event read failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		empty := true
		for _, stream := range res {
			for _, msg := range stream.Messages {
				empty = false
				p.handle(ctx, msg)
			}
		}
		if fromID != ">" && empty {
			return
		}
	}
}

// handle runs one entry through the pipeline. Success ACKs; a cartridge
// error does not ACK, so the entry stays pending for retry.
func (p *Processor) handle(ctx context.Context, msg redis.XMessage) {
	e, err := ParseWire(msg.Values)
	if err != nil {
		// A malformed entry is a contract violation: it stays in the PEL
		// until an operator intervenes.
		p.log.Error("unparseable envelope left in PEL",
			zap.String("id", msg.ID), zap.Error(err))
		return
	}

	current := e
	for _, cartridge := range p.cartridges {
		next, err := cartridge.Process(ctx, current)
		if err != nil {
			p.log.Error("cartridge failed, entry stays pending",
				zap.String("cartridge", cartridge.Name()),
				zap.String("type", e.Type),
				zap.String("id", msg.ID),
				zap.Error(err))
			return
		}
		if next == nil {
			// Dropped (e.g. dedup); the drop is a processing outcome, ACK it.
			break
		}
		current = next
	}

	if err := p.rdb.XAck(ctx, EventStream, p.group, msg.ID).Err(); err != nil {
		p.log.Warn("ack failed", zap.String("id", msg.ID), zap.Error(err))
	}
}
