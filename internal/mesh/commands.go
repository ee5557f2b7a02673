// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/commands"
)

const commandGroup = "commands"

// CommandMeta identifies a cross-machine command's origin.
type CommandMeta struct {
	TargetSession    string `json:"target_session,omitempty"`
	InitiatorMachine string `json:"initiator_machine"`
	InitiatorSession string `json:"initiator_session,omitempty"`
	CorrelationID    string `json:"correlation_id"`
}

// Dispatcher invokes the same command handlers used locally.
type Dispatcher func(ctx context.Context, op string, args json.RawMessage, meta CommandMeta) commands.Result

// Transport runs the per-machine command and response streams.
type Transport struct {
	rdb      *redis.Client
	registry *Registry
	machine  string
	consumer string
	maxLen   int64
	dispatch Dispatcher
	timeout  time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	pending map[string]chan commands.Result
}

// NewTransport wires the command transport. The consumer name is
// {machine}-{pid}: one active consumer per daemon process.
func NewTransport(rdb *redis.Client, registry *Registry, machine string, maxLen int64, timeout time.Duration, log *zap.Logger) *Transport {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Transport{
		rdb:      rdb,
		registry: registry,
		machine:  machine,
		consumer: fmt.Sprintf("%s-%d", machine, os.Getpid()),
		maxLen:   maxLen,
		timeout:  timeout,
		log:      log,
		pending:  make(map[string]chan commands.Result),
	}
}

// SetDispatcher wires the shared command handlers. Must be set before Run.
func (t *Transport) SetDispatcher(d Dispatcher) { t.dispatch = d }

func commandStream(machine string) string  { return "commands:" + machine }
func responseStream(machine string) string { return "responses:" + machine }

// Run consumes this machine's command stream and the response stream until
// the context is cancelled.
func (t *Transport) Run(ctx context.Context) error {
	stream := commandStream(t.machine)
	err := t.rdb.XGroupCreateMkStream(ctx, stream, commandGroup, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	go t.consumeResponses(ctx)

	// Recover the group's pending entries before live reads. The consumer
	// name is per-pid, so entries stranded under a dead process's consumer
	// must be claimed over to this one first; only then is our own PEL
	// worth draining.
	t.reclaimStale(ctx)
	t.consumeCommands(ctx, "0")
	t.consumeCommands(ctx, ">")
	return nil
}

// reclaimStale claims idle pending entries from any consumer of the group
// (a crashed daemon leaves them under its old {machine}-{pid} name).
func (t *Transport) reclaimStale(ctx context.Context) {
	_, _, err := t.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   commandStream(t.machine),
		Group:    commandGroup,
		Consumer: t.consumer,
		MinIdle:  time.Minute,
		Start:    "0",
		Count:    128,
	}).Result()
	if err != nil && err != redis.Nil {
		t.log.Warn("command autoclaim failed", zap.Error(err))
	}
}

func (t *Transport) consumeCommands(ctx context.Context, fromID string) {
	stream := commandStream(t.machine)
	for {
		if ctx.Err() != nil {
			return
		}
		args := &redis.XReadGroupArgs{
			Group:    commandGroup,
			Consumer: t.consumer,
			Streams:  []string{stream, fromID},
			Count:    16,
		}
		if fromID == ">" {
			args.Block = 5 * time.Second
		}
		res, err := t.rdb.XReadGroup(ctx, args).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				if fromID != ">" {
					return
				}
				continue
			}
			t.log.Warn("command read failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		empty := true
		for _, s := range res {
			for _, msg := range s.Messages {
				empty = false
				t.handleCommand(ctx, stream, msg)
			}
		}
		// PEL drain finished once the backlog read returns nothing.
		if fromID != ">" && empty {
			return
		}
	}
}

func (t *Transport) handleCommand(ctx context.Context, stream string, msg redis.XMessage) {
	op := str(msg.Values["op"])
	meta := CommandMeta{
		TargetSession:    str(msg.Values["target_session"]),
		InitiatorMachine: str(msg.Values["initiator_machine"]),
		InitiatorSession: str(msg.Values["initiator_session"]),
		CorrelationID:    str(msg.Values["correlation_id"]),
	}

	// Skip entries we emitted ourselves (loop prevention).
	if meta.InitiatorMachine == t.machine {
		t.rdb.XAck(ctx, stream, commandGroup, msg.ID)
		return
	}

	var result commands.Result
	if t.dispatch == nil {
		result = commands.Failure(commands.Contract(fmt.Errorf("no dispatcher wired")))
	} else {
		result = t.dispatch(ctx, op, json.RawMessage(str(msg.Values["args"])), meta)
	}

	t.publishResponse(ctx, meta, result)
	t.rdb.XAck(ctx, stream, commandGroup, msg.ID)
}

func (t *Transport) publishResponse(ctx context.Context, meta CommandMeta, result commands.Result) {
	if meta.InitiatorMachine == "" || meta.CorrelationID == "" {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		t.log.Warn("marshal response failed", zap.Error(err))
		return
	}
	err = t.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: responseStream(meta.InitiatorMachine),
		MaxLen: t.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"correlation_id": meta.CorrelationID,
			"result":         string(payload),
			"responder":      t.machine,
		},
	}).Err()
	if err != nil {
		t.log.Warn("publish response failed",
			zap.String("to", meta.InitiatorMachine), zap.Error(err))
	}
}

func (t *Transport) consumeResponses(ctx context.Context) {
	lastID := "$"
	stream := responseStream(t.machine)
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := t.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Count:   64,
			Block:   5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			t.log.Warn("response read failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		for _, s := range res {
			for _, msg := range s.Messages {
				lastID = msg.ID
				t.routeResponse(msg)
			}
		}
	}
}

func (t *Transport) routeResponse(msg redis.XMessage) {
	correlationID := str(msg.Values["correlation_id"])
	var result commands.Result
	if err := json.Unmarshal([]byte(str(msg.Values["result"])), &result); err != nil {
		t.log.Warn("unmarshal response failed", zap.Error(err))
		return
	}

	t.mu.Lock()
	ch, ok := t.pending[correlationID]
	if ok {
		delete(t.pending, correlationID)
	}
	t.mu.Unlock()
	if ok {
		ch <- result
	}
}

// OnlinePeers lists machines currently within heartbeat TTL, excluding this
// one.
func (t *Transport) OnlinePeers() []string {
	var peers []string
	for _, ps := range t.registry.Snapshot() {
		if ps.Online && ps.Peer.Machine != t.machine {
			peers = append(peers, ps.Peer.Machine)
		}
	}
	return peers
}

// Send appends a command to a peer's stream and waits for the correlated
// response. Unreachable peers fail per-peer with a classified error.
func (t *Transport) Send(ctx context.Context, target, targetSession, op string, args interface{}, initiatorSession string) commands.Result {
	if target == t.machine {
		return commands.Failure(commands.Invalid("target %s is the local machine", target))
	}
	if !t.registry.Online(target) {
		return commands.Failure(commands.Transient(fmt.Errorf("peer %s offline", target)))
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return commands.Failure(commands.Invalid("marshal args: %v", err))
	}

	correlationID := uuid.NewString()
	ch := make(chan commands.Result, 1)
	t.mu.Lock()
	t.pending[correlationID] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, correlationID)
		t.mu.Unlock()
	}()

	err = t.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: commandStream(target),
		MaxLen: t.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"op":                op,
			"args":              string(payload),
			"target_session":    targetSession,
			"initiator_machine": t.machine,
			"initiator_session": initiatorSession,
			"correlation_id":    correlationID,
		},
	}).Err()
	if err != nil {
		return commands.Failure(commands.Transient(fmt.Errorf("append to %s: %w", commandStream(target), err)))
	}

	select {
	case result := <-ch:
		return result
	case <-time.After(t.timeout):
		return commands.Failure(commands.Transient(fmt.Errorf("peer %s did not respond within %s", target, t.timeout)))
	case <-ctx.Done():
		return commands.Failure(commands.Transient(ctx.Err()))
	}
}
