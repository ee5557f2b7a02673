// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/commands"
	"github.com/instruktai/teleclaude/internal/store"
)

const dedupeTTL = 10 * time.Second

// SessionLookup fetches sessions for outbound routing.
type SessionLookup interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
}

// Client owns the adapter instances and is the fan-in/fan-out boundary.
type Client struct {
	mu          sync.RWMutex
	adapters    map[store.AdapterKind]Adapter
	dispatch    Dispatcher
	sessions    SessionLookup
	sendTimeout time.Duration
	dedupe      *dedupeWindow
	log         *zap.Logger

	// per-session outbound serialization
	sendMu sync.Mutex
	locks  map[string]*sync.Mutex

	// transient notice message ids per session, deleted on the next
	// substantive message
	noticeMu sync.Mutex
	notices  map[string][]notice
}

type notice struct {
	kind      store.AdapterKind
	messageID string
}

// NewClient creates the unified adapter client.
func NewClient(sessions SessionLookup, sendTimeout time.Duration, log *zap.Logger) *Client {
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &Client{
		adapters:    make(map[store.AdapterKind]Adapter),
		sessions:    sessions,
		sendTimeout: sendTimeout,
		dedupe:      newDedupeWindow(dedupeTTL),
		log:         log,
		locks:       make(map[string]*sync.Mutex),
		notices:     make(map[string][]notice),
	}
}

// SetDispatcher wires the shared handler set. Must be called before Start.
func (c *Client) SetDispatcher(d Dispatcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatch = d
}

// Register adds an adapter instance. Later registrations replace earlier
// ones of the same kind.
func (c *Client) Register(a Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[a.Kind()] = a
}

// Adapter returns the registered adapter of the given kind, if any.
func (c *Client) Adapter(kind store.AdapterKind) (Adapter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.adapters[kind]
	return a, ok
}

// Start starts every registered adapter.
func (c *Client) Start(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for kind, a := range c.adapters {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("start %s adapter: %w", kind, err)
		}
	}
	return nil
}

// Stop stops every registered adapter. Failures are logged, not raised.
func (c *Client) Stop(ctx context.Context) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for kind, a := range c.adapters {
		if err := a.Stop(ctx); err != nil {
			c.log.Warn("adapter stop failed", zap.String("adapter", string(kind)), zap.Error(err))
		}
	}
}

// HandleEvent is the single inbound entry point. Every adapter calls it with
// its normalized event; the returned envelope is what the adapter translates
// back into its transport.
func (c *Client) HandleEvent(ctx context.Context, event Event, meta Metadata) commands.Result {
	c.mu.RLock()
	dispatch := c.dispatch
	c.mu.RUnlock()
	if dispatch == nil {
		return commands.Failure(commands.Contract(fmt.Errorf("no dispatcher wired")))
	}

	if c.dedupe.Duplicate(meta.SessionID, meta.MessageID) {
		c.log.Debug("dropped duplicate inbound event",
			zap.String("session", meta.SessionID),
			zap.String("message_id", meta.MessageID))
		return commands.Success(nil)
	}

	return dispatch(ctx, event, meta)
}

// SendMessage broadcasts text to every adapter bound to the session. Unknown
// or closed sessions are dropped with a log. Per-adapter failures are logged
// and never raised across adapters. The call returns after every per-adapter
// send has completed or failed, preserving per-session submission order.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) {
	c.send(ctx, sessionID, text, false)
}

// SendNotice broadcasts a transient feedback message. It is tracked per
// session and deleted (best-effort) on the next substantive message.
func (c *Client) SendNotice(ctx context.Context, sessionID, text string) {
	c.send(ctx, sessionID, text, true)
}

// SendOutput broadcasts a dual-mode output delta; each adapter receives the
// form it declared at registration.
func (c *Client) SendOutput(ctx context.Context, sessionID, human, agent string) {
	sess, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil || sess.Status == store.StatusClosed {
		return
	}

	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	c.deleteNotices(ctx, sess)

	var wg sync.WaitGroup
	for _, kind := range sess.AdapterTypes {
		a, ok := c.Adapter(kind)
		if !ok {
			continue
		}
		text := human
		if a.RenderMode() == RenderAgent {
			text = agent
		}
		if text == "" {
			continue
		}
		wg.Add(1)
		go func(kind store.AdapterKind, a Adapter, text string) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
			defer cancel()
			if _, err := a.SendMessage(sendCtx, sess, text); err != nil {
				c.log.Warn("adapter output send failed",
					zap.String("session", sessionID),
					zap.String("adapter", string(kind)),
					zap.Error(err))
			}
		}(kind, a, text)
	}
	wg.Wait()
}

func (c *Client) send(ctx context.Context, sessionID, text string, transient bool) {
	sess, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		c.log.Info("send dropped: session unknown", zap.String("session", sessionID))
		return
	}
	if sess.Status == store.StatusClosed {
		c.log.Info("send dropped: session closed", zap.String("session", sessionID))
		return
	}

	// Serialize outbound per session so relative delivery order per adapter
	// is preserved.
	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if !transient {
		c.deleteNotices(ctx, sess)
	}

	var wg sync.WaitGroup
	for _, kind := range sess.AdapterTypes {
		a, ok := c.Adapter(kind)
		if !ok {
			c.log.Debug("no adapter registered for kind", zap.String("adapter", string(kind)))
			continue
		}
		wg.Add(1)
		go func(kind store.AdapterKind, a Adapter) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
			defer cancel()

			msgID, err := a.SendMessage(sendCtx, sess, text)
			if err != nil {
				c.log.Warn("adapter send failed",
					zap.String("session", sessionID),
					zap.String("adapter", string(kind)),
					zap.Error(err))
				return
			}
			if transient && msgID != "" {
				c.trackNotice(sessionID, kind, msgID)
			}
		}(kind, a)
	}
	wg.Wait()
}

// DeliverToSession routes text to one adapter surface of a session (used by
// the relay return path).
func (c *Client) DeliverToSession(ctx context.Context, sess *store.Session, kind store.AdapterKind, text, originHint string) error {
	a, ok := c.Adapter(kind)
	if !ok {
		return commands.NotFound("adapter %s not registered", kind)
	}
	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	return a.DeliverToSession(sendCtx, sess, text, originHint)
}

func (c *Client) sessionLock(sessionID string) *sync.Mutex {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	lock, ok := c.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[sessionID] = lock
	}
	return lock
}

func (c *Client) trackNotice(sessionID string, kind store.AdapterKind, messageID string) {
	c.noticeMu.Lock()
	defer c.noticeMu.Unlock()
	c.notices[sessionID] = append(c.notices[sessionID], notice{kind: kind, messageID: messageID})
}

// deleteNotices best-effort deletes tracked transient messages.
func (c *Client) deleteNotices(ctx context.Context, sess *store.Session) {
	c.noticeMu.Lock()
	pending := c.notices[sess.ID]
	delete(c.notices, sess.ID)
	c.noticeMu.Unlock()

	for _, n := range pending {
		a, ok := c.Adapter(n.kind)
		if !ok {
			continue
		}
		if err := a.DeleteMessage(ctx, sess, n.messageID); err != nil {
			c.log.Debug("notice delete failed",
				zap.String("session", sess.ID),
				zap.String("adapter", string(n.kind)),
				zap.Error(err))
		}
	}
}
