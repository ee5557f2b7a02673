// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"sync"
	"time"
)

// dedupeWindow drops duplicate inbound events observed on multiple adapters
// within a short window, keyed by (session id, origin message id).
type dedupeWindow struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

func newDedupeWindow(window time.Duration) *dedupeWindow {
	return &dedupeWindow{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Duplicate records the key and reports whether it was already seen within
// the window. Events without a message id are never deduplicated.
func (d *dedupeWindow) Duplicate(sessionID, messageID string) bool {
	if messageID == "" {
		return false
	}
	key := sessionID + "\x00" + messageID

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	// Opportunistic sweep of expired entries
	for k, t := range d.seen {
		if now.Sub(t) > d.window {
			delete(d.seen, k)
		}
	}

	if t, ok := d.seen[key]; ok && now.Sub(t) <= d.window {
		return true
	}
	d.seen[key] = now
	return false
}
