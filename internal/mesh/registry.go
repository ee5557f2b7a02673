// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package mesh makes remote peers discoverable over a shared heartbeat
// stream and runs session operations across them.
package mesh

import (
	"sort"
	"sync"
	"time"

	"github.com/instruktai/teleclaude/internal/store"
)

// PeerStatus is a registry snapshot entry.
type PeerStatus struct {
	Peer     store.Peer    `json:"peer"`
	Online   bool          `json:"online"`
	LastSeen time.Duration `json:"last_seen"`
}

// Registry is the in-memory peer registry. The heartbeat publisher and
// consumer record peers; Snapshot drops peers past retention.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]store.Peer
	ttl   time.Duration
	// retain keeps expired peers around for "last seen N ago" UI before
	// they are dropped entirely.
	retain time.Duration
	now    func() time.Time
}

// NewRegistry creates a registry with the given online TTL.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		peers:  make(map[string]store.Peer),
		ttl:    ttl,
		retain: 10 * ttl,
		now:    time.Now,
	}
}

// Observe records a heartbeat. Peers are created implicitly by their first
// heartbeat.
func (r *Registry) Observe(p store.Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.Machine] = p
}

// Get returns a peer by machine name.
func (r *Registry) Get(machine string) (store.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[machine]
	return p, ok
}

// Online reports whether a peer's last heartbeat is within TTL.
func (r *Registry) Online(machine string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[machine]
	return ok && p.Online(r.now(), r.ttl)
}

// Snapshot returns all known peers with their derived status, sorted by
// machine name. Peers expired beyond the retention window are dropped.
func (r *Registry) Snapshot() []PeerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]PeerStatus, 0, len(r.peers))
	for name, p := range r.peers {
		age := now.Sub(p.LastHeartbeat)
		if age > r.retain {
			delete(r.peers, name)
			continue
		}
		out = append(out, PeerStatus{
			Peer:     p,
			Online:   p.Online(now, r.ttl),
			LastSeen: age,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Peer.Machine < out[j].Peer.Machine })
	return out
}
