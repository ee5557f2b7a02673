// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instruktai/teleclaude/internal/store"
)

func TestRegistry_OnlineWithinTTL(t *testing.T) {
	r := NewRegistry(30 * time.Second)
	base := time.Now()
	r.now = func() time.Time { return base }

	r.Observe(store.Peer{Machine: "beta", LastHeartbeat: base})
	assert.True(t, r.Online("beta"))

	// Heartbeat silence beyond 3× period: offline, still listed.
	r.now = func() time.Time { return base.Add(31 * time.Second) }
	assert.False(t, r.Online("beta"))

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.False(t, snap[0].Online)
	assert.Equal(t, 31*time.Second, snap[0].LastSeen)
}

func TestRegistry_ExpiredPeersRetainedThenDropped(t *testing.T) {
	r := NewRegistry(30 * time.Second)
	base := time.Now()
	r.now = func() time.Time { return base }
	r.Observe(store.Peer{Machine: "beta", LastHeartbeat: base})

	// Within retention: present for "last seen N ago" UI.
	r.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.Len(t, r.Snapshot(), 1)

	// Beyond retention: dropped.
	r.now = func() time.Time { return base.Add(time.Hour) }
	assert.Empty(t, r.Snapshot())
}

func TestRegistry_HeartbeatRefreshes(t *testing.T) {
	r := NewRegistry(30 * time.Second)
	base := time.Now()
	r.now = func() time.Time { return base.Add(45 * time.Second) }

	r.Observe(store.Peer{Machine: "beta", LastHeartbeat: base})
	assert.False(t, r.Online("beta"))

	r.Observe(store.Peer{Machine: "beta", LastHeartbeat: base.Add(40 * time.Second)})
	assert.True(t, r.Online("beta"))
}

func TestRegistry_SnapshotSorted(t *testing.T) {
	r := NewRegistry(time.Minute)
	now := time.Now()
	r.Observe(store.Peer{Machine: "zeta", LastHeartbeat: now})
	r.Observe(store.Peer{Machine: "alpha", LastHeartbeat: now})

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "alpha", snap[0].Peer.Machine)
	assert.Equal(t, "zeta", snap[1].Peer.Machine)
}
