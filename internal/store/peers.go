// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"
)

// UpsertPeer records the latest heartbeat for a machine.
func (s *Store) UpsertPeer(ctx context.Context, p *Peer) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO peers
		(machine, user, host, transport_path, last_heartbeat)
		VALUES (?,?,?,?,?)
		ON CONFLICT(machine) DO UPDATE SET
			user=excluded.user, host=excluded.host,
			transport_path=excluded.transport_path,
			last_heartbeat=excluded.last_heartbeat`,
		p.Machine, p.User, p.Host, p.TransportPath, p.LastHeartbeat.Unix())
	if err != nil {
		return fmt.Errorf("upsert peer: %w", err)
	}
	return nil
}

// ListPeers returns all cached peers.
func (s *Store) ListPeers(ctx context.Context) ([]*Peer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT machine, user, host, transport_path, last_heartbeat FROM peers`)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer rows.Close()

	var peers []*Peer
	for rows.Next() {
		var p Peer
		var hb int64
		if err := rows.Scan(&p.Machine, &p.User, &p.Host, &p.TransportPath, &hb); err != nil {
			return nil, err
		}
		p.LastHeartbeat = time.Unix(hb, 0)
		peers = append(peers, &p)
	}
	return peers, rows.Err()
}

// PrunePeers drops peers not heard from since cutoff.
func (s *Store) PrunePeers(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM peers WHERE last_heartbeat < ?`, cutoff.Unix())
	return err
}
