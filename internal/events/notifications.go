// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound reports a missing notification.
var ErrNotFound = errors.New("notification not found")

// HumanStatus is the human-facing axis of the notification state machine.
type HumanStatus string

const (
	HumanUnseen HumanStatus = "unseen"
	HumanSeen   HumanStatus = "seen"
)

// AgentStatus is the agent-facing axis. The two axes advance independently.
type AgentStatus string

const (
	AgentNone       AgentStatus = "none"
	AgentClaimed    AgentStatus = "claimed"
	AgentInProgress AgentStatus = "in_progress"
	AgentResolved   AgentStatus = "resolved"
)

// Notification is a mutable projection of an envelope group.
type Notification struct {
	ID             int64                  `json:"id"`
	EventType      string                 `json:"event_type"`
	Version        int                    `json:"version"`
	Source         string                 `json:"source"`
	Level          Level                  `json:"level"`
	Domain         string                 `json:"domain"`
	Visibility     Visibility             `json:"visibility"`
	Entity         string                 `json:"entity,omitempty"`
	Description    string                 `json:"description"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key"`
	GroupKey       string                 `json:"group_key,omitempty"`
	HumanStatus    HumanStatus            `json:"human_status"`
	AgentStatus    AgentStatus            `json:"agent_status"`
	AgentID        string                 `json:"agent_id,omitempty"`
	Resolution     map[string]interface{} `json:"resolution,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	SeenAt         *time.Time             `json:"seen_at,omitempty"`
	ClaimedAt      *time.Time             `json:"claimed_at,omitempty"`
	ResolvedAt     *time.Time             `json:"resolved_at,omitempty"`
}

// ListFilter narrows notification listings.
type ListFilter struct {
	Level       *Level
	Domain      string
	HumanStatus HumanStatus
	AgentStatus AgentStatus
	Visibility  Visibility
	Since       time.Time
	Limit       int
	Offset      int
}

// NotificationStore persists notifications in events.db.
type NotificationStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenNotificationStore opens (creating if needed) events.db.
func OpenNotificationStore(ctx context.Context, path string) (*NotificationStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create events db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open events db: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		source TEXT NOT NULL DEFAULT '',
		level INTEGER NOT NULL DEFAULT 0,
		domain TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'local',
		entity TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '{}',
		idempotency_key TEXT NOT NULL UNIQUE,
		group_key TEXT NOT NULL DEFAULT '',
		human_status TEXT NOT NULL DEFAULT 'unseen',
		agent_status TEXT NOT NULL DEFAULT 'none',
		agent_id TEXT NOT NULL DEFAULT '',
		resolution TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		seen_at INTEGER,
		claimed_at INTEGER,
		resolved_at INTEGER
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate notifications: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_notifications_group ON notifications(event_type, group_key)`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &NotificationStore{db: db, now: time.Now}, nil
}

// Close closes the store.
func (s *NotificationStore) Close() error { return s.db.Close() }

const notifColumns = `id, event_type, version, source, level, domain, visibility, entity,
	description, payload, idempotency_key, group_key, human_status, agent_status,
	agent_id, resolution, created_at, updated_at, seen_at, claimed_at, resolved_at`

// Insert creates a new notification row from an envelope.
func (s *NotificationStore) Insert(ctx context.Context, e *Envelope, idemKey, groupKey string) (*Notification, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `INSERT INTO notifications
		(event_type, version, source, level, domain, visibility, entity, description,
		 payload, idempotency_key, group_key, human_status, agent_status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.Type, e.Version, e.Source, int(e.Level), e.Domain, string(e.Visibility),
		e.Entity, e.Description, string(payload), idemKey, groupKey,
		string(HumanUnseen), string(AgentNone), now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.Get(ctx, id)
}

// Get fetches a notification by id.
func (s *NotificationStore) Get(ctx context.Context, id int64) (*Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notifColumns+` FROM notifications WHERE id = ?`, id)
	return scanNotification(row)
}

// FindByIdempotencyKey returns the row holding the dedup key, if any.
func (s *NotificationStore) FindByIdempotencyKey(ctx context.Context, key string) (*Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notifColumns+` FROM notifications WHERE idempotency_key = ?`, key)
	return scanNotification(row)
}

// FindByGroupKey returns the row for (event type, group key), if any.
func (s *NotificationStore) FindByGroupKey(ctx context.Context, eventType, groupKey string) (*Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+notifColumns+` FROM notifications
		 WHERE event_type = ? AND group_key = ? ORDER BY id DESC LIMIT 1`,
		eventType, groupKey)
	return scanNotification(row)
}

// ApplyUpdate refreshes a row from a newer envelope. When meaningful is
// true, human_status resets to unseen (the reactivation path).
func (s *NotificationStore) ApplyUpdate(ctx context.Context, id int64, e *Envelope, idemKey string, meaningful bool) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	now := s.now()

	query := `UPDATE notifications SET payload = ?, description = ?, idempotency_key = ?, updated_at = ?`
	args := []interface{}{string(payload), e.Description, idemKey, now.Unix()}
	if meaningful {
		query += `, human_status = ?, seen_at = NULL`
		args = append(args, string(HumanUnseen))
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSeen flips the human axis. unseen=true reverts to unseen.
func (s *NotificationStore) MarkSeen(ctx context.Context, id int64, unseen bool) error {
	var res sql.Result
	var err error
	now := s.now()
	if unseen {
		res, err = s.db.ExecContext(ctx,
			`UPDATE notifications SET human_status = ?, seen_at = NULL, updated_at = ? WHERE id = ?`,
			string(HumanUnseen), now.Unix(), id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE notifications SET human_status = ?, seen_at = ?, updated_at = ? WHERE id = ?`,
			string(HumanSeen), now.Unix(), now.Unix(), id)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Claim moves the agent axis none -> claimed. claimed_at is set only on
// this transition; later transitions leave it intact.
func (s *NotificationStore) Claim(ctx context.Context, id int64, agentID string) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET agent_status = ?, agent_id = ?, claimed_at = ?, updated_at = ?
		 WHERE id = ? AND agent_status = ?`,
		string(AgentClaimed), agentID, now.Unix(), now.Unix(), id, string(AgentNone))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either missing or already claimed.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("notification %d already claimed", id)
	}
	return nil
}

// SetAgentStatus advances the agent axis without touching claimed_at.
func (s *NotificationStore) SetAgentStatus(ctx context.Context, id int64, status AgentStatus, agentID string) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET agent_status = ?, agent_id = ?, updated_at = ? WHERE id = ?`,
		string(status), agentID, now.Unix(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Resolve terminates the agent axis with a resolution blob.
func (s *NotificationStore) Resolve(ctx context.Context, id int64, resolution map[string]interface{}) error {
	raw, err := json.Marshal(resolution)
	if err != nil {
		return fmt.Errorf("marshal resolution: %w", err)
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET agent_status = ?, resolution = ?, resolved_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(AgentResolved), string(raw), now.Unix(), now.Unix(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns notifications newest-first under the filter.
func (s *NotificationStore) List(ctx context.Context, f ListFilter) ([]*Notification, error) {
	query := `SELECT ` + notifColumns + ` FROM notifications WHERE 1=1`
	var args []interface{}
	if f.Level != nil {
		query += ` AND level >= ?`
		args = append(args, int(*f.Level))
	}
	if f.Domain != "" {
		query += ` AND domain = ?`
		args = append(args, f.Domain)
	}
	if f.HumanStatus != "" {
		query += ` AND human_status = ?`
		args = append(args, string(f.HumanStatus))
	}
	if f.AgentStatus != "" {
		query += ` AND agent_status = ?`
		args = append(args, string(f.AgentStatus))
	}
	if f.Visibility != "" {
		query += ` AND visibility = ?`
		args = append(args, string(f.Visibility))
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since.Unix())
	}
	query += ` ORDER BY id DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (*Notification, error) {
	var n Notification
	var level int
	var visibility, humanStatus, agentStatus, payload, resolution string
	var created, updated int64
	var seenAt, claimedAt, resolvedAt sql.NullInt64

	err := row.Scan(&n.ID, &n.EventType, &n.Version, &n.Source, &level, &n.Domain,
		&visibility, &n.Entity, &n.Description, &payload, &n.IdempotencyKey,
		&n.GroupKey, &humanStatus, &agentStatus, &n.AgentID, &resolution,
		&created, &updated, &seenAt, &claimedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}

	n.Level = Level(level)
	n.Visibility = Visibility(visibility)
	n.HumanStatus = HumanStatus(humanStatus)
	n.AgentStatus = AgentStatus(agentStatus)
	n.CreatedAt = time.Unix(created, 0)
	n.UpdatedAt = time.Unix(updated, 0)
	n.SeenAt = nullTime(seenAt)
	n.ClaimedAt = nullTime(claimedAt)
	n.ResolvedAt = nullTime(resolvedAt)

	if payload != "" && payload != "{}" {
		if err := json.Unmarshal([]byte(payload), &n.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if resolution != "" {
		if err := json.Unmarshal([]byte(resolution), &n.Resolution); err != nil {
			return nil, fmt.Errorf("unmarshal resolution: %w", err)
		}
	}
	return &n, nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
