// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound reports a missing row.
var ErrNotFound = errors.New("not found")

const sessionColumns = `id, computer, pane, project_dir, agent, thinking_mode, title, status,
	adapter_types, adapter_metadata, initiator_session_id, human_role, human_email,
	identity_key, relay_status, relay_discord_channel_id, relay_started_at,
	native_session_id, ux_state, output_baseline, created_at, last_activity_at,
	last_summary, last_summary_at, last_memory_extraction_at, help_desk_processed_at`

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	adapterTypes, err := json.Marshal(sess.AdapterTypes)
	if err != nil {
		return fmt.Errorf("marshal adapter_types: %w", err)
	}
	adapterMeta, err := json.Marshal(sess.AdapterMetadata)
	if err != nil {
		return fmt.Errorf("marshal adapter_metadata: %w", err)
	}
	ux, err := json.Marshal(sess.UX)
	if err != nil {
		return fmt.Errorf("marshal ux_state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sess.ID, sess.Computer, sess.Pane, sess.ProjectDir, string(sess.Agent),
		string(sess.ThinkingMode), sess.Title, string(sess.Status),
		string(adapterTypes), string(adapterMeta), sess.InitiatorSessionID,
		string(sess.HumanRole), sess.HumanEmail, sess.IdentityKey,
		string(sess.RelayStatus), sess.RelayChannelID, unixOrZero(sess.RelayStartedAt),
		sess.NativeSessionID, string(ux), sess.OutputBaseline,
		sess.CreatedAt.Unix(), sess.LastActivityAt.Unix(),
		sess.LastSummary, unixOrZero(sess.LastSummaryAt),
		unixOrZero(sess.LastMemoryExtractionAt), unixOrZero(sess.HelpDeskProcessedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetSessionByNative fetches a session by its agent CLI continuation handle.
func (s *Store) GetSessionByNative(ctx context.Context, agent AgentVariant, nativeID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE agent = ? AND native_session_id = ?`,
		string(agent), nativeID)
	return scanSession(row)
}

// GetSessionByRelayChannel fetches the session diverted to a relay thread.
func (s *Store) GetSessionByRelayChannel(ctx context.Context, channelID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE relay_status = 'active' AND relay_discord_channel_id = ?`, channelID)
	return scanSession(row)
}

// ListSessions returns sessions, optionally filtered by status.
func (s *Store) ListSessions(ctx context.Context, status Status) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpdateSession rewrites all mutable fields of a session row.
func (s *Store) UpdateSession(ctx context.Context, sess *Session) error {
	adapterTypes, err := json.Marshal(sess.AdapterTypes)
	if err != nil {
		return fmt.Errorf("marshal adapter_types: %w", err)
	}
	adapterMeta, err := json.Marshal(sess.AdapterMetadata)
	if err != nil {
		return fmt.Errorf("marshal adapter_metadata: %w", err)
	}
	ux, err := json.Marshal(sess.UX)
	if err != nil {
		return fmt.Errorf("marshal ux_state: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET
		computer=?, pane=?, project_dir=?, agent=?, thinking_mode=?, title=?, status=?,
		adapter_types=?, adapter_metadata=?, initiator_session_id=?, human_role=?,
		human_email=?, identity_key=?, relay_status=?, relay_discord_channel_id=?,
		relay_started_at=?, native_session_id=?, ux_state=?, output_baseline=?,
		last_activity_at=?, last_summary=?, last_summary_at=?,
		last_memory_extraction_at=?, help_desk_processed_at=?
		WHERE id=?`,
		sess.Computer, sess.Pane, sess.ProjectDir, string(sess.Agent),
		string(sess.ThinkingMode), sess.Title, string(sess.Status),
		string(adapterTypes), string(adapterMeta), sess.InitiatorSessionID,
		string(sess.HumanRole), sess.HumanEmail, sess.IdentityKey,
		string(sess.RelayStatus), sess.RelayChannelID, unixOrZero(sess.RelayStartedAt),
		sess.NativeSessionID, string(ux), sess.OutputBaseline,
		sess.LastActivityAt.Unix(), sess.LastSummary, unixOrZero(sess.LastSummaryAt),
		unixOrZero(sess.LastMemoryExtractionAt), unixOrZero(sess.HelpDeskProcessedAt),
		sess.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, ErrNotFound)
	}
	return nil
}

// TouchActivity bumps last_activity_at to now.
func (s *Store) TouchActivity(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity_at = ? WHERE id = ?`, now.Unix(), id)
	return err
}

// SetSummary stores the latest output summary for listings.
func (s *Store) SetSummary(ctx context.Context, id, summary string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_summary = ?, last_summary_at = ? WHERE id = ?`,
		summary, at.Unix(), id)
	return err
}

// SetOutputBaseline persists the poller baseline so resumption does not
// double-deliver.
func (s *Store) SetOutputBaseline(ctx context.Context, id, baseline string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET output_baseline = ? WHERE id = ?`, baseline, id)
	return err
}

// DeleteSession removes a session row.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// Sticky pin membership.

// ListSticky returns pinned session ids, oldest first.
func (s *Store) ListSticky(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sticky_sessions ORDER BY pinned_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddSticky pins a session.
func (s *Store) AddSticky(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sticky_sessions (session_id, pinned_at) VALUES (?, ?)`,
		id, now.Unix())
	return err
}

// RemoveSticky unpins a session.
func (s *Store) RemoveSticky(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sticky_sessions WHERE session_id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var agent, thinking, status, role, relayStatus string
	var adapterTypes, adapterMeta, ux string
	var relayStarted, created, activity, summaryAt, extractAt, helpDeskAt int64

	err := row.Scan(&sess.ID, &sess.Computer, &sess.Pane, &sess.ProjectDir,
		&agent, &thinking, &sess.Title, &status,
		&adapterTypes, &adapterMeta, &sess.InitiatorSessionID, &role,
		&sess.HumanEmail, &sess.IdentityKey, &relayStatus, &sess.RelayChannelID,
		&relayStarted, &sess.NativeSessionID, &ux, &sess.OutputBaseline,
		&created, &activity, &sess.LastSummary, &summaryAt, &extractAt, &helpDeskAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.Agent = AgentVariant(agent)
	sess.ThinkingMode = ThinkingMode(thinking)
	sess.Status = Status(status)
	sess.HumanRole = HumanRole(role)
	sess.RelayStatus = RelayStatus(relayStatus)
	sess.RelayStartedAt = timeOrZero(relayStarted)
	sess.CreatedAt = time.Unix(created, 0)
	sess.LastActivityAt = time.Unix(activity, 0)
	sess.LastSummaryAt = timeOrZero(summaryAt)
	sess.LastMemoryExtractionAt = timeOrZero(extractAt)
	sess.HelpDeskProcessedAt = timeOrZero(helpDeskAt)

	if err := json.Unmarshal([]byte(adapterTypes), &sess.AdapterTypes); err != nil {
		return nil, fmt.Errorf("unmarshal adapter_types: %w", err)
	}
	if err := json.Unmarshal([]byte(adapterMeta), &sess.AdapterMetadata); err != nil {
		return nil, fmt.Errorf("unmarshal adapter_metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(ux), &sess.UX); err != nil {
		return nil, fmt.Errorf("unmarshal ux_state: %w", err)
	}
	return &sess, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
