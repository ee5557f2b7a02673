// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the teleclaude.db SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writes; a single connection avoids lock contention.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for auxiliary tables.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			computer TEXT NOT NULL,
			pane TEXT NOT NULL,
			project_dir TEXT NOT NULL,
			agent TEXT NOT NULL,
			thinking_mode TEXT NOT NULL DEFAULT 'medium',
			title TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			adapter_types TEXT NOT NULL DEFAULT '[]',
			adapter_metadata TEXT NOT NULL DEFAULT '{}',
			initiator_session_id TEXT NOT NULL DEFAULT '',
			human_role TEXT NOT NULL DEFAULT 'admin',
			human_email TEXT NOT NULL DEFAULT '',
			identity_key TEXT NOT NULL DEFAULT '',
			relay_status TEXT NOT NULL DEFAULT '',
			relay_discord_channel_id TEXT NOT NULL DEFAULT '',
			relay_started_at INTEGER NOT NULL DEFAULT 0,
			native_session_id TEXT NOT NULL DEFAULT '',
			ux_state TEXT NOT NULL DEFAULT '{}',
			output_baseline TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			last_activity_at INTEGER NOT NULL,
			last_summary TEXT NOT NULL DEFAULT '',
			last_summary_at INTEGER NOT NULL DEFAULT 0,
			last_memory_extraction_at INTEGER NOT NULL DEFAULT 0,
			help_desk_processed_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_native ON sessions(native_session_id)`,
		`CREATE TABLE IF NOT EXISTS peers (
			machine TEXT PRIMARY KEY,
			user TEXT NOT NULL DEFAULT '',
			host TEXT NOT NULL DEFAULT '',
			transport_path TEXT NOT NULL DEFAULT '',
			last_heartbeat INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sticky_sessions (
			session_id TEXT PRIMARY KEY,
			pinned_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
