// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the sqlite connection and owns schema migrations.
type DB struct {
	conn *sql.DB
}

// New opens (creating if necessary) the sqlite database at path and brings
// the schema up to date. Use ":memory:" for an ephemeral database.
func New(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	if path == ":memory:" {
		// WAL is meaningless for in-memory databases and modernc rejects it.
		dsn = "file::memory:?_pragma=foreign_keys(ON)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The modernc driver serializes access per connection; a single
	// connection avoids table-lock errors from concurrent writers.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Conn exposes the underlying connection; it satisfies dbinterface.Querier.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

func (db *DB) migrate() error {
	var version int
	if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this binary supports (%d)", version, len(migrations))
	}

	if version == len(migrations) {
		return nil
	}

	log.Info().Int("from", version).Int("to", len(migrations)).Msg("Migrating database schema")

	for i := version; i < len(migrations); i++ {
		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to bump schema version to %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
	}

	return nil
}

var migrations = []string{
	`
CREATE TABLE sites (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	indexer_key TEXT NOT NULL,
	name TEXT NOT NULL,
	domain TEXT NOT NULL UNIQUE,
	url TEXT NOT NULL,
	public BOOLEAN NOT NULL DEFAULT 0,
	priority INTEGER NOT NULL DEFAULT 0,
	result_limit INTEGER NOT NULL DEFAULT 100,
	timeout INTEGER NOT NULL DEFAULT 30,
	proxy BOOLEAN NOT NULL DEFAULT 0,
	cookie_encrypted TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	enabled BOOLEAN NOT NULL DEFAULT 1,
	last_synced_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX idx_sites_domain ON sites (domain);
CREATE INDEX idx_sites_indexer_key ON sites (indexer_key);

CREATE TABLE sync_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	indexers_seen INTEGER NOT NULL DEFAULT 0,
	sites_registered INTEGER NOT NULL DEFAULT 0,
	entries_mapped INTEGER NOT NULL DEFAULT 0,
	signature INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE api_keys (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	key_hash TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_used_at TIMESTAMP
);
`,
}
