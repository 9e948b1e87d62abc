// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package store is the embedded relational store: sessions, users, renewal
// credentials, share tokens, metadata history, audit records. Opened once
// at startup, closed last at shutdown (section 4.3).
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is the UTC timestamp format used for every stored time value.
const timeLayout = "2006-01-02 15:04:05"

// Store wraps the sqlite connection. All mutations go through prepared
// statements built at call time from this *sql.DB; string interpolation
// into SQL text is forbidden anywhere in this package.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path with
// journaled concurrent reads and foreign-key enforcement on, then applies
// the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection. The supervisor calls this last.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the store is reachable, for the health probe's trivial
// "SELECT 1" check.
func (s *Store) Ping() error {
	var one int
	return s.db.QueryRow("SELECT 1").Scan(&one)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
