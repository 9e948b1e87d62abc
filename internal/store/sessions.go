// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SessionRow mirrors one row of the sessions table — the Store is the
// durable mirror of Session Registry's in-memory map (section 4.6).
type SessionRow struct {
	SessionID   string
	ProjectName string
	ProjectPath string
	Status      string
	CreatedAt   time.Time
	EndedAt     *time.Time
	LastActive  time.Time
	OwnerID     string
}

// InsertSession persists a session record. Session Registry calls this only
// after the multiplexer window has been confirmed created.
func (s *Store) InsertSession(row SessionRow) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, project_name, project_path, status, created_at, ended_at, last_active, owner_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.SessionID, row.ProjectName, row.ProjectPath, row.Status,
		formatTime(row.CreatedAt), nullableTime(row.EndedAt), formatTime(row.LastActive), row.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// DeleteSession removes a session row.
func (s *Store) DeleteSession(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// UpdateSessionStatus sets status (and ended_at, for terminal states).
func (s *Store) UpdateSessionStatus(sessionID, status string, endedAt *time.Time) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, ended_at = ? WHERE session_id = ?`,
		status, nullableTime(endedAt), sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// TouchSession updates last_active to now.
func (s *Store) TouchSession(sessionID string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET last_active = ? WHERE session_id = ?`,
		formatTime(time.Now()), sessionID,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// GetSession returns the session row, or (nil, nil) if not found.
func (s *Store) GetSession(sessionID string) (*SessionRow, error) {
	row := s.db.QueryRow(
		`SELECT session_id, project_name, project_path, status, created_at, ended_at, last_active, owner_id
		 FROM sessions WHERE session_id = ?`,
		sessionID,
	)
	return scanSession(row)
}

// ListSessions returns every persisted session row.
func (s *Store) ListSessions() ([]SessionRow, error) {
	rows, err := s.db.Query(
		`SELECT session_id, project_name, project_path, status, created_at, ended_at, last_active, owner_id FROM sessions`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var created, lastActive string
		var ended sql.NullString
		if err := rows.Scan(&r.SessionID, &r.ProjectName, &r.ProjectPath, &r.Status, &created, &ended, &lastActive, &r.OwnerID); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		r.CreatedAt, _ = parseTime(created)
		r.LastActive, _ = parseTime(lastActive)
		if ended.Valid {
			t, _ := parseTime(ended.String)
			r.EndedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanSession(row *sql.Row) (*SessionRow, error) {
	var r SessionRow
	var created, lastActive string
	var ended sql.NullString
	err := row.Scan(&r.SessionID, &r.ProjectName, &r.ProjectPath, &r.Status, &created, &ended, &lastActive, &r.OwnerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	r.CreatedAt, _ = parseTime(created)
	r.LastActive, _ = parseTime(lastActive)
	if ended.Valid {
		t, _ := parseTime(ended.String)
		r.EndedAt = &t
	}
	return &r, nil
}
