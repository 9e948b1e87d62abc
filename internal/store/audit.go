// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AuditRow mirrors one row of audit_logs. Never mutated once inserted.
type AuditRow struct {
	ID           string
	UserID       string // empty for pre-auth events
	Action       string
	ResourceType string
	ResourceID   string
	Details      string // structured, stored as JSON text
	IPAddress    string
	UserAgent    string
	Timestamp    time.Time
}

// InsertAudit appends one audit record.
func (s *Store) InsertAudit(row AuditRow) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, nullableString(row.UserID), row.Action, nullableString(row.ResourceType),
		nullableString(row.ResourceID), row.Details, row.IPAddress, row.UserAgent, formatTime(row.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// RecentAudit returns the N most recent audit rows, most recent first.
func (s *Store) RecentAudit(n int) ([]AuditRow, error) {
	rows, err := s.db.Query(
		`SELECT id, COALESCE(user_id,''), action, COALESCE(resource_type,''), COALESCE(resource_id,''), details, ip_address, user_agent, timestamp
		 FROM audit_logs ORDER BY timestamp DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// AuditByUser returns rows for a user within the last `within` duration,
// most recent first.
func (s *Store) AuditByUser(userID string, within time.Duration) ([]AuditRow, error) {
	cutoff := formatTime(time.Now().Add(-within))
	rows, err := s.db.Query(
		`SELECT id, COALESCE(user_id,''), action, COALESCE(resource_type,''), COALESCE(resource_id,''), details, ip_address, user_agent, timestamp
		 FROM audit_logs WHERE user_id = ? AND timestamp >= ? ORDER BY timestamp DESC`, userID, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("audit by user: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// AuditByResource returns the history for one resource, most recent first.
func (s *Store) AuditByResource(resourceType, resourceID string) ([]AuditRow, error) {
	rows, err := s.db.Query(
		`SELECT id, COALESCE(user_id,''), action, COALESCE(resource_type,''), COALESCE(resource_id,''), details, ip_address, user_agent, timestamp
		 FROM audit_logs WHERE resource_type = ? AND resource_id = ? ORDER BY timestamp DESC`, resourceType, resourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("audit by resource: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// FailedLoginsSince returns failed-login audit rows (action tag
// "login.failed") for a client address within the given window.
func (s *Store) FailedLoginsSince(ipAddress string, since time.Time) ([]AuditRow, error) {
	rows, err := s.db.Query(
		`SELECT id, COALESCE(user_id,''), action, COALESCE(resource_type,''), COALESCE(resource_id,''), details, ip_address, user_agent, timestamp
		 FROM audit_logs WHERE ip_address = ? AND action = 'login.failed' AND timestamp >= ? ORDER BY timestamp DESC`,
		ipAddress, formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("failed logins: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// CountsByAction returns, for a time window, how many audit rows were
// recorded per action tag.
func (s *Store) CountsByAction(within time.Duration) (map[string]int, error) {
	cutoff := formatTime(time.Now().Add(-within))
	rows, err := s.db.Query(
		`SELECT action, COUNT(*) FROM audit_logs WHERE timestamp >= ? GROUP BY action`, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("counts by action: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("scan action count: %w", err)
		}
		out[action] = count
	}
	return out, rows.Err()
}

func scanAuditRows(rows *sql.Rows) ([]AuditRow, error) {
	var out []AuditRow
	for rows.Next() {
		var r AuditRow
		var ts string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Action, &r.ResourceType, &r.ResourceID, &r.Details, &r.IPAddress, &r.UserAgent, &ts); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		r.Timestamp, _ = parseTime(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
