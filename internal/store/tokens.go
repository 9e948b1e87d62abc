// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// RefreshTokenRow mirrors one row of refresh_tokens — the renewal
// credential record of section 3. The raw token is never stored; only its
// digest (token_hash) is.
type RefreshTokenRow struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// InsertRefreshToken stores a new renewal credential row.
func (s *Store) InsertRefreshToken(id, userID, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, created_at) VALUES (?, ?, ?, ?, NULL, ?)`,
		id, userID, tokenHash, formatTime(expiresAt), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetRefreshTokenByHash returns the row for a digest, or (nil, nil) if unknown.
func (s *Store) GetRefreshTokenByHash(tokenHash string) (*RefreshTokenRow, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, token_hash, expires_at, revoked_at, created_at FROM refresh_tokens WHERE token_hash = ?`,
		tokenHash,
	)
	var r RefreshTokenRow
	var expires, created string
	var revoked sql.NullString
	err := row.Scan(&r.ID, &r.UserID, &r.TokenHash, &expires, &revoked, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	r.ExpiresAt, _ = parseTime(expires)
	r.CreatedAt, _ = parseTime(created)
	if revoked.Valid {
		t, _ := parseTime(revoked.String)
		r.RevokedAt = &t
	}
	return &r, nil
}

// RotateRefreshToken marks oldHash revoked and inserts the new row, both in
// one transaction, so no interleaving ever exposes two valid renewal
// credentials for the same subject (testable property 6).
func (s *Store) RotateRefreshToken(oldHash, newID, userID, newHash string, expiresAt time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin rotate: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	res, err := tx.Exec(
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		now, oldHash,
	)
	if err != nil {
		return fmt.Errorf("revoke old token: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("refresh token not found or already revoked")
	}

	if _, err := tx.Exec(
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, created_at) VALUES (?, ?, ?, ?, NULL, ?)`,
		newID, userID, newHash, formatTime(expiresAt), now,
	); err != nil {
		return fmt.Errorf("insert rotated token: %w", err)
	}

	return tx.Commit()
}

// RevokeRefreshToken marks a single token revoked by its digest.
func (s *Store) RevokeRefreshToken(tokenHash string) error {
	_, err := s.db.Exec(
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		formatTime(time.Now()), tokenHash,
	)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser marks every non-revoked token owned by userID revoked.
func (s *Store) RevokeAllForUser(userID string) error {
	_, err := s.db.Exec(
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		formatTime(time.Now()), userID,
	)
	if err != nil {
		return fmt.Errorf("revoke all for user: %w", err)
	}
	return nil
}

// ShareTokenRow mirrors one row of share_tokens.
type ShareTokenRow struct {
	ID        string
	SessionID string
	Token     string
	ExpiresAt time.Time
	CreatedBy string
}

// CreateShareToken inserts a new time-bounded reader grant for a session.
func (s *Store) CreateShareToken(id, sessionID, token string, expiresAt time.Time, createdBy string) error {
	_, err := s.db.Exec(
		`INSERT INTO share_tokens (id, session_id, token, expires_at, created_by) VALUES (?, ?, ?, ?, ?)`,
		id, sessionID, token, formatTime(expiresAt), createdBy,
	)
	if err != nil {
		return fmt.Errorf("create share token: %w", err)
	}
	return nil
}

// GetShareToken returns the row for a token value, or (nil, nil) if unknown.
func (s *Store) GetShareToken(token string) (*ShareTokenRow, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, token, expires_at, created_by FROM share_tokens WHERE token = ?`,
		token,
	)
	var r ShareTokenRow
	var expires string
	err := row.Scan(&r.ID, &r.SessionID, &r.Token, &expires, &r.CreatedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan share token: %w", err)
	}
	r.ExpiresAt, _ = parseTime(expires)
	return &r, nil
}
