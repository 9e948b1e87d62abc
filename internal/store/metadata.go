// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"time"
)

// InsertMetadataLog records a metadata snapshot to metadata_logs. The
// Metadata Probe's in-memory ~5s cache is the hot path; this is the
// durable history trail behind it.
func (s *Store) InsertMetadataLog(id, sessionID string, tokenUsage int, contextPercent, costUSD float64, source string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata_logs (id, session_id, token_usage, context_percent, cost_usd, source, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, tokenUsage, contextPercent, costUSD, source, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("insert metadata log: %w", err)
	}
	return nil
}
