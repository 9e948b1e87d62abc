// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package audit is the append-only Audit Log (section 4.5). Writes
// succeed-or-log-locally; a failure here must never propagate upward and
// break a business flow (section 7).
package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clauded/dashboard/internal/store"
)

// Event bundles everything one audit record carries.
type Event struct {
	UserID       string // empty for pre-auth events
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	IPAddress    string
	UserAgent    string
}

// Log is the Audit Log.
type Log struct {
	store *store.Store
}

// New builds an Audit Log over st.
func New(st *store.Store) *Log {
	return &Log{store: st}
}

// Record appends one event. On failure it logs locally and returns —
// callers never have to handle an audit failure.
func (l *Log) Record(e Event) {
	details := "{}"
	if e.Details != nil {
		if b, err := json.Marshal(e.Details); err == nil {
			details = string(b)
		}
	}
	row := store.AuditRow{
		ID:           uuid.New().String(),
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      details,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Timestamp:    time.Now(),
	}
	if err := l.store.InsertAudit(row); err != nil {
		log.Printf("audit: failed to record %s: %v", e.Action, err)
	}
}

// RecentN returns the N most recent audit records.
func (l *Log) RecentN(n int) ([]store.AuditRow, error) {
	return l.store.RecentAudit(n)
}

// ByUser returns a user's audit history within a recency window.
func (l *Log) ByUser(userID string, within time.Duration) ([]store.AuditRow, error) {
	return l.store.AuditByUser(userID, within)
}

// ByResource returns the audit history for one resource.
func (l *Log) ByResource(resourceType, resourceID string) ([]store.AuditRow, error) {
	return l.store.AuditByResource(resourceType, resourceID)
}

// FailedLogins returns failed-login records for a client address within a
// window.
func (l *Log) FailedLogins(ipAddress string, within time.Duration) ([]store.AuditRow, error) {
	return l.store.FailedLoginsSince(ipAddress, time.Now().Add(-within))
}

// CountsByAction returns activity counters by action tag for a window.
func (l *Log) CountsByAction(within time.Duration) (map[string]int, error) {
	return l.store.CountsByAction(within)
}
