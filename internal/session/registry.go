// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session is the Session Registry (section 4.6): an in-memory map of
// session id to session record backed by the Store, mediating every
// multiplexer operation through the Identifier Guard and Path Guard.
//
// Collapsed from the teacher's multi-window-per-worktree model
// (internal/terminal) to one window per session — the dashboard's
// multiplexer never hosts more than one window per tracked session.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clauded/dashboard/internal/apierr"
	"github.com/clauded/dashboard/internal/idguard"
	"github.com/clauded/dashboard/internal/pathguard"
	"github.com/clauded/dashboard/internal/store"
)

// literalThreshold is the send_input size above which input goes through
// load-buffer/paste-buffer instead of a literal send-keys argument.
const literalThreshold = 4096

// MaxInputBytes bounds send_input at the admission layer (section 4.6).
const MaxInputBytes = 1 << 20

// CLICommand is the argv used to start the interactive CLI in a freshly
// created window. Overridable for tests.
var CLICommand = []string{"claude"}

// Record is one in-memory session record.
type Record struct {
	SessionID   string
	ProjectName string
	ProjectPath string
	Status      string
	OwnerID     string
	CreatedAt   time.Time
}

// Snapshot is what list() reports: the record plus live multiplexer facts.
type Snapshot struct {
	Record
	AttachedClients int
	HasMaster       bool
}

// Registry is the Session Registry.
type Registry struct {
	mu      sync.RWMutex
	exec    Executor
	store   *store.Store
	guard   *pathguard.Guard
	records map[string]*Record
	masters map[string]string
}

// New builds a Session Registry over exec and st, rooting project paths at
// guard.
func New(exec Executor, st *store.Store, guard *pathguard.Guard) *Registry {
	return &Registry{
		exec:    exec,
		store:   st,
		guard:   guard,
		records: make(map[string]*Record),
		masters: make(map[string]string),
	}
}

// Recover enumerates multiplexer windows at startup and reconciles them
// against the Store. Absence of a running multiplexer is not an error — the
// server may cold-start before the multiplexer is up.
func (r *Registry) Recover(ctx context.Context) error {
	statuses, err := r.exec.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("recover: list sessions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, st := range statuses {
		if !idguard.Valid(st.Name) {
			continue
		}
		row, err := r.store.GetSession(st.Name)
		if err != nil {
			return fmt.Errorf("recover: lookup %s: %w", st.Name, err)
		}
		if row != nil {
			rec := &Record{
				SessionID:   row.SessionID,
				ProjectName: row.ProjectName,
				ProjectPath: row.ProjectPath,
				Status:      "recovered",
				OwnerID:     row.OwnerID,
				CreatedAt:   row.CreatedAt,
			}
			r.records[st.Name] = rec
			_ = r.store.UpdateSessionStatus(st.Name, "recovered", nil)
			continue
		}

		now := time.Now()
		orphan := store.SessionRow{
			SessionID:   st.Name,
			ProjectName: "recovered-session",
			ProjectPath: "",
			Status:      "active",
			CreatedAt:   now,
			LastActive:  now,
			OwnerID:     "",
		}
		if err := r.store.InsertSession(orphan); err != nil {
			return fmt.Errorf("recover: insert orphan %s: %w", st.Name, err)
		}
		r.records[st.Name] = &Record{
			SessionID:   st.Name,
			ProjectName: "recovered-session",
			Status:      "active",
			CreatedAt:   now,
		}
	}
	return nil
}

// Create allocates a fresh session: a validated project path, a multiplexer
// window running the CLI, and a durable record — in that order, so a crash
// between the two never leaves a dangling record without a window.
func (r *Registry) Create(ctx context.Context, projectPath, projectName, userID string) (string, error) {
	canon, err := r.guard.Resolve(projectPath, true)
	if err != nil {
		if err == pathguard.ErrDenied {
			return "", apierr.Wrap(apierr.PathDenied, err, "project path is outside the allowed roots")
		}
		return "", apierr.Wrap(apierr.PathNotFound, err, "project path not found")
	}

	sessionID := uuid.New().String()
	if err := r.exec.NewSession(ctx, sessionID, canon, CLICommand); err != nil {
		return "", apierr.Wrap(apierr.MultiplexerUnavailable, err, "failed to create terminal session")
	}

	now := time.Now()
	row := store.SessionRow{
		SessionID:   sessionID,
		ProjectName: projectName,
		ProjectPath: canon,
		Status:      "active",
		CreatedAt:   now,
		LastActive:  now,
		OwnerID:     userID,
	}
	if err := r.store.InsertSession(row); err != nil {
		_ = r.exec.KillSession(ctx, sessionID)
		return "", fmt.Errorf("persist session: %w", err)
	}

	r.mu.Lock()
	r.records[sessionID] = &Record{
		SessionID:   sessionID,
		ProjectName: projectName,
		ProjectPath: canon,
		Status:      "active",
		OwnerID:     userID,
		CreatedAt:   now,
	}
	r.mu.Unlock()

	return sessionID, nil
}

// Exists asks the multiplexer directly; the Store alone cannot tell whether
// a window died outside the server's knowledge.
func (r *Registry) Exists(ctx context.Context, sessionID string) bool {
	if err := idguard.Check(sessionID); err != nil {
		return false
	}
	return r.exec.HasSession(ctx, sessionID)
}

// List enumerates live multiplexer windows joined against the registry map.
func (r *Registry) List(ctx context.Context) ([]Snapshot, error) {
	statuses, err := r.exec.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(statuses))
	for _, st := range statuses {
		rec, ok := r.records[st.Name]
		if !ok {
			continue
		}
		_, hasMaster := r.masters[st.Name]
		out = append(out, Snapshot{
			Record:          *rec,
			AttachedClients: st.AttachedClients,
			HasMaster:       hasMaster,
		})
	}
	return out, nil
}

// Get returns the in-memory record for a session, or nil if unknown.
func (r *Registry) Get(sessionID string) *Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[sessionID]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// SendInput admits input only from the current writer. Short payloads go in
// as literal keystrokes; large payloads go through load-buffer/paste-buffer.
// Callers must bound the payload at MaxInputBytes before calling this.
func (r *Registry) SendInput(ctx context.Context, sessionID string, data []byte, clientID string) error {
	if err := idguard.Check(sessionID); err != nil {
		return apierr.Wrap(apierr.InvalidId, err, "malformed session id")
	}
	if len(data) > MaxInputBytes {
		return apierr.New(apierr.PayloadTooLarge, "input exceeds the 1MB admission limit")
	}
	if !r.IsMaster(sessionID, clientID) {
		return apierr.New(apierr.NotMaster, "client does not hold the write lock for this session")
	}

	if len(data) <= literalThreshold {
		return r.exec.SendKeysLiteral(ctx, sessionID, string(data))
	}
	return r.exec.SendBuffer(ctx, sessionID, data)
}

// Kill terminates the multiplexer window, marks the record ended, and evicts
// it from both in-memory maps.
func (r *Registry) Kill(ctx context.Context, sessionID string) error {
	if err := idguard.Check(sessionID); err != nil {
		return apierr.Wrap(apierr.InvalidId, err, "malformed session id")
	}

	r.mu.RLock()
	_, known := r.records[sessionID]
	r.mu.RUnlock()
	if !known {
		return apierr.New(apierr.SessionNotFound, "session not found")
	}

	if err := r.exec.KillSession(ctx, sessionID); err != nil {
		return apierr.Wrap(apierr.MultiplexerUnavailable, err, "failed to kill terminal session")
	}
	now := time.Now()
	if err := r.store.UpdateSessionStatus(sessionID, "terminated", &now); err != nil {
		return fmt.Errorf("update session status: %w", err)
	}

	r.mu.Lock()
	delete(r.records, sessionID)
	delete(r.masters, sessionID)
	r.mu.Unlock()
	return nil
}

// Capture returns the session's current visible pane text, the Metadata
// Probe's last-resort source.
func (r *Registry) Capture(ctx context.Context, sessionID string) ([]byte, error) {
	if err := idguard.Check(sessionID); err != nil {
		return nil, apierr.Wrap(apierr.InvalidId, err, "malformed session id")
	}
	return r.exec.CapturePane(ctx, sessionID)
}

// SetMaster grants clientID write mastership of a session. Idempotent when
// clientID already holds it.
func (r *Registry) SetMaster(sessionID, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.masters[sessionID] = clientID
}

// ReleaseMaster relinquishes mastership; a no-op unless clientID is the
// current holder.
func (r *Registry) ReleaseMaster(sessionID, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.masters[sessionID] == clientID {
		delete(r.masters, sessionID)
	}
}

// IsMaster reports whether clientID currently holds the write lock.
func (r *Registry) IsMaster(sessionID, clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.masters[sessionID] == clientID
}

// HasMaster reports whether any client currently holds the write lock.
func (r *Registry) HasMaster(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.masters[sessionID]
	return ok
}

// Touch refreshes a session's last-active timestamp in the Store.
func (r *Registry) Touch(sessionID string) error {
	return r.store.TouchSession(sessionID)
}
