// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/clauded/dashboard/internal/api/middleware"
	"github.com/clauded/dashboard/internal/apierr"
	"github.com/clauded/dashboard/internal/audit"
	"github.com/clauded/dashboard/internal/metadata"
	"github.com/clauded/dashboard/internal/session"
	"github.com/clauded/dashboard/internal/store"
)

const shareTokenTTL = 24 * time.Hour

// SessionsHandler serves the session lifecycle and metadata/sharing routes
// (section 6).
type SessionsHandler struct {
	registry *session.Registry
	probe    *metadata.Probe
	audit    *audit.Log
	store    *store.Store
}

// NewSessionsHandler builds a SessionsHandler.
func NewSessionsHandler(registry *session.Registry, probe *metadata.Probe, auditLog *audit.Log, st *store.Store) *SessionsHandler {
	return &SessionsHandler{registry: registry, probe: probe, audit: auditLog, store: st}
}

type sessionView struct {
	SessionID       string    `json:"sessionId"`
	ProjectName     string    `json:"projectName"`
	ProjectPath     string    `json:"projectPath"`
	Status          string    `json:"status"`
	OwnerID         string    `json:"ownerId"`
	CreatedAt       time.Time `json:"createdAt"`
	AttachedClients int       `json:"attachedClients"`
	HasMaster       bool      `json:"hasMaster"`
}

func viewFromSnapshot(s session.Snapshot) sessionView {
	return sessionView{
		SessionID:       s.SessionID,
		ProjectName:     s.ProjectName,
		ProjectPath:     s.ProjectPath,
		Status:          s.Status,
		OwnerID:         s.OwnerID,
		CreatedAt:       s.CreatedAt,
		AttachedClients: s.AttachedClients,
		HasMaster:       s.HasMaster,
	}
}

// List returns every tracked session.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.registry.List(r.Context())
	if err != nil {
		WriteAPIError(w, apierr.Wrap(apierr.MultiplexerUnavailable, err, "failed to list terminal sessions"))
		return
	}
	views := make([]sessionView, 0, len(snaps))
	for _, s := range snaps {
		views = append(views, viewFromSnapshot(s))
	}
	WriteJSON(w, http.StatusOK, views)
}

type createSessionRequest struct {
	ProjectPath string `json:"projectPath"`
	ProjectName string `json:"projectName"`
}

// Create allocates a new session for the caller.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "malformed request body")
		return
	}

	claims := middleware.Claims(r)
	sessionID, err := h.registry.Create(r.Context(), req.ProjectPath, req.ProjectName, claims.Subject)
	if err != nil {
		WriteAPIError(w, err)
		return
	}

	h.audit.Record(audit.Event{
		UserID:       claims.Subject,
		Action:       "session_create",
		ResourceType: "session",
		ResourceID:   sessionID,
		IPAddress:    clientAddr(r),
		UserAgent:    r.UserAgent(),
	})

	rec := h.registry.Get(sessionID)
	if rec == nil {
		WriteAPIError(w, apierr.New(apierr.SessionNotFound, "session vanished immediately after creation"))
		return
	}
	WriteJSON(w, http.StatusCreated, sessionView{
		SessionID:   rec.SessionID,
		ProjectName: rec.ProjectName,
		ProjectPath: rec.ProjectPath,
		Status:      rec.Status,
		OwnerID:     rec.OwnerID,
		CreatedAt:   rec.CreatedAt,
	})
}

// Get returns a single session's current state.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	rec := h.registry.Get(sessionID)
	if rec == nil || !h.registry.Exists(r.Context(), sessionID) {
		WriteAPIError(w, apierr.New(apierr.SessionNotFound, "no such session"))
		return
	}
	WriteJSON(w, http.StatusOK, sessionView{
		SessionID:   rec.SessionID,
		ProjectName: rec.ProjectName,
		ProjectPath: rec.ProjectPath,
		Status:      rec.Status,
		OwnerID:     rec.OwnerID,
		CreatedAt:   rec.CreatedAt,
		HasMaster:   h.registry.HasMaster(sessionID),
	})
}

// Delete kills a session's multiplexer window and marks it terminated.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	if err := h.registry.Kill(r.Context(), sessionID); err != nil {
		WriteAPIError(w, err)
		return
	}
	h.probe.Stop(sessionID)

	claims := middleware.Claims(r)
	h.audit.Record(audit.Event{
		UserID:       claims.Subject,
		Action:       "session_delete",
		ResourceType: "session",
		ResourceID:   sessionID,
		IPAddress:    clientAddr(r),
		UserAgent:    r.UserAgent(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// Metadata returns the session's current token-usage/context/cost snapshot.
func (h *SessionsHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	rec := h.registry.Get(sessionID)
	if rec == nil {
		WriteAPIError(w, apierr.New(apierr.SessionNotFound, "no such session"))
		return
	}
	snap, err := h.probe.Get(r.Context(), sessionID, rec.ProjectPath)
	if err != nil {
		WriteAPIError(w, apierr.Wrap(apierr.Internal, err, "failed to read session metadata"))
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

type shareResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Share mints a time-bounded, read-only share token for a session.
func (h *SessionsHandler) Share(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	if h.registry.Get(sessionID) == nil {
		WriteAPIError(w, apierr.New(apierr.SessionNotFound, "no such session"))
		return
	}

	claims := middleware.Claims(r)
	token, err := newShareToken()
	if err != nil {
		WriteAPIError(w, apierr.Wrap(apierr.Internal, err, "failed to mint share token"))
		return
	}
	expiresAt := time.Now().Add(shareTokenTTL)

	if err := h.store.CreateShareToken(uuid.New().String(), sessionID, token, expiresAt, claims.Subject); err != nil {
		WriteAPIError(w, apierr.Wrap(apierr.Internal, err, "failed to persist share token"))
		return
	}

	h.audit.Record(audit.Event{
		UserID:       claims.Subject,
		Action:       "session_share",
		ResourceType: "session",
		ResourceID:   sessionID,
		IPAddress:    clientAddr(r),
		UserAgent:    r.UserAgent(),
	})

	WriteJSON(w, http.StatusCreated, shareResponse{Token: token, ExpiresAt: expiresAt})
}

func newShareToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
