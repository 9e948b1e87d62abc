// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/clauded/dashboard/internal/session"
	"github.com/clauded/dashboard/internal/store"
)

// HealthHandler serves the unauthenticated liveness/readiness route.
type HealthHandler struct {
	store    *store.Store
	registry *session.Registry
}

// NewHealthHandler builds a HealthHandler.
func NewHealthHandler(st *store.Store, registry *session.Registry) *HealthHandler {
	return &HealthHandler{store: st, registry: registry}
}

type healthResponse struct {
	Status      string `json:"status"`
	Store       string `json:"store"`
	Multiplexer string `json:"multiplexer"`
}

// Health reports the Store's reachability and whether the multiplexer can be
// enumerated. The process can be up with either degraded.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Store: "ok", Multiplexer: "ok"}

	if err := h.store.Ping(); err != nil {
		resp.Status = "degraded"
		resp.Store = "unreachable"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := h.registry.List(ctx); err != nil {
		resp.Status = "degraded"
		resp.Multiplexer = "unreachable"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}
