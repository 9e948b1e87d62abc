// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clauded/dashboard/internal/audit"
	"github.com/clauded/dashboard/internal/creds"
	"github.com/clauded/dashboard/internal/metadata"
	"github.com/clauded/dashboard/internal/pathguard"
	"github.com/clauded/dashboard/internal/session"
	"github.com/clauded/dashboard/internal/store"
	"github.com/clauded/dashboard/internal/stream"
)

func newWSTestHandler(t *testing.T) (*WSHandler, *creds.Service) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	guard, err := pathguard.New([]string{t.TempDir()})
	require.NoError(t, err)
	registry := session.New(newFakeExecutor(), st, guard)
	probe := metadata.New(registry, t.TempDir())
	broker := stream.New(registry)
	svc := creds.New(st, []byte("test-secret"), time.Hour, 24*time.Hour)

	return NewWSHandler(broker, registry, probe, svc, audit.New(st), st), svc
}

func TestWSServeRejectsMissingToken(t *testing.T) {
	h, _ := newWSTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	rec := httptest.NewRecorder()
	h.Serve(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWSServeRejectsMalformedToken(t *testing.T) {
	h, _ := newWSTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/ws?token=not-a-real-jwt", nil)
	rec := httptest.NewRecorder()
	h.Serve(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWSServeRejectsRenewalTokenPresentedAsBearer(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	guard, err := pathguard.New([]string{t.TempDir()})
	require.NoError(t, err)
	registry := session.New(newFakeExecutor(), st, guard)
	probe := metadata.New(registry, t.TempDir())
	broker := stream.New(registry)
	svc := creds.New(st, []byte("test-secret"), time.Hour, 24*time.Hour)

	digest, err := creds.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NoError(t, st.CreateUser("user-1", "alice", digest, "admin"))
	_, _, renewal, _, err := svc.Login("alice", "correct horse battery staple")
	require.NoError(t, err)

	h := NewWSHandler(broker, registry, probe, svc, audit.New(st), st)
	req := httptest.NewRequest(http.MethodGet, "/api/ws?token="+renewal, nil)
	rec := httptest.NewRecorder()
	h.Serve(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidateShareToken(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.CreateUser("user-1", "alice", "digest", "admin"))
	require.NoError(t, st.InsertSession(store.SessionRow{
		SessionID: "session-a", ProjectName: "demo", ProjectPath: "/srv/demo", Status: "active",
		CreatedAt: time.Now(), LastActive: time.Now(), OwnerID: "user-1",
	}))
	require.NoError(t, st.CreateShareToken("share-1", "session-a", "tok-valid", time.Now().Add(time.Hour), "user-1"))
	require.NoError(t, st.CreateShareToken("share-2", "session-a", "tok-expired", time.Now().Add(-time.Hour), "user-1"))

	require.NoError(t, validateShareToken(st, "tok-valid", "session-a"))
	require.Error(t, validateShareToken(st, "tok-valid", "session-b"), "wrong session must be rejected")
	require.Error(t, validateShareToken(st, "tok-expired", "session-a"), "expired token must be rejected")
	require.Error(t, validateShareToken(st, "no-such-token", "session-a"), "unknown token must be rejected")
}
