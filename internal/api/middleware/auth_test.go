// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clauded/dashboard/internal/creds"
	"github.com/clauded/dashboard/internal/store"
)

func newTestService(t *testing.T) (*creds.Service, *creds.User, string) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := creds.New(st, []byte("test-secret"), time.Hour, 24*time.Hour)

	digest, err := creds.HashPassword("correct horse")
	require.NoError(t, err)
	require.NoError(t, st.CreateUser("user-1", "alice", digest, "admin"))

	bearer, _, _, user, err := svc.Login("alice", "correct horse")
	require.NoError(t, err)
	return svc, user, bearer
}

func TestAuthAcceptsValidBearer(t *testing.T) {
	svc, _, bearer := newTestService(t)
	handler := Auth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, Claims(r))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	svc, _, _ := newTestService(t)
	handler := Auth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest("GET", "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdminRejectsNonAdmin(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	svc := creds.New(st, []byte("test-secret"), time.Hour, 24*time.Hour)

	digest, err := creds.HashPassword("pw")
	require.NoError(t, err)
	require.NoError(t, st.CreateUser("user-2", "bob", digest, "user"))
	bearer, _, _, _, err := svc.Login("bob", "pw")
	require.NoError(t, err)

	handler := Auth(svc)(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})))

	req := httptest.NewRequest("DELETE", "/api/v1/sessions/x", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
