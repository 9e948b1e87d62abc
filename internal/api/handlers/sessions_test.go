// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/clauded/dashboard/internal/api/middleware"
	"github.com/clauded/dashboard/internal/audit"
	"github.com/clauded/dashboard/internal/creds"
	"github.com/clauded/dashboard/internal/metadata"
	"github.com/clauded/dashboard/internal/pathguard"
	"github.com/clauded/dashboard/internal/session"
	"github.com/clauded/dashboard/internal/store"
)

// fakeExecutor is an in-memory stand-in for the multiplexer, mirroring
// internal/session's own test fake so handler tests never shell out.
type fakeExecutor struct {
	sessions map[string]bool
}

func newFakeExecutor() *fakeExecutor { return &fakeExecutor{sessions: make(map[string]bool)} }

func (f *fakeExecutor) HasSession(ctx context.Context, id string) bool { return f.sessions[id] }
func (f *fakeExecutor) NewSession(ctx context.Context, id, workdir string, command []string) error {
	f.sessions[id] = true
	return nil
}
func (f *fakeExecutor) KillSession(ctx context.Context, id string) error {
	delete(f.sessions, id)
	return nil
}
func (f *fakeExecutor) ListSessions(ctx context.Context) ([]session.SessionStatus, error) {
	var out []session.SessionStatus
	for id := range f.sessions {
		out = append(out, session.SessionStatus{Name: id})
	}
	return out, nil
}
func (f *fakeExecutor) SendKeysLiteral(ctx context.Context, id, keys string) error { return nil }
func (f *fakeExecutor) SendBuffer(ctx context.Context, id string, payload []byte) error {
	return nil
}
func (f *fakeExecutor) CapturePane(ctx context.Context, id string) ([]byte, error) { return nil, nil }
func (f *fakeExecutor) ResizePane(ctx context.Context, id string, cols, rows int) error {
	return nil
}
func (f *fakeExecutor) StartPipePane(ctx context.Context, id, fifoPath string) error { return nil }
func (f *fakeExecutor) StopPipePane(ctx context.Context, id string) error            { return nil }

type sessionsTestEnv struct {
	handler  *SessionsHandler
	registry *session.Registry
	svc      *creds.Service
	bearer   string
	router   *mux.Router
}

func newSessionsTestEnv(t *testing.T) *sessionsTestEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	guard, err := pathguard.New([]string{t.TempDir()})
	require.NoError(t, err)

	registry := session.New(newFakeExecutor(), st, guard)
	probe := metadata.New(registry, t.TempDir())
	auditLog := audit.New(st)

	svc := creds.New(st, []byte("test-secret"), time.Hour, 24*time.Hour)
	digest, err := creds.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NoError(t, st.CreateUser("user-1", "alice", digest, "admin"))
	bearer, _, _, _, err := svc.Login("alice", "correct horse battery staple")
	require.NoError(t, err)

	handler := NewSessionsHandler(registry, probe, auditLog, st)

	r := mux.NewRouter()
	authMW := middleware.Auth(svc)
	api := r.PathPrefix("/api/sessions").Subrouter()
	api.Use(authMW)
	api.HandleFunc("", handler.List).Methods(http.MethodGet)
	api.HandleFunc("", handler.Create).Methods(http.MethodPost)
	api.HandleFunc("/{sessionId}", handler.Get).Methods(http.MethodGet)
	api.HandleFunc("/{sessionId}", handler.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/{sessionId}/metadata", handler.Metadata).Methods(http.MethodGet)
	api.HandleFunc("/{sessionId}/share", handler.Share).Methods(http.MethodPost)

	return &sessionsTestEnv{handler: handler, registry: registry, svc: svc, bearer: bearer, router: r}
}

func (e *sessionsTestEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+e.bearer)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSessionThenList(t *testing.T) {
	env := newSessionsTestEnv(t)
	projectPath := t.TempDir()

	body, err := json.Marshal(createSessionRequest{ProjectPath: projectPath, ProjectName: "demo"})
	require.NoError(t, err)
	rec := env.do(t, http.MethodPost, "/api/sessions", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	data, err := json.Marshal(created.Data)
	require.NoError(t, err)
	var view sessionView
	require.NoError(t, json.Unmarshal(data, &view))
	require.NotEmpty(t, view.SessionID)
	require.Equal(t, "demo", view.ProjectName)

	listRec := env.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, listRec.Code)

	var listResp Response
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listResp))
	views, ok := listResp.Data.([]any)
	require.True(t, ok)
	require.Len(t, views, 1)
}

func TestGetUnknownSessionReturnsNotFound(t *testing.T) {
	env := newSessionsTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/sessions/00000000-0000-0000-0000-000000000000", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSessionRemovesIt(t *testing.T) {
	env := newSessionsTestEnv(t)
	projectPath := t.TempDir()
	sessionID, err := env.registry.Create(context.Background(), projectPath, "demo", "user-1")
	require.NoError(t, err)

	rec := env.do(t, http.MethodDelete, "/api/sessions/"+sessionID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.False(t, env.registry.Exists(context.Background(), sessionID))
}

func TestShareMintsToken(t *testing.T) {
	env := newSessionsTestEnv(t)
	projectPath := t.TempDir()
	sessionID, err := env.registry.Create(context.Background(), projectPath, "demo", "user-1")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/share", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var share shareResponse
	require.NoError(t, json.Unmarshal(data, &share))
	require.NotEmpty(t, share.Token)
	require.True(t, share.ExpiresAt.After(time.Now()))
}

func TestCreateSessionRejectsDeniedPath(t *testing.T) {
	env := newSessionsTestEnv(t)
	body, err := json.Marshal(createSessionRequest{ProjectPath: "/etc", ProjectName: "denied"})
	require.NoError(t, err)
	rec := env.do(t, http.MethodPost, "/api/sessions", body)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
