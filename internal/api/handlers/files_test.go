// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clauded/dashboard/internal/api/middleware"
	"github.com/clauded/dashboard/internal/audit"
	"github.com/clauded/dashboard/internal/creds"
	"github.com/clauded/dashboard/internal/files"
	"github.com/clauded/dashboard/internal/pathguard"
	"github.com/clauded/dashboard/internal/store"
)

type filesTestEnv struct {
	handler *FilesHandler
	root    string
	svc     *creds.Service
	bearer  string
}

func newFilesTestEnv(t *testing.T) *filesTestEnv {
	t.Helper()
	root := t.TempDir()
	guard, err := pathguard.New([]string{root})
	require.NoError(t, err)
	surface := files.New(guard)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := creds.New(st, []byte("test-secret"), time.Hour, 24*time.Hour)
	digest, err := creds.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NoError(t, st.CreateUser("user-1", "alice", digest, "user"))
	bearer, _, _, _, err := svc.Login("alice", "correct horse battery staple")
	require.NoError(t, err)

	return &filesTestEnv{
		handler: NewFilesHandler(surface, audit.New(st)),
		root:    root,
		svc:     svc,
		bearer:  bearer,
	}
}

// wrapped runs h through the real Auth middleware so middleware.Claims(r)
// resolves inside the handler, the same way the router wires it.
func (e *filesTestEnv) wrapped(h http.HandlerFunc) http.Handler {
	return middleware.Auth(e.svc)(h)
}

func (e *filesTestEnv) authed(r *http.Request) *http.Request {
	r.Header.Set("Authorization", "Bearer "+e.bearer)
	return r
}

func TestFilesSaveThenReadRoundTrips(t *testing.T) {
	env := newFilesTestEnv(t)
	target := filepath.Join(env.root, "notes.txt")

	saveReq := httptest.NewRequest(http.MethodPost, "/api/files/save?path="+target, bytes.NewReader([]byte("hello")))
	saveReq = env.authed(saveReq)
	saveRec := httptest.NewRecorder()
	env.wrapped(env.handler.Save).ServeHTTP(saveRec, saveReq)
	require.Equal(t, http.StatusNoContent, saveRec.Code)

	readReq := httptest.NewRequest(http.MethodGet, "/api/files/content?path="+target, nil)
	readRec := httptest.NewRecorder()
	env.handler.Read(readRec, readReq)
	require.Equal(t, http.StatusOK, readRec.Code)
	require.Equal(t, "hello", readRec.Body.String())
}

func TestFilesSaveRejectsOversizedBody(t *testing.T) {
	env := newFilesTestEnv(t)
	target := filepath.Join(env.root, "big.bin")
	oversized := bytes.Repeat([]byte{0}, files.MaxFileBytes+1)

	req := httptest.NewRequest(http.MethodPost, "/api/files/save?path="+target, bytes.NewReader(oversized))
	req = env.authed(req)
	rec := httptest.NewRecorder()
	env.wrapped(env.handler.Save).ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	_, err := os.Stat(target)
	require.True(t, os.IsNotExist(err))
}

func TestFilesReadRejectsPathOutsideRoot(t *testing.T) {
	env := newFilesTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/files/content?path=/etc/passwd", nil)
	rec := httptest.NewRecorder()
	env.handler.Read(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFilesMkdirThenList(t *testing.T) {
	env := newFilesTestEnv(t)
	sub := filepath.Join(env.root, "sub")

	body, err := json.Marshal(mkdirRequest{Path: sub})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/files/mkdir", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.handler.Mkdir(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/api/files?path="+env.root, nil)
	listRec := httptest.NewRecorder()
	env.handler.List(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)
}

func TestFilesDeleteRemovesFile(t *testing.T) {
	env := newFilesTestEnv(t)
	target := filepath.Join(env.root, "gone.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o600))

	req := httptest.NewRequest(http.MethodDelete, "/api/files?path="+target, nil)
	req = env.authed(req)
	rec := httptest.NewRecorder()
	env.wrapped(env.handler.Delete).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := os.Stat(target)
	require.True(t, os.IsNotExist(err))
}
