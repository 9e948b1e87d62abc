// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clauded/dashboard/internal/pathguard"
	"github.com/clauded/dashboard/internal/session"
	"github.com/clauded/dashboard/internal/store"
)

func TestHealthReportsOKWhenSubsystemsAreUp(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	guard, err := pathguard.New([]string{t.TempDir()})
	require.NoError(t, err)
	registry := session.New(newFakeExecutor(), st, guard)

	h := NewHealthHandler(st, registry)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var body healthResponse
	require.NoError(t, json.Unmarshal(data, &body))
	require.Equal(t, "ok", body.Status)
}

func TestHealthReportsDegradedWhenStoreClosed(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	guard, err := pathguard.New([]string{t.TempDir()})
	require.NoError(t, err)
	registry := session.New(newFakeExecutor(), st, guard)

	h := NewHealthHandler(st, registry)
	require.NoError(t, st.Close())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
