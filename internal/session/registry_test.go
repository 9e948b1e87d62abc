// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clauded/dashboard/internal/apierr"
	"github.com/clauded/dashboard/internal/pathguard"
	"github.com/clauded/dashboard/internal/store"
)

// fakeExecutor is an in-memory stand-in for the multiplexer, in the
// teacher's mock-executor style (internal/terminal/tmux_test.go).
type fakeExecutor struct {
	sessions map[string]bool
	panes    map[string][]byte
	failNew  bool
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{sessions: make(map[string]bool), panes: make(map[string][]byte)}
}

func (f *fakeExecutor) HasSession(ctx context.Context, id string) bool { return f.sessions[id] }

func (f *fakeExecutor) NewSession(ctx context.Context, id, workdir string, command []string) error {
	if f.failNew {
		return context.DeadlineExceeded
	}
	f.sessions[id] = true
	return nil
}

func (f *fakeExecutor) KillSession(ctx context.Context, id string) error {
	delete(f.sessions, id)
	return nil
}

func (f *fakeExecutor) ListSessions(ctx context.Context) ([]SessionStatus, error) {
	var out []SessionStatus
	for id := range f.sessions {
		out = append(out, SessionStatus{Name: id, AttachedClients: 0})
	}
	return out, nil
}

func (f *fakeExecutor) SendKeysLiteral(ctx context.Context, id, keys string) error {
	f.panes[id] = append(f.panes[id], []byte(keys)...)
	return nil
}

func (f *fakeExecutor) SendBuffer(ctx context.Context, id string, payload []byte) error {
	f.panes[id] = append(f.panes[id], payload...)
	return nil
}

func (f *fakeExecutor) CapturePane(ctx context.Context, id string) ([]byte, error) {
	return f.panes[id], nil
}

func (f *fakeExecutor) ResizePane(ctx context.Context, id string, cols, rows int) error { return nil }

func (f *fakeExecutor) StartPipePane(ctx context.Context, id, fifoPath string) error { return nil }

func (f *fakeExecutor) StopPipePane(ctx context.Context, id string) error { return nil }

func newTestRegistry(t *testing.T) (*Registry, *fakeExecutor) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	guard, err := pathguard.New([]string{dir})
	require.NoError(t, err)

	exec := newFakeExecutor()
	return New(exec, st, guard), exec
}

func TestCreateSendInputAndKill(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	guard, err := pathguard.New([]string{dir})
	require.NoError(t, err)
	exec := newFakeExecutor()
	reg := New(exec, st, guard)

	ctx := context.Background()
	id, err := reg.Create(ctx, dir, "demo", "user-1")
	require.NoError(t, err)
	require.True(t, reg.Exists(ctx, id))

	reg.SetMaster(id, "client-a")
	require.True(t, reg.IsMaster(id, "client-a"))
	require.False(t, reg.IsMaster(id, "client-b"))

	err = reg.SendInput(ctx, id, []byte("ls\n"), "client-b")
	require.Error(t, err)

	require.NoError(t, reg.SendInput(ctx, id, []byte("ls\n"), "client-a"))
	pane, err := reg.Capture(ctx, id)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(pane), "ls"))

	snaps, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.True(t, snaps[0].HasMaster)

	reg.ReleaseMaster(id, "client-a")
	require.False(t, reg.HasMaster(id))

	require.NoError(t, reg.Kill(ctx, id))
	require.False(t, reg.Exists(ctx, id))
}

func TestKillRejectsNonUUIDWithoutReachingExecutor(t *testing.T) {
	reg, exec := newTestRegistry(t)
	ctx := context.Background()

	injected := "abc;rm -rf /"
	err := reg.Kill(ctx, injected)
	require.Error(t, err)
	require.Equal(t, apierr.InvalidId, apierr.As(err))
	require.False(t, exec.sessions[injected])
}

func TestKillRejectsUnknownWellFormedID(t *testing.T) {
	reg, exec := newTestRegistry(t)
	ctx := context.Background()

	unknown := "33333333-3333-4333-8333-333333333333"
	exec.sessions[unknown] = true

	err := reg.Kill(ctx, unknown)
	require.Error(t, err)
	require.Equal(t, apierr.SessionNotFound, apierr.As(err))
	require.True(t, exec.sessions[unknown], "executor must not be invoked for a session the registry never recorded")
}

func TestSendInputAndCaptureRejectNonUUID(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	injected := "abc;rm -rf /"
	require.Equal(t, apierr.InvalidId, apierr.As(reg.SendInput(ctx, injected, []byte("x"), "client-a")))

	_, err := reg.Capture(ctx, injected)
	require.Equal(t, apierr.InvalidId, apierr.As(err))
}

func TestCreateRejectsPathOutsideGuard(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	guard, err := pathguard.New([]string{dir})
	require.NoError(t, err)
	reg := New(newFakeExecutor(), st, guard)

	_, err = reg.Create(context.Background(), "/etc", "evil", "user-1")
	require.Error(t, err)
}

func TestRecoverAdoptsKnownAndOrphansUnknown(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	guard, err := pathguard.New([]string{dir})
	require.NoError(t, err)
	exec := newFakeExecutor()

	known := "11111111-1111-4111-8111-111111111111"
	require.NoError(t, st.InsertSession(store.SessionRow{
		SessionID: known, ProjectName: "demo", ProjectPath: dir, Status: "active",
	}))
	exec.sessions[known] = true

	unknown := "22222222-2222-4222-8222-222222222222"
	exec.sessions[unknown] = true

	reg := New(exec, st, guard)
	require.NoError(t, reg.Recover(context.Background()))

	recovered := reg.Get(known)
	require.NotNil(t, recovered)
	require.Equal(t, "recovered", recovered.Status)

	orphan := reg.Get(unknown)
	require.NotNil(t, orphan)
	require.Equal(t, "recovered-session", orphan.ProjectName)
}
