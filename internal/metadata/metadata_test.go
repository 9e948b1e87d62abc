// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clauded/dashboard/internal/pathguard"
	"github.com/clauded/dashboard/internal/session"
	"github.com/clauded/dashboard/internal/store"
)

func TestPathDigestIsSixteenHexChars(t *testing.T) {
	d := pathDigest("/srv/demo")
	require.Len(t, d, 16)
	for _, c := range d {
		require.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'))
	}
	require.Equal(t, d, pathDigest("/srv/demo"))
	require.NotEqual(t, d, pathDigest("/srv/other"))
}

func TestProbeScreenScrapeExtractsFields(t *testing.T) {
	pane := []byte("tokens: 1,234 tokens used, context: 42% full, balance $3.50")
	snap := probeScreenScrape(pane)
	require.Equal(t, 1234, snap.TokenUsage)
	require.Equal(t, 42.0, snap.ContextPercent)
	require.Equal(t, 3.50, snap.CostUSD)
	require.Equal(t, SourceScreenScrape, snap.Source)
}

func TestLogWatcherParsesSettledWrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "sessions.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"tokenUsage":10,"contextPercent":5,"costUsd":0.01}`+"\n"), 0o644))

	w, err := newLogWatcher(dir)
	require.NoError(t, err)
	defer w.Close()

	snap, ok := w.Latest()
	require.True(t, ok)
	require.Equal(t, 10, snap.TokenUsage)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"tokenUsage":99,"contextPercent":50,"costUsd":1.5}` + "\n")
	require.NoError(t, err)
	f.Close()

	require.Eventually(t, func() bool {
		snap, ok := w.Latest()
		return ok && snap.TokenUsage == 99
	}, 2*time.Second, 20*time.Millisecond)
}

func TestProbeFallsBackToScreenScrapeWhenNothingElseResolves(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	guard, err := pathguard.New([]string{dir})
	require.NoError(t, err)

	exec := &captureOnlyExecutor{pane: []byte("context: 10% used")}
	reg := session.New(exec, st, guard)

	p := New(reg, filepath.Join(dir, "nonexistent-cli-home"))
	CLICommand = []string{"definitely-not-a-real-cli-binary"}

	snap, err := p.Get(context.Background(), "44444444-4444-4444-8444-444444444444", dir)
	require.NoError(t, err)
	require.Equal(t, SourceScreenScrape, snap.Source)
	require.Equal(t, 10.0, snap.ContextPercent)

	p.StopAll()
}

func TestStructuredCLIAvailableDetectsOnceAndCaches(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	guard, err := pathguard.New([]string{dir})
	require.NoError(t, err)

	reg := session.New(&captureOnlyExecutor{}, st, guard)
	p := New(reg, filepath.Join(dir, "nonexistent-cli-home"))
	CLICommand = []string{"definitely-not-a-real-cli-binary"}

	require.False(t, p.structuredCLIAvailable())
	CLICommand = []string{"sh"}
	require.False(t, p.structuredCLIAvailable(), "cached result must not re-run detection")
}

// captureOnlyExecutor answers CapturePane with a fixed pane and has no
// sessions of its own; used to exercise the screen-scrape fallback path.
type captureOnlyExecutor struct{ pane []byte }

func (e *captureOnlyExecutor) HasSession(ctx context.Context, id string) bool { return false }
func (e *captureOnlyExecutor) NewSession(ctx context.Context, id, workdir string, command []string) error {
	return nil
}
func (e *captureOnlyExecutor) KillSession(ctx context.Context, id string) error { return nil }
func (e *captureOnlyExecutor) ListSessions(ctx context.Context) ([]session.SessionStatus, error) {
	return nil, nil
}
func (e *captureOnlyExecutor) SendKeysLiteral(ctx context.Context, id, keys string) error {
	return nil
}
func (e *captureOnlyExecutor) SendBuffer(ctx context.Context, id string, payload []byte) error {
	return nil
}
func (e *captureOnlyExecutor) CapturePane(ctx context.Context, id string) ([]byte, error) {
	return e.pane, nil
}
func (e *captureOnlyExecutor) ResizePane(ctx context.Context, id string, cols, rows int) error {
	return nil
}
func (e *captureOnlyExecutor) StartPipePane(ctx context.Context, id, fifoPath string) error {
	return nil
}
func (e *captureOnlyExecutor) StopPipePane(ctx context.Context, id string) error { return nil }
