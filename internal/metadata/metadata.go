// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metadata is the Metadata Probe (section 4.8): a priority-ordered
// chain of CLI introspection strategies, each progressively cheaper and
// less precise, with adaptive polling and a short-lived cache.
package metadata

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/clauded/dashboard/internal/session"
)

// Source tags where a Snapshot came from, in descending priority order.
type Source string

const (
	SourceStructuredCLI Source = "structured-cli"
	SourceLogFile       Source = "log-file"
	SourceGlobalStats   Source = "global-stats"
	SourceScreenScrape  Source = "screen-scrape"
)

// Snapshot is one metadata reading for a session.
type Snapshot struct {
	TokenUsage     int
	ContextPercent float64
	CostUSD        float64
	Source         Source
	At             time.Time
}

const (
	cacheTTL      = 5 * time.Second
	activeCadence = 1 * time.Second
	idleCadence   = 10 * time.Second
	cliTimeout    = 5 * time.Second
)

// CLICommand is the argv used for the structured, non-interactive status
// query. Overridable for tests.
var CLICommand = []string{"claude"}

type cacheEntry struct {
	snapshot Snapshot
	at       time.Time
}

type sessionState struct {
	active bool
	timer  *time.Timer
	watch  *logWatcher
}

// Probe is the Metadata Probe.
type Probe struct {
	registry *session.Registry
	cliHome  string

	detectOnce   sync.Once
	structuredOK bool

	mu    sync.Mutex
	cache map[string]cacheEntry
	state map[string]*sessionState
}

// New builds a Metadata Probe. cliHome is the CLI's home directory (the
// parent of `projects/` and the global stats file), typically
// `$HOME/.claude`.
func New(registry *session.Registry, cliHome string) *Probe {
	return &Probe{
		registry: registry,
		cliHome:  cliHome,
		cache:    make(map[string]cacheEntry),
		state:    make(map[string]*sessionState),
	}
}

// structuredCLIAvailable feature-detects the `--print --output-format json`
// invocation exactly once and caches the result (section 9's open question:
// the source assumes this invocation exists but no external spec confirms
// it, so implementations must probe rather than assume). Detection is a
// plain binary lookup, not a live status query, since there may be no
// session or project path yet at Probe construction time.
func (p *Probe) structuredCLIAvailable() bool {
	p.detectOnce.Do(func() {
		if len(CLICommand) == 0 {
			return
		}
		_, err := exec.LookPath(CLICommand[0])
		p.structuredOK = err == nil
	})
	return p.structuredOK
}

// Get returns the freshest snapshot for a session, serving the ~5s cache
// when warm and refreshing through the priority chain otherwise. Calling
// Get also ensures the session is tracked by the adaptive polling loop.
func (p *Probe) Get(ctx context.Context, sessionID, projectPath string) (Snapshot, error) {
	p.ensureTracked(sessionID, projectPath)

	p.mu.Lock()
	entry, ok := p.cache[sessionID]
	p.mu.Unlock()
	if ok && time.Since(entry.at) < cacheTTL {
		return entry.snapshot, nil
	}

	return p.refresh(ctx, sessionID, projectPath)
}

// SetActive switches a tracked session's polling cadence between 1s
// (active) and 10s (idle). Changing cadence stops and recreates the timer;
// overlapping timers are never allowed for one session.
func (p *Probe) SetActive(sessionID, projectPath string, active bool) {
	p.ensureTracked(sessionID, projectPath)

	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.state[sessionID]
	if !ok || st.active == active {
		return
	}
	st.active = active
	p.rescheduleLocked(sessionID, projectPath, st)
}

// Stop cancels the timer, closes the log-file watcher, and drops cache
// entries for sessionID.
func (p *Probe) Stop(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.state[sessionID]; ok {
		if st.timer != nil {
			st.timer.Stop()
		}
		if st.watch != nil {
			st.watch.Close()
		}
		delete(p.state, sessionID)
	}
	delete(p.cache, sessionID)
}

// StopAll tears down every tracked session, called on server shutdown.
func (p *Probe) StopAll() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.state))
	for id := range p.state {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	for _, id := range ids {
		p.Stop(id)
	}
}

func (p *Probe) ensureTracked(sessionID, projectPath string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.state[sessionID]; ok {
		return
	}
	st := &sessionState{active: true}
	p.state[sessionID] = st
	p.rescheduleLocked(sessionID, projectPath, st)
}

func (p *Probe) rescheduleLocked(sessionID, projectPath string, st *sessionState) {
	if st.timer != nil {
		st.timer.Stop()
	}
	cadence := idleCadence
	if st.active {
		cadence = activeCadence
	}
	st.timer = time.AfterFunc(cadence, func() { p.tick(sessionID, projectPath) })
}

func (p *Probe) tick(sessionID, projectPath string) {
	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	_, _ = p.refresh(ctx, sessionID, projectPath)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.state[sessionID]
	if !ok {
		return
	}
	p.rescheduleLocked(sessionID, projectPath, st)
}

// refresh walks the priority chain and caches the first usable snapshot.
func (p *Probe) refresh(ctx context.Context, sessionID, projectPath string) (Snapshot, error) {
	if p.structuredCLIAvailable() {
		if snap, err := probeStructuredCLI(ctx, CLICommand, projectPath); err == nil {
			return p.store(sessionID, snap), nil
		}
	}

	if snap, ok := p.logFileSnapshot(sessionID, projectPath); ok {
		return p.store(sessionID, snap), nil
	}

	if snap, err := probeGlobalStats(p.cliHome); err == nil {
		return p.store(sessionID, snap), nil
	}

	pane, err := p.registry.Capture(ctx, sessionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("metadata probe exhausted: %w", err)
	}
	snap := probeScreenScrape(pane)
	return p.store(sessionID, snap), nil
}

func (p *Probe) store(sessionID string, snap Snapshot) Snapshot {
	snap.At = time.Now()
	p.mu.Lock()
	p.cache[sessionID] = cacheEntry{snapshot: snap, at: snap.At}
	p.mu.Unlock()
	return snap
}

// logFileSnapshot starts (or reuses) the one watcher permitted per session
// and returns its most recently parsed snapshot, if any.
func (p *Probe) logFileSnapshot(sessionID, projectPath string) (Snapshot, bool) {
	p.mu.Lock()
	st, ok := p.state[sessionID]
	if !ok {
		p.mu.Unlock()
		return Snapshot{}, false
	}
	if st.watch == nil {
		dir := projectDigestDir(p.cliHome, projectPath)
		w, err := newLogWatcher(dir)
		if err == nil {
			st.watch = w
		}
	}
	watch := st.watch
	p.mu.Unlock()

	if watch == nil {
		return Snapshot{}, false
	}
	return watch.Latest()
}

func projectDigestDir(cliHome, projectPath string) string {
	return filepath.Join(cliHome, "projects", pathDigest(projectPath))
}

// DefaultCLIHome returns $HOME/.claude, the conventional CLI home used when
// configuration does not override it.
func DefaultCLIHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude"
	}
	return filepath.Join(home, ".claude")
}
