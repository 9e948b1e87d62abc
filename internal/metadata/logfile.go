// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/clauded/dashboard/internal/watcher"
)

// settleDelay is how long a write must go quiet before the log watcher
// parses the file — the CLI appends in bursts, and reading mid-burst risks
// a half-written JSON line.
const settleDelay = 300 * time.Millisecond

// pathDigest is the 16-hex-char prefix of a SHA-256 digest of the canonical
// project path, the encoding the CLI's own project directories use
// (section 4.8 — distinct from the teacher's unrelated character-
// substitution scheme for writing synthetic transcripts).
func pathDigest(projectPath string) string {
	sum := sha256.Sum256([]byte(projectPath))
	return hex.EncodeToString(sum[:])[:16]
}

// logWatcher is the exactly-one-per-session fsnotify watcher on a project's
// sessions.jsonl file (priority 2, section 4.8).
type logWatcher struct {
	path      string
	fsWatcher *fsnotify.Watcher
	debouncer *watcher.Debouncer

	mu     sync.Mutex
	latest Snapshot
	have   bool

	closeOnce sync.Once
	closeCh   chan struct{}
}

func newLogWatcher(projectDir string) (*logWatcher, error) {
	path := filepath.Join(projectDir, "sessions.jsonl")

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create log watcher: %w", err)
	}
	// The file may not exist yet; watch the parent directory so its
	// eventual creation is still observed.
	watchTarget := path
	if _, err := os.Stat(path); err != nil {
		watchTarget = projectDir
		if err := os.MkdirAll(projectDir, 0o755); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("ensure project dir: %w", err)
		}
	}
	if err := fsw.Add(watchTarget); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", watchTarget, err)
	}

	lw := &logWatcher{
		path:      path,
		fsWatcher: fsw,
		debouncer: watcher.NewDebouncer(settleDelay),
		closeCh:   make(chan struct{}),
	}
	if snap, ok := parseLastRecord(path); ok {
		lw.latest = snap
		lw.have = true
	}

	go lw.run()
	return lw, nil
}

func (lw *logWatcher) run() {
	for {
		select {
		case <-lw.closeCh:
			return
		case ev, ok := <-lw.fsWatcher.Events:
			if !ok {
				return
			}
			if ev.Name != lw.path && filepath.Base(ev.Name) != "sessions.jsonl" {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			lw.debouncer.Debounce("settle", lw.onSettled)
		case _, ok := <-lw.fsWatcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (lw *logWatcher) onSettled() {
	snap, ok := parseLastRecord(lw.path)
	if !ok {
		return
	}
	lw.mu.Lock()
	lw.latest = snap
	lw.have = true
	lw.mu.Unlock()
}

// Latest returns the most recently parsed snapshot, if any.
func (lw *logWatcher) Latest() (Snapshot, bool) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.latest, lw.have
}

// Close stops the watcher. Safe to call more than once.
func (lw *logWatcher) Close() {
	lw.closeOnce.Do(func() {
		close(lw.closeCh)
		lw.debouncer.Stop()
		lw.fsWatcher.Close()
	})
}

// logRecord is one line of the CLI's append-only session log; only the
// fields metadata needs are declared, unknown fields are dropped.
type logRecord struct {
	TokenUsage     int     `json:"tokenUsage"`
	ContextPercent float64 `json:"contextPercent"`
	CostUSD        float64 `json:"costUsd"`
}

// parseLastRecord reads the final JSON line of path and converts it to a
// Snapshot. Returns ok=false if the file is absent, empty, or its last line
// does not parse.
func parseLastRecord(path string) (Snapshot, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, false
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return Snapshot{}, false
	}
	if last == "" {
		return Snapshot{}, false
	}

	var rec logRecord
	if err := json.Unmarshal([]byte(last), &rec); err != nil {
		return Snapshot{}, false
	}
	return Snapshot{
		TokenUsage:     rec.TokenUsage,
		ContextPercent: rec.ContextPercent,
		CostUSD:        rec.CostUSD,
		Source:         SourceLogFile,
		At:             time.Now(),
	}, true
}
