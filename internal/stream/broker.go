// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package stream is the Stream Broker (section 4.7): per-session output fan
// out and writer-slot mastership over a pseudo-terminal attached to the
// session's multiplexer window.
//
// Grounded on the teacher's handleRemoteTerminal (internal/api/handlers/terminal.go):
// a creack/pty-spawned process whose stdout is broadcast to every listener
// and whose stdin accepts writes from whichever attachment currently holds
// the write slot. Unlike the teacher's one-process-per-connection model,
// here one pseudo-terminal is shared by every attachment to a session, and
// role is enforced at the wiring layer instead of by separate processes.
package stream

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/clauded/dashboard/internal/apierr"
	"github.com/clauded/dashboard/internal/session"
)

// Role is the effective role of one attachment.
type Role string

const (
	RoleWriter Role = "writer"
	RoleReader Role = "reader"
)

// backlogFrames bounds each subscriber's undelivered-frame queue (section 4.7).
const backlogFrames = 512

// InputLimit and LargeInputLimit bound control-message payloads.
const (
	InputLimit      = 64 * 1024
	LargeInputLimit = 1 << 20
)

// FrameKind distinguishes pseudo-terminal bytes from broker-level events
// multiplexed onto the same per-attachment channel.
type FrameKind int

const (
	FrameOutput FrameKind = iota
	FrameModeChanged
	FrameCredentialWarning
	FrameCredentialExpired
	FrameSlowConsumer
)

// Frame is one item delivered to an attachment's Output channel.
type Frame struct {
	Kind   FrameKind
	Data   []byte
	Role   Role
	Reason string
}

// curatedEnvKeys is the allowlist the pseudo-terminal's environment is built
// from; process-wide secrets are never inherited (section 4.7).
var curatedEnvKeys = []string{"PATH", "HOME", "TERM", "LANG", "LC_ALL", "SHELL", "USER"}

func curatedEnv() []string {
	out := make([]string, 0, len(curatedEnvKeys)+1)
	for _, k := range curatedEnvKeys {
		if v, ok := os.LookupEnv(k); ok {
			out = append(out, k+"="+v)
		}
	}
	out = append(out, "TERM=xterm-256color")
	return out
}

type subscriber struct {
	id      uint64
	ch      chan Frame
	evicted bool
}

// hub is the per-session output fan-out plus the shared pseudo-terminal.
type hub struct {
	sessionID string
	ptmx      *os.File
	cmd       *exec.Cmd

	mu        sync.Mutex
	writeMu   sync.Mutex
	subs      map[uint64]*subscriber
	nextSubID uint64
	refs      int
	cancel    context.CancelFunc
	done      chan struct{}
}

// newHubFunc constructs the per-session hub; replaced in tests so the
// writer-slot/fan-out/eviction logic can run without a real multiplexer.
var newHubFunc = spawnHub

// spawnHub starts `tmux attach-session` under a pseudo-terminal on the
// dedicated dashboard socket, with a curated environment (section 4.7).
func spawnHub(sessionID string, cols, rows int) (*hub, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "tmux", "-L", session.SocketName(), "attach-session", "-t", sessionID)
	cmd.Env = curatedEnv()

	var size *pty.Winsize
	if cols > 0 && rows > 0 {
		size = &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}
	}
	ptmx, err := pty.StartWithSize(cmd, size)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start pseudo-terminal: %w", err)
	}

	return &hub{
		sessionID: sessionID,
		ptmx:      ptmx,
		cmd:       cmd,
		subs:      make(map[uint64]*subscriber),
		cancel:    cancel,
		done:      make(chan struct{}),
	}, nil
}

// Broker is the Stream Broker.
type Broker struct {
	registry *session.Registry

	mu   sync.Mutex
	hubs map[string]*hub
}

// New builds a Stream Broker over a Session Registry, which supplies
// Exists/Capture and the shared writer-slot bookkeeping.
func New(registry *session.Registry) *Broker {
	return &Broker{registry: registry, hubs: make(map[string]*hub)}
}

// Attachment is one client's live view of a session.
type Attachment struct {
	id        uint64
	sessionID string
	clientID  string
	broker    *Broker
	hub       *hub
	role      Role
	mu        sync.Mutex
}

// Attach joins (or spawns) the per-session pseudo-terminal. A requested
// writer role downgrades to reader if the session already has a writer;
// the downgrade is reported as the first frame delivered.
func (b *Broker) Attach(ctx context.Context, sessionID, clientID string, requestedRole Role, cols, rows int) (*Attachment, <-chan Frame, error) {
	if !b.registry.Exists(ctx, sessionID) {
		return nil, nil, apierr.New(apierr.SessionNotFound, "session does not exist")
	}

	h, err := b.acquireHub(ctx, sessionID, cols, rows)
	if err != nil {
		return nil, nil, err
	}

	role := requestedRole
	downgraded := false
	if role == RoleWriter {
		if b.registry.HasMaster(sessionID) {
			role = RoleReader
			downgraded = true
		} else {
			b.registry.SetMaster(sessionID, clientID)
		}
	}

	ch := make(chan Frame, backlogFrames)
	if downgraded {
		ch <- Frame{Kind: FrameModeChanged, Role: RoleReader, Reason: "writer present"}
	}
	h.mu.Lock()
	h.nextSubID++
	subID := h.nextSubID
	h.subs[subID] = &subscriber{id: subID, ch: ch}
	h.mu.Unlock()

	att := &Attachment{id: subID, sessionID: sessionID, clientID: clientID, broker: b, hub: h, role: role}

	return att, ch, nil
}

// acquireHub returns the existing hub for sessionID or spawns a fresh one.
func (b *Broker) acquireHub(ctx context.Context, sessionID string, cols, rows int) (*hub, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if h, ok := b.hubs[sessionID]; ok {
		h.mu.Lock()
		h.refs++
		h.mu.Unlock()
		if cols > 0 && rows > 0 {
			pty.Setsize(h.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
		}
		return h, nil
	}

	h, err := newHubFunc(sessionID, cols, rows)
	if err != nil {
		return nil, apierr.Wrap(apierr.MultiplexerUnavailable, err, "failed to attach pseudo-terminal")
	}
	h.refs = 1
	b.hubs[sessionID] = h
	go b.runHub(h)
	return h, nil
}

func (b *Broker) runHub(h *hub) {
	buf := make([]byte, 4096)
	for {
		n, err := h.ptmx.Read(buf)
		if n > 0 {
			frame := Frame{Kind: FrameOutput, Data: append([]byte(nil), buf[:n]...)}
			h.mu.Lock()
			for id, sub := range h.subs {
				if sub.evicted {
					continue
				}
				select {
				case sub.ch <- frame:
				default:
					// Backlog exhausted: evict rather than block the pseudo-terminal
					// reader or any other subscriber (section 4.7). The channel close
					// itself signals eviction; the caller maps an unexpected close to
					// apierr.SlowConsumer.
					sub.evicted = true
					close(sub.ch)
					delete(h.subs, id)
				}
			}
			h.mu.Unlock()
		}
		if err != nil {
			break
		}
	}
	close(h.done)
}

// Detach leaves the session, decrementing the hub's refcount and tearing
// the pseudo-terminal and hub down once nothing references it.
func (a *Attachment) Detach() {
	h := a.hub
	h.mu.Lock()
	if sub, ok := h.subs[a.id]; ok && !sub.evicted {
		close(sub.ch)
		delete(h.subs, a.id)
	}
	h.refs--
	empty := h.refs <= 0
	h.mu.Unlock()

	a.broker.registry.ReleaseMaster(a.sessionID, a.clientID)

	if empty {
		a.broker.teardownHub(a.sessionID, h)
	}
}

func (b *Broker) teardownHub(sessionID string, h *hub) {
	b.mu.Lock()
	if current, ok := b.hubs[sessionID]; ok && current == h {
		delete(b.hubs, sessionID)
	}
	b.mu.Unlock()
	h.cancel()
	h.ptmx.Close()
	go h.cmd.Wait()
}

// Input writes bytes to the pseudo-terminal. Only the writer is wired; a
// reader calling this is a programming error in the caller (the HTTP/WS
// surface must not register the input handler for readers at all).
func (a *Attachment) Input(data []byte) error {
	a.mu.Lock()
	role := a.role
	a.mu.Unlock()
	if role != RoleWriter {
		return apierr.New(apierr.NotMaster, "attachment does not hold the write slot")
	}
	if len(data) > LargeInputLimit {
		return apierr.New(apierr.PayloadTooLarge, "input exceeds the 1MB bound")
	}
	a.hub.writeMu.Lock()
	defer a.hub.writeMu.Unlock()
	_, err := a.hub.ptmx.Write(data)
	return err
}

// Resize applies a new terminal size; shared across every attachment to the
// session, since they all share one pseudo-terminal.
func (a *Attachment) Resize(cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("invalid size %dx%d", cols, rows)
	}
	return pty.Setsize(a.hub.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// RequestMaster claims the writer slot if vacant. Returns the resulting
// role and, on downgrade, the reason to report to the client.
func (a *Attachment) RequestMaster() (Role, string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.broker.registry.HasMaster(a.sessionID) {
		if a.broker.registry.IsMaster(a.sessionID, a.clientID) {
			a.role = RoleWriter
			return RoleWriter, ""
		}
		return RoleReader, "writer still present"
	}
	a.broker.registry.SetMaster(a.sessionID, a.clientID)
	a.role = RoleWriter
	return RoleWriter, ""
}

// ReleaseMaster relinquishes the writer slot held by this attachment.
func (a *Attachment) ReleaseMaster() {
	a.mu.Lock()
	a.role = RoleReader
	a.mu.Unlock()
	a.broker.registry.ReleaseMaster(a.sessionID, a.clientID)
}

// Role returns the attachment's current effective role.
func (a *Attachment) Role() Role {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.role
}

// ScheduleCredentialTimers arranges the T-10min warning and T-forced
// disconnect frames against a bearer credential's expiry (section 4.7,
// step 2). The returned stop function must be called on detach.
func ScheduleCredentialTimers(expiresAt time.Time, deliver func(Frame)) (stop func()) {
	warnAt := time.Until(expiresAt.Add(-10 * time.Minute))
	expireAt := time.Until(expiresAt)

	warnTimer := time.AfterFunc(warnAt, func() {
		deliver(Frame{Kind: FrameCredentialWarning})
	})
	expireTimer := time.AfterFunc(expireAt, func() {
		deliver(Frame{Kind: FrameCredentialExpired})
	})
	return func() {
		warnTimer.Stop()
		expireTimer.Stop()
	}
}

// sanitizeText coerces possibly-invalid UTF-8 from the pseudo-terminal for
// transports that require valid text frames (the HTTP/WS surface).
func sanitizeText(b []byte) string {
	return strings.ToValidUTF8(string(b), "")
}
