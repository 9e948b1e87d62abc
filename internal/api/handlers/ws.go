// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clauded/dashboard/internal/apierr"
	"github.com/clauded/dashboard/internal/audit"
	"github.com/clauded/dashboard/internal/creds"
	"github.com/clauded/dashboard/internal/metadata"
	"github.com/clauded/dashboard/internal/session"
	"github.com/clauded/dashboard/internal/store"
	"github.com/clauded/dashboard/internal/stream"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// clientMessage is the envelope for every client→server frame (section 6).
type clientMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	Mode       string `json:"mode"`
	Data       string `json:"data"`
	Input      string `json:"input"`
	Text       string `json:"text"`
	Cols       int    `json:"cols"`
	Rows       int    `json:"rows"`
	ShareToken string `json:"shareToken"`
}

// WSHandler serves the terminal streaming WebSocket (section 4.7, 6).
type WSHandler struct {
	broker   *stream.Broker
	registry *session.Registry
	probe    *metadata.Probe
	creds    *creds.Service
	audit    *audit.Log
	store    *store.Store

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewWSHandler builds a WSHandler.
func NewWSHandler(broker *stream.Broker, registry *session.Registry, probe *metadata.Probe, credsSvc *creds.Service, auditLog *audit.Log, st *store.Store) *WSHandler {
	return &WSHandler{
		broker:   broker,
		registry: registry,
		probe:    probe,
		creds:    credsSvc,
		audit:    auditLog,
		store:    st,
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

func (h *WSHandler) track(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *WSHandler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// Shutdown announces server-shutting-down on every socket and closes them.
// Called during the Process Supervisor's teardown (section 4.11).
func (h *WSHandler) Shutdown() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		writeJSONFrame(conn, &sync.Mutex{}, "server-shutting-down", map[string]any{
			"message": "server is shutting down",
		})
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

// Serve upgrades the connection after verifying a bearer credential passed
// in the handshake's auth envelope (the `token` query parameter, since the
// browser WebSocket API cannot set arbitrary headers).
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	claims, err := h.creds.VerifyBearer(token)
	if err != nil {
		kind := apierr.BadCredentials
		if err == creds.ErrBadTokenType {
			kind = apierr.BadTokenType
		}
		WriteError(w, apierr.Status(kind), string(kind), "bearer credential required")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	h.track(conn)
	defer func() {
		h.untrack(conn)
		conn.Close()
	}()

	var writeMu sync.Mutex
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	pingTicker := time.NewTicker(wsPingPeriod)
	defer pingTicker.Stop()
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		for {
			select {
			case <-pingTicker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	sess := newWSSession(h, conn, &writeMu, claims)
	defer sess.detach()

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		sess.handle(msg)
	}
}

// wsSession tracks the single active attachment (if any) a connection holds.
type wsSession struct {
	h        *WSHandler
	conn     *websocket.Conn
	writeMu  *sync.Mutex
	claims   *creds.BearerClaims
	clientID string

	mu         sync.Mutex
	att        *stream.Attachment
	sessionID  string
	cancelPump context.CancelFunc
	stopMeta   func()
}

func newWSSession(h *WSHandler, conn *websocket.Conn, writeMu *sync.Mutex, claims *creds.BearerClaims) *wsSession {
	return &wsSession{h: h, conn: conn, writeMu: writeMu, claims: claims, clientID: claims.Subject}
}

func (s *wsSession) send(typ string, payload map[string]any) {
	writeJSONFrame(s.conn, s.writeMu, typ, payload)
}

func writeJSONFrame(conn *websocket.Conn, writeMu *sync.Mutex, typ string, payload map[string]any) {
	frame := map[string]any{"type": typ}
	for k, v := range payload {
		frame[k] = v
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteJSON(frame)
}

func (s *wsSession) handle(msg clientMessage) {
	switch msg.Type {
	case "attach":
		s.handleAttach(msg)
	case "input":
		s.handleInput([]byte(msg.Data), stream.InputLimit)
	case "resize":
		s.handleResize(msg.Cols, msg.Rows)
	case "request-master":
		s.handleRequestMaster()
	case "release-master":
		s.handleReleaseMaster()
	case "detach":
		s.detach()
		s.send("detached", nil)
	case "send-input":
		if msg.SessionID != s.sessionID {
			s.send("error", map[string]any{"message": "sessionId does not match the attached session"})
			return
		}
		if len(msg.Input) > stream.InputLimit {
			s.send("error", map[string]any{"message": "input exceeds the admission limit"})
			return
		}
		s.handleRegistryInput(msg.SessionID, []byte(msg.Input))
	case "send-large-input":
		if msg.SessionID != s.sessionID {
			s.send("error", map[string]any{"message": "sessionId does not match the attached session"})
			return
		}
		s.handleRegistryInput(msg.SessionID, []byte(msg.Text))
	case "list-sessions":
		s.handleListSessions()
	default:
		s.send("error", map[string]any{"message": "unknown message type"})
	}
}

func (s *wsSession) handleAttach(msg clientMessage) {
	s.mu.Lock()
	if s.att != nil {
		s.mu.Unlock()
		s.detach()
	} else {
		s.mu.Unlock()
	}

	role := stream.RoleReader
	if msg.Mode == "master" {
		role = stream.RoleWriter
	}

	// Share-link-initiated attaches carry a share token; closing the open
	// defect noted in section 9, it is validated here (session match plus
	// expiry) and the attachment is forced read-only regardless of the
	// requested mode.
	if msg.ShareToken != "" {
		if err := validateShareToken(s.h.store, msg.ShareToken, msg.SessionID); err != nil {
			s.send("error", map[string]any{"message": err.Error()})
			return
		}
		role = stream.RoleReader
	}

	ctx, cancel := context.WithCancel(context.Background())
	att, frames, err := s.h.broker.Attach(ctx, msg.SessionID, s.clientID, role, msg.Cols, msg.Rows)
	if err != nil {
		cancel()
		s.send("error", map[string]any{"message": err.Error()})
		return
	}

	s.mu.Lock()
	s.att = att
	s.sessionID = msg.SessionID
	s.cancelPump = cancel
	s.mu.Unlock()

	stopTimers := stream.ScheduleCredentialTimers(s.claims.ExpiresAt.Time, func(f stream.Frame) {
		s.deliverFrame(f)
		if f.Kind == stream.FrameCredentialExpired {
			s.conn.Close()
		}
	})
	stopMeta := s.startMetadataPolling(msg.SessionID)
	s.mu.Lock()
	s.stopMeta = func() { stopTimers(); stopMeta() }
	s.mu.Unlock()

	s.send("attached", map[string]any{"sessionId": msg.SessionID, "mode": wireMode(att.Role())})

	go s.pump(ctx, frames)
}

func (s *wsSession) pump(ctx context.Context, frames <-chan stream.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				s.send("error", map[string]any{"message": "disconnected: slow consumer"})
				s.conn.Close()
				return
			}
			s.deliverFrame(f)
		}
	}
}

func (s *wsSession) deliverFrame(f stream.Frame) {
	switch f.Kind {
	case stream.FrameOutput:
		s.send("output", map[string]any{"data": string(f.Data)})
	case stream.FrameModeChanged:
		s.send("mode-changed", map[string]any{"mode": wireMode(f.Role), "reason": f.Reason})
	case stream.FrameCredentialWarning:
		s.send("token-expiring", map[string]any{"expiresIn": 600, "message": "bearer credential expires soon"})
	case stream.FrameCredentialExpired:
		s.send("token-expired", map[string]any{"message": "bearer credential has expired"})
	case stream.FrameSlowConsumer:
		s.send("error", map[string]any{"message": "disconnected: slow consumer"})
	}
}

func (s *wsSession) handleInput(data []byte, limit int) {
	s.mu.Lock()
	att := s.att
	s.mu.Unlock()
	if att == nil {
		s.send("error", map[string]any{"message": "not attached to a session"})
		return
	}
	if len(data) > limit {
		s.send("error", map[string]any{"message": "input exceeds the admission limit"})
		return
	}
	if err := att.Input(data); err != nil {
		s.send("error", map[string]any{"message": err.Error()})
	}
}

// handleRegistryInput routes send-input/send-large-input through the Session
// Registry's out-of-band tmux command path (literal send-keys below the
// threshold, load-buffer/paste-buffer above it) rather than the live pty
// write used by the plain "input" message — this is the path idguard guards
// at Registry.SendInput.
func (s *wsSession) handleRegistryInput(sessionID string, data []byte) {
	if err := s.h.registry.SendInput(context.Background(), sessionID, data, s.clientID); err != nil {
		s.send("error", map[string]any{"message": err.Error()})
	}
}

func (s *wsSession) handleResize(cols, rows int) {
	s.mu.Lock()
	att := s.att
	s.mu.Unlock()
	if att == nil {
		return
	}
	_ = att.Resize(cols, rows)
}

func (s *wsSession) handleRequestMaster() {
	s.mu.Lock()
	att := s.att
	s.mu.Unlock()
	if att == nil {
		s.send("error", map[string]any{"message": "not attached to a session"})
		return
	}
	role, reason := att.RequestMaster()
	s.send("mode-changed", map[string]any{"mode": wireMode(role), "reason": reason})
}

func (s *wsSession) handleReleaseMaster() {
	s.mu.Lock()
	att := s.att
	s.mu.Unlock()
	if att == nil {
		return
	}
	att.ReleaseMaster()
	s.send("mode-changed", map[string]any{"mode": "reader"})
}

func (s *wsSession) handleListSessions() {
	snaps, err := s.h.registry.List(context.Background())
	if err != nil {
		s.send("error", map[string]any{"message": err.Error()})
		return
	}
	views := make([]sessionView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, viewFromSnapshot(snap))
	}
	s.send("sessions-list", map[string]any{"sessions": views})
}

func (s *wsSession) startMetadataPolling(sessionID string) func() {
	s.h.probe.SetActive(sessionID, "", true)
	ticker := time.NewTicker(5 * time.Second)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				rec := s.h.registry.Get(sessionID)
				if rec == nil {
					continue
				}
				snap, err := s.h.probe.Get(context.Background(), sessionID, rec.ProjectPath)
				if err != nil {
					continue
				}
				s.send("metadata-update", map[string]any{
					"sessionId":      sessionID,
					"tokenUsage":     snap.TokenUsage,
					"contextPercent": snap.ContextPercent,
					"costUSD":        snap.CostUSD,
					"source":         string(snap.Source),
				})
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}

func (s *wsSession) detach() {
	s.mu.Lock()
	att := s.att
	sessionID := s.sessionID
	cancel := s.cancelPump
	stopMeta := s.stopMeta
	s.att = nil
	s.sessionID = ""
	s.cancelPump = nil
	s.stopMeta = nil
	s.mu.Unlock()

	if att == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	if stopMeta != nil {
		stopMeta()
	}
	att.Detach()
	_ = sessionID
}

func wireMode(role stream.Role) string {
	if role == stream.RoleWriter {
		return "master"
	}
	return "reader"
}

// validateShareToken enforces that a share token resolves, targets the
// attaching session, and has not expired (section 3, section 9).
func validateShareToken(st *store.Store, token, sessionID string) error {
	row, err := st.GetShareToken(token)
	if err != nil {
		return fmt.Errorf("share token lookup failed")
	}
	if row == nil {
		return fmt.Errorf("share token is invalid")
	}
	if row.SessionID != sessionID {
		return fmt.Errorf("share token does not grant access to this session")
	}
	if time.Now().After(row.ExpiresAt) {
		return fmt.Errorf("share token has expired")
	}
	return nil
}
