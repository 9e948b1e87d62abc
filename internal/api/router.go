// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/clauded/dashboard/internal/api/handlers"
	"github.com/clauded/dashboard/internal/api/middleware"
	"github.com/clauded/dashboard/internal/audit"
	"github.com/clauded/dashboard/internal/creds"
	"github.com/clauded/dashboard/internal/files"
	"github.com/clauded/dashboard/internal/metadata"
	"github.com/clauded/dashboard/internal/session"
	"github.com/clauded/dashboard/internal/store"
	"github.com/clauded/dashboard/internal/stream"
)

// ServerConfig holds the listener configuration for the HTTP/WS Surface.
type ServerConfig struct {
	Host string
	Port int
}

// Dependencies holds every subsystem the HTTP/WS Surface wires into
// handlers: the Store and the six services above it in construction order
// (section 4.11).
type Dependencies struct {
	Store    *store.Store
	Creds    *creds.Service
	Audit    *audit.Log
	Registry *session.Registry
	Probe    *metadata.Probe
	Broker   *stream.Broker
	Files    *files.Surface
}

// NewRouter builds the complete REST + WebSocket route table (section 6),
// wiring the rate limiter, bearer auth, and role checks into the middleware
// chain per route, grounded on the teacher's NewRouter layout
// (gorilla/mux, panic recovery, request logging, CORS).
func NewRouter(deps Dependencies) *mux.Router {
	router, _ := newRouterAndWS(deps)
	return router
}

func newRouterAndWS(deps Dependencies) (*mux.Router, *handlers.WSHandler) {
	limiter := middleware.NewLimiter()

	authHandler := handlers.NewAuthHandler(deps.Creds, deps.Audit)
	sessionsHandler := handlers.NewSessionsHandler(deps.Registry, deps.Probe, deps.Audit, deps.Store)
	filesHandler := handlers.NewFilesHandler(deps.Files, deps.Audit)
	healthHandler := handlers.NewHealthHandler(deps.Store, deps.Registry)
	wsHandler := handlers.NewWSHandler(deps.Broker, deps.Registry, deps.Probe, deps.Creds, deps.Audit, deps.Store)

	r := mux.NewRouter()
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS)

	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	authAPI := deps.Creds
	authMW := middleware.Auth(authAPI)

	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.Handle("/login", limiter.Middleware(middleware.BucketLogin)(http.HandlerFunc(authHandler.Login))).Methods(http.MethodPost)
	auth.Handle("/refresh", limiter.Middleware(middleware.BucketTokenRefresh)(http.HandlerFunc(authHandler.Refresh))).Methods(http.MethodPost)
	auth.Handle("/logout", http.HandlerFunc(authHandler.Logout)).Methods(http.MethodPost)

	sessionsAPI := r.PathPrefix("/api/sessions").Subrouter()
	sessionsAPI.Use(authMW)
	sessionsAPI.Use(limiter.Middleware(middleware.BucketAPI))
	sessionsAPI.HandleFunc("", sessionsHandler.List).Methods(http.MethodGet)
	sessionsAPI.Handle("", limiter.Middleware(middleware.BucketSessionCreate)(http.HandlerFunc(sessionsHandler.Create))).Methods(http.MethodPost)
	sessionsAPI.HandleFunc("/{sessionId}", sessionsHandler.Get).Methods(http.MethodGet)
	sessionsAPI.Handle("/{sessionId}", middleware.RequireAdmin(http.HandlerFunc(sessionsHandler.Delete))).Methods(http.MethodDelete)
	sessionsAPI.Handle("/{sessionId}/metadata", limiter.Middleware(middleware.BucketMetadata)(http.HandlerFunc(sessionsHandler.Metadata))).Methods(http.MethodGet)
	sessionsAPI.HandleFunc("/{sessionId}/share", sessionsHandler.Share).Methods(http.MethodPost)

	filesAPI := r.PathPrefix("/api/files").Subrouter()
	filesAPI.Use(authMW)
	filesAPI.Use(limiter.Middleware(middleware.BucketAPI))
	filesAPI.HandleFunc("", filesHandler.List).Methods(http.MethodGet)
	filesAPI.HandleFunc("", filesHandler.Delete).Methods(http.MethodDelete)
	filesAPI.HandleFunc("/content", filesHandler.Read).Methods(http.MethodGet)
	filesAPI.HandleFunc("/stat", filesHandler.Stat).Methods(http.MethodGet)
	filesAPI.Handle("/save", limiter.Middleware(middleware.BucketFileWrite)(http.HandlerFunc(filesHandler.Save))).Methods(http.MethodPost)
	filesAPI.HandleFunc("/mkdir", filesHandler.Mkdir).Methods(http.MethodPost)
	filesAPI.HandleFunc("/rename", filesHandler.Rename).Methods(http.MethodPost)
	filesAPI.HandleFunc("/copy", filesHandler.Copy).Methods(http.MethodPost)

	r.HandleFunc("/api/ws", wsHandler.Serve)

	return r, wsHandler
}

// Server wraps an http.Server over the route table, plus the pieces of
// state graceful shutdown needs to reach (section 4.11).
type Server struct {
	router *mux.Router
	server *http.Server
	ws     *handlers.WSHandler
}

// NewServer builds a Server listening on cfg.Host:cfg.Port.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	router, wsHandler := newRouterAndWS(deps)
	return &Server{
		router: router,
		ws:     wsHandler,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Router exposes the route table, primarily for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe starts serving on the loopback-scoped address.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// AnnounceShutdown tells every attached WebSocket the server is going away,
// before the listener stops accepting new connections (section 4.11).
func (s *Server) AnnounceShutdown() {
	s.ws.Shutdown()
}

// Shutdown stops accepting new connections and waits for in-flight requests
// to drain, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
