// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package supervisor is the Process Supervisor (section 4.11): builds every
// subsystem in dependency order, serves until a termination signal arrives,
// and tears everything down in reverse order within a bounded deadline.
//
// Grounded on the teacher's App (internal/app/app.go): the same
// New→Run→Shutdown shape and signal.Notify-driven wait loop, reworked to
// this system's own construction order and subsystem set.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/clauded/dashboard/internal/api"
	"github.com/clauded/dashboard/internal/audit"
	"github.com/clauded/dashboard/internal/config"
	"github.com/clauded/dashboard/internal/creds"
	"github.com/clauded/dashboard/internal/files"
	"github.com/clauded/dashboard/internal/metadata"
	"github.com/clauded/dashboard/internal/pathguard"
	"github.com/clauded/dashboard/internal/session"
	"github.com/clauded/dashboard/internal/store"
	"github.com/clauded/dashboard/internal/stream"
)

const (
	shutdownDrain = 5 * time.Second
	shutdownHard  = 15 * time.Second
	minAdminPass  = 12
)

// Supervisor owns the full subsystem graph and its lifecycle.
type Supervisor struct {
	cfg *config.Config

	store        *store.Store
	credsSvc     *creds.Service
	auditLog     *audit.Log
	registry     *session.Registry
	probe        *metadata.Probe
	broker       *stream.Broker
	projectGuard *pathguard.Guard
	fileGuard    *pathguard.Guard
	fileSurface  *files.Surface
	apiServer    *api.Server

	done     chan struct{}
	stopOnce sync.Once
}

// New builds every subsystem in construction order (section 4.11): Store →
// Credential Service → Audit Log → Session Registry → Metadata Probe →
// Stream Broker → HTTP/WS Surface. Nothing is started yet.
func New(cfg *config.Config) (*Supervisor, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	credsSvc := creds.New(st, []byte(cfg.JWTSecret), cfg.BearerTTL, cfg.RenewalTTL)
	auditLog := audit.New(st)

	projectGuard, err := pathguard.New(cfg.AllowedProjectRoots)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build project path guard: %w", err)
	}
	fileGuard, err := pathguard.New(cfg.AllowedFileRoots)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build file path guard: %w", err)
	}

	registry := session.New(session.NewRealExecutor(), st, projectGuard)
	probe := metadata.New(registry, metadata.DefaultCLIHome())
	broker := stream.New(registry)
	fileSurface := files.New(fileGuard)

	apiServer := api.NewServer(api.ServerConfig{Host: cfg.Host, Port: cfg.Port}, api.Dependencies{
		Store:    st,
		Creds:    credsSvc,
		Audit:    auditLog,
		Registry: registry,
		Probe:    probe,
		Broker:   broker,
		Files:    fileSurface,
	})

	return &Supervisor{
		cfg:          cfg,
		store:        st,
		credsSvc:     credsSvc,
		auditLog:     auditLog,
		registry:     registry,
		probe:        probe,
		broker:       broker,
		projectGuard: projectGuard,
		fileGuard:    fileGuard,
		fileSurface:  fileSurface,
		apiServer:    apiServer,
		done:         make(chan struct{}),
	}, nil
}

// bootstrapAdmin creates the sole initial admin account when the users
// table is empty and a sufficiently strong password was configured.
func (s *Supervisor) bootstrapAdmin() error {
	count, err := s.store.CountUsers()
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	if len(s.cfg.InitialAdminPassword) < minAdminPass {
		log.Printf("supervisor: no users exist and ADMIN_PASSWORD is unset or too short (< %d chars); skipping bootstrap", minAdminPass)
		return nil
	}

	digest, err := creds.HashPassword(s.cfg.InitialAdminPassword)
	if err != nil {
		return fmt.Errorf("hash initial admin password: %w", err)
	}
	if err := s.store.CreateUser(uuid.New().String(), s.cfg.InitialAdminUsername, digest, "admin"); err != nil {
		return fmt.Errorf("create initial admin: %w", err)
	}
	log.Printf("supervisor: bootstrapped initial admin user %q", s.cfg.InitialAdminUsername)
	return nil
}

// Start recovers session state against the multiplexer and begins serving
// HTTP/WS traffic.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.bootstrapAdmin(); err != nil {
		return err
	}
	if err := s.registry.Recover(ctx); err != nil {
		log.Printf("supervisor: session recovery failed, continuing with an empty registry: %v", err)
	}

	go func() {
		log.Printf("supervisor: listening on %s:%d", s.cfg.Host, s.cfg.Port)
		if err := s.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("supervisor: HTTP/WS surface error: %v", err)
		}
	}()
	return nil
}

// Run starts the supervisor and blocks until a termination signal, an
// external shutdown request, or ctx cancellation.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Printf("supervisor: received signal %v, shutting down", sig)
	case <-ctx.Done():
		log.Printf("supervisor: context cancelled, shutting down")
	case <-s.done:
		log.Printf("supervisor: shutdown requested")
	}

	return s.Shutdown(context.Background())
}

// Shutdown tears every subsystem down in reverse construction order (section
// 4.11): stop accepting connections → announce server-shutting-down → drain
// ~5s → stop the Metadata Probe → close attachments/pseudo-terminals → close
// the Store. The whole sequence is bounded at 15s.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownHard)
	defer cancel()

	s.apiServer.AnnounceShutdown()
	time.Sleep(shutdownDrain)

	if err := s.apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("supervisor: error shutting down HTTP/WS surface: %v", err)
	}

	s.probe.StopAll()

	if err := s.store.Close(); err != nil {
		log.Printf("supervisor: error closing store: %v", err)
	}

	log.Println("supervisor: shutdown complete")
	return nil
}

// Stop signals Run to shut down. Safe to call multiple times.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
