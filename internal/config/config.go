// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the dashboard's process configuration from the
// environment. There is no config file format here — the control plane's
// entire configuration surface is environment variables (section 6).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the validated, process-wide configuration.
type Config struct {
	Host string
	Port int

	DBPath string

	AllowedProjectRoots []string
	AllowedFileRoots    []string

	JWTSecret            string
	BearerTTL            time.Duration
	RenewalTTL           time.Duration
	InitialAdminUsername string
	InitialAdminPassword string

	TunnelEnabled bool
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Host:                 envOr("HOST", "127.0.0.1"),
		DBPath:               envOr("DB_PATH", "dashboard.db"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		InitialAdminUsername: envOr("ADMIN_USERNAME", "admin"),
		InitialAdminPassword: os.Getenv("ADMIN_PASSWORD"),
		TunnelEnabled:        envOr("TUNNEL_ENABLED", "false") == "true",
	}

	port, err := strconv.Atoi(envOr("PORT", "8778"))
	if err != nil {
		return nil, fmt.Errorf("PORT: %w", err)
	}
	cfg.Port = port

	cfg.AllowedProjectRoots = splitColonList(os.Getenv("ALLOWED_PROJECT_ROOTS"))
	cfg.AllowedFileRoots = splitColonList(os.Getenv("ALLOWED_FILE_ROOTS"))
	if len(cfg.AllowedProjectRoots) == 0 {
		return nil, fmt.Errorf("ALLOWED_PROJECT_ROOTS must name at least one root")
	}
	if len(cfg.AllowedFileRoots) == 0 {
		cfg.AllowedFileRoots = cfg.AllowedProjectRoots
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg.BearerTTL, err = envDuration("JWT_EXPIRES_IN", time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.RenewalTTL, err = envDuration("JWT_REFRESH_EXPIRES_IN", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitColonList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ":")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
