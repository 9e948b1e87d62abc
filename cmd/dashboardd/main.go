// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/clauded/dashboard/internal/config"
	"github.com/clauded/dashboard/internal/supervisor"
)

var version = "0.1.0"

func main() {
	var (
		host        string
		port        int
		showVersion bool
	)

	flag.StringVar(&host, "host", "", "HTTP/WS listen host (overrides HOST)")
	flag.IntVar(&port, "port", 0, "HTTP/WS listen port (overrides PORT)")
	flag.BoolVar(&showVersion, "version", false, "show version")
	flag.Parse()

	if showVersion {
		fmt.Printf("dashboardd %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}

	sup, err := supervisor.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize supervisor: %v", err)
	}

	if err := sup.Run(context.Background()); err != nil {
		log.Fatalf("supervisor error: %v", err)
	}
}
