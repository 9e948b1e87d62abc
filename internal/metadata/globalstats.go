// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// globalStatsFile is the CLI's own aggregate usage file, read as a
// last-resort source when neither the structured CLI query nor the
// per-project log file is available (priority 3, section 4.8).
const globalStatsFile = "stats.json"

type globalStatsRecord struct {
	TokenUsage     int     `json:"tokenUsage"`
	ContextPercent float64 `json:"contextPercent"`
	CostUSD        float64 `json:"costUsd"`
}

func probeGlobalStats(cliHome string) (Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(cliHome, globalStatsFile))
	if err != nil {
		return Snapshot{}, fmt.Errorf("read global stats: %w", err)
	}
	var rec globalStatsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Snapshot{}, fmt.Errorf("parse global stats: %w", err)
	}
	return Snapshot{
		TokenUsage:     rec.TokenUsage,
		ContextPercent: rec.ContextPercent,
		CostUSD:        rec.CostUSD,
		Source:         SourceGlobalStats,
		At:             time.Now(),
	}, nil
}
