// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL CHECK(role IN ('admin','user')),
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	project_name TEXT NOT NULL,
	project_path TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('active','idle','terminated','recovered')),
	created_at TEXT NOT NULL,
	ended_at TEXT,
	last_active TEXT NOT NULL,
	owner_id TEXT REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	token_hash TEXT UNIQUE NOT NULL,
	expires_at TEXT NOT NULL,
	revoked_at TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS share_tokens (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(session_id),
	token TEXT UNIQUE NOT NULL,
	expires_at TEXT NOT NULL,
	created_by TEXT REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS metadata_logs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(session_id),
	token_usage INTEGER,
	context_percent REAL,
	cost_usd REAL,
	source TEXT NOT NULL,
	timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	user_id TEXT,
	action TEXT NOT NULL,
	resource_type TEXT,
	resource_id TEXT,
	details TEXT,
	ip_address TEXT,
	user_agent TEXT,
	timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id);
CREATE INDEX IF NOT EXISTS idx_share_tokens_session ON share_tokens(session_id);
CREATE INDEX IF NOT EXISTS idx_metadata_logs_session ON metadata_logs(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_user ON audit_logs(user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_ip ON audit_logs(ip_address, timestamp);
`
