package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements create the durable store tables. Every statement is
// idempotent so EnsureSchema can run at every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS slovo_user_profile (
		id INTEGER PRIMARY KEY,
		preferred_languages JSONB NOT NULL DEFAULT '["en"]',
		communication_style TEXT NOT NULL DEFAULT 'friendly',
		privacy_level TEXT NOT NULL DEFAULT 'standard',
		memory_capture_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS slovo_user_preferences (
		key TEXT PRIMARY KEY,
		value_encrypted TEXT NOT NULL,
		source TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS slovo_episodic_log (
		id TEXT PRIMARY KEY,
		agent TEXT NOT NULL,
		action_type TEXT NOT NULL,
		summary_encrypted TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		conversation_id TEXT,
		step_index INTEGER,
		tool_name TEXT,
		error_category TEXT,
		correction_reason TEXT,
		occurred_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slovo_episodic_created_at
		ON slovo_episodic_log (created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS slovo_memory_metadata (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		store_location TEXT NOT NULL,
		summary TEXT NOT NULL,
		source TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slovo_memory_metadata_kind
		ON slovo_memory_metadata (kind, deleted)`,

	`CREATE TABLE IF NOT EXISTS slovo_tool_manifests (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		version TEXT NOT NULL,
		description TEXT NOT NULL,
		source TEXT NOT NULL,
		source_locator TEXT,
		status TEXT NOT NULL,
		schema JSONB,
		capabilities JSONB,
		parameters_schema JSONB,
		execution JSONB NOT NULL DEFAULT '{}',
		approved_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS slovo_tool_permissions (
		id TEXT PRIMARY KEY,
		manifest_id TEXT NOT NULL REFERENCES slovo_tool_manifests(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		value TEXT NOT NULL,
		granted_by TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (manifest_id, kind)
	)`,

	`CREATE TABLE IF NOT EXISTS slovo_tool_executions (
		id TEXT PRIMARY KEY,
		manifest_id TEXT NOT NULL REFERENCES slovo_tool_manifests(id) ON DELETE CASCADE,
		conversation_id TEXT,
		turn_id TEXT,
		input JSONB,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		duration_ms BIGINT,
		status TEXT NOT NULL,
		output TEXT,
		error TEXT,
		exit_code INTEGER,
		cpu_time_ms BIGINT,
		memory_peak_mb DOUBLE PRECISION,
		container_id TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slovo_tool_executions_manifest
		ON slovo_tool_executions (manifest_id, started_at DESC)`,

	`CREATE TABLE IF NOT EXISTS slovo_tool_state (
		manifest_id TEXT NOT NULL REFERENCES slovo_tool_manifests(id) ON DELETE CASCADE,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (manifest_id, key)
	)`,

	`CREATE TABLE IF NOT EXISTS slovo_tool_volumes (
		id TEXT PRIMARY KEY,
		manifest_id TEXT NOT NULL UNIQUE REFERENCES slovo_tool_manifests(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		mount_path TEXT NOT NULL,
		quota_mb INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS slovo_tool_discovery (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		requested_by TEXT,
		status TEXT NOT NULL,
		manifest_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates all durable store tables
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
