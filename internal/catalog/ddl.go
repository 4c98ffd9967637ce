package catalog

import (
	"context"
	"fmt"
)

// Bootstrap DDL for the engine's own schema. Statements are idempotent
// so every instance can run them at startup.
var ddl = []string{
	`CREATE SCHEMA IF NOT EXISTS relgate_catalog`,

	`CREATE TABLE IF NOT EXISTS relgate_catalog.tracked_tables (
		schema_name TEXT NOT NULL,
		table_name  TEXT NOT NULL,
		PRIMARY KEY (schema_name, table_name)
	)`,

	`CREATE TABLE IF NOT EXISTS relgate_catalog.tracked_functions (
		schema_name   TEXT NOT NULL,
		function_name TEXT NOT NULL,
		PRIMARY KEY (schema_name, function_name)
	)`,

	`CREATE TABLE IF NOT EXISTS relgate_catalog.relationships (
		table_schema TEXT NOT NULL,
		table_name   TEXT NOT NULL,
		rel_name     TEXT NOT NULL,
		rel_kind     TEXT NOT NULL,
		rel_def      JSONB NOT NULL,
		comment      TEXT,
		PRIMARY KEY (table_schema, table_name, rel_name),
		FOREIGN KEY (table_schema, table_name)
			REFERENCES relgate_catalog.tracked_tables (schema_name, table_name)
			ON UPDATE CASCADE ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS relgate_catalog.permissions (
		table_schema TEXT NOT NULL,
		table_name   TEXT NOT NULL,
		role_name    TEXT NOT NULL,
		perm_verb    TEXT NOT NULL,
		perm_def     JSONB NOT NULL,
		comment      TEXT,
		PRIMARY KEY (table_schema, table_name, role_name, perm_verb),
		FOREIGN KEY (table_schema, table_name)
			REFERENCES relgate_catalog.tracked_tables (schema_name, table_name)
			ON UPDATE CASCADE ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS relgate_catalog.remote_schemas (
		name       TEXT PRIMARY KEY,
		definition JSONB NOT NULL,
		comment    TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS relgate_catalog.event_triggers (
		name         TEXT PRIMARY KEY,
		table_schema TEXT NOT NULL,
		table_name   TEXT NOT NULL,
		webhook      TEXT NOT NULL,
		definition   JSONB,
		FOREIGN KEY (table_schema, table_name)
			REFERENCES relgate_catalog.tracked_tables (schema_name, table_name)
			ON UPDATE CASCADE ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS relgate_catalog.event_log (
		event_id     UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		trigger_name TEXT NOT NULL,
		payload      JSONB NOT NULL,
		delivered    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS relgate_catalog.query_templates (
		name     TEXT PRIMARY KEY,
		template JSONB NOT NULL,
		comment  TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS relgate_catalog.schema_update_events (
		instance_id TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS schema_update_events_occurred_at_idx
		ON relgate_catalog.schema_update_events (occurred_at DESC)`,
}

// EnsureSchema creates the bookkeeping schema and tables if missing.
func EnsureSchema(ctx context.Context, q Querier) error {
	for _, stmt := range ddl {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply catalog ddl: %w", err)
		}
	}
	return nil
}
