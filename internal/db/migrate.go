package db

import (
	"context"
	"fmt"
	"strings"
)

// schema is written once with placeholders for the column types that differ
// between SQLite and PostgreSQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id {{pk}},
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT {{true}},
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_settings (
		user_id {{ref}} PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		pomodoro_duration INTEGER NOT NULL CHECK (pomodoro_duration > 0),
		short_break_duration INTEGER NOT NULL CHECK (short_break_duration > 0),
		long_break_duration INTEGER NOT NULL CHECK (long_break_duration > 0),
		pomodoros_until_long_break INTEGER NOT NULL CHECK (pomodoros_until_long_break > 0),
		theme TEXT NOT NULL,
		notification_enabled BOOLEAN NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id {{pk}},
		user_id {{ref}} NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		parent_id {{ref}} REFERENCES tasks(id) ON DELETE CASCADE,
		path TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT,
		priority TEXT CHECK (priority IN ('high', 'medium', 'low')),
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'in_progress', 'completed', 'blocked')),
		color_code TEXT,
		estimated_duration INTEGER CHECK (estimated_duration >= 0),
		created_at {{ts}} NOT NULL,
		updated_at {{ts}},
		completed_at {{ts}},
		deleted_at {{ts}},
		CHECK (parent_id IS NULL OR parent_id <> id),
		CHECK ((status = 'completed' AND completed_at IS NOT NULL) OR (status <> 'completed' AND completed_at IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS task_history (
		id {{pk}},
		task_id {{ref}} NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_id {{ref}} NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		action TEXT NOT NULL CHECK (action IN ('created', 'updated', 'soft_deleted', 'restored')),
		changes TEXT NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pomodoro_sessions (
		id {{pk}},
		user_id {{ref}} NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		start_time {{ts}} NOT NULL,
		end_time {{ts}},
		duration INTEGER NOT NULL CHECK (duration > 0),
		actual_duration INTEGER CHECK (actual_duration >= 0),
		session_type TEXT NOT NULL CHECK (session_type IN ('work', 'short_break', 'long_break')),
		completed BOOLEAN NOT NULL DEFAULT {{false}},
		interruption_reason TEXT,
		created_at {{ts}} NOT NULL,
		deleted_at {{ts}},
		CHECK (end_time IS NULL OR end_time > start_time)
	)`,
	`CREATE TABLE IF NOT EXISTS pomodoro_session_interruptions (
		id {{pk}},
		session_id {{ref}} NOT NULL REFERENCES pomodoro_sessions(id) ON DELETE CASCADE,
		paused_at {{ts}} NOT NULL,
		resumed_at {{ts}},
		duration INTEGER CHECK (duration >= 0),
		resulted_in_reset BOOLEAN NOT NULL DEFAULT {{false}},
		created_at {{ts}} NOT NULL,
		CHECK (resumed_at IS NULL OR resumed_at >= paused_at)
	)`,
	`CREATE TABLE IF NOT EXISTS pomodoro_task_associations (
		id {{pk}},
		pomodoro_session_id {{ref}} NOT NULL REFERENCES pomodoro_sessions(id) ON DELETE CASCADE,
		task_id {{ref}} NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		time_spent INTEGER CHECK (time_spent >= 0),
		notes TEXT,
		created_at {{ts}} NOT NULL,
		deleted_at {{ts}}
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_path ON tasks(user_id, path)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_task_history_task ON task_history(task_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_pomodoro_sessions_user_start ON pomodoro_sessions(user_id, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_interruptions_session ON pomodoro_session_interruptions(session_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_interruptions_one_open ON pomodoro_session_interruptions(session_id) WHERE resumed_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_associations_session ON pomodoro_task_associations(pomodoro_session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_associations_task ON pomodoro_task_associations(task_id)`,
}

var replacers = map[Dialect]*strings.Replacer{
	SQLite: strings.NewReplacer(
		"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{ref}}", "INTEGER",
		"{{ts}}", "TIMESTAMP",
		"{{true}}", "1",
		"{{false}}", "0",
	),
	Postgres: strings.NewReplacer(
		"{{pk}}", "BIGSERIAL PRIMARY KEY",
		"{{ref}}", "BIGINT",
		"{{ts}}", "TIMESTAMPTZ",
		"{{true}}", "TRUE",
		"{{false}}", "FALSE",
	),
}

// Schema returns the DDL statements for the dialect.
func Schema(d Dialect) []string {
	r := replacers[d]
	statements := make([]string, len(schema))
	for i, stmt := range schema {
		statements[i] = r.Replace(stmt)
	}
	return statements
}

// Migrate creates every table and index that does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range Schema(d.dialect) {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// tables lists every table Migrate creates.
var tables = []string{
	"users", "user_settings", "tasks", "task_history",
	"pomodoro_sessions", "pomodoro_session_interruptions", "pomodoro_task_associations",
}

// SchemaReady returns an error naming the first table that cannot be read.
func (d *DB) SchemaReady(ctx context.Context) error {
	for _, table := range tables {
		rows, err := d.sql.QueryContext(ctx, `SELECT 1 FROM `+table+` LIMIT 1`)
		if err != nil {
			return fmt.Errorf("table %s: %w", table, err)
		}
		_ = rows.Close()
	}
	return nil
}
