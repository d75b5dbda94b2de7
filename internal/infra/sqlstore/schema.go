// Package sqlstore implements the task and workflow repositories over
// database/sql. The SQL is portable between SQLite and PostgreSQL; the
// driver packages only open the connection and pick a placeholder style.
package sqlstore

import (
	"context"
	"fmt"
)

// migrations are idempotent and shared by both drivers.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id           TEXT PRIMARY KEY,
		type         TEXT NOT NULL,
		title        TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		property_id  TEXT,
		assigned_to  TEXT,
		scheduled_at BIGINT,
		created_at   BIGINT NOT NULL,
		updated_at   BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_assigned ON tasks(assigned_to)`,

	// One workflow per task. Step payloads are JSON documents; the handoff
	// step is a plain flag.
	`CREATE TABLE IF NOT EXISTS workflows (
		id             TEXT PRIMARY KEY,
		task_id        TEXT NOT NULL UNIQUE REFERENCES tasks(id),
		step_access    TEXT NOT NULL,
		step_before    TEXT NOT NULL,
		step_checklist TEXT NOT NULL,
		step_after     TEXT NOT NULL,
		step_handoff   BOOLEAN NOT NULL DEFAULT FALSE,
		time_start     BIGINT,
		time_end       BIGINT,
		status         TEXT NOT NULL,
		version        BIGINT NOT NULL,
		updated_by     TEXT,
		created_at     BIGINT NOT NULL,
		updated_at     BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status)`,
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
