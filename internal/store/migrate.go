// ABOUTME: Versioned schema migrations for the SQLite backend
// ABOUTME: Applies ordered, idempotent steps recorded in a schema_migrations table

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// Migration is a single schema evolution step. Version numbers are strictly
// increasing and never reused; Apply runs inside its own transaction so a
// crash mid-sequence leaves the store at the last recorded version.
type Migration struct {
	Version int
	Name    string
	Apply   func(tx *sql.Tx) error
}

// migrations is the full ordered history of the taskdb schema. Append only.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create tasks and sub_tasks",
		Apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS tasks (
					id         TEXT PRIMARY KEY,
					text       TEXT NOT NULL,
					completed  INTEGER NOT NULL DEFAULT 0,
					created_at TEXT NOT NULL
				);

				CREATE TABLE IF NOT EXISTS sub_tasks (
					id             TEXT PRIMARY KEY,
					parent_task_id TEXT NOT NULL REFERENCES tasks(id),
					text           TEXT NOT NULL,
					completed      INTEGER NOT NULL DEFAULT 0,
					created_at     TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_sub_tasks_parent
					ON sub_tasks(parent_task_id);
			`)
			return err
		},
	},
	{
		Version: 2,
		Name:    "index sub_tasks by parent and created_at",
		Apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE INDEX IF NOT EXISTS idx_sub_tasks_parent_created
					ON sub_tasks(parent_task_id, created_at);
			`)
			return err
		},
	},
	{
		Version: 3,
		Name:    "index tasks by created_at",
		Apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE INDEX IF NOT EXISTS idx_tasks_created
					ON tasks(created_at DESC);
			`)
			return err
		},
	},
}

// runMigrations brings the database to the latest schema version.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	return applyMigrations(db, logger, migrations)
}

// applyMigrations runs the given steps in order. Safe to run multiple
// times: steps at or below the recorded version are skipped, and each step
// commits its version marker in the same transaction as its schema change,
// so a crash mid-sequence restarts cleanly from the last recorded version.
func applyMigrations(db *sql.DB, logger *slog.Logger, steps []Migration) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range steps {
		if current.Valid && m.Version <= int(current.Int64) {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", m.Version, err)
		}

		if err := m.Apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w: %v", m.Version, m.Name, ErrMigration, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w: %v", m.Version, ErrMigration, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w: %v", m.Version, ErrMigration, err)
		}

		logger.Info("applied migration", "version", m.Version, "name", m.Name)
	}

	return nil
}

// SchemaVersion reports the highest applied migration version, 0 for a
// fresh database.
func (s *SQLiteBackend) SchemaVersion() (int, error) {
	var current sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&current); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	if !current.Valid {
		return 0, nil
	}
	return int(current.Int64), nil
}
