// ABOUTME: SQLite implementation of the Backend interface using modernc.org/sqlite
// ABOUTME: Provides task/subtask persistence with WAL mode and serialized transactions

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend implements the Backend interface using SQLite
type SQLiteBackend struct {
	db     *sql.DB
	logger *slog.Logger

	// writeMu serializes transactions so concurrent mutators never see
	// SQLITE_BUSY from each other; readers go through WAL unblocked.
	writeMu sync.Mutex
}

// NewSQLiteBackend opens or creates a SQLite database at the given path and
// migrates it to the current schema version. Parent directories are created
// if needed.
func NewSQLiteBackend(path string, logger *slog.Logger) (*SQLiteBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite backend initialized", "path", path)
	return &SQLiteBackend{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteBackend) Close() error {
	s.logger.Info("closing SQLite backend")
	return s.db.Close()
}

// GetTask retrieves a task by ID.
// Returns ErrNotFound if the task doesn't exist.
func (s *SQLiteBackend) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, text, completed, created_at
		FROM tasks
		WHERE id = ?
	`, id)
	return scanTask(row)
}

// ListTasks retrieves all tasks, newest first. Insertion order breaks
// created_at ties so listings are stable.
func (s *SQLiteBackend) ListTasks(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, completed, created_at
		FROM tasks
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task rows: %w", err)
	}
	return tasks, nil
}

// GetSubTask retrieves a subtask by ID.
// Returns ErrNotFound if the subtask doesn't exist.
func (s *SQLiteBackend) GetSubTask(ctx context.Context, id string) (*SubTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, parent_task_id, text, completed, created_at
		FROM sub_tasks
		WHERE id = ?
	`, id)
	return scanSubTask(row)
}

// ListSubTasks retrieves subtasks in createdAt ascending order. An empty
// parentTaskID returns every subtask.
func (s *SQLiteBackend) ListSubTasks(ctx context.Context, parentTaskID string) ([]*SubTask, error) {
	query := `
		SELECT id, parent_task_id, text, completed, created_at
		FROM sub_tasks
		ORDER BY created_at ASC, rowid ASC
	`
	args := []any{}
	if parentTaskID != "" {
		query = `
			SELECT id, parent_task_id, text, completed, created_at
			FROM sub_tasks
			WHERE parent_task_id = ?
			ORDER BY created_at ASC, rowid ASC
		`
		args = append(args, parentTaskID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subtasks: %w", err)
	}
	defer rows.Close()

	var subs []*SubTask
	for rows.Next() {
		sub, err := scanSubTask(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subtask rows: %w", err)
	}
	return subs, nil
}

// CountTasks returns how many tasks are completed and how many are not.
func (s *SQLiteBackend) CountTasks(ctx context.Context) (completed, active int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN completed = 1 THEN 1 END),
			COUNT(CASE WHEN completed = 0 THEN 1 END)
		FROM tasks
	`).Scan(&completed, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("counting tasks: %w", err)
	}
	return completed, active, nil
}

// CountSubTasks returns the number of subtasks under the given parent.
func (s *SQLiteBackend) CountSubTasks(ctx context.Context, parentTaskID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sub_tasks WHERE parent_task_id = ?
	`, parentTaskID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting subtasks: %w", err)
	}
	return n, nil
}

// Update runs fn inside a single write transaction. Transactions are
// serialized; fn either commits fully or leaves the store untouched.
func (s *SQLiteBackend) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w: %v", ErrTransaction, err)
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w: %v", ErrTransaction, err)
	}
	return nil
}

// sqliteTx implements Tx over a live *sql.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetTask(id string) (*Task, error) {
	row := t.tx.QueryRow(`
		SELECT id, text, completed, created_at
		FROM tasks
		WHERE id = ?
	`, id)
	return scanTask(row)
}

func (t *sqliteTx) InsertTask(task *Task) error {
	_, err := t.tx.Exec(`
		INSERT INTO tasks (id, text, completed, created_at)
		VALUES (?, ?, ?, ?)
	`, task.ID, task.Text, boolToInt(task.Completed), formatTime(task.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpdateTask(task *Task) error {
	result, err := t.tx.Exec(`
		UPDATE tasks
		SET text = ?, completed = ?
		WHERE id = ?
	`, task.Text, boolToInt(task.Completed), task.ID)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	return requireRows(result)
}

func (t *sqliteTx) DeleteTask(id string) error {
	result, err := t.tx.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("deleting task with surviving subtasks: %w", err)
		}
		return fmt.Errorf("deleting task: %w", err)
	}
	return requireRows(result)
}

func (t *sqliteTx) GetSubTask(id string) (*SubTask, error) {
	row := t.tx.QueryRow(`
		SELECT id, parent_task_id, text, completed, created_at
		FROM sub_tasks
		WHERE id = ?
	`, id)
	return scanSubTask(row)
}

func (t *sqliteTx) InsertSubTask(sub *SubTask) error {
	_, err := t.tx.Exec(`
		INSERT INTO sub_tasks (id, parent_task_id, text, completed, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sub.ID, sub.ParentTaskID, sub.Text, boolToInt(sub.Completed), formatTime(sub.CreatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("inserting subtask with unknown parent: %w", ErrNotFound)
		}
		return fmt.Errorf("inserting subtask: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpdateSubTask(sub *SubTask) error {
	result, err := t.tx.Exec(`
		UPDATE sub_tasks
		SET text = ?, completed = ?
		WHERE id = ?
	`, sub.Text, boolToInt(sub.Completed), sub.ID)
	if err != nil {
		return fmt.Errorf("updating subtask: %w", err)
	}
	return requireRows(result)
}

func (t *sqliteTx) DeleteSubTask(id string) error {
	result, err := t.tx.Exec(`DELETE FROM sub_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting subtask: %w", err)
	}
	return requireRows(result)
}

func (t *sqliteTx) ListSubTasks(parentTaskID string) ([]*SubTask, error) {
	rows, err := t.tx.Query(`
		SELECT id, parent_task_id, text, completed, created_at
		FROM sub_tasks
		WHERE parent_task_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, parentTaskID)
	if err != nil {
		return nil, fmt.Errorf("querying subtasks: %w", err)
	}
	defer rows.Close()

	var subs []*SubTask
	for rows.Next() {
		sub, err := scanSubTask(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subtask rows: %w", err)
	}
	return subs, nil
}

func (t *sqliteTx) DeleteSubTasksOf(parentTaskID string) (int, error) {
	result, err := t.tx.Exec(`DELETE FROM sub_tasks WHERE parent_task_id = ?`, parentTaskID)
	if err != nil {
		return 0, fmt.Errorf("deleting subtasks of parent: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return int(n), nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var task Task
	var completed int
	var createdAtStr string

	err := row.Scan(&task.ID, &task.Text, &completed, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	task.Completed = completed != 0
	task.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &task, nil
}

func scanSubTask(row scanner) (*SubTask, error) {
	var sub SubTask
	var completed int
	var createdAtStr string

	err := row.Scan(&sub.ID, &sub.ParentTaskID, &sub.Text, &completed, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning subtask: %w", err)
	}

	sub.Completed = completed != 0
	sub.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &sub, nil
}

// requireRows translates a zero-row UPDATE/DELETE into ErrNotFound.
func requireRows(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// timeLayout is RFC3339 with fixed-width nanoseconds. Fixed width keeps
// lexicographic order equal to chronological order, which the created_at
// ORDER BY clauses rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "FOREIGN KEY constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// Ensure SQLiteBackend implements Backend
var _ Backend = (*SQLiteBackend)(nil)
