// ABOUTME: Database lifecycle manager owning the storage handle for the process lifetime
// ABOUTME: Gates all entity and live query operations until initialization completes

package taskdb

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/2389/taskdb/internal/config"
	"github.com/2389/taskdb/internal/live"
	"github.com/2389/taskdb/internal/logging"
	"github.com/2389/taskdb/internal/store"
	"github.com/2389/taskdb/internal/tasks"
)

// Database owns the one storage handle for the process lifetime. Construct
// with New, call Initialize once at startup, Close at shutdown. Every
// other method fails with ErrNotInitialized until Initialize succeeds.
type Database struct {
	cfg    *config.Config
	logger *slog.Logger

	// initGroup collapses concurrent Initialize calls into one in-flight
	// attempt; a failed attempt leaves the database uninitialized so the
	// next call retries from scratch.
	initGroup singleflight.Group

	mu       sync.RWMutex
	backend  store.Backend
	entities *tasks.Store
	engine   *live.Engine
}

// New creates an uninitialized Database. A nil cfg uses config.Default
// (database under the user data dir); a nil logger is built from the
// config's logging section.
func New(cfg *config.Config, logger *slog.Logger) *Database {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.New(cfg.Logging)
	}
	return &Database{
		cfg:    cfg,
		logger: logger,
	}
}

// LoadConfig reads a YAML configuration file for use with New.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

// Initialize opens the durable store and applies pending migrations.
// Idempotent: a call while another is in flight shares its result, and a
// call after success is a no-op. On failure nothing is retained and a
// later call starts over.
func (d *Database) Initialize(ctx context.Context) error {
	d.mu.RLock()
	ready := d.backend != nil
	d.mu.RUnlock()
	if ready {
		return nil
	}

	_, err, _ := d.initGroup.Do("initialize", func() (any, error) {
		d.mu.RLock()
		ready := d.backend != nil
		d.mu.RUnlock()
		if ready {
			return nil, nil
		}

		backend, err := store.NewSQLiteBackend(d.cfg.Database.Path, d.logger)
		if err != nil {
			return nil, err
		}

		engine := live.NewEngine(backend, d.logger)
		entities := tasks.New(backend, engine, d.logger, tasks.Options{
			DuplicateSuffix:        d.cfg.Tasks.DuplicateSuffix,
			DuplicateKeepCompleted: d.cfg.Tasks.DuplicateKeepCompleted,
		})

		d.mu.Lock()
		d.backend = backend
		d.entities = entities
		d.engine = engine
		d.mu.Unlock()

		d.logger.Info("database initialized", "path", d.cfg.Database.Path)
		return nil, nil
	})
	return err
}

// Close tears down the live engine and closes the storage handle. Only the
// lifecycle manager may close the backend. Safe on an uninitialized
// database.
func (d *Database) Close() error {
	d.mu.Lock()
	backend := d.backend
	engine := d.engine
	d.backend = nil
	d.entities = nil
	d.engine = nil
	d.mu.Unlock()

	if engine != nil {
		engine.Close()
	}
	if backend != nil {
		return backend.Close()
	}
	return nil
}

// handle returns the ready entity store and live engine, or
// ErrNotInitialized.
func (d *Database) handle() (*tasks.Store, *live.Engine, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.backend == nil {
		return nil, nil, ErrNotInitialized
	}
	return d.entities, d.engine, nil
}

// GetTask retrieves a single task by id.
func (d *Database) GetTask(ctx context.Context, id string) (*Task, error) {
	entities, _, err := d.handle()
	if err != nil {
		return nil, err
	}
	return entities.GetTask(ctx, id)
}

// ListTasks retrieves all tasks, newest first.
func (d *Database) ListTasks(ctx context.Context) ([]*Task, error) {
	entities, _, err := d.handle()
	if err != nil {
		return nil, err
	}
	return entities.ListTasks(ctx)
}

// ListSubTasks retrieves subtasks oldest first. An empty parentTaskID
// returns every subtask.
func (d *Database) ListSubTasks(ctx context.Context, parentTaskID string) ([]*SubTask, error) {
	entities, _, err := d.handle()
	if err != nil {
		return nil, err
	}
	return entities.ListSubTasks(ctx, parentTaskID)
}

// TaskCounts returns how many tasks are completed and how many are not.
func (d *Database) TaskCounts(ctx context.Context) (completed, active int, err error) {
	entities, _, err := d.handle()
	if err != nil {
		return 0, 0, err
	}
	return entities.TaskCounts(ctx)
}

// SubTaskCount returns the number of subtasks under the given parent.
func (d *Database) SubTaskCount(ctx context.Context, parentTaskID string) (int, error) {
	entities, _, err := d.handle()
	if err != nil {
		return 0, err
	}
	return entities.SubTaskCount(ctx, parentTaskID)
}

// CreateTask creates a new task.
func (d *Database) CreateTask(ctx context.Context, text string) (*Task, error) {
	entities, _, err := d.handle()
	if err != nil {
		return nil, err
	}
	return entities.CreateTask(ctx, text)
}

// UpdateTaskText updates the text of an existing task.
func (d *Database) UpdateTaskText(ctx context.Context, id, text string) (*Task, error) {
	entities, _, err := d.handle()
	if err != nil {
		return nil, err
	}
	return entities.UpdateTaskText(ctx, id, text)
}

// ToggleTaskCompleted flips the completed flag of a task.
func (d *Database) ToggleTaskCompleted(ctx context.Context, id string) (*Task, error) {
	entities, _, err := d.handle()
	if err != nil {
		return nil, err
	}
	return entities.ToggleTaskCompleted(ctx, id)
}

// SetTaskCompleted sets the completed flag of a task.
func (d *Database) SetTaskCompleted(ctx context.Context, id string, value bool) (*Task, error) {
	entities, _, err := d.handle()
	if err != nil {
		return nil, err
	}
	return entities.SetTaskCompleted(ctx, id, value)
}

// DeleteTask deletes a task and all of its subtasks atomically.
func (d *Database) DeleteTask(ctx context.Context, id string) error {
	entities, _, err := d.handle()
	if err != nil {
		return err
	}
	return entities.DeleteTask(ctx, id)
}

// DuplicateTask copies a task and its subtasks under a fresh id.
func (d *Database) DuplicateTask(ctx context.Context, id string) (*Task, error) {
	entities, _, err := d.handle()
	if err != nil {
		return nil, err
	}
	return entities.DuplicateTask(ctx, id)
}

// CreateSubTask creates a new subtask under an existing parent task.
func (d *Database) CreateSubTask(ctx context.Context, parentTaskID, text string) (*SubTask, error) {
	entities, _, err := d.handle()
	if err != nil {
		return nil, err
	}
	return entities.CreateSubTask(ctx, parentTaskID, text)
}

// UpdateSubTaskText updates the text of an existing subtask.
func (d *Database) UpdateSubTaskText(ctx context.Context, id, text string) (*SubTask, error) {
	entities, _, err := d.handle()
	if err != nil {
		return nil, err
	}
	return entities.UpdateSubTaskText(ctx, id, text)
}

// ToggleSubTaskCompleted flips the completed flag of a subtask.
func (d *Database) ToggleSubTaskCompleted(ctx context.Context, id string) (*SubTask, error) {
	entities, _, err := d.handle()
	if err != nil {
		return nil, err
	}
	return entities.ToggleSubTaskCompleted(ctx, id)
}

// SetSubTaskCompleted sets the completed flag of a subtask.
func (d *Database) SetSubTaskCompleted(ctx context.Context, id string, value bool) (*SubTask, error) {
	entities, _, err := d.handle()
	if err != nil {
		return nil, err
	}
	return entities.SetSubTaskCompleted(ctx, id, value)
}

// DeleteSubTask deletes a single subtask.
func (d *Database) DeleteSubTask(ctx context.Context, id string) error {
	entities, _, err := d.handle()
	if err != nil {
		return err
	}
	return entities.DeleteSubTask(ctx, id)
}

// SubscribeTasks registers a live query over all tasks, newest first. The
// initial snapshot is delivered before SubscribeTasks returns; every
// committed mutation that can affect the task list triggers another.
func (d *Database) SubscribeTasks(ctx context.Context, fn TasksHandler) (*Subscription, error) {
	_, engine, err := d.handle()
	if err != nil {
		return nil, err
	}
	return engine.SubscribeTasks(ctx, fn)
}

// SubscribeSubTasks registers a live query over subtasks, oldest first. An
// empty parentTaskID observes every subtask.
func (d *Database) SubscribeSubTasks(ctx context.Context, parentTaskID string, fn SubTasksHandler) (*Subscription, error) {
	_, engine, err := d.handle()
	if err != nil {
		return nil, err
	}
	return engine.SubscribeSubTasks(ctx, parentTaskID, fn)
}
