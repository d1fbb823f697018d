// ABOUTME: Public facade for the taskdb embedded task store
// ABOUTME: Re-exports entity types, error kinds and subscription handles

// Package taskdb is a local-first reactive data layer for hierarchical
// task data. It persists Tasks and their SubTasks in an embedded SQLite
// store and pushes live result snapshots to subscribers after every
// committed mutation.
//
// Typical use:
//
//	db := taskdb.New(nil, nil)
//	if err := db.Initialize(ctx); err != nil { ... }
//	defer db.Close()
//
//	sub, _ := db.SubscribeTasks(ctx, func(tasks []*taskdb.Task) {
//		render(tasks)
//	})
//	defer sub.Unsubscribe()
//
//	db.CreateTask(ctx, "Buy milk") // subscriber re-renders
//
// The store is single-writer, single-device and local-only: no sync, no
// conflict resolution, no network transport.
package taskdb

import (
	"errors"

	"github.com/2389/taskdb/internal/config"
	"github.com/2389/taskdb/internal/live"
	"github.com/2389/taskdb/internal/store"
)

// ErrNotInitialized is returned when an operation is invoked before
// Initialize has completed successfully.
var ErrNotInitialized = errors.New("database not initialized")

// Error kinds surfaced by store operations.
var (
	ErrNotFound    = store.ErrNotFound
	ErrValidation  = store.ErrValidation
	ErrMigration   = store.ErrMigration
	ErrTransaction = store.ErrTransaction
)

// Config is the full taskdb configuration. DefaultConfig or LoadConfig
// produce one; the zero value is not usable (a database path is required).
type Config = config.Config

// DatabaseConfig holds the database file path.
type DatabaseConfig = config.DatabaseConfig

// LoggingConfig selects log level and output format.
type LoggingConfig = config.LoggingConfig

// TasksConfig tunes entity store behavior such as duplicate handling.
type TasksConfig = config.TasksConfig

// DefaultConfig returns a configuration with the database under the user
// data directory.
func DefaultConfig() *Config {
	return config.Default()
}

// Task is a top-level task record.
type Task = store.Task

// SubTask is a child task owned by exactly one Task.
type SubTask = store.SubTask

// Subscription is a live query handle. Unsubscribe is idempotent.
type Subscription = live.Subscription

// TasksHandler receives full task snapshots, newest first.
type TasksHandler = live.TasksHandler

// SubTasksHandler receives full subtask snapshots, oldest first.
type SubTasksHandler = live.SubTasksHandler
