// ABOUTME: Backend interface and data types for taskdb persistence
// ABOUTME: Defines Task, SubTask structs and the transactional Backend contract

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when caller-supplied input violates a field constraint
var ErrValidation = errors.New("validation failed")

// ErrMigration is returned when a schema migration step fails
var ErrMigration = errors.New("migration failed")

// ErrTransaction is returned when the underlying storage transaction failed to commit
var ErrTransaction = errors.New("transaction failed")

// Task represents a top-level task. ID and CreatedAt are assigned at
// creation and never change afterwards.
type Task struct {
	ID        string
	Text      string
	Completed bool
	CreatedAt time.Time
}

// SubTask represents a child task owned by exactly one Task. The owning
// relationship is the ParentTaskID back-reference; a Task never holds a
// live collection of its subtasks in memory.
type SubTask struct {
	ID           string
	ParentTaskID string
	Text         string
	Completed    bool
	CreatedAt    time.Time
}

// Change describes which result sets a committed mutation may have
// affected. The live query engine uses it to decide which subscriptions
// to re-evaluate.
type Change struct {
	Tasks       bool
	SubTasks    bool
	ParentTasks []string // parent task IDs whose subtask lists changed; empty with SubTasks=true means all
}

// Touches reports whether the change can affect the subtask list for the
// given parent. An empty parent means "all subtasks".
func (c Change) Touches(parentTaskID string) bool {
	if !c.SubTasks {
		return false
	}
	if parentTaskID == "" || len(c.ParentTasks) == 0 {
		return true
	}
	for _, id := range c.ParentTasks {
		if id == parentTaskID {
			return true
		}
	}
	return false
}

// Tx is the write surface of a single storage transaction. All mutations
// performed through a Tx commit atomically or not at all.
type Tx interface {
	GetTask(id string) (*Task, error)
	InsertTask(task *Task) error
	UpdateTask(task *Task) error
	DeleteTask(id string) error

	GetSubTask(id string) (*SubTask, error)
	InsertSubTask(sub *SubTask) error
	UpdateSubTask(sub *SubTask) error
	DeleteSubTask(id string) error

	// ListSubTasks returns the subtasks of the given parent in createdAt
	// ascending order, so a transaction can copy or cascade over them.
	ListSubTasks(parentTaskID string) ([]*SubTask, error)

	// DeleteSubTasksOf removes every subtask of the given parent and
	// returns how many were removed.
	DeleteSubTasksOf(parentTaskID string) (int, error)
}

// Backend is the durable store underneath the entity store and the live
// query engine. Reads reflect the latest committed state. Update runs fn
// inside a single transaction; if fn returns an error the transaction is
// rolled back and no partial write is ever visible. The backend serializes
// transactions against each other (single logical writer).
type Backend interface {
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context) ([]*Task, error)

	GetSubTask(ctx context.Context, id string) (*SubTask, error)
	ListSubTasks(ctx context.Context, parentTaskID string) ([]*SubTask, error)

	// CountTasks returns how many tasks are completed and how many are not.
	CountTasks(ctx context.Context) (completed, active int, err error)
	// CountSubTasks returns the number of subtasks under the given parent.
	CountSubTasks(ctx context.Context, parentTaskID string) (int, error)

	Update(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the backend. Only the
	// database lifecycle owner may call it.
	Close() error
}
