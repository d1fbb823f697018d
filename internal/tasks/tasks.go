// ABOUTME: Entity store enforcing task/subtask business rules over a storage backend
// ABOUTME: The only component allowed to mutate durable records; notifies live queries after commit

package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/taskdb/internal/store"
)

// defaultDuplicateSuffix is appended to a duplicated task's text so the
// copy is distinguishable in listings.
const defaultDuplicateSuffix = " (copy)"

// Notifier receives a Change after every committed mutation. The live
// query engine implements it; a nil notifier disables notifications.
type Notifier interface {
	Notify(ctx context.Context, change store.Change)
}

// Options tunes entity store behavior.
type Options struct {
	// DuplicateSuffix is appended to the text of duplicated tasks.
	// Empty means the default " (copy)".
	DuplicateSuffix string

	// DuplicateKeepCompleted preserves the completed state of the source
	// task and its subtasks when duplicating. The default is fresh,
	// incomplete copies.
	DuplicateKeepCompleted bool
}

// Store implements CRUD and cascade-delete rules for the Task/SubTask
// entity graph. It is the sole writer of durable records.
type Store struct {
	backend  store.Backend
	notifier Notifier
	logger   *slog.Logger
	opts     Options
}

// New creates an entity store over the given backend. notifier may be nil.
func New(backend store.Backend, notifier Notifier, logger *slog.Logger, opts Options) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DuplicateSuffix == "" {
		opts.DuplicateSuffix = defaultDuplicateSuffix
	}
	return &Store{
		backend:  backend,
		notifier: notifier,
		logger:   logger.With("component", "tasks"),
		opts:     opts,
	}
}

// GetTask retrieves a single task.
func (s *Store) GetTask(ctx context.Context, id string) (*store.Task, error) {
	return s.backend.GetTask(ctx, id)
}

// ListTasks retrieves all tasks, newest first.
func (s *Store) ListTasks(ctx context.Context) ([]*store.Task, error) {
	return s.backend.ListTasks(ctx)
}

// ListSubTasks retrieves subtasks oldest first. Empty parent means all.
func (s *Store) ListSubTasks(ctx context.Context, parentTaskID string) ([]*store.SubTask, error) {
	return s.backend.ListSubTasks(ctx, parentTaskID)
}

// TaskCounts returns how many tasks are completed and how many are not.
func (s *Store) TaskCounts(ctx context.Context) (completed, active int, err error) {
	return s.backend.CountTasks(ctx)
}

// SubTaskCount returns the number of subtasks under the given parent.
func (s *Store) SubTaskCount(ctx context.Context, parentTaskID string) (int, error) {
	return s.backend.CountSubTasks(ctx, parentTaskID)
}

// CreateTask creates a new task with a fresh id and createdAt.
// Returns ErrValidation if text is empty after trimming.
func (s *Store) CreateTask(ctx context.Context, text string) (*store.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("task text is empty: %w", store.ErrValidation)
	}

	task := &store.Task{
		ID:        uuid.New().String(),
		Text:      text,
		Completed: false,
		CreatedAt: time.Now().UTC(),
	}

	err := s.backend.Update(ctx, func(tx store.Tx) error {
		return tx.InsertTask(task)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("created task", "id", task.ID)
	s.notify(ctx, store.Change{Tasks: true})
	return task, nil
}

// UpdateTaskText updates the text of an existing task. The task's id,
// completed state and createdAt are left alone.
func (s *Store) UpdateTaskText(ctx context.Context, id, text string) (*store.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("task text is empty: %w", store.ErrValidation)
	}

	var updated *store.Task
	err := s.backend.Update(ctx, func(tx store.Tx) error {
		task, err := tx.GetTask(id)
		if err != nil {
			return err
		}
		task.Text = text
		if err := tx.UpdateTask(task); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("updated task text", "id", id)
	s.notify(ctx, store.Change{Tasks: true})
	return updated, nil
}

// ToggleTaskCompleted flips the completed flag of a task.
func (s *Store) ToggleTaskCompleted(ctx context.Context, id string) (*store.Task, error) {
	return s.setTaskCompleted(ctx, id, nil)
}

// SetTaskCompleted sets the completed flag of a task to value.
func (s *Store) SetTaskCompleted(ctx context.Context, id string, value bool) (*store.Task, error) {
	return s.setTaskCompleted(ctx, id, &value)
}

// setTaskCompleted reads and rewrites the flag inside one transaction so a
// toggle racing another toggle never loses an update. value nil means flip.
func (s *Store) setTaskCompleted(ctx context.Context, id string, value *bool) (*store.Task, error) {
	var updated *store.Task
	err := s.backend.Update(ctx, func(tx store.Tx) error {
		task, err := tx.GetTask(id)
		if err != nil {
			return err
		}
		if value != nil {
			task.Completed = *value
		} else {
			task.Completed = !task.Completed
		}
		if err := tx.UpdateTask(task); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("set task completed", "id", id, "completed", updated.Completed)
	s.notify(ctx, store.Change{Tasks: true})
	return updated, nil
}

// DeleteTask deletes a task and every subtask that references it, in one
// transaction. Either the whole tree is removed or nothing is.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	var removed int
	err := s.backend.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.GetTask(id); err != nil {
			return err
		}
		n, err := tx.DeleteSubTasksOf(id)
		if err != nil {
			return err
		}
		removed = n
		return tx.DeleteTask(id)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("deleted task", "id", id, "subtasks_removed", removed)
	s.notify(ctx, store.Change{Tasks: true, SubTasks: true, ParentTasks: []string{id}})
	return nil
}

// DuplicateTask creates a copy of a task and all its subtasks under a new
// id. Copies get fresh ids and createdAt values; the subtask order of the
// source is preserved. Completed state resets unless configured otherwise.
func (s *Store) DuplicateTask(ctx context.Context, id string) (*store.Task, error) {
	var copied *store.Task
	err := s.backend.Update(ctx, func(tx store.Tx) error {
		source, err := tx.GetTask(id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		copied = &store.Task{
			ID:        uuid.New().String(),
			Text:      source.Text + s.opts.DuplicateSuffix,
			Completed: s.opts.DuplicateKeepCompleted && source.Completed,
			CreatedAt: now,
		}
		if err := tx.InsertTask(copied); err != nil {
			return err
		}

		subs, err := tx.ListSubTasks(id)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			// Insertion order breaks the shared createdAt tie, so the
			// copies keep the source's relative order.
			dup := &store.SubTask{
				ID:           uuid.New().String(),
				ParentTaskID: copied.ID,
				Text:         sub.Text,
				Completed:    s.opts.DuplicateKeepCompleted && sub.Completed,
				CreatedAt:    now,
			}
			if err := tx.InsertSubTask(dup); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("duplicated task", "source_id", id, "copy_id", copied.ID)
	s.notify(ctx, store.Change{Tasks: true, SubTasks: true, ParentTasks: []string{copied.ID}})
	return copied, nil
}

// CreateSubTask creates a new subtask under an existing parent task.
// Returns ErrNotFound if the parent does not exist and ErrValidation if
// text is empty after trimming.
func (s *Store) CreateSubTask(ctx context.Context, parentTaskID, text string) (*store.SubTask, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("subtask text is empty: %w", store.ErrValidation)
	}

	sub := &store.SubTask{
		ID:           uuid.New().String(),
		ParentTaskID: parentTaskID,
		Text:         text,
		Completed:    false,
		CreatedAt:    time.Now().UTC(),
	}

	err := s.backend.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.GetTask(parentTaskID); err != nil {
			return fmt.Errorf("parent task %s: %w", parentTaskID, err)
		}
		return tx.InsertSubTask(sub)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("created subtask", "id", sub.ID, "parent_id", parentTaskID)
	s.notify(ctx, store.Change{SubTasks: true, ParentTasks: []string{parentTaskID}})
	return sub, nil
}

// UpdateSubTaskText updates the text of an existing subtask.
func (s *Store) UpdateSubTaskText(ctx context.Context, id, text string) (*store.SubTask, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("subtask text is empty: %w", store.ErrValidation)
	}

	var updated *store.SubTask
	err := s.backend.Update(ctx, func(tx store.Tx) error {
		sub, err := tx.GetSubTask(id)
		if err != nil {
			return err
		}
		sub.Text = text
		if err := tx.UpdateSubTask(sub); err != nil {
			return err
		}
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("updated subtask text", "id", id)
	s.notify(ctx, store.Change{SubTasks: true, ParentTasks: []string{updated.ParentTaskID}})
	return updated, nil
}

// ToggleSubTaskCompleted flips the completed flag of a subtask.
func (s *Store) ToggleSubTaskCompleted(ctx context.Context, id string) (*store.SubTask, error) {
	return s.setSubTaskCompleted(ctx, id, nil)
}

// SetSubTaskCompleted sets the completed flag of a subtask to value.
func (s *Store) SetSubTaskCompleted(ctx context.Context, id string, value bool) (*store.SubTask, error) {
	return s.setSubTaskCompleted(ctx, id, &value)
}

func (s *Store) setSubTaskCompleted(ctx context.Context, id string, value *bool) (*store.SubTask, error) {
	var updated *store.SubTask
	err := s.backend.Update(ctx, func(tx store.Tx) error {
		sub, err := tx.GetSubTask(id)
		if err != nil {
			return err
		}
		if value != nil {
			sub.Completed = *value
		} else {
			sub.Completed = !sub.Completed
		}
		if err := tx.UpdateSubTask(sub); err != nil {
			return err
		}
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("set subtask completed", "id", id, "completed", updated.Completed)
	s.notify(ctx, store.Change{SubTasks: true, ParentTasks: []string{updated.ParentTaskID}})
	return updated, nil
}

// DeleteSubTask deletes a single subtask. Never cascades further.
func (s *Store) DeleteSubTask(ctx context.Context, id string) error {
	var parentID string
	err := s.backend.Update(ctx, func(tx store.Tx) error {
		sub, err := tx.GetSubTask(id)
		if err != nil {
			return err
		}
		parentID = sub.ParentTaskID
		return tx.DeleteSubTask(id)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("deleted subtask", "id", id, "parent_id", parentID)
	s.notify(ctx, store.Change{SubTasks: true, ParentTasks: []string{parentID}})
	return nil
}

func (s *Store) notify(ctx context.Context, change store.Change) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, change)
}
