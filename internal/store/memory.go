// ABOUTME: In-memory Backend implementation for tests
// ABOUTME: Copy-on-write transactions over plain maps, no SQLite required

package store

import (
	"context"
	"sort"
	"sync"
)

// memTask pairs a record with its insertion sequence so listings can break
// created_at ties by insertion order, matching the SQLite rowid tie-break.
type memTask struct {
	Task
	seq uint64
}

type memSubTask struct {
	SubTask
	seq uint64
}

// MemoryBackend is an in-memory Backend implementation for testing.
type MemoryBackend struct {
	mu       sync.RWMutex
	tasks    map[string]*memTask
	subTasks map[string]*memSubTask
	seq      uint64
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		tasks:    make(map[string]*memTask),
		subTasks: make(map[string]*memSubTask),
	}
}

// GetTask retrieves a task by ID.
func (m *MemoryBackend) GetTask(ctx context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := t.Task
	return &result, nil
}

// ListTasks retrieves all tasks, newest first.
func (m *MemoryBackend) ListTasks(ctx context.Context) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ordered := make([]*memTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].seq > ordered[j].seq
	})

	tasks := make([]*Task, 0, len(ordered))
	for _, t := range ordered {
		result := t.Task
		tasks = append(tasks, &result)
	}
	return tasks, nil
}

// GetSubTask retrieves a subtask by ID.
func (m *MemoryBackend) GetSubTask(ctx context.Context, id string) (*SubTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subTasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := s.SubTask
	return &result, nil
}

// ListSubTasks retrieves subtasks oldest first. An empty parentTaskID
// returns every subtask.
func (m *MemoryBackend) ListSubTasks(ctx context.Context, parentTaskID string) ([]*SubTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedSubTasks(m.subTasks, parentTaskID), nil
}

func sortedSubTasks(subTasks map[string]*memSubTask, parentTaskID string) []*SubTask {
	ordered := make([]*memSubTask, 0, len(subTasks))
	for _, s := range subTasks {
		if parentTaskID != "" && s.ParentTaskID != parentTaskID {
			continue
		}
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].seq < ordered[j].seq
	})

	subs := make([]*SubTask, 0, len(ordered))
	for _, s := range ordered {
		result := s.SubTask
		subs = append(subs, &result)
	}
	return subs
}

// CountTasks returns how many tasks are completed and how many are not.
func (m *MemoryBackend) CountTasks(ctx context.Context) (completed, active int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.tasks {
		if t.Completed {
			completed++
		} else {
			active++
		}
	}
	return completed, active, nil
}

// CountSubTasks returns the number of subtasks under the given parent.
func (m *MemoryBackend) CountSubTasks(ctx context.Context, parentTaskID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.subTasks {
		if s.ParentTaskID == parentTaskID {
			n++
		}
	}
	return n, nil
}

// Update runs fn against a private copy of the state and swaps the copy in
// only if fn succeeds, so a failed transaction leaves nothing behind.
func (m *MemoryBackend) Update(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		tasks:    make(map[string]*memTask, len(m.tasks)),
		subTasks: make(map[string]*memSubTask, len(m.subTasks)),
		seq:      m.seq,
	}
	for id, t := range m.tasks {
		copied := *t
		tx.tasks[id] = &copied
	}
	for id, s := range m.subTasks {
		copied := *s
		tx.subTasks[id] = &copied
	}

	if err := fn(tx); err != nil {
		return err
	}

	m.tasks = tx.tasks
	m.subTasks = tx.subTasks
	m.seq = tx.seq
	return nil
}

// Close is a no-op for the memory backend.
func (m *MemoryBackend) Close() error {
	return nil
}

// memoryTx implements Tx over the transaction's private copy.
type memoryTx struct {
	tasks    map[string]*memTask
	subTasks map[string]*memSubTask
	seq      uint64
}

func (t *memoryTx) GetTask(id string) (*Task, error) {
	task, ok := t.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := task.Task
	return &result, nil
}

func (t *memoryTx) InsertTask(task *Task) error {
	t.seq++
	t.tasks[task.ID] = &memTask{Task: *task, seq: t.seq}
	return nil
}

func (t *memoryTx) UpdateTask(task *Task) error {
	existing, ok := t.tasks[task.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Text = task.Text
	existing.Completed = task.Completed
	return nil
}

func (t *memoryTx) DeleteTask(id string) error {
	if _, ok := t.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(t.tasks, id)
	return nil
}

func (t *memoryTx) GetSubTask(id string) (*SubTask, error) {
	sub, ok := t.subTasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := sub.SubTask
	return &result, nil
}

func (t *memoryTx) InsertSubTask(sub *SubTask) error {
	if _, ok := t.tasks[sub.ParentTaskID]; !ok {
		return ErrNotFound
	}
	t.seq++
	t.subTasks[sub.ID] = &memSubTask{SubTask: *sub, seq: t.seq}
	return nil
}

func (t *memoryTx) UpdateSubTask(sub *SubTask) error {
	existing, ok := t.subTasks[sub.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Text = sub.Text
	existing.Completed = sub.Completed
	return nil
}

func (t *memoryTx) DeleteSubTask(id string) error {
	if _, ok := t.subTasks[id]; !ok {
		return ErrNotFound
	}
	delete(t.subTasks, id)
	return nil
}

func (t *memoryTx) ListSubTasks(parentTaskID string) ([]*SubTask, error) {
	return sortedSubTasks(t.subTasks, parentTaskID), nil
}

func (t *memoryTx) DeleteSubTasksOf(parentTaskID string) (int, error) {
	n := 0
	for id, s := range t.subTasks {
		if s.ParentTaskID == parentTaskID {
			delete(t.subTasks, id)
			n++
		}
	}
	return n, nil
}

// Ensure MemoryBackend implements Backend
var _ Backend = (*MemoryBackend)(nil)
