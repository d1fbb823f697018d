package taskdb

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Database: DatabaseConfig{Path: filepath.Join(t.TempDir(), "todos.db")},
	}
}

func openDatabase(t *testing.T) *Database {
	t.Helper()
	db := New(testConfig(t), testLogger())
	require.NoError(t, db.Initialize(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDatabase_OperationsBeforeInitialize(t *testing.T) {
	db := New(testConfig(t), testLogger())
	ctx := context.Background()

	_, err := db.CreateTask(ctx, "too early")
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = db.ListTasks(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = db.SubscribeTasks(ctx, func([]*Task) {})
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = db.DeleteTask(ctx, "any")
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.NoError(t, db.Close(), "closing an uninitialized database is a no-op")
}

func TestDatabase_Initialize_Idempotent(t *testing.T) {
	db := New(testConfig(t), testLogger())
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.Initialize(ctx))

	task, err := db.CreateTask(ctx, "survives re-init")
	require.NoError(t, err)

	require.NoError(t, db.Initialize(ctx))

	got, err := db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "survives re-init", got.Text, "second Initialize must not reopen the store")
}

func TestDatabase_Initialize_Concurrent(t *testing.T) {
	db := New(testConfig(t), testLogger())
	defer db.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.Initialize(ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	_, err := db.ListTasks(ctx)
	assert.NoError(t, err)
}

func TestDatabase_Initialize_RetryAfterFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	cfg := &Config{
		// The parent "directory" is a regular file, so opening must fail.
		Database: DatabaseConfig{Path: filepath.Join(blocker, "sub", "todos.db")},
	}
	db := New(cfg, testLogger())
	defer db.Close()
	ctx := context.Background()

	require.Error(t, db.Initialize(ctx))
	_, err := db.ListTasks(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized, "failed init leaves the database uninitialized")

	cfg.Database.Path = filepath.Join(dir, "todos.db")
	require.NoError(t, db.Initialize(ctx), "a later attempt starts over")
	_, err = db.ListTasks(ctx)
	assert.NoError(t, err)
}

func TestDatabase_TaskLifecycle(t *testing.T) {
	db := openDatabase(t)
	ctx := context.Background()

	task, err := db.CreateTask(ctx, "write report")
	require.NoError(t, err)

	task, err = db.UpdateTaskText(ctx, task.ID, "write quarterly report")
	require.NoError(t, err)
	assert.Equal(t, "write quarterly report", task.Text)

	task, err = db.ToggleTaskCompleted(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, task.Completed)

	task, err = db.SetTaskCompleted(ctx, task.ID, false)
	require.NoError(t, err)
	assert.False(t, task.Completed)

	require.NoError(t, db.DeleteTask(ctx, task.ID))
	_, err = db.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDatabase_ValidationErrorsSurface(t *testing.T) {
	db := openDatabase(t)
	ctx := context.Background()

	_, err := db.CreateTask(ctx, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = db.CreateSubTask(ctx, "no-parent", "text")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDatabase_LiveTasksFollowMutations(t *testing.T) {
	db := openDatabase(t)
	ctx := context.Background()

	var mu sync.Mutex
	var snapshots [][]*Task
	sub, err := db.SubscribeTasks(ctx, func(tasks []*Task) {
		mu.Lock()
		defer mu.Unlock()
		snapshots = append(snapshots, tasks)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	last := func() []*Task {
		mu.Lock()
		defer mu.Unlock()
		return snapshots[len(snapshots)-1]
	}

	require.Len(t, last(), 0, "initial snapshot of an empty store")

	a, err := db.CreateTask(ctx, "first")
	require.NoError(t, err)
	require.Len(t, last(), 1)

	b, err := db.CreateTask(ctx, "second")
	require.NoError(t, err)
	snapshot := last()
	require.Len(t, snapshot, 2)
	assert.Equal(t, b.ID, snapshot[0].ID, "newest first")
	assert.Equal(t, a.ID, snapshot[1].ID)

	_, err = db.ToggleTaskCompleted(ctx, a.ID)
	require.NoError(t, err)
	snapshot = last()
	require.Len(t, snapshot, 2)
	assert.True(t, snapshot[1].Completed)

	require.NoError(t, db.DeleteTask(ctx, b.ID))
	snapshot = last()
	require.Len(t, snapshot, 1)
	assert.Equal(t, a.ID, snapshot[0].ID)
}

func TestDatabase_LiveSubTasksScopedToParent(t *testing.T) {
	db := openDatabase(t)
	ctx := context.Background()

	parent, err := db.CreateTask(ctx, "parent")
	require.NoError(t, err)
	other, err := db.CreateTask(ctx, "other")
	require.NoError(t, err)

	var mu sync.Mutex
	var snapshots [][]*SubTask
	sub, err := db.SubscribeSubTasks(ctx, parent.ID, func(subs []*SubTask) {
		mu.Lock()
		defer mu.Unlock()
		snapshots = append(snapshots, subs)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshots)
	}

	require.Equal(t, 1, count())

	_, err = db.CreateSubTask(ctx, other.ID, "unrelated")
	require.NoError(t, err)
	assert.Equal(t, 1, count(), "changes under another parent stay invisible")

	s1, err := db.CreateSubTask(ctx, parent.ID, "step one")
	require.NoError(t, err)
	_, err = db.CreateSubTask(ctx, parent.ID, "step two")
	require.NoError(t, err)
	require.Equal(t, 3, count())

	mu.Lock()
	final := snapshots[len(snapshots)-1]
	mu.Unlock()
	require.Len(t, final, 2)
	assert.Equal(t, s1.ID, final[0].ID, "oldest first")
}

func TestDatabase_DeleteTaskNotifiesSubTaskSubscribers(t *testing.T) {
	db := openDatabase(t)
	ctx := context.Background()

	parent, err := db.CreateTask(ctx, "doomed")
	require.NoError(t, err)
	_, err = db.CreateSubTask(ctx, parent.ID, "child")
	require.NoError(t, err)

	var mu sync.Mutex
	var latest []*SubTask
	sub, err := db.SubscribeSubTasks(ctx, parent.ID, func(subs []*SubTask) {
		mu.Lock()
		defer mu.Unlock()
		latest = subs
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	mu.Lock()
	require.Len(t, latest, 1)
	mu.Unlock()

	require.NoError(t, db.DeleteTask(ctx, parent.ID))

	mu.Lock()
	assert.Empty(t, latest, "cascade delete empties the scoped live query")
	mu.Unlock()
}

func TestDatabase_DuplicateTask(t *testing.T) {
	db := openDatabase(t)
	ctx := context.Background()

	source, err := db.CreateTask(ctx, "groceries")
	require.NoError(t, err)
	_, err = db.CreateSubTask(ctx, source.ID, "milk")
	require.NoError(t, err)
	_, err = db.CreateSubTask(ctx, source.ID, "eggs")
	require.NoError(t, err)

	dup, err := db.DuplicateTask(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, "groceries (copy)", dup.Text)

	subs, err := db.ListSubTasks(ctx, dup.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "milk", subs[0].Text)
	assert.Equal(t, "eggs", subs[1].Text)
}

func TestDatabase_Counts(t *testing.T) {
	db := openDatabase(t)
	ctx := context.Background()

	a, err := db.CreateTask(ctx, "a")
	require.NoError(t, err)
	_, err = db.CreateTask(ctx, "b")
	require.NoError(t, err)
	_, err = db.SetTaskCompleted(ctx, a.ID, true)
	require.NoError(t, err)

	completed, active, err := db.TaskCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, active)

	_, err = db.CreateSubTask(ctx, a.ID, "s1")
	require.NoError(t, err)
	n, err := db.SubTaskCount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDatabase_PersistsAcrossReopen(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	db := New(cfg, testLogger())
	require.NoError(t, db.Initialize(ctx))
	task, err := db.CreateTask(ctx, "durable")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.ListTasks(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized, "closed database needs a fresh handle")

	reopened := New(cfg, testLogger())
	require.NoError(t, reopened.Initialize(ctx))
	defer reopened.Close()

	got, err := reopened.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable", got.Text)
}
