// ABOUTME: Live query engine pushing full result snapshots to subscribers
// ABOUTME: Re-evaluates registered queries after each committed mutation

package live

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/2389/taskdb/internal/store"
)

// errorBufferSize is the buffer of each subscription's error channel.
// Re-evaluation failures beyond the buffer are dropped after logging.
const errorBufferSize = 8

// TasksHandler receives full task snapshots, newest first.
type TasksHandler func(tasks []*store.Task)

// SubTasksHandler receives full subtask snapshots, oldest first.
type SubTasksHandler func(subs []*store.SubTask)

// Engine maintains live queries over the storage backend. Each committed
// mutation is announced through Notify; the engine re-runs every affected
// query and delivers the complete, sorted result to its subscriber.
// Snapshots are full replacements, never deltas. Delivery is synchronous:
// all matching subscriptions are notified before Notify returns, so a
// mutator's return implies its subscribers have been told.
type Engine struct {
	mu      sync.RWMutex
	backend store.Backend
	logger  *slog.Logger
	subs    map[string]*Subscription
	clock   atomic.Uint64
}

// NewEngine creates an engine reading from the given backend. Pass nil
// logger for default.
func NewEngine(backend store.Backend, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		backend: backend,
		logger:  logger.With("component", "live"),
		subs:    make(map[string]*Subscription),
	}
}

// Subscription is the handle returned by the subscribe calls. Unsubscribe
// is idempotent and safe to call from within the subscription's own
// callback.
type Subscription struct {
	id           string
	engine       *Engine
	parentTaskID string // subtask subscriptions only; empty means all subtasks
	onTasks      TasksHandler
	onSubTasks   SubTasksHandler

	closed atomic.Bool

	// deliverMu serializes deliveries so a subscriber never observes a
	// snapshot older than one it has already received.
	deliverMu sync.Mutex
	lastSeq   uint64

	errs chan error
}

// SubscribeTasks registers a live query over all tasks, newest first, and
// delivers the initial snapshot before returning.
func (e *Engine) SubscribeTasks(ctx context.Context, fn TasksHandler) (*Subscription, error) {
	sub := &Subscription{
		id:      uuid.New().String(),
		engine:  e,
		onTasks: fn,
		errs:    make(chan error, errorBufferSize),
	}

	e.mu.Lock()
	e.subs[sub.id] = sub
	e.mu.Unlock()

	if err := e.evaluate(ctx, sub, e.clock.Add(1)); err != nil {
		e.remove(sub.id)
		return nil, err
	}

	e.logger.Debug("task subscription added", "sub_id", sub.id)
	return sub, nil
}

// SubscribeSubTasks registers a live query over subtasks, oldest first.
// An empty parentTaskID observes every subtask; otherwise results are
// pre-filtered to the given parent. The initial snapshot is delivered
// before returning.
func (e *Engine) SubscribeSubTasks(ctx context.Context, parentTaskID string, fn SubTasksHandler) (*Subscription, error) {
	sub := &Subscription{
		id:           uuid.New().String(),
		engine:       e,
		parentTaskID: parentTaskID,
		onSubTasks:   fn,
		errs:         make(chan error, errorBufferSize),
	}

	e.mu.Lock()
	e.subs[sub.id] = sub
	e.mu.Unlock()

	if err := e.evaluate(ctx, sub, e.clock.Add(1)); err != nil {
		e.remove(sub.id)
		return nil, err
	}

	e.logger.Debug("subtask subscription added", "sub_id", sub.id, "parent_id", parentTaskID)
	return sub, nil
}

// Notify re-evaluates every subscription the change may affect. Called by
// the entity store after each commit, never inside a transaction.
func (e *Engine) Notify(ctx context.Context, change store.Change) {
	seq := e.clock.Add(1)

	e.mu.RLock()
	targets := make([]*Subscription, 0, len(e.subs))
	for _, sub := range e.subs {
		if sub.matches(change) {
			targets = append(targets, sub)
		}
	}
	e.mu.RUnlock()

	for _, sub := range targets {
		if err := e.evaluate(ctx, sub, seq); err != nil {
			// Keep the last good snapshot, report on the error channel,
			// leave the subscription alive.
			e.logger.Warn("live query re-evaluation failed", "sub_id", sub.id, "error", err)
			select {
			case sub.errs <- err:
			default:
			}
		}
	}
}

// evaluate runs the subscription's query and delivers the result unless a
// fresher snapshot has already been delivered or the subscription closed.
func (e *Engine) evaluate(ctx context.Context, sub *Subscription, seq uint64) error {
	switch {
	case sub.onTasks != nil:
		tasks, err := e.backend.ListTasks(ctx)
		if err != nil {
			return err
		}
		sub.deliverTasks(seq, tasks)
	case sub.onSubTasks != nil:
		subs, err := e.backend.ListSubTasks(ctx, sub.parentTaskID)
		if err != nil {
			return err
		}
		sub.deliverSubTasks(seq, subs)
	}
	return nil
}

func (e *Engine) remove(id string) {
	e.mu.Lock()
	delete(e.subs, id)
	e.mu.Unlock()
}

// Close unsubscribes everything. Used on database shutdown.
func (e *Engine) Close() {
	e.mu.Lock()
	subs := make([]*Subscription, 0, len(e.subs))
	for _, sub := range e.subs {
		subs = append(subs, sub)
	}
	e.subs = make(map[string]*Subscription)
	e.mu.Unlock()

	for _, sub := range subs {
		sub.closed.Store(true)
	}
	e.logger.Debug("live engine closed")
}

func (s *Subscription) matches(change store.Change) bool {
	if s.onTasks != nil {
		return change.Tasks
	}
	return change.Touches(s.parentTaskID)
}

func (s *Subscription) deliverTasks(seq uint64, tasks []*store.Task) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.closed.Load() || seq <= s.lastSeq {
		return
	}
	s.lastSeq = seq
	s.onTasks(tasks)
}

func (s *Subscription) deliverSubTasks(seq uint64, subs []*store.SubTask) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.closed.Load() || seq <= s.lastSeq {
		return
	}
	s.lastSeq = seq
	s.onSubTasks(subs)
}

// Errors exposes re-evaluation failures. The last good snapshot is kept
// when a failure occurs; the subscription stays live.
func (s *Subscription) Errors() <-chan error {
	return s.errs
}

// Unsubscribe stops delivery for this handle. Idempotent; once it returns,
// no further snapshot is delivered. It never blocks on another
// subscriber's in-flight delivery.
func (s *Subscription) Unsubscribe() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.engine.remove(s.id)
	s.engine.logger.Debug("subscription removed", "sub_id", s.id)
}
