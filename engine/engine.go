// Package engine maintains the live local projections of the todos
// collection: one sorted view per watched filter, always reflecting the
// most recent store snapshot.
package engine

import (
	"context"
	"sort"
	"sync"

	"todo-stream/domain"
	"todo-stream/storage"
)

// Store is the read side of the document store consumed by the engine.
type Store interface {
	Watch(ctx context.Context, f storage.Filter, onSnapshot func([]storage.Record)) (stop func(), err error)
}

// Engine holds the active and deleted projections. Each projection is
// owned exclusively by its own subscription callback; every incoming
// snapshot replaces the projection wholesale, never patches it.
type Engine struct {
	store Store

	mu      sync.RWMutex
	active  []domain.Task
	deleted []domain.Task
	loading bool
	stops   []func()
	started bool

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

// New creates an Engine over the given store. The engine never writes to
// the store.
func New(store Store) *Engine {
	return &Engine{
		store:   store,
		loading: true,
		subs:    make(map[chan struct{}]struct{}),
	}
}

// Start registers the two view subscriptions. The active and deleted views
// are watched independently with mutually exclusive filters, so the two
// projections may be transiently inconsistent with each other between
// notifications.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	stopActive, err := e.store.Watch(ctx, storage.Filter{Deleted: false}, e.applyActive)
	if err != nil {
		return &domain.StoreWatchError{View: "active", Err: err}
	}
	stopDeleted, err := e.store.Watch(ctx, storage.Filter{Deleted: true}, e.applyDeleted)
	if err != nil {
		stopActive()
		return &domain.StoreWatchError{View: "deleted", Err: err}
	}
	e.stops = []func(){stopActive, stopDeleted}
	e.started = true
	return nil
}

// Stop releases both subscriptions. After Stop returns no projection is
// updated again; Start may be called again for a fresh cycle.
func (e *Engine) Stop() {
	e.mu.Lock()
	stops := e.stops
	e.stops = nil
	e.started = false
	e.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}

// Active returns the current active-view projection, newest first.
func (e *Engine) Active() []domain.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.Task(nil), e.active...)
}

// Deleted returns the current deleted-view projection, newest first.
func (e *Engine) Deleted() []domain.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.Task(nil), e.deleted...)
}

// Loading reports whether the initial active-view snapshot is still
// pending. It starts true and flips false permanently on the first
// active-view notification.
func (e *Engine) Loading() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loading
}

// Subscribe returns a channel that receives a signal after every
// projection update. Signals coalesce while the subscriber is busy.
func (e *Engine) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	e.subMu.Lock()
	e.subs[ch] = struct{}{}
	e.subMu.Unlock()
	return ch
}

// Unsubscribe releases a channel obtained from Subscribe.
func (e *Engine) Unsubscribe(ch chan struct{}) {
	e.subMu.Lock()
	delete(e.subs, ch)
	e.subMu.Unlock()
}

func (e *Engine) applyActive(records []storage.Record) {
	tasks := project(records)
	e.mu.Lock()
	e.active = tasks
	e.loading = false
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) applyDeleted(records []storage.Record) {
	tasks := project(records)
	e.mu.Lock()
	e.deleted = tasks
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) notify() {
	e.subMu.Lock()
	for ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	e.subMu.Unlock()
}

// project normalizes a raw snapshot and sorts it newest first. The store
// delivers complete result sets, so the whole snapshot is rebuilt and
// re-sorted on every notification rather than diffed.
func project(records []storage.Record) []domain.Task {
	tasks := make([]domain.Task, 0, len(records))
	for _, r := range records {
		tasks = append(tasks, Normalize(r))
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks
}
