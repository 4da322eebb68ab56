// Package gateway translates user intents into minimal partial-update
// requests against the document store. It never mutates local state; the
// sync engine reflects every change when the store's next notification
// arrives.
package gateway

import (
	"context"
	"strings"
	"time"

	"todo-stream/date"
	"todo-stream/domain"
	"todo-stream/storage"
)

// Store is the write side of the document store consumed by the gateway.
type Store interface {
	Insert(ctx context.Context, fields storage.Fields) (string, error)
	UpdatePartial(ctx context.Context, id string, fields storage.Fields) error
}

// Gateway issues writes on behalf of the UI.
type Gateway struct {
	store Store
	now   func() time.Time
}

// New creates a Gateway over the given store.
func New(store Store) *Gateway {
	return &Gateway{store: store, now: time.Now}
}

// Create inserts a new task. Text that is empty after trimming is a silent
// no-op, not an error. A non-empty deadline must match the
// day/month/2-digit-year contract of date.ParseDeadline. Priority is
// stored as given; no range is enforced.
func (g *Gateway) Create(ctx context.Context, text, deadline string, priority int) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	fields := storage.Fields{
		storage.FieldText:      trimmed,
		storage.FieldCreatedAt: g.now().UTC(),
		storage.FieldStatus:    domain.StatusToDo,
		storage.FieldPriority:  priority,
		storage.FieldDeleted:   false,
	}
	if deadline != "" {
		d, err := date.ParseDeadline(deadline)
		if err != nil {
			return err
		}
		fields[storage.FieldDeadline] = d
	}
	if _, err := g.store.Insert(ctx, fields); err != nil {
		return &domain.StoreWriteError{Op: "insert", Err: err}
	}
	return nil
}

// ToggleStatus flips a task between "To Do" and "Done", writing only the
// status field.
func (g *Gateway) ToggleStatus(ctx context.Context, t domain.Task) error {
	next := domain.StatusDone
	if t.Status == domain.StatusDone {
		next = domain.StatusToDo
	}
	return g.update(ctx, t.ID, storage.Fields{storage.FieldStatus: next})
}

// SetPriority writes only the priority field. Any integer is accepted.
func (g *Gateway) SetPriority(ctx context.Context, t domain.Task, priority int) error {
	return g.update(ctx, t.ID, storage.Fields{storage.FieldPriority: priority})
}

// SoftDelete moves a task to the trash view by flagging it deleted.
func (g *Gateway) SoftDelete(ctx context.Context, t domain.Task) error {
	return g.update(ctx, t.ID, storage.Fields{storage.FieldDeleted: true})
}

// Restore moves a task back to the active view.
func (g *Gateway) Restore(ctx context.Context, t domain.Task) error {
	return g.update(ctx, t.ID, storage.Fields{storage.FieldDeleted: false})
}

func (g *Gateway) update(ctx context.Context, id string, fields storage.Fields) error {
	if err := g.store.UpdatePartial(ctx, id, fields); err != nil {
		return &domain.StoreWriteError{Op: "update", ID: id, Err: err}
	}
	return nil
}
