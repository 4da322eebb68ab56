package engine

import (
	"todo-stream/date"
	"todo-stream/domain"
	"todo-stream/storage"
)

// Normalize converts a raw stored record into a presentable task. Records
// written before a field existed come back without it, so every read fills
// the documented defaults: missing status is "To Do", missing priority is
// 0, missing deleted is false. A present deadline is reduced to a plain
// date; an absent one stays nil.
func Normalize(r storage.Record) domain.Task {
	t := domain.Task{
		ID:        r.ID,
		Text:      r.Text,
		CreatedAt: r.CreatedAt,
		Status:    domain.StatusToDo,
	}
	if r.Status != nil && *r.Status != "" {
		t.Status = *r.Status
	}
	if r.Priority != nil {
		t.Priority = *r.Priority
	}
	if r.Deleted != nil {
		t.Deleted = *r.Deleted
	}
	if r.Deadline != nil {
		d := date.Truncate(*r.Deadline)
		t.Deadline = &d
	}
	return t
}
