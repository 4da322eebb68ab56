package domain

import "time"

// Task status values. The model is a two-valued toggle, not a general
// status enum.
const (
	StatusToDo = "To Do"
	StatusDone = "Done"
)

// Task represents a single todo item as presented to clients.
type Task struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"createdAt"`
	Deadline  *time.Time `json:"deadline"`
	Status    string     `json:"status"`
	Priority  int        `json:"priority"`
	Deleted   bool       `json:"deleted,omitempty"`
}
