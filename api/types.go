package api

import (
	"context"

	"todo-stream/domain"
)

// Engine exposes the live projections consumed by handlers.
type Engine interface {
	Active() []domain.Task
	Deleted() []domain.Task
	Loading() bool
	Subscribe() chan struct{}
	Unsubscribe(chan struct{})
}

// Gateway abstracts the mutation operations for handlers.
type Gateway interface {
	Create(ctx context.Context, text, deadline string, priority int) error
	ToggleStatus(ctx context.Context, t domain.Task) error
	SetPriority(ctx context.Context, t domain.Task, priority int) error
	SoftDelete(ctx context.Context, t domain.Task) error
	Restore(ctx context.Context, t domain.Task) error
}

// Authenticator is implemented by types able to extract user IDs from
// Authorization headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
