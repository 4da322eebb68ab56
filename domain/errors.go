package domain

import "fmt"

// StoreWriteError wraps a failed insert or partial update. Writes are never
// retried; the error surfaces to the mutation caller as-is.
type StoreWriteError struct {
	Op  string
	ID  string
	Err error
}

func (e *StoreWriteError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("store write %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store write %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// StoreWatchError wraps a failed subscription registration. A watch that
// fails after registration terminates its projection's updates; there is no
// automatic resubscription.
type StoreWatchError struct {
	View string
	Err  error
}

func (e *StoreWatchError) Error() string {
	return fmt.Sprintf("store watch %s: %v", e.View, e.Err)
}

func (e *StoreWatchError) Unwrap() error { return e.Err }
