package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func collectSnapshots() (func([]Record), <-chan []Record) {
	out := make(chan []Record, 16)
	return func(records []Record) { out <- records }, out
}

func waitSnapshot(t *testing.T, ch <-chan []Record) []Record {
	t.Helper()
	select {
	case records := <-ch:
		return records
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
		return nil
	}
}

func TestWatchLoopDeliversInitialSnapshot(t *testing.T) {
	onSnapshot, snapshots := collectSnapshots()
	ticks := make(chan struct{})
	done := make(chan struct{})

	fetch := func(ctx context.Context) ([]Record, error) {
		return []Record{{ID: "t1"}}, nil
	}
	go watchLoop(context.Background(), fetch, ticks, onSnapshot, done)
	defer close(ticks)

	records := waitSnapshot(t, snapshots)
	if len(records) != 1 || records[0].ID != "t1" {
		t.Fatalf("unexpected snapshot: %+v", records)
	}
}

func TestWatchLoopRefetchesOnTick(t *testing.T) {
	onSnapshot, snapshots := collectSnapshots()
	ticks := make(chan struct{}, 1)
	done := make(chan struct{})

	var calls int
	fetch := func(ctx context.Context) ([]Record, error) {
		calls++
		return []Record{{ID: "t1"}, {ID: "t2"}}[:calls-1], nil
	}
	go watchLoop(context.Background(), fetch, ticks, onSnapshot, done)
	defer close(ticks)

	first := waitSnapshot(t, snapshots)
	if len(first) != 0 {
		t.Fatalf("unexpected initial snapshot: %+v", first)
	}
	ticks <- struct{}{}
	second := waitSnapshot(t, snapshots)
	if len(second) != 1 || second[0].ID != "t1" {
		t.Fatalf("unexpected snapshot after tick: %+v", second)
	}
}

func TestWatchLoopSkipsFailedFetch(t *testing.T) {
	onSnapshot, snapshots := collectSnapshots()
	ticks := make(chan struct{}, 1)
	done := make(chan struct{})

	var calls int
	fetch := func(ctx context.Context) ([]Record, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient")
		}
		return []Record{{ID: "after-error"}}, nil
	}
	go watchLoop(context.Background(), fetch, ticks, onSnapshot, done)
	defer close(ticks)

	ticks <- struct{}{}
	records := waitSnapshot(t, snapshots)
	if len(records) != 1 || records[0].ID != "after-error" {
		t.Fatalf("expected delivery to resume after failed fetch, got %+v", records)
	}
}

func TestWatchLoopTerminatesOnClosedTicks(t *testing.T) {
	onSnapshot, snapshots := collectSnapshots()
	ticks := make(chan struct{})
	done := make(chan struct{})

	fetch := func(ctx context.Context) ([]Record, error) { return nil, nil }
	go watchLoop(context.Background(), fetch, ticks, onSnapshot, done)

	waitSnapshot(t, snapshots)
	close(ticks)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not terminate on closed tick channel")
	}
}

func TestWatchLoopStopsOnContextCancel(t *testing.T) {
	onSnapshot, snapshots := collectSnapshots()
	ticks := make(chan struct{})
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	fetch := func(ctx context.Context) ([]Record, error) { return nil, nil }
	go watchLoop(ctx, fetch, ticks, onSnapshot, done)
	defer close(ticks)

	waitSnapshot(t, snapshots)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on context cancel")
	}
}
