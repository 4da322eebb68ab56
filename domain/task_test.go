package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTaskMarshalNullDeadline(t *testing.T) {
	task := Task{ID: "t1", Text: "Buy milk", CreatedAt: time.Unix(1700000000, 0).UTC(), Status: StatusToDo}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	if !strings.Contains(string(payload), "\"deadline\":null") {
		t.Fatalf("expected absent deadline to serialize as null, got %s", payload)
	}
	if !strings.Contains(string(payload), "\"priority\":0") {
		t.Fatalf("expected zero priority to be present, got %s", payload)
	}
}

func TestStoreWriteErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &StoreWriteError{Op: "update", ID: "t1", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected StoreWriteError to unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "t1") {
		t.Fatalf("expected record id in message, got %q", err.Error())
	}
}

func TestStoreWatchErrorUnwrap(t *testing.T) {
	cause := errors.New("subscribe failed")
	err := &StoreWatchError{View: "active", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected StoreWatchError to unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "active") {
		t.Fatalf("expected view name in message, got %q", err.Error())
	}
}
