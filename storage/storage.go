// Package storage implements the remote document store contract: a single
// Azure Table Storage collection with filtered queries, partial updates and
// a redis-backed change feed that lets watchers receive full result-set
// snapshots on every change.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	partitionKey = "todos"
	edmDateTime  = "Edm.DateTime"
)

// Field names understood by the todos collection.
const (
	FieldText      = "Text"
	FieldCreatedAt = "CreatedAt"
	FieldDeadline  = "Deadline"
	FieldStatus    = "Status"
	FieldPriority  = "Priority"
	FieldDeleted   = "Deleted"
)

// Fields is a named subset of record fields for inserts and partial updates.
type Fields map[string]any

// Filter selects one of the two server-side views of the collection.
type Filter struct {
	Deleted bool
}

func (f Filter) String() string {
	return fmt.Sprintf("PartitionKey eq '%s' and Deleted eq %t", partitionKey, f.Deleted)
}

// Record is a raw stored record. Optional fields stay nil when the stored
// entity never had them written; defaulting is the sync engine's job.
type Record struct {
	ID        string
	Text      string
	CreatedAt time.Time
	Deadline  *time.Time
	Status    *string
	Priority  *int
	Deleted   *bool
}

// Storage provides access to the todos table and its change feed.
type Storage struct {
	table    *aztables.Client
	notifier *Notifier
	now      func() time.Time
}

// New creates a Storage instance from the given connection string.
func New(connStr, tableName string, notifier *Notifier) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{table: svc.NewClient(tableName), notifier: notifier, now: time.Now}, nil
}

type taskEntity struct {
	aztables.Entity
	Text      string     `json:"Text"`
	CreatedAt time.Time  `json:"CreatedAt"`
	Deadline  *time.Time `json:"Deadline,omitempty"`
	Status    *string    `json:"Status,omitempty"`
	Priority  *int       `json:"Priority,omitempty"`
	Deleted   *bool      `json:"Deleted,omitempty"`
}

func (e taskEntity) record() Record {
	return Record{
		ID:        e.RowKey,
		Text:      e.Text,
		CreatedAt: e.CreatedAt,
		Deadline:  e.Deadline,
		Status:    e.Status,
		Priority:  e.Priority,
		Deleted:   e.Deleted,
	}
}

// encodeFields flattens a field set into a table entity map, annotating
// time values so the service stores them as Edm.DateTime.
func encodeFields(fields Fields) map[string]any {
	ent := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		if t, ok := v.(time.Time); ok {
			ent[k] = t.UTC().Format(time.RFC3339Nano)
			ent[k+"@odata.type"] = edmDateTime
			continue
		}
		ent[k] = v
	}
	return ent
}

// Insert stores a new record and returns its assigned id. CreatedAt is
// filled with the current time when the caller did not supply one.
func (s *Storage) Insert(ctx context.Context, fields Fields) (string, error) {
	id := uuid.NewString()
	ent := encodeFields(fields)
	ent["PartitionKey"] = partitionKey
	ent["RowKey"] = id
	if _, ok := fields[FieldCreatedAt]; !ok {
		ent[FieldCreatedAt] = s.now().UTC().Format(time.RFC3339Nano)
		ent[FieldCreatedAt+"@odata.type"] = edmDateTime
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return "", err
	}
	if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
		return "", err
	}
	s.notify(ctx, id)
	return id, nil
}

// UpdatePartial merges the named fields into an existing record, leaving
// all other fields untouched.
func (s *Storage) UpdatePartial(ctx context.Context, id string, fields Fields) error {
	ent := encodeFields(fields)
	ent["PartitionKey"] = partitionKey
	ent["RowKey"] = id
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	if err != nil {
		return err
	}
	s.notify(ctx, id)
	return nil
}

// Fetch retrieves the complete current result set for the filter.
func (s *Storage) Fetch(ctx context.Context, f Filter) ([]Record, error) {
	filter := f.String()
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	records := []Record{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			records = append(records, ent.record())
		}
	}
	return records, nil
}

// Watch registers a persistent subscription for the filter. The current
// result set is delivered once immediately, then re-fetched and delivered
// in full on every change-feed tick. The returned stop function releases
// the subscription and waits for the delivery goroutine to finish; the
// callback owns each snapshot exclusively and is never invoked after stop
// returns.
func (s *Storage) Watch(ctx context.Context, f Filter, onSnapshot func([]Record)) (func(), error) {
	if s.notifier == nil {
		return nil, fmt.Errorf("storage: no change feed configured")
	}
	ticks, stopTicks := s.notifier.Subscribe(ctx)
	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	fetch := func(ctx context.Context) ([]Record, error) { return s.Fetch(ctx, f) }
	go watchLoop(wctx, fetch, ticks, onSnapshot, done)
	return func() {
		cancel()
		stopTicks()
		<-done
	}, nil
}

// watchLoop delivers the full result set once up front, then re-fetches and
// delivers it on every change-feed tick. A closed tick channel terminates
// the loop: the projection stalls from there on, matching the
// no-resubscription contract. Fetch failures are logged and skipped, so a
// transient error drops one delivery, not the subscription.
func watchLoop(ctx context.Context, fetch func(context.Context) ([]Record, error), ticks <-chan struct{}, onSnapshot func([]Record), done chan<- struct{}) {
	defer close(done)
	deliver := func() {
		if ctx.Err() != nil {
			return
		}
		records, err := fetch(ctx)
		if err != nil {
			log.Errorf("fetch snapshot: %v", err)
			return
		}
		onSnapshot(records)
	}
	deliver()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			deliver()
		}
	}
}

func (s *Storage) notify(ctx context.Context, id string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, id)
}
