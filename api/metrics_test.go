package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracing(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestSnapshotMetricsEmitsSpanAndLogEntry(t *testing.T) {
	exporter := setupTracing(t)
	logger, hook := test.NewNullLogger()

	m, _ := newSnapshotMetrics(context.Background(), logger, "/api/todos")
	m.SetTasksReturned(3)
	m.SetLoading(false)
	m.Log(http.StatusOK, nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != snapshotSpanName {
		t.Fatalf("unexpected span name: %s", span.Name)
	}
	attrs := attributesToMap(span.Attributes)
	if attrs["http.route"] != "/api/todos" {
		t.Fatalf("span route attribute mismatch: %#v", attrs["http.route"])
	}
	if code, ok := attrs["http.status_code"].(int64); !ok || code != int64(http.StatusOK) {
		t.Fatalf("unexpected http.status_code: %#v", attrs["http.status_code"])
	}
	if returned, ok := attrs["todos.returned"].(int64); !ok || returned != 3 {
		t.Fatalf("unexpected todos.returned: %#v", attrs["todos.returned"])
	}
	if span.Status.Code != codes.Ok {
		t.Fatalf("expected span status Ok, got %v", span.Status.Code)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Message != "todos.request.metrics" {
		t.Fatalf("unexpected log message: %s", entry.Message)
	}
	if traceID, ok := entry.Data["trace_id"].(string); !ok || traceID == "" {
		t.Fatalf("expected trace_id to be recorded, got %#v", entry.Data["trace_id"])
	}
	if entry.Data["tasks_returned"] != 3 {
		t.Fatalf("unexpected tasks_returned: %#v", entry.Data["tasks_returned"])
	}
}

func TestSnapshotMetricsRecordsError(t *testing.T) {
	exporter := setupTracing(t)
	logger, hook := test.NewNullLogger()

	m, _ := newSnapshotMetrics(context.Background(), logger, "/api/todos")
	m.SetErrorStage("auth")
	m.Log(http.StatusUnauthorized, errors.New("bad token"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Fatalf("expected span status Error, got %v", span.Status.Code)
	}
	attrs := attributesToMap(span.Attributes)
	if attrs["todos.error_stage"] != "auth" {
		t.Fatalf("unexpected error stage: %#v", attrs["todos.error_stage"])
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["error_stage"] != "auth" {
		t.Fatalf("expected error_stage in log entry, got %#v", entry)
	}
}
