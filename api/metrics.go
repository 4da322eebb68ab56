package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const snapshotSpanName = "todos.snapshot"

func tracer() trace.Tracer {
	return otel.Tracer("todo-stream/api")
}

// snapshotMetrics records per-request timings for snapshot reads and emits
// them as a span plus a structured log entry.
type snapshotMetrics struct {
	logger        *log.Logger
	span          trace.Span
	start         time.Time
	route         string
	authDuration  time.Duration
	tasksReturned int
	loading       bool
	errorStage    string
}

func newSnapshotMetrics(ctx context.Context, logger *log.Logger, route string) (*snapshotMetrics, context.Context) {
	spanCtx, span := tracer().Start(ctx, snapshotSpanName,
		trace.WithAttributes(attribute.String("http.route", route)))
	return &snapshotMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		route:  route,
	}, spanCtx
}

func (m *snapshotMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *snapshotMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *snapshotMetrics) SetLoading(loading bool) {
	m.loading = loading
}

func (m *snapshotMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *snapshotMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int("todos.returned", m.tasksReturned),
			attribute.Bool("todos.loading", m.loading),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("todos.error_stage", m.errorStage))
		}
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":          m.route,
		"status":         status,
		"total_ms":       durationToMillis(time.Since(m.start)),
		"tasks_returned": m.tasksReturned,
		"loading":        m.loading,
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	m.logger.WithFields(fields).Info("todos.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
