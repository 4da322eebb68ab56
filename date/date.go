// Package date holds the deadline parsing contract and the presentation
// helpers consumed by clients of the todo views.
package date

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"todo-stream/domain"
)

// ErrFormat is returned when a deadline string does not match the
// day/month/2-digit-year contract.
var ErrFormat = errors.New("date: invalid deadline format")

// ParseDeadline parses a deadline in day/month/2-digit-year form, e.g.
// "05/03/24" is 2024-03-05. The two-digit year is always expanded to the
// 21st century (20YY). The result is a date-only value at midnight UTC.
// Any other input shape is rejected with ErrFormat; broader validation is
// the caller's job.
func ParseDeadline(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return time.Time{}, ErrFormat
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, ErrFormat
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, ErrFormat
	}
	if len(parts[2]) != 2 {
		return time.Time{}, ErrFormat
	}
	yy, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, ErrFormat
	}
	t := time.Date(2000+yy, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range components, so a round-trip check
	// rejects inputs like 31/02/24.
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, ErrFormat
	}
	return t, nil
}

// Truncate drops the time-of-day component, keeping a plain UTC date.
func Truncate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current date at midnight UTC.
func Today() time.Time {
	return Truncate(time.Now())
}

// Format renders a date for display, e.g. "Mar 5, 2024". Empty for nil.
func Format(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("Jan 2, 2006")
}

// Overdue reports whether a task's deadline has passed. Done tasks and
// tasks without a deadline are never overdue.
func Overdue(t domain.Task) bool {
	if t.Status == domain.StatusDone || t.Deadline == nil {
		return false
	}
	return t.Deadline.Before(Today())
}
