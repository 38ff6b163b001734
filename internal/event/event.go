package event

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type identifies a session log event.
type Type string

const (
	TypeSessionStart  Type = "session_start"
	TypeRealResult    Type = "real_result"
	TypeCrashTimeData Type = "crash_time_data"
)

// Known reports whether t is a recognized event type.
func Known(t Type) bool {
	switch t {
	case TypeSessionStart, TypeRealResult, TypeCrashTimeData:
		return true
	default:
		return false
	}
}

// Event is one append-only session log record. The log doubles as the
// sole persistence mechanism: real_result and crash_time_data rows are
// replayed on startup to reconstruct adaptive state.
type Event struct {
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	Type       Type      `json:"eventType" bson:"event_type"`
	Multiplier float64   `json:"multiplier" bson:"multiplier"`
	Comment    string    `json:"comment" bson:"comment"`
}

// Header returns the CSV column names.
func Header() []string {
	return []string{"timestamp", "event_type", "multiplier", "comment"}
}

// Row encodes the event as a CSV record.
func (e Event) Row() []string {
	return []string{
		e.Timestamp.Format(time.RFC3339Nano),
		string(e.Type),
		strconv.FormatFloat(e.Multiplier, 'f', -1, 64),
		e.Comment,
	}
}

// ParseRow decodes a CSV record into an Event. Unknown event types and
// malformed fields are errors; replay callers skip and count them.
func ParseRow(fields []string) (Event, error) {
	if len(fields) != 4 {
		return Event{}, fmt.Errorf("want 4 fields, got %d", len(fields))
	}
	ts, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return Event{}, fmt.Errorf("bad timestamp %q: %w", fields[0], err)
	}
	typ := Type(fields[1])
	if !Known(typ) {
		return Event{}, fmt.Errorf("unknown event type %q", fields[1])
	}
	mult, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Event{}, fmt.Errorf("bad multiplier %q: %w", fields[2], err)
	}
	return Event{Timestamp: ts, Type: typ, Multiplier: mult, Comment: fields[3]}, nil
}

// CrashDataComment formats the comment carried by crash_time_data events.
func CrashDataComment(category string, duration float64) string {
	return fmt.Sprintf("Category: %s, Duration: %.1fs", category, duration)
}

// ParseCrashDataComment extracts the bracket category and observed
// duration from a crash_time_data comment.
func ParseCrashDataComment(comment string) (category string, duration float64, err error) {
	_, after, ok := strings.Cut(comment, "Category: ")
	if !ok {
		return "", 0, fmt.Errorf("no category in %q", comment)
	}
	category, after, ok = strings.Cut(after, ", Duration: ")
	if !ok {
		return "", 0, fmt.Errorf("no duration in %q", comment)
	}
	durStr := strings.TrimSuffix(strings.TrimSpace(after), "s")
	duration, err = strconv.ParseFloat(durStr, 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad duration %q: %w", after, err)
	}
	return category, duration, nil
}
