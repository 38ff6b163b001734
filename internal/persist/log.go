package persist

import (
	"context"

	"github.com/mparet/crashcast/internal/event"
)

// Log is the append-only session event log. It is both the audit trail
// and the sole persistence mechanism: Replay feeds recorded events back
// through the engine on startup.
type Log interface {
	// Append writes one event to the log.
	Append(ctx context.Context, e event.Event) error

	// Replay streams all events in append order through fn. Malformed
	// records are skipped and counted rather than aborting the replay.
	Replay(ctx context.Context, fn func(event.Event) error) (skipped int, err error)

	// Tail returns up to limit most recent events in chronological order,
	// optionally filtered by type (empty = all).
	Tail(ctx context.Context, limit int, typ event.Type) ([]event.Event, error)

	// Truncate drops every event, leaving an empty log. A full session
	// restart begins a fresh log this way.
	Truncate(ctx context.Context) error

	// Close releases the backing resource.
	Close(ctx context.Context) error
}
