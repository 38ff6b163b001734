package persist

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mparet/crashcast/internal/event"
)

// CSVLog is the file-backed event log: one append-only CSV file with a
// header row, matching the layout external tools expect.
type CSVLog struct {
	path string

	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// OpenCSVLog opens (or creates) the log file at path. A header row is
// written when the file is new or empty.
func OpenCSVLog(path string) (*CSVLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(event.Header()); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush header: %w", err)
		}
	}

	return &CSVLog{path: path, f: f, w: w}, nil
}

// Append writes one event row and flushes it to disk.
func (l *CSVLog) Append(_ context.Context, e event.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.w.Write(e.Row()); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}

// Replay reads the whole file and streams parsed events through fn.
// Rows that fail to parse are skipped and counted.
func (l *CSVLog) Replay(_ context.Context, fn func(event.Event) error) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return 0, fmt.Errorf("open log for replay: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // malformed rows are our problem, not the reader's

	skipped := 0
	first := true
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			return skipped, nil
		}
		if err != nil {
			skipped++
			continue
		}
		if first {
			first = false
			if len(fields) > 0 && fields[0] == "timestamp" {
				continue // header
			}
		}
		e, err := event.ParseRow(fields)
		if err != nil {
			skipped++
			continue
		}
		if err := fn(e); err != nil {
			return skipped, err
		}
	}
}

// Tail returns the last events of the log, oldest first.
func (l *CSVLog) Tail(ctx context.Context, limit int, typ event.Type) ([]event.Event, error) {
	var all []event.Event
	_, err := l.Replay(ctx, func(e event.Event) error {
		if typ == "" || e.Type == typ {
			all = append(all, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// Close closes the backing file.
func (l *CSVLog) Close(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	return l.f.Close()
}

// Truncate drops all rows and rewrites the header. Used by full session
// restarts, which begin a fresh log.
func (l *CSVLog) Truncate(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate log: %w", err)
	}
	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind log: %w", err)
	}
	l.w = csv.NewWriter(l.f)
	if err := l.w.Write(event.Header()); err != nil {
		return fmt.Errorf("rewrite header: %w", err)
	}
	l.w.Flush()
	return l.w.Error()
}
