// Package csvsink implements sink.Sink as an append-only CSV file.
//
// Appends are idempotent: on first use the sink scans the existing file
// and skips any record whose identifier is already present, so batch
// replays after a crash do not produce duplicate rows.
package csvsink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/fieldline/rebatch/item"
	"github.com/fieldline/rebatch/sink"
)

// Compile-time interface check.
var _ sink.Sink = (*Sink)(nil)

var header = []string{"item_id", "status", "attempts", "result", "error"}

// Sink appends terminal records to a CSV file.
type Sink struct {
	path string

	mu     sync.Mutex
	seen   map[string]struct{}
	loaded bool
}

// New creates a CSV sink writing to path. The file is created on first
// append if it does not exist.
func New(path string) *Sink {
	return &Sink{path: path, seen: make(map[string]struct{})}
}

// Path returns the output file path.
func (s *Sink) Path() string { return s.path }

// Append writes records not already present, flushes, and syncs.
func (s *Sink) Append(_ context.Context, records []item.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.loadSeen(); err != nil {
			return err
		}
		s.loaded = true
	}

	fresh := make([]item.Record, 0, len(records))
	for _, r := range records {
		if _, dup := s.seen[r.ItemID]; dup {
			continue
		}
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return nil
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("rebatch/csvsink: open %s: %w", s.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("rebatch/csvsink: stat %s: %w", s.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("rebatch/csvsink: write header: %w", err)
		}
	}

	for _, r := range fresh {
		row := []string{
			r.ItemID,
			string(r.Status),
			fmt.Sprintf("%d", r.Attempts),
			string(r.Result),
			r.Error,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("rebatch/csvsink: write %s: %w", r.ItemID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("rebatch/csvsink: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("rebatch/csvsink: sync: %w", err)
	}

	// Mark as seen only after the rows are durably written.
	for _, r := range fresh {
		s.seen[r.ItemID] = struct{}{}
	}
	return nil
}

// loadSeen scans an existing output file for already-written ids.
func (s *Sink) loadSeen() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("rebatch/csvsink: open existing %s: %w", s.path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("rebatch/csvsink: scan existing %s: %w", s.path, err)
	}

	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		s.seen[row[0]] = struct{}{}
	}
	return nil
}
