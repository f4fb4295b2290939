// Package memory implements sink.Sink in memory. Intended for unit
// testing: it records every append verbatim, including duplicates, so
// tests can assert exactly-once delivery.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/fieldline/rebatch/item"
	"github.com/fieldline/rebatch/sink"
)

// Compile-time interface check.
var _ sink.Sink = (*Sink)(nil)

// Sink is an in-memory result sink. Safe for concurrent access.
type Sink struct {
	mu      sync.RWMutex
	records []item.Record
	appends int
}

// New returns a new empty Sink.
func New() *Sink {
	return &Sink{}
}

// Append records the batch.
func (s *Sink) Append(_ context.Context, records []item.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	s.appends++
	return nil
}

// Records returns a copy of everything appended, in order.
func (s *Sink) Records() []item.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// Record returns the first record for the given item id, if present.
func (s *Sink) Record(itemID string) (item.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ItemID == itemID {
			return r, true
		}
	}
	return item.Record{}, false
}

// Appends returns how many times Append has been called.
func (s *Sink) Appends() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appends
}
