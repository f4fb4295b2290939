// Package memory implements checkpoint.Store in memory. Intended for
// unit testing and development. State is round-tripped through its
// JSON form on Save/Load so tests observe the same serialization
// behavior as durable backends.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fieldline/rebatch"
	"github.com/fieldline/rebatch/checkpoint"
	"github.com/fieldline/rebatch/run"
)

// Compile-time interface check.
var _ checkpoint.Store = (*Store)(nil)

// Store is an in-memory checkpoint store. Safe for concurrent access.
type Store struct {
	mu    sync.RWMutex
	data  []byte
	saves int
}

// New returns a new empty Store.
func New() *Store {
	return &Store{}
}

// Load decodes the last saved snapshot, or returns nil if none exists.
func (s *Store) Load(_ context.Context) (*run.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data == nil {
		return nil, nil //nolint:nilnil // nil state signals "no checkpoint", not an error
	}

	state := &run.State{}
	if err := json.Unmarshal(s.data, state); err != nil {
		return nil, fmt.Errorf("rebatch/memory: decode checkpoint: %w: %w", rebatch.ErrCorruptCheckpoint, err)
	}
	return state, nil
}

// Save snapshots the state.
func (s *Store) Save(_ context.Context, state *run.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("rebatch/memory: encode checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.saves++
	return nil
}

// Clear drops the snapshot.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

// Saves returns how many times Save has been called. Test helper.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// HasCheckpoint reports whether a snapshot is currently stored.
func (s *Store) HasCheckpoint() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data != nil
}
