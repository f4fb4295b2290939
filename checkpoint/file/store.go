// Package file implements checkpoint.Store on a single JSON file with
// write-to-temp-then-rename semantics: the previous checkpoint stays
// valid until the new one is fully on disk.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fieldline/rebatch"
	"github.com/fieldline/rebatch/checkpoint"
	"github.com/fieldline/rebatch/run"
)

// Compile-time interface check.
var _ checkpoint.Store = (*Store)(nil)

// Store persists run state as pretty-printed JSON at a fixed path.
type Store struct {
	path string
}

// New creates a file-backed checkpoint store at path. The parent
// directory must exist.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string { return s.path }

// Load reads and decodes the checkpoint file. A missing file means no
// checkpoint and returns (nil, nil). Unparseable data wraps
// rebatch.ErrCorruptCheckpoint.
func (s *Store) Load(_ context.Context) (*run.State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil //nolint:nilnil // nil state signals "no checkpoint", not an error
		}
		return nil, fmt.Errorf("rebatch/file: read checkpoint: %w", err)
	}

	state := &run.State{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("rebatch/file: decode %s: %w: %w", s.path, rebatch.ErrCorruptCheckpoint, err)
	}
	return state, nil
}

// Save writes the state to a temp file in the same directory, syncs it,
// then renames it over the checkpoint path.
func (s *Store) Save(_ context.Context, state *run.State) error {
	state.Touch(time.Now())

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("rebatch/file: encode checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("rebatch/file: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("rebatch/file: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("rebatch/file: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rebatch/file: close temp: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rebatch/file: rename temp: %w", err)
	}
	return nil
}

// Clear removes the checkpoint file. A missing file is not an error.
func (s *Store) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rebatch/file: remove checkpoint: %w", err)
	}
	return nil
}
