package file_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/fieldline/rebatch"
	"github.com/fieldline/rebatch/checkpoint/file"
	"github.com/fieldline/rebatch/id"
	"github.com/fieldline/rebatch/run"
)

func newState(t *testing.T, ids ...string) *run.State {
	t.Helper()
	st, err := run.New(id.NewRunID(), ids)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	return st
}

func TestLoad_MissingFile(t *testing.T) {
	s := file.New(filepath.Join(t.TempDir(), "run.json"))

	st, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st != nil {
		t.Fatal("expected nil state for missing checkpoint")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := file.New(filepath.Join(t.TempDir(), "run.json"))
	st := newState(t, "a", "b", "c")
	st.Requeue("b")
	st.MarkSucceeded("a")

	if err := s.Save(context.Background(), st); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if restored == nil {
		t.Fatal("expected state")
	}
	if got := restored.Pending(); !reflect.DeepEqual(got, st.Pending()) {
		t.Fatalf("pending mismatch: %v != %v", got, st.Pending())
	}
	if restored.Attempts("b") != 1 {
		t.Fatalf("attempt count lost: %d", restored.Attempts("b"))
	}
	if restored.CheckpointAt().IsZero() {
		t.Fatal("save should stamp the checkpoint time")
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := file.New(filepath.Join(dir, "run.json"))

	for range 3 {
		if err := s.Save(context.Background(), newState(t, "a")); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "run.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only run.json, found %v", names)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := os.WriteFile(path, []byte(`{"pending_ids": [truncated`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := file.New(path).Load(context.Background())
	if !errors.Is(err, rebatch.ErrCorruptCheckpoint) {
		t.Fatalf("expected ErrCorruptCheckpoint, got %v", err)
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	s := file.New(path)

	if err := s.Save(context.Background(), newState(t, "a")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("checkpoint file should be gone")
	}

	// Clearing an already-cleared checkpoint is a no-op.
	if err := s.Clear(context.Background()); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}
