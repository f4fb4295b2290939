// Package checkpoint defines the persistence contract for run state.
//
// A Store survives process restarts so an interrupted run can resume
// where it left off. The engine's supervisor is the Store's only
// writer.
//
// # Available Backends
//
//   - checkpoint/file — atomic JSON file (the default for the CLI)
//   - checkpoint/memory — in-memory store for testing
//   - checkpoint/redis — Redis backend
//   - checkpoint/bun — PostgreSQL backend via Bun ORM
package checkpoint

import (
	"context"

	"github.com/fieldline/rebatch/run"
)

// Store persists run state between batches and across restarts.
type Store interface {
	// Load returns the last persisted state, or nil if no checkpoint
	// exists. If persisted data cannot be parsed, the returned error
	// wraps rebatch.ErrCorruptCheckpoint; the caller decides whether
	// to discard and start fresh or abort.
	Load(ctx context.Context) (*run.State, error)

	// Save atomically persists the given state. If the process dies
	// mid-write, the previously saved checkpoint must remain valid.
	Save(ctx context.Context, state *run.State) error

	// Clear deletes the checkpoint. Called only after a run reaches a
	// fully terminal state.
	Clear(ctx context.Context) error
}
