// Package run holds the durable state of an engine run: the ordered
// pending queue, the processed and permanently-failed sets, per-item
// attempt counts, and run statistics.
package run

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/fieldline/rebatch/id"
)

// Phase is the lifecycle state of a run.
type Phase string

const (
	// PhaseStarting means the run is loading or initializing state.
	PhaseStarting Phase = "starting"
	// PhaseRunning means batches are being processed.
	PhaseRunning Phase = "running"
	// PhaseCompleted means every item reached a terminal state.
	PhaseCompleted Phase = "completed"
	// PhaseAborted means an infrastructure error stopped the run; the
	// last good checkpoint remains for resume.
	PhaseAborted Phase = "aborted"
)

// State is the mutable, persisted core entity of a run.
//
// Every item identifier known to the source is in exactly one of:
// the pending queue, the processed set, or both pending and the
// attempts map (failed, awaiting retry). The engine's supervisor is
// the single writer; State is not safe for concurrent mutation.
type State struct {
	runID        id.RunID
	pending      []string
	pendingSet   map[string]struct{}
	processed    map[string]struct{}
	permFailures map[string]struct{}
	attempts     map[string]int
	startedAt    time.Time
	checkpointAt time.Time
	stats        *Stats
}

// New creates a fresh State with all item identifiers pending, in
// source order. Duplicate identifiers are rejected: resume bookkeeping
// is keyed by identifier and cannot distinguish duplicates.
func New(runID id.RunID, itemIDs []string) (*State, error) {
	s := &State{
		runID:        runID,
		pending:      make([]string, 0, len(itemIDs)),
		pendingSet:   make(map[string]struct{}, len(itemIDs)),
		processed:    make(map[string]struct{}),
		permFailures: make(map[string]struct{}),
		attempts:     make(map[string]int),
		startedAt:    time.Now().UTC(),
		stats:        &Stats{},
	}
	for _, itemID := range itemIDs {
		if _, dup := s.pendingSet[itemID]; dup {
			return nil, fmt.Errorf("run: duplicate item identifier %q", itemID)
		}
		s.pending = append(s.pending, itemID)
		s.pendingSet[itemID] = struct{}{}
	}
	return s, nil
}

// RunID returns the run identifier.
func (s *State) RunID() id.RunID { return s.runID }

// StartedAt returns when the run first started (survives resume).
func (s *State) StartedAt() time.Time { return s.startedAt }

// CheckpointAt returns when the state was last persisted.
func (s *State) CheckpointAt() time.Time { return s.checkpointAt }

// Stats returns the run's counters.
func (s *State) Stats() *Stats { return s.stats }

// Pending returns a copy of the ordered pending queue.
func (s *State) Pending() []string { return slices.Clone(s.pending) }

// Remaining returns the number of items not yet confirmed terminal.
func (s *State) Remaining() int { return len(s.pending) }

// Done reports whether every item has reached a confirmed terminal state.
func (s *State) Done() bool { return len(s.pending) == 0 }

// IsPending reports whether the item is still awaiting processing.
func (s *State) IsPending(itemID string) bool {
	_, ok := s.pendingSet[itemID]
	return ok
}

// IsProcessed reports whether the item reached a confirmed terminal state.
func (s *State) IsProcessed(itemID string) bool {
	_, ok := s.processed[itemID]
	return ok
}

// Attempts returns how many attempts the item has consumed so far.
func (s *State) Attempts(itemID string) int { return s.attempts[itemID] }

// Requeue records a retryable failure: the item's attempt count is
// incremented and the item moves to the end of the pending queue, so it
// is retried after the rest of the current pass rather than immediately.
func (s *State) Requeue(itemID string) {
	if _, ok := s.pendingSet[itemID]; !ok {
		return
	}
	s.attempts[itemID]++
	if i := slices.Index(s.pending, itemID); i >= 0 {
		s.pending = append(slices.Delete(s.pending, i, i+1), itemID)
	}
}

// RecordAttempt bumps the attempt counter for an item without moving it.
// Used for terminal outcomes so the persisted count matches what the
// summary and sink report.
func (s *State) RecordAttempt(itemID string, attempt int) {
	if attempt > s.attempts[itemID] {
		s.attempts[itemID] = attempt
	}
}

// MarkSucceeded confirms an item as terminally successful. Call only
// after the result sink has acknowledged the item's record.
func (s *State) MarkSucceeded(itemID string) {
	s.markTerminal(itemID)
}

// MarkFailed confirms an item as a permanent failure. Call only after
// the result sink has acknowledged the item's failure record.
func (s *State) MarkFailed(itemID string) {
	s.markTerminal(itemID)
	s.permFailures[itemID] = struct{}{}
}

func (s *State) markTerminal(itemID string) {
	if _, ok := s.pendingSet[itemID]; !ok {
		return
	}
	delete(s.pendingSet, itemID)
	delete(s.attempts, itemID)
	if i := slices.Index(s.pending, itemID); i >= 0 {
		s.pending = slices.Delete(s.pending, i, i+1)
	}
	s.processed[itemID] = struct{}{}
}

// PermanentFailures returns the sorted identifiers of items that
// exhausted their retry budget.
func (s *State) PermanentFailures() []string {
	return sortedKeys(s.permFailures)
}

// ProcessedCount returns the number of confirmed terminal items.
func (s *State) ProcessedCount() int { return len(s.processed) }

// Touch stamps the checkpoint time. The checkpoint store calls this
// as part of Save.
func (s *State) Touch(now time.Time) { s.checkpointAt = now.UTC() }

// stateJSON is the persisted representation of State.
type stateJSON struct {
	RunID        id.RunID       `json:"run_id"`
	StartedAt    time.Time      `json:"run_started_at"`
	CheckpointAt time.Time      `json:"last_checkpoint_at"`
	Pending      []string       `json:"pending_ids"`
	Processed    []string       `json:"processed_ids"`
	PermFailures []string       `json:"permanent_failures"`
	Attempts     map[string]int `json:"failed_ids_with_counts,omitempty"`
	Stats        *Stats         `json:"stats"`
}

// MarshalJSON implements json.Marshaler.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		RunID:        s.runID,
		StartedAt:    s.startedAt,
		CheckpointAt: s.checkpointAt,
		Pending:      s.pending,
		Processed:    sortedKeys(s.processed),
		PermFailures: sortedKeys(s.permFailures),
		Attempts:     s.attempts,
		Stats:        s.stats,
	})
}

// UnmarshalJSON implements json.Unmarshaler. It rebuilds the derived
// sets and validates the core invariant: no identifier may be both
// pending and processed.
func (s *State) UnmarshalJSON(data []byte) error {
	var v stateJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	s.runID = v.RunID
	s.startedAt = v.StartedAt
	s.checkpointAt = v.CheckpointAt
	s.pending = v.Pending
	s.pendingSet = make(map[string]struct{}, len(v.Pending))
	s.processed = make(map[string]struct{}, len(v.Processed))
	s.permFailures = make(map[string]struct{}, len(v.PermFailures))
	s.attempts = v.Attempts
	if s.attempts == nil {
		s.attempts = make(map[string]int)
	}
	s.stats = v.Stats
	if s.stats == nil {
		s.stats = &Stats{}
	}

	for _, itemID := range v.Pending {
		if _, dup := s.pendingSet[itemID]; dup {
			return fmt.Errorf("run: duplicate pending identifier %q", itemID)
		}
		s.pendingSet[itemID] = struct{}{}
	}
	for _, itemID := range v.Processed {
		if _, clash := s.pendingSet[itemID]; clash {
			return fmt.Errorf("run: identifier %q is both pending and processed", itemID)
		}
		s.processed[itemID] = struct{}{}
	}
	for _, itemID := range v.PermFailures {
		s.permFailures[itemID] = struct{}{}
	}

	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
