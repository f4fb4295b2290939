package run

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
)

// Stats provides run counters with thread-safe access. Counter fields
// use atomic operations so extraction workers can report concurrently
// while the supervisor reads.
type Stats struct {
	attempted atomic.Int64
	succeeded atomic.Int64
	retried   atomic.Int64
	failed    atomic.Int64
}

// NewStats creates a Stats with initial counter values. Use this when
// restoring checkpoint data.
func NewStats(attempted, succeeded, retried, failed int64) *Stats {
	s := &Stats{}
	s.attempted.Store(attempted)
	s.succeeded.Store(succeeded)
	s.retried.Store(retried)
	s.failed.Store(failed)
	return s
}

// Attempted returns the total number of extraction attempts.
func (s *Stats) Attempted() int64 { return s.attempted.Load() }

// Succeeded returns the number of items that succeeded.
func (s *Stats) Succeeded() int64 { return s.succeeded.Load() }

// Retried returns the number of retry requeues.
func (s *Stats) Retried() int64 { return s.retried.Load() }

// Failed returns the number of permanent failures.
func (s *Stats) Failed() int64 { return s.failed.Load() }

// IncAttempted adds n attempts and returns the new total.
func (s *Stats) IncAttempted(n int64) int64 { return s.attempted.Add(n) }

// IncSucceeded adds n successes and returns the new total.
func (s *Stats) IncSucceeded(n int64) int64 { return s.succeeded.Add(n) }

// IncRetried adds n retries and returns the new total.
func (s *Stats) IncRetried(n int64) int64 { return s.retried.Add(n) }

// IncFailed adds n permanent failures and returns the new total.
func (s *Stats) IncFailed(n int64) int64 { return s.failed.Add(n) }

// LogValue implements slog.LogValuer for structured logging.
func (s *Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("attempted", s.Attempted()),
		slog.Int64("succeeded", s.Succeeded()),
		slog.Int64("retried", s.Retried()),
		slog.Int64("failed", s.Failed()),
	)
}

// statsJSON is the JSON representation for marshaling Stats.
type statsJSON struct {
	Attempted int64 `json:"attempted"`
	Succeeded int64 `json:"succeeded"`
	Retried   int64 `json:"retried"`
	Failed    int64 `json:"failed"`
}

// MarshalJSON implements json.Marshaler.
func (s *Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(statsJSON{
		Attempted: s.attempted.Load(),
		Succeeded: s.succeeded.Load(),
		Retried:   s.retried.Load(),
		Failed:    s.failed.Load(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Stats) UnmarshalJSON(data []byte) error {
	var v statsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.attempted.Store(v.Attempted)
	s.succeeded.Store(v.Succeeded)
	s.retried.Store(v.Retried)
	s.failed.Store(v.Failed)
	return nil
}
