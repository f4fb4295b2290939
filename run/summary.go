package run

import (
	"log/slog"
	"time"

	"github.com/fieldline/rebatch/id"
)

// Summary reports the final outcome of a run.
type Summary struct {
	RunID   id.RunID      `json:"run_id"`
	Phase   Phase         `json:"phase"`
	Total   int           `json:"total"`
	Elapsed time.Duration `json:"elapsed"`

	// Succeeded is the number of items extracted successfully.
	Succeeded int `json:"succeeded"`

	// PermanentFailures lists the identifiers of items that exhausted
	// their retry budget, in sorted order.
	PermanentFailures []string `json:"permanent_failures,omitempty"`

	// Attempts is the total number of extraction attempts made.
	Attempts int64 `json:"attempts"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("run_id", s.RunID.String()),
		slog.String("phase", string(s.Phase)),
		slog.Int("total", s.Total),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("permanent_failures", len(s.PermanentFailures)),
		slog.Int64("attempts", s.Attempts),
		slog.Duration("elapsed", s.Elapsed),
	)
}
