// Package hook defines the lifecycle observer system for rebatch.
//
// Hooks are notified of run and item lifecycle events and can react to
// them — reporting progress, writing audit logs, recording metrics.
// Each lifecycle event is a separate interface so hooks opt in only to
// the events they care about.
//
// # Implementing a Hook
//
//	type MyHook struct{}
//
//	func (h *MyHook) Name() string { return "my-hook" }
//
//	// Opt in to specific events by implementing their interfaces.
//	func (h *MyHook) OnItemFailed(ctx context.Context, itemID string, attempts int, err error) error {
//	    log.Printf("item %s failed permanently after %d attempts: %v", itemID, attempts, err)
//	    return nil
//	}
//
// # Events
//
//   - [RunStarted] — a run began (fresh or resumed)
//   - [BatchCompleted] — a batch was processed and checkpointed
//   - [ItemRetrying] — an item failed and was requeued for retry
//   - [ItemFailed] — an item exhausted its retry budget
//   - [Progress] — periodic progress report
//   - [RunCompleted] — the run finished with every item terminal
//   - [RunAborted] — an infrastructure error stopped the run
//
// The [Registry] fans out each event to all registered hooks that
// implement the corresponding interface.
package hook

import (
	"context"
	"time"

	"github.com/fieldline/rebatch/id"
	"github.com/fieldline/rebatch/run"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// RunStarted is called when a run begins processing. resumed is true
// when the run state was restored from a checkpoint.
type RunStarted interface {
	OnRunStarted(ctx context.Context, runID id.RunID, total, remaining int, resumed bool) error
}

// BatchCompleted is called after a batch has been processed, its
// records appended to the sink, and the checkpoint saved.
type BatchCompleted interface {
	OnBatchCompleted(ctx context.Context, runID id.RunID, batchID id.BatchID, size int, elapsed time.Duration) error
}

// ItemRetrying is called when an item fails with a retryable error and
// is requeued to the end of the pending queue.
type ItemRetrying interface {
	OnItemRetrying(ctx context.Context, itemID string, attempt int, delay time.Duration, err error) error
}

// ItemFailed is called when an item exhausts its retry budget and is
// recorded as a permanent failure.
type ItemFailed interface {
	OnItemFailed(ctx context.Context, itemID string, attempts int, err error) error
}

// Progress is called periodically as items reach terminal states.
type Progress interface {
	OnProgress(ctx context.Context, runID id.RunID, processed, total int, stats *run.Stats) error
}

// RunCompleted is called when every item has reached a terminal state
// and the checkpoint has been cleared.
type RunCompleted interface {
	OnRunCompleted(ctx context.Context, summary run.Summary) error
}

// RunAborted is called when an infrastructure error stops the run. The
// last good checkpoint remains for resume.
type RunAborted interface {
	OnRunAborted(ctx context.Context, runID id.RunID, err error) error
}
