package hook

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldline/rebatch/id"
	"github.com/fieldline/rebatch/run"
)

// Registry holds registered hooks and fans lifecycle events out to
// them. Hook interfaces are resolved once at registration time, so
// emitting an event iterates only the hooks that implement it.
//
// Hook errors are logged and never propagate: an observer must not be
// able to fail a run.
type Registry struct {
	mu     sync.RWMutex
	logger *slog.Logger

	hooks []Hook

	runStarted     []runStartedEntry
	batchCompleted []batchCompletedEntry
	itemRetrying   []itemRetryingEntry
	itemFailed     []itemFailedEntry
	progress       []progressEntry
	runCompleted   []runCompletedEntry
	runAborted     []runAbortedEntry
}

type runStartedEntry struct {
	name string
	hook RunStarted
}

type batchCompletedEntry struct {
	name string
	hook BatchCompleted
}

type itemRetryingEntry struct {
	name string
	hook ItemRetrying
}

type itemFailedEntry struct {
	name string
	hook ItemFailed
}

type progressEntry struct {
	name string
	hook Progress
}

type runCompletedEntry struct {
	name string
	hook RunCompleted
}

type runAbortedEntry struct {
	name string
	hook RunAborted
}

// NewRegistry creates an empty hook registry. A nil logger falls back
// to slog.Default.
func NewRegistry(logger *slog.Logger, hooks ...Hook) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger}
	for _, h := range hooks {
		r.Register(h)
	}
	return r
}

// Register adds a hook and caches which event interfaces it
// implements.
func (r *Registry) Register(h Hook) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hooks = append(r.hooks, h)
	name := h.Name()

	if v, ok := h.(RunStarted); ok {
		r.runStarted = append(r.runStarted, runStartedEntry{name, v})
	}
	if v, ok := h.(BatchCompleted); ok {
		r.batchCompleted = append(r.batchCompleted, batchCompletedEntry{name, v})
	}
	if v, ok := h.(ItemRetrying); ok {
		r.itemRetrying = append(r.itemRetrying, itemRetryingEntry{name, v})
	}
	if v, ok := h.(ItemFailed); ok {
		r.itemFailed = append(r.itemFailed, itemFailedEntry{name, v})
	}
	if v, ok := h.(Progress); ok {
		r.progress = append(r.progress, progressEntry{name, v})
	}
	if v, ok := h.(RunCompleted); ok {
		r.runCompleted = append(r.runCompleted, runCompletedEntry{name, v})
	}
	if v, ok := h.(RunAborted); ok {
		r.runAborted = append(r.runAborted, runAbortedEntry{name, v})
	}
}

// Len returns the number of registered hooks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// EmitRunStarted notifies hooks that a run began.
func (r *Registry) EmitRunStarted(ctx context.Context, runID id.RunID, total, remaining int, resumed bool) {
	r.mu.RLock()
	entries := r.runStarted
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.hook.OnRunStarted(ctx, runID, total, remaining, resumed); err != nil {
			r.logHookError(ctx, "OnRunStarted", e.name, err)
		}
	}
}

// EmitBatchCompleted notifies hooks that a batch finished and was
// checkpointed.
func (r *Registry) EmitBatchCompleted(ctx context.Context, runID id.RunID, batchID id.BatchID, size int, elapsed time.Duration) {
	r.mu.RLock()
	entries := r.batchCompleted
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.hook.OnBatchCompleted(ctx, runID, batchID, size, elapsed); err != nil {
			r.logHookError(ctx, "OnBatchCompleted", e.name, err)
		}
	}
}

// EmitItemRetrying notifies hooks that an item was requeued for retry.
func (r *Registry) EmitItemRetrying(ctx context.Context, itemID string, attempt int, delay time.Duration, cause error) {
	r.mu.RLock()
	entries := r.itemRetrying
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.hook.OnItemRetrying(ctx, itemID, attempt, delay, cause); err != nil {
			r.logHookError(ctx, "OnItemRetrying", e.name, err)
		}
	}
}

// EmitItemFailed notifies hooks that an item exhausted its retries.
func (r *Registry) EmitItemFailed(ctx context.Context, itemID string, attempts int, cause error) {
	r.mu.RLock()
	entries := r.itemFailed
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.hook.OnItemFailed(ctx, itemID, attempts, cause); err != nil {
			r.logHookError(ctx, "OnItemFailed", e.name, err)
		}
	}
}

// EmitProgress notifies hooks of run progress.
func (r *Registry) EmitProgress(ctx context.Context, runID id.RunID, processed, total int, stats *run.Stats) {
	r.mu.RLock()
	entries := r.progress
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.hook.OnProgress(ctx, runID, processed, total, stats); err != nil {
			r.logHookError(ctx, "OnProgress", e.name, err)
		}
	}
}

// EmitRunCompleted notifies hooks that the run finished.
func (r *Registry) EmitRunCompleted(ctx context.Context, summary run.Summary) {
	r.mu.RLock()
	entries := r.runCompleted
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.hook.OnRunCompleted(ctx, summary); err != nil {
			r.logHookError(ctx, "OnRunCompleted", e.name, err)
		}
	}
}

// EmitRunAborted notifies hooks that the run stopped on an
// infrastructure error.
func (r *Registry) EmitRunAborted(ctx context.Context, runID id.RunID, cause error) {
	r.mu.RLock()
	entries := r.runAborted
	r.mu.RUnlock()
	for _, e := range entries {
		if err := e.hook.OnRunAborted(ctx, runID, cause); err != nil {
			r.logHookError(ctx, "OnRunAborted", e.name, err)
		}
	}
}

func (r *Registry) logHookError(ctx context.Context, event, name string, err error) {
	r.logger.LogAttrs(ctx, slog.LevelWarn, "hook error",
		slog.String("event", event),
		slog.String("hook", name),
		slog.String("error", err.Error()),
	)
}
