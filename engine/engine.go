// Package engine contains the run supervisor: the component that owns
// a run end to end. It loads or creates run state, schedules batches,
// fans extraction calls out to a bounded worker pool, applies the retry
// policy, persists checkpoints, and appends terminal records to the
// result sink.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fieldline/rebatch"
	"github.com/fieldline/rebatch/backoff"
	"github.com/fieldline/rebatch/checkpoint"
	"github.com/fieldline/rebatch/hook"
	"github.com/fieldline/rebatch/id"
	"github.com/fieldline/rebatch/item"
	"github.com/fieldline/rebatch/middleware"
	"github.com/fieldline/rebatch/run"
	"github.com/fieldline/rebatch/sink"
	"github.com/fieldline/rebatch/source"
)

// Extractor performs the per-item extraction operation. It is called
// from multiple goroutines and must be safe for concurrent use.
//
// Errors are classified through rebatch.Transient and rebatch.Permanent;
// an unwrapped error is treated as transient.
type Extractor interface {
	Extract(ctx context.Context, it item.Item) ([]byte, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, it item.Item) ([]byte, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, it item.Item) ([]byte, error) {
	return f(ctx, it)
}

// Supervisor drives a run to completion. Create one with New and call
// Run; a Supervisor executes at most one run at a time.
type Supervisor struct {
	cfg       rebatch.Config
	source    source.Source
	extractor Extractor
	sink      sink.Sink
	store     checkpoint.Store

	logger     *slog.Logger
	backoff    backoff.Strategy
	hooks      *hook.Registry
	chain      middleware.Middleware
	limiter    *rate.Limiter
	fresh      bool
	resumeOnly bool

	running atomic.Bool
	phase   atomic.Value // run.Phase
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBackoff sets the delay strategy applied between a batch that
// requeued items and the next batch. Defaults to backoff.DefaultStrategy.
func WithBackoff(strategy backoff.Strategy) Option {
	return func(s *Supervisor) {
		if strategy != nil {
			s.backoff = strategy
		}
	}
}

// WithHooks registers lifecycle hooks.
func WithHooks(hooks ...hook.Hook) Option {
	return func(s *Supervisor) {
		for _, h := range hooks {
			s.hooks.Register(h)
		}
	}
}

// WithMiddleware wraps every extraction call with the given middleware,
// outermost first.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Supervisor) {
		s.chain = middleware.Chain(mws...)
	}
}

// WithFreshStart discards any existing checkpoint and starts the run
// from the beginning of the source.
func WithFreshStart() Option {
	return func(s *Supervisor) {
		s.fresh = true
	}
}

// WithResumeRequired makes Run fail with rebatch.ErrNoCheckpoint when
// no checkpoint exists, instead of starting a fresh run.
func WithResumeRequired() Option {
	return func(s *Supervisor) {
		s.resumeOnly = true
	}
}

// New creates a Supervisor. The source, extractor, sink and checkpoint
// store are required; zero-valued config fields fall back to
// rebatch.DefaultConfig.
func New(cfg rebatch.Config, src source.Source, ext Extractor, snk sink.Sink, store checkpoint.Store, opts ...Option) (*Supervisor, error) {
	if src == nil {
		return nil, rebatch.ErrNoSource
	}
	if ext == nil {
		return nil, rebatch.ErrNoExtractor
	}
	if snk == nil {
		return nil, rebatch.ErrNoSink
	}
	if store == nil {
		return nil, rebatch.ErrNoStore
	}

	def := rebatch.DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Workers > cfg.BatchSize {
		cfg.Workers = cfg.BatchSize
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}

	s := &Supervisor{
		cfg:       cfg,
		source:    src,
		extractor: ext,
		sink:      snk,
		store:     store,
		logger:    slog.Default(),
		backoff:   backoff.DefaultStrategy(),
		hooks:     hook.NewRegistry(slog.Default()),
		chain:     middleware.Chain(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes the run to completion or abort. On success the summary
// carries PhaseCompleted and the checkpoint has been cleared. On an
// infrastructure failure or cancellation the summary carries
// PhaseAborted, the error wraps rebatch.ErrRunAborted, and the last
// good checkpoint remains for resume.
func (s *Supervisor) Run(ctx context.Context) (run.Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return run.Summary{}, rebatch.ErrAlreadyRunning
	}
	defer s.running.Store(false)
	s.setPhase(run.PhaseStarting)

	state, index, resumed, err := s.loadState(ctx)
	if err != nil {
		s.setPhase(run.PhaseAborted)
		return run.Summary{Phase: run.PhaseAborted}, err
	}

	total := len(index)
	s.setPhase(run.PhaseRunning)
	s.logger.LogAttrs(ctx, slog.LevelInfo, "run starting",
		slog.String("run_id", state.RunID().String()),
		slog.String("phase", string(run.PhaseRunning)),
		slog.Int("total", total),
		slog.Int("remaining", state.Remaining()),
		slog.Bool("resumed", resumed),
	)
	s.hooks.EmitRunStarted(ctx, state.RunID(), total, state.Remaining(), resumed)

	lastProgress := state.ProcessedCount()
	for !state.Done() {
		if err := ctx.Err(); err != nil {
			return s.abort(ctx, state, total, fmt.Errorf("run canceled: %w", err))
		}

		pause, err := s.runBatch(ctx, state, index)
		if err != nil {
			return s.abort(ctx, state, total, err)
		}

		if s.cfg.ProgressInterval > 0 && state.ProcessedCount()-lastProgress >= s.cfg.ProgressInterval {
			lastProgress = state.ProcessedCount()
			s.hooks.EmitProgress(ctx, state.RunID(), state.ProcessedCount(), total, state.Stats())
			s.logger.LogAttrs(ctx, slog.LevelInfo, "progress",
				slog.String("run_id", state.RunID().String()),
				slog.Int("processed", state.ProcessedCount()),
				slog.Int("total", total),
				slog.Any("stats", state.Stats()),
			)
		}

		if pause > 0 && !state.Done() {
			if err := sleepCtx(ctx, pause); err != nil {
				return s.abort(ctx, state, total, fmt.Errorf("run canceled: %w", err))
			}
		}
	}

	s.setPhase(run.PhaseCompleted)
	summary := s.summarize(state, total, run.PhaseCompleted)
	cctx, cancel := s.persistCtx(ctx)
	err = s.store.Clear(cctx)
	cancel()
	if err != nil {
		// Results are durable and the checkpoint holds a fully
		// terminal state; resuming it would complete immediately.
		s.logger.LogAttrs(ctx, slog.LevelWarn, "checkpoint clear failed",
			slog.String("run_id", state.RunID().String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "run completed", slog.Any("summary", summary))
	s.hooks.EmitRunCompleted(ctx, summary)
	return summary, nil
}

// loadState resolves the starting state: a resumed checkpoint or a
// fresh state built from the source. It always loads the source, since
// a checkpoint persists identifiers only and payloads must be re-read.
func (s *Supervisor) loadState(ctx context.Context) (*run.State, map[string]item.Item, bool, error) {
	if s.fresh {
		if err := s.store.Clear(ctx); err != nil {
			return nil, nil, false, fmt.Errorf("engine: clear checkpoint for fresh start: %w", err)
		}
	}

	state, err := s.store.Load(ctx)
	if err != nil {
		return nil, nil, false, fmt.Errorf("engine: load checkpoint: %w", err)
	}

	items, err := s.source.Load(ctx)
	if err != nil {
		return nil, nil, false, fmt.Errorf("engine: load source: %w", err)
	}

	index := make(map[string]item.Item, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if _, dup := index[it.ID]; dup {
			return nil, nil, false, fmt.Errorf("%w: %q", rebatch.ErrDuplicateItem, it.ID)
		}
		index[it.ID] = it
		ids = append(ids, it.ID)
	}

	if state == nil {
		if s.resumeOnly {
			return nil, nil, false, fmt.Errorf("engine: resume requested: %w", rebatch.ErrNoCheckpoint)
		}
		state, err = run.New(id.NewRunID(), ids)
		if err != nil {
			return nil, nil, false, fmt.Errorf("engine: %w", err)
		}
		return state, index, false, nil
	}

	// A resumed run must find a payload for every identifier it still
	// owes work for.
	for _, itemID := range state.Pending() {
		if _, ok := index[itemID]; !ok {
			return nil, nil, false, fmt.Errorf("engine: checkpoint references item %q missing from source", itemID)
		}
	}
	return state, index, true, nil
}

// runBatch processes one batch front to back: extract concurrently,
// classify outcomes, checkpoint, append to the sink, checkpoint again.
// It returns the pause to observe before the next batch.
func (s *Supervisor) runBatch(ctx context.Context, state *run.State, index map[string]item.Item) (time.Duration, error) {
	batchIDs := nextBatch(state.Pending(), s.cfg.BatchSize)
	batchID := id.NewBatchID()
	started := time.Now()

	outcomes := s.extractBatch(ctx, state, index, batchIDs)

	// Single collector: classify every outcome before anything is
	// persisted, so the checkpoint and sink see the whole batch.
	var (
		terminal []item.Outcome
		pause    time.Duration
	)
	for _, o := range outcomes {
		state.Stats().IncAttempted(1)
		if !o.Failed() {
			terminal = append(terminal, o)
			continue
		}
		if rebatch.IsPermanent(o.Err) || o.Attempt >= s.cfg.MaxAttempts {
			terminal = append(terminal, o)
			s.logger.LogAttrs(ctx, slog.LevelError, "item failed permanently",
				slog.String("item_id", o.ItemID),
				slog.Int("attempts", o.Attempt),
				slog.String("error", o.Err.Error()),
			)
			s.hooks.EmitItemFailed(ctx, o.ItemID, o.Attempt, o.Err)
			continue
		}
		state.Stats().IncRetried(1)
		state.Requeue(o.ItemID)
		delay := s.backoff.Delay(o.Attempt)
		if delay > pause {
			pause = delay
		}
		s.logger.LogAttrs(ctx, slog.LevelWarn, "item retrying",
			slog.String("item_id", o.ItemID),
			slog.Int("attempt", o.Attempt),
			slog.Duration("delay", delay),
			slog.String("error", o.Err.Error()),
		)
		s.hooks.EmitItemRetrying(ctx, o.ItemID, o.Attempt, delay, o.Err)
	}

	// Terminal items stay pending in this snapshot. A crash after the
	// save but before the sink confirms re-attempts them, which the
	// sink's idempotency absorbs; the reverse order could lose results.
	for _, o := range terminal {
		state.RecordAttempt(o.ItemID, o.Attempt)
	}
	pctx, cancel := s.persistCtx(ctx)
	defer cancel()
	if err := s.saveCheckpoint(pctx, state); err != nil {
		return 0, err
	}

	if len(terminal) > 0 {
		records := make([]item.Record, 0, len(terminal))
		for _, o := range terminal {
			records = append(records, item.RecordOf(o))
		}
		if err := s.sink.Append(pctx, records); err != nil {
			return 0, fmt.Errorf("engine: append to sink: %w", err)
		}
		// Success and failure counters advance together with the
		// terminal marking, only after the sink has confirmed: a
		// replayed batch must not count the same item twice.
		for _, o := range terminal {
			if o.Failed() {
				state.MarkFailed(o.ItemID)
				state.Stats().IncFailed(1)
			} else {
				state.MarkSucceeded(o.ItemID)
				state.Stats().IncSucceeded(1)
			}
		}
		if err := s.saveCheckpoint(pctx, state); err != nil {
			return 0, err
		}
	}

	s.logger.LogAttrs(ctx, slog.LevelDebug, "batch completed",
		slog.String("run_id", state.RunID().String()),
		slog.String("batch_id", batchID.String()),
		slog.Int("size", len(batchIDs)),
		slog.Int("terminal", len(terminal)),
		slog.Duration("elapsed", time.Since(started)),
	)
	s.hooks.EmitBatchCompleted(ctx, state.RunID(), batchID, len(batchIDs), time.Since(started))
	return pause, nil
}

// extractBatch runs the batch's extraction calls on a bounded pool and
// returns their outcomes in batch order. A worker failing never cancels
// its siblings: every item in the batch gets its attempt.
//
// Run cancellation never hard-cancels an in-flight call: extraction
// runs on a drain context that outlives the run context by up to
// DrainTimeout, so started calls finish naturally and their outcomes
// count. An item whose worker has not started when the run is canceled
// produces no outcome and stays pending at its current attempt count,
// as does an item whose call was cut off by the drain deadline.
func (s *Supervisor) extractBatch(ctx context.Context, state *run.State, index map[string]item.Item, batchIDs []string) []item.Outcome {
	outcomes := make([]item.Outcome, len(batchIDs))
	attempted := make([]bool, len(batchIDs))

	xctx, stopDrain := s.drainContext(ctx)
	defer stopDrain()

	g := &errgroup.Group{}
	g.SetLimit(s.cfg.Workers)
	for i, itemID := range batchIDs {
		it := index[itemID]
		attempt := state.Attempts(itemID) + 1
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			attempted[i] = true
			outcomes[i] = s.extractOne(xctx, it, attempt)
			return nil
		})
	}
	_ = g.Wait()

	kept := make([]item.Outcome, 0, len(batchIDs))
	for i := range batchIDs {
		if !attempted[i] {
			continue
		}
		o := outcomes[i]
		if ctx.Err() != nil && o.Failed() && errors.Is(o.Err, context.Canceled) {
			// Cut off by the drain deadline, not a real attempt.
			continue
		}
		kept = append(kept, o)
	}
	return kept
}

// drainContext derives the context extraction calls run under. It is
// independent of run cancellation; once the run context is canceled it
// expires after DrainTimeout so a drain cannot hang on a stuck call.
func (s *Supervisor) drainContext(ctx context.Context) (context.Context, context.CancelFunc) {
	xctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		select {
		case <-xctx.Done():
		case <-ctx.Done():
			t := time.NewTimer(s.cfg.DrainTimeout)
			defer t.Stop()
			select {
			case <-xctx.Done():
			case <-t.C:
				cancel()
			}
		}
	}()
	return xctx, cancel
}

func (s *Supervisor) extractOne(ctx context.Context, it item.Item, attempt int) item.Outcome {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return item.Failure(it.ID, attempt, rebatch.Transient(err))
		}
	}
	result, err := s.chain(ctx, it, func(ctx context.Context) ([]byte, error) {
		return s.extractor.Extract(ctx, it)
	})
	if err != nil {
		return item.Failure(it.ID, attempt, err)
	}
	return item.Success(it.ID, attempt, result)
}

func (s *Supervisor) saveCheckpoint(ctx context.Context, state *run.State) error {
	if err := s.store.Save(ctx, state); err != nil {
		return fmt.Errorf("engine: save checkpoint: %w", err)
	}
	return nil
}

// abort finalizes a failed run: the last good checkpoint is left in
// place and the returned error wraps rebatch.ErrRunAborted.
func (s *Supervisor) abort(ctx context.Context, state *run.State, total int, cause error) (run.Summary, error) {
	s.setPhase(run.PhaseAborted)
	summary := s.summarize(state, total, run.PhaseAborted)
	s.logger.LogAttrs(ctx, slog.LevelError, "run aborted",
		slog.String("run_id", state.RunID().String()),
		slog.Int("remaining", state.Remaining()),
		slog.String("error", cause.Error()),
	)
	s.hooks.EmitRunAborted(ctx, state.RunID(), cause)
	return summary, fmt.Errorf("%w: %w", rebatch.ErrRunAborted, cause)
}

// Phase reports the supervisor's current lifecycle phase. Before the
// first Run it is PhaseStarting.
func (s *Supervisor) Phase() run.Phase {
	if p, ok := s.phase.Load().(run.Phase); ok {
		return p
	}
	return run.PhaseStarting
}

func (s *Supervisor) setPhase(p run.Phase) { s.phase.Store(p) }

func (s *Supervisor) summarize(state *run.State, total int, phase run.Phase) run.Summary {
	return run.Summary{
		RunID:             state.RunID(),
		Phase:             phase,
		Total:             total,
		Elapsed:           time.Since(state.StartedAt()),
		Succeeded:         int(state.Stats().Succeeded()),
		PermanentFailures: state.PermanentFailures(),
		Attempts:          state.Stats().Attempted(),
	}
}

// persistCtx returns the context used for checkpoint and sink writes.
// Once the run context is canceled, persistence switches to a detached
// context bounded by DrainTimeout so the final state still lands.
func (s *Supervisor) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DrainTimeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
