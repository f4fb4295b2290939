// Command rebatch runs a resumable batch extraction over a CSV of
// input records.
//
//	rebatch run -input calls.csv -output results.csv -endpoint https://api.example.com/extract
//
// An interrupted run leaves its checkpoint behind; invoking the same
// command again resumes where it stopped. Pass -resume to insist that
// a checkpoint exists, or -fresh to discard it and start over.
//
// Exit codes: 0 on clean completion, 1 on abort, 2 on usage errors,
// 3 when the run completed but some items failed permanently.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fieldline/rebatch"
	"github.com/fieldline/rebatch/backoff"
	"github.com/fieldline/rebatch/checkpoint"
	bunstore "github.com/fieldline/rebatch/checkpoint/bun"
	filestore "github.com/fieldline/rebatch/checkpoint/file"
	redisstore "github.com/fieldline/rebatch/checkpoint/redis"
	"github.com/fieldline/rebatch/engine"
	"github.com/fieldline/rebatch/extractor/httpextract"
	"github.com/fieldline/rebatch/middleware"
	"github.com/fieldline/rebatch/run"
	csvsink "github.com/fieldline/rebatch/sink/csv"
	csvsource "github.com/fieldline/rebatch/source/csv"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}
	switch os.Args[1] {
	case "run":
		os.Exit(runCmd(os.Args[2:]))
	case "-h", "-help", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "rebatch: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(exitUsage)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: rebatch run [flags]

Resumable batch extraction: reads items from a CSV, calls an HTTP
extraction endpoint for each, and appends results to an output CSV.

Run "rebatch run -h" for flags.
`)
}

func runCmd(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		input      = fs.String("input", "", "input CSV path (required)")
		idColumn   = fs.String("id-column", "id", "input column holding the item identifier")
		output     = fs.String("output", "results.csv", "output CSV path")
		endpoint   = fs.String("endpoint", "", "extraction endpoint URL (required)")
		authToken  = fs.String("token", os.Getenv("REBATCH_TOKEN"), "bearer token for the endpoint")
		storeKind  = fs.String("store", "file", "checkpoint backend: file, redis or postgres")
		ckptPath   = fs.String("checkpoint", "checkpoint.json", "checkpoint file path (store=file)")
		redisAddr  = fs.String("redis-addr", "localhost:6379", "redis address (store=redis)")
		pgDSN      = fs.String("pg-dsn", os.Getenv("REBATCH_PG_DSN"), "postgres DSN (store=postgres)")
		batchSize  = fs.Int("batch-size", 10, "items per batch")
		maxRetries = fs.Int("max-attempts", 3, "total attempts per item before permanent failure")
		workers    = fs.Int("workers", 5, "concurrent extraction calls per batch")
		rateLimit  = fs.Float64("rate", 0, "max extraction calls per second, 0 disables")
		timeout    = fs.Duration("timeout", 60*time.Second, "per-item extraction timeout")
		fresh      = fs.Bool("fresh", false, "discard any existing checkpoint and start over")
		resume     = fs.Bool("resume", false, "require an existing checkpoint; fail instead of starting fresh")
		logLevel   = fs.String("log-level", "info", "log level: debug, info, warn or error")
	)
	fs.Parse(args)

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	if *input == "" || *endpoint == "" {
		fmt.Fprintln(os.Stderr, "rebatch: -input and -endpoint are required")
		fs.Usage()
		return exitUsage
	}
	if *fresh && *resume {
		fmt.Fprintln(os.Stderr, "rebatch: -fresh and -resume are mutually exclusive")
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(ctx, *storeKind, *ckptPath, *redisAddr, *pgDSN)
	if err != nil {
		logger.Error("open checkpoint store", "error", err)
		return 1
	}
	defer cleanup()

	var extOpts []httpextract.Option
	if *authToken != "" {
		extOpts = append(extOpts, httpextract.WithHeader("Authorization", "Bearer "+*authToken))
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithBackoff(backoff.DefaultStrategy()),
		engine.WithMiddleware(
			middleware.Logging(logger),
			middleware.Recover(logger),
			middleware.Timeout(*timeout),
		),
	}
	if *fresh {
		opts = append(opts, engine.WithFreshStart())
	}
	if *resume {
		opts = append(opts, engine.WithResumeRequired())
	}

	sup, err := engine.New(
		rebatch.Config{
			BatchSize:   *batchSize,
			MaxAttempts: *maxRetries,
			Workers:     *workers,
			RateLimit:   *rateLimit,
		},
		csvsource.New(*input, csvsource.WithIDColumn(*idColumn)),
		httpextract.New(*endpoint, extOpts...),
		csvsink.New(*output),
		store,
		opts...,
	)
	if err != nil {
		logger.Error("configure engine", "error", err)
		return 1
	}

	summary, err := sup.Run(ctx)
	if err != nil {
		switch {
		case errors.Is(err, rebatch.ErrNoCheckpoint):
			logger.Error("nothing to resume", "error", err)
		case errors.Is(err, rebatch.ErrRunAborted):
			logger.Error("run aborted, checkpoint kept for resume", "error", err)
		default:
			logger.Error("run failed", "error", err)
		}
		return exitAborted
	}

	logger.Info("done",
		"run_id", summary.RunID.String(),
		"succeeded", summary.Succeeded,
		"failed", len(summary.PermanentFailures),
		"elapsed", summary.Elapsed.Round(time.Millisecond),
	)
	return exitCode(summary)
}

const (
	exitOK      = 0
	exitAborted = 1
	exitUsage   = 2
	// exitPartial marks a completed run in which some items were
	// recorded as permanent failures. The checkpoint is cleared and
	// the failures are in the output; re-running will not retry them.
	exitPartial = 3
)

func exitCode(summary run.Summary) int {
	if summary.Phase != run.PhaseCompleted {
		return exitAborted
	}
	if len(summary.PermanentFailures) > 0 {
		return exitPartial
	}
	return exitOK
}

func openStore(ctx context.Context, kind, path, redisAddr, pgDSN string) (checkpoint.Store, func(), error) {
	switch kind {
	case "file":
		return filestore.New(path), func() {}, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return redisstore.New(client), func() { _ = client.Close() }, nil
	case "postgres":
		if pgDSN == "" {
			return nil, nil, errors.New("store=postgres requires -pg-dsn or REBATCH_PG_DSN")
		}
		db := bunstore.Connect(pgDSN)
		store := bunstore.New(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate checkpoint table: %w", err)
		}
		return store, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", kind)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
