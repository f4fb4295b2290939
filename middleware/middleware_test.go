package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/fieldline/rebatch"
	"github.com/fieldline/rebatch/item"
	"github.com/fieldline/rebatch/middleware"
)

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ item.Item, next middleware.Handler) ([]byte, error) {
		order = append(order, "mw1-before")
		result, err := next(ctx)
		order = append(order, "mw1-after")
		return result, err
	}

	mw2 := func(ctx context.Context, _ item.Item, next middleware.Handler) ([]byte, error) {
		order = append(order, "mw2-before")
		result, err := next(ctx)
		order = append(order, "mw2-after")
		return result, err
	}

	chain := middleware.Chain(mw1, mw2)
	handler := func(_ context.Context) ([]byte, error) {
		order = append(order, "handler")
		return []byte("out"), nil
	}

	result, err := chain(context.Background(), item.Item{ID: "a"}, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(result, []byte("out")) {
		t.Fatalf("result lost in chain: %q", result)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false

	_, err := chain(context.Background(), item.Item{ID: "a"}, func(_ context.Context) ([]byte, error) {
		called = true
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ item.Item, next middleware.Handler) ([]byte, error) {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("extractor error")

	_, err := chain(context.Background(), item.Item{ID: "a"}, func(_ context.Context) ([]byte, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	result, err := mw(context.Background(), item.Item{ID: "panicky"}, func(_ context.Context) ([]byte, error) {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if result != nil {
		t.Fatalf("expected nil result after panic, got %q", result)
	}
	if got := err.Error(); got != "panic extracting item panicky: test panic" {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	called := false
	_, err := mw(context.Background(), item.Item{ID: "normal"}, func(_ context.Context) ([]byte, error) {
		called = true
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestTimeout_MarksDeadlineTransient(t *testing.T) {
	mw := middleware.Timeout(10 * time.Millisecond)

	_, err := mw(context.Background(), item.Item{ID: "slow"}, func(ctx context.Context) ([]byte, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return []byte("never"), nil
		}
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !rebatch.IsTransient(err) {
		t.Fatalf("deadline error should be transient, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded in chain, got %v", err)
	}
}

func TestTimeout_ZeroDisables(t *testing.T) {
	mw := middleware.Timeout(0)

	result, err := mw(context.Background(), item.Item{ID: "a"}, func(ctx context.Context) ([]byte, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Fatal("no deadline should be set")
		}
		return []byte("ok"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(result, []byte("ok")) {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestLogging_PassesResultThrough(t *testing.T) {
	mw := middleware.Logging(slog.Default())

	result, err := mw(context.Background(), item.Item{ID: "a"}, func(_ context.Context) ([]byte, error) {
		return []byte("payload"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(result, []byte("payload")) {
		t.Fatalf("result lost: %q", result)
	}
}
