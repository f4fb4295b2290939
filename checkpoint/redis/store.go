// Package redis implements checkpoint.Store on Redis. The run state is
// stored as a JSON string under a single key.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client, redisstore.WithKey("rebatch:transcripts"))
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fieldline/rebatch"
	"github.com/fieldline/rebatch/checkpoint"
	"github.com/fieldline/rebatch/run"
)

// Compile-time interface check.
var _ checkpoint.Store = (*Store)(nil)

const defaultKey = "rebatch:checkpoint"

// Option configures the Store.
type Option func(*Store)

// WithKey sets the Redis key the checkpoint is stored under. Use a
// distinct key per logical run when several runs share one Redis.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// Store is a Redis-backed checkpoint store. The caller owns the Redis
// client lifecycle.
type Store struct {
	client goredis.Cmdable
	key    string
}

// New creates a Redis checkpoint store.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, key: defaultKey}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load fetches and decodes the checkpoint. A missing key means no
// checkpoint and returns (nil, nil).
func (s *Store) Load(ctx context.Context) (*run.State, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil //nolint:nilnil // nil state signals "no checkpoint", not an error
		}
		return nil, fmt.Errorf("rebatch/redis: load checkpoint: %w", err)
	}

	state := &run.State{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("rebatch/redis: decode %s: %w: %w", s.key, rebatch.ErrCorruptCheckpoint, err)
	}
	return state, nil
}

// Save stores the state under the configured key. SET replaces the
// value atomically, so a failed write leaves the previous checkpoint
// intact.
func (s *Store) Save(ctx context.Context, state *run.State) error {
	state.Touch(time.Now())

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("rebatch/redis: encode checkpoint: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("rebatch/redis: save checkpoint: %w", err)
	}
	return nil
}

// Clear deletes the checkpoint key.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("rebatch/redis: clear checkpoint: %w", err)
	}
	return nil
}
