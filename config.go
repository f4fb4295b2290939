package rebatch

import "time"

// Config holds configuration for the batch engine.
type Config struct {
	// BatchSize is the number of pending items taken per batch.
	BatchSize int

	// MaxAttempts is the total number of times a failing item is
	// attempted before it is recorded as a permanent failure.
	MaxAttempts int

	// Workers is the maximum number of extraction calls in flight
	// at once within a batch. Capped at BatchSize by the engine.
	Workers int

	// RateLimit is the maximum sustained extraction calls per second
	// across all workers. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int

	// ProgressInterval is how many terminal items between progress
	// hook emissions. Zero disables progress reporting.
	ProgressInterval int

	// DrainTimeout bounds how long the engine waits for in-flight
	// extractions to finish after cancellation before the run is
	// abandoned without a final checkpoint.
	DrainTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:        10,
		MaxAttempts:      3,
		Workers:          5,
		RateBurst:        1,
		ProgressInterval: 100,
		DrainTimeout:     5 * time.Minute,
	}
}
