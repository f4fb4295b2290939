package rebatch

import "errors"

var (
	// Wiring errors.
	ErrNoSource    = errors.New("rebatch: no item source configured")
	ErrNoExtractor = errors.New("rebatch: no extractor configured")
	ErrNoSink      = errors.New("rebatch: no result sink configured")
	ErrNoStore     = errors.New("rebatch: no checkpoint store configured")

	// Checkpoint errors.
	ErrCorruptCheckpoint = errors.New("rebatch: corrupt checkpoint")
	ErrNoCheckpoint      = errors.New("rebatch: no checkpoint to resume from")

	// Run errors.
	ErrRunAborted     = errors.New("rebatch: run aborted")
	ErrAlreadyRunning = errors.New("rebatch: run already in progress")
	ErrDuplicateItem  = errors.New("rebatch: duplicate item identifier in source")
)

// TransientError marks an extraction failure as retryable: rate limits,
// timeouts, transient network faults. Unwrapped errors from an extractor
// are treated as transient as well; wrapping is only needed to force
// permanent classification.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks an extraction failure as non-retryable: malformed
// input detected deterministically, a rejected request that will never
// succeed. Items failing with a PermanentError skip the retry budget.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

// Unwrap returns the underlying error.
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable extraction failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as a non-retryable extraction failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries permanent classification
// anywhere in its chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTransient reports whether err should be retried. Every extraction
// error that is not explicitly permanent is transient.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
