// Package item defines the work item and per-attempt outcome types that
// flow between the item source, the extraction operation, and the
// result sink.
package item

// Item is one unit of work supplied by an item source. Items are
// immutable once loaded; the engine references them by ID only.
type Item struct {
	// ID uniquely identifies the item within its source. The engine
	// treats it as opaque; it must be stable across process restarts
	// for resume to work.
	ID string `json:"id"`

	// Payload is the record to extract from, opaque to the engine.
	Payload []byte `json:"payload"`
}

// Outcome is the result of a single extraction attempt for one item.
// Exactly one of Result and Err is meaningful: Err == nil means success.
type Outcome struct {
	ItemID string

	// Attempt is the 1-based attempt number that produced this outcome.
	Attempt int

	// Result is the extracted payload on success.
	Result []byte

	// Err is the classified extraction error on failure.
	Err error
}

// Success builds a successful outcome.
func Success(itemID string, attempt int, result []byte) Outcome {
	return Outcome{ItemID: itemID, Attempt: attempt, Result: result}
}

// Failure builds a failed outcome.
func Failure(itemID string, attempt int, err error) Outcome {
	return Outcome{ItemID: itemID, Attempt: attempt, Err: err}
}

// Failed reports whether the attempt failed.
func (o Outcome) Failed() bool { return o.Err != nil }

// Status marks a sink record as a success or a permanent failure.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Record is a terminal result handed to the result sink: either the
// extracted payload or an explicit permanent-failure marker. Permanently
// failed items are written rather than silently dropped.
type Record struct {
	ItemID   string `json:"item_id"`
	Status   Status `json:"status"`
	Attempts int    `json:"attempts"`
	Result   []byte `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RecordOf converts a terminal outcome into a sink record.
func RecordOf(o Outcome) Record {
	r := Record{
		ItemID:   o.ItemID,
		Status:   StatusOK,
		Attempts: o.Attempt,
		Result:   o.Result,
	}
	if o.Failed() {
		r.Status = StatusFailed
		r.Result = nil
		r.Error = o.Err.Error()
	}
	return r
}
