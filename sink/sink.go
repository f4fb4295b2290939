// Package sink defines the result sink contract: where terminal
// outcomes go.
package sink

import (
	"context"

	"github.com/fieldline/rebatch/item"
)

// Sink persists terminal records: successful extractions and explicit
// permanent-failure markers. The engine calls Append once per batch.
//
// Implementations must be idempotent-safe under at-least-once delivery:
// re-appending a record for an identifier that is already present must
// not corrupt the output. The engine replays a batch's records after a
// crash between checkpoint save and append confirmation.
type Sink interface {
	Append(ctx context.Context, records []item.Record) error
}
