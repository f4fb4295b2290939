// Package source defines the item source contract: where work items
// come from.
package source

import (
	"context"

	"github.com/fieldline/rebatch/item"
)

// Source supplies the ordered collection of work items for a run.
type Source interface {
	// Load returns all items in processing order. The order must be
	// stable: repeated calls return the same items in the same order,
	// otherwise resume is not reproducible.
	Load(ctx context.Context) ([]item.Item, error)
}

// Static is a fixed in-memory source. Useful for tests and small runs.
type Static []item.Item

// Load returns the items as given.
func (s Static) Load(_ context.Context) ([]item.Item, error) {
	return s, nil
}
