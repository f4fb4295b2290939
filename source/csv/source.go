// Package csvsource implements source.Source over a CSV file with a
// header row. Each data row becomes one work item: the identifier is
// taken from a configurable column and the payload is the full row
// encoded as a JSON object keyed by header names.
package csvsource

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fieldline/rebatch/item"
	"github.com/fieldline/rebatch/source"
)

// Compile-time interface check.
var _ source.Source = (*Source)(nil)

const defaultIDColumn = "id"

// Option configures the Source.
type Option func(*Source)

// WithIDColumn sets the header name of the item identifier column.
func WithIDColumn(name string) Option {
	return func(s *Source) { s.idColumn = name }
}

// Source reads work items from a CSV file. File order is processing
// order, which keeps resume deterministic as long as the file does not
// change between runs.
type Source struct {
	path     string
	idColumn string
}

// New creates a CSV item source for the given path.
func New(path string, opts ...Option) *Source {
	s := &Source{path: path, idColumn: defaultIDColumn}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load reads the whole file and converts rows to items.
func (s *Source) Load(_ context.Context) ([]item.Item, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("rebatch/csvsource: open %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("rebatch/csvsource: read %s: %w", s.path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("rebatch/csvsource: %s: missing header row", s.path)
	}

	header := rows[0]
	idIdx := -1
	for i, name := range header {
		if name == s.idColumn {
			idIdx = i
			break
		}
	}
	if idIdx < 0 {
		return nil, fmt.Errorf("rebatch/csvsource: %s: no %q column in header", s.path, s.idColumn)
	}

	items := make([]item.Item, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if row[idIdx] == "" {
			return nil, fmt.Errorf("rebatch/csvsource: %s: empty identifier at row %d", s.path, n+2)
		}

		fields := make(map[string]string, len(header))
		for i, name := range header {
			fields[name] = row[i]
		}
		payload, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("rebatch/csvsource: encode row %d: %w", n+2, err)
		}

		items = append(items, item.Item{ID: row[idIdx], Payload: payload})
	}
	return items, nil
}
