package csvsink_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/fieldline/rebatch/item"
	csvsink "github.com/fieldline/rebatch/sink/csv"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return rows
}

func TestAppend_WritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s := csvsink.New(path)

	records := []item.Record{
		{ItemID: "a", Status: item.StatusOK, Attempts: 1, Result: []byte(`{"x":1}`)},
		{ItemID: "b", Status: item.StatusFailed, Attempts: 3, Error: "gave up"},
	}
	if err := s.Append(context.Background(), records); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "item_id" {
		t.Fatalf("missing header: %v", rows[0])
	}
	if rows[1][0] != "a" || rows[1][1] != "ok" || rows[1][3] != `{"x":1}` {
		t.Fatalf("bad success row: %v", rows[1])
	}
	if rows[2][0] != "b" || rows[2][1] != "failed" || rows[2][2] != "3" || rows[2][4] != "gave up" {
		t.Fatalf("bad failure row: %v", rows[2])
	}
}

func TestAppend_SkipsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s := csvsink.New(path)

	rec := item.Record{ItemID: "a", Status: item.StatusOK, Attempts: 1}
	if err := s.Append(context.Background(), []item.Record{rec}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(context.Background(), []item.Record{rec}); err != nil {
		t.Fatalf("replay append: %v", err)
	}

	if rows := readRows(t, path); len(rows) != 2 {
		t.Fatalf("duplicate row written: %d rows", len(rows))
	}
}

func TestAppend_DedupesAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	first := csvsink.New(path)
	if err := first.Append(context.Background(), []item.Record{
		{ItemID: "a", Status: item.StatusOK, Attempts: 1},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// A fresh sink on the same file, as after a process restart.
	second := csvsink.New(path)
	if err := second.Append(context.Background(), []item.Record{
		{ItemID: "a", Status: item.StatusOK, Attempts: 1},
		{ItemID: "b", Status: item.StatusOK, Attempts: 2},
	}); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header + a + b, got %d rows", len(rows))
	}
	if rows[2][0] != "b" {
		t.Fatalf("expected b appended last, got %v", rows[2])
	}
}

func TestAppend_EmptyBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s := csvsink.New(path)

	if err := s.Append(context.Background(), nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("empty append should not create the file")
	}
}
