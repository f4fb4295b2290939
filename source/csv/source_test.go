package csvsource_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	csvsource "github.com/fieldline/rebatch/source/csv"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "call_id,transcript\nc1,hello there\nc2,goodbye\n")

	items, err := csvsource.New(path, csvsource.WithIDColumn("call_id")).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "c1" || items[1].ID != "c2" {
		t.Fatalf("unexpected ids: %q, %q", items[0].ID, items[1].ID)
	}

	var fields map[string]string
	if err := json.Unmarshal(items[0].Payload, &fields); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if fields["transcript"] != "hello there" {
		t.Fatalf("payload lost fields: %v", fields)
	}
}

func TestLoad_StableOrder(t *testing.T) {
	path := writeFile(t, "id,v\nz,1\na,2\nm,3\n")
	src := csvsource.New(path)

	first, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	second, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("order not stable at %d: %q != %q", i, first[i].ID, second[i].ID)
		}
	}
	// File order, not sorted order.
	if first[0].ID != "z" {
		t.Fatalf("expected file order, got %q first", first[0].ID)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"missing id column": "name,v\nx,1\n",
		"empty identifier":  "id,v\n,1\n",
		"empty file":        "",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, content)
			if _, err := csvsource.New(path).Load(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := csvsource.New(filepath.Join(t.TempDir(), "nope.csv")).Load(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}
