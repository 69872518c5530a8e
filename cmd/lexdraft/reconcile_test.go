package main

import (
	"strings"
	"testing"
	"time"

	"lexdraft/api/internal/store"
)

func TestRenderOrphans(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	out := renderOrphans([]store.OrphanVersion{{
		DocumentID:        "doc_1",
		Version:           4,
		VersionCreatedAt:  created,
		DocumentUpdatedAt: created.Add(-time.Hour),
	}})

	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", out)
	}
	for _, column := range []string{"DOCUMENT", "VERSION", "VERSION CREATED", "DOCUMENT UPDATED"} {
		if !strings.Contains(lines[0], column) {
			t.Fatalf("header %q misses %q", lines[0], column)
		}
	}
	for _, cell := range []string{"doc_1", "4", "2026-03-01T09:30:00Z", "2026-03-01T08:30:00Z"} {
		if !strings.Contains(lines[1], cell) {
			t.Fatalf("row %q misses %q", lines[1], cell)
		}
	}
}
