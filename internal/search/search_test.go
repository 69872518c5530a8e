package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"lexdraft/api/internal/store"
)

type fakeLister struct {
	documents []store.Document
	err       error
	gotOwner  string
	gotOrg    string
}

func (f *fakeLister) ListDocumentsForViewer(_ context.Context, ownerID, orgID string) ([]store.Document, error) {
	f.gotOwner, f.gotOrg = ownerID, orgID
	return f.documents, f.err
}

func TestScanSearchMatchesTitleAndContent(t *testing.T) {
	lister := &fakeLister{documents: []store.Document{
		{ID: "doc_1", Title: "Mutual NDA", Content: "Confidential information stays confidential.", Status: store.StatusDraft},
		{ID: "doc_2", Title: "Lease", Content: "The tenant pays rent.", Status: store.StatusFinal},
		{ID: "doc_3", Title: "Employment", Content: "Includes a confidentiality clause.", Status: store.StatusFinal},
	}}
	svc := NewService(nil, NewScan(lister))

	resp := svc.Search(context.Background(), Query{Text: "CONFIDENTIAL", OwnerID: "user_1", OrgID: "org_1"})
	if resp.Total != 2 || len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %+v", resp)
	}
	if resp.Results[0].ID != "doc_1" || resp.Results[1].ID != "doc_3" {
		t.Fatalf("unexpected order: %+v", resp.Results)
	}
	if lister.gotOwner != "user_1" || lister.gotOrg != "org_1" {
		t.Fatalf("expected viewer scope to be forwarded, got %q/%q", lister.gotOwner, lister.gotOrg)
	}

	filtered := svc.Search(context.Background(), Query{Text: "confidential", Status: "FINAL"})
	if filtered.Total != 1 || filtered.Results[0].ID != "doc_3" {
		t.Fatalf("expected status filter to keep doc_3, got %+v", filtered)
	}
}

func TestScanSearchPaginates(t *testing.T) {
	var documents []store.Document
	for i := 0; i < 5; i++ {
		documents = append(documents, store.Document{ID: string(rune('a' + i)), Title: "contract", UpdatedAt: time.Now()})
	}
	svc := NewService(nil, NewScan(&fakeLister{documents: documents}))

	resp := svc.Search(context.Background(), Query{Text: "contract", Limit: 2, Offset: 4})
	if resp.Total != 5 || len(resp.Results) != 1 || resp.Results[0].ID != "e" {
		t.Fatalf("unexpected page: %+v", resp)
	}

	beyond := svc.Search(context.Background(), Query{Text: "contract", Offset: 10})
	if len(beyond.Results) != 0 {
		t.Fatalf("expected empty page, got %+v", beyond.Results)
	}
}

func TestScanSnippetHandlesCaseFoldingThatChangesWidth(t *testing.T) {
	// Ⱥ lowercases to a wider UTF-8 sequence, İ to a narrower one.
	lister := &fakeLister{documents: []store.Document{
		{ID: "doc_wide", Title: "Wide", Content: strings.Repeat("Ⱥ", 200) + " indemnity clause"},
		{ID: "doc_narrow", Title: "Narrow", Content: strings.Repeat("İ", 200) + " Indemnity applies"},
	}}
	svc := NewService(nil, NewScan(lister))

	resp := svc.Search(context.Background(), Query{Text: "indemnity"})
	if resp.Total != 2 {
		t.Fatalf("expected both documents to match, got %+v", resp)
	}
	for _, result := range resp.Results {
		if !utf8.ValidString(result.Snippet) {
			t.Fatalf("snippet for %s is not valid UTF-8: %q", result.ID, result.Snippet)
		}
		if !strings.Contains(strings.ToLower(result.Snippet), "indemnity") {
			t.Fatalf("snippet for %s misses the match: %q", result.ID, result.Snippet)
		}
	}

	folded := svc.Search(context.Background(), Query{Text: "ⱥⱥⱥ"})
	if folded.Total != 1 || folded.Results[0].ID != "doc_wide" {
		t.Fatalf("expected case-folded match on doc_wide, got %+v", folded)
	}
}

func TestServiceSwallowsFallbackErrors(t *testing.T) {
	svc := NewService(nil, NewScan(&fakeLister{err: errors.New("boom")}))
	resp := svc.Search(context.Background(), Query{Text: "anything"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp)
	}
}

func TestBuildFilterScopesToViewer(t *testing.T) {
	cases := []struct {
		name  string
		query Query
		want  string
	}{
		{name: "owner and org", query: Query{OwnerID: "u1", OrgID: "o1"}, want: `(ownerId = "u1" OR orgId = "o1")`},
		{name: "owner only", query: Query{OwnerID: "u1"}, want: `(ownerId = "u1")`},
		{name: "no scope", query: Query{}, want: `(ownerId = "")`},
		{name: "with status", query: Query{OwnerID: "u1", Status: "FINAL"}, want: `(ownerId = "u1") AND status = "FINAL"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildFilter(tc.query); got != tc.want {
				t.Fatalf("buildFilter() = %s, want %s", got, tc.want)
			}
		})
	}
}
