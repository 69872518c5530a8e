package search

import (
	"context"
	"strings"
	"unicode"

	"lexdraft/api/internal/store"
)

// DocumentLister lists the documents a viewer may see.
type DocumentLister interface {
	ListDocumentsForViewer(ctx context.Context, ownerID, orgID string) ([]store.Document, error)
}

// Scan is a case-insensitive substring searcher over a DocumentLister. It
// serves the in-memory store, which has no text index.
type Scan struct {
	documents DocumentLister
}

func NewScan(documents DocumentLister) *Scan {
	return &Scan{documents: documents}
}

func (s *Scan) Healthy() bool {
	return true
}

func (s *Scan) Search(ctx context.Context, q Query) ([]Result, int, error) {
	needle := foldRunes(strings.TrimSpace(q.Text))
	if len(needle) == 0 {
		return nil, 0, nil
	}
	documents, err := s.documents.ListDocumentsForViewer(ctx, q.OwnerID, q.OrgID)
	if err != nil {
		return nil, 0, err
	}

	matches := []Result{}
	for _, doc := range documents {
		if q.Status != "" && string(doc.Status) != q.Status {
			continue
		}
		if q.Jurisdiction != "" && doc.Jurisdiction != q.Jurisdiction {
			continue
		}
		content := []rune(doc.Content)
		at := indexRunes(foldRunes(doc.Content), needle)
		if at < 0 && indexRunes(foldRunes(doc.Title), needle) < 0 {
			continue
		}
		matches = append(matches, Result{
			ID:           doc.ID,
			Title:        doc.Title,
			Snippet:      snippet(content, at, len(needle)),
			Status:       string(doc.Status),
			DocumentType: doc.DocumentType,
			Jurisdiction: doc.Jurisdiction,
		})
	}

	total := len(matches)
	start := q.offset()
	if start > total {
		start = total
	}
	end := start + q.limit()
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

// foldRunes lowercases rune by rune so indexes line up with []rune(s).
func foldRunes(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

func indexRunes(haystack, needle []rune) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, r := range needle {
			if haystack[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// snippet cuts up to radius runes either side of the match at rune index at.
func snippet(content []rune, at, length int) string {
	const radius = 60
	if at < 0 {
		if len(content) > 2*radius {
			return string(content[:2*radius])
		}
		return string(content)
	}
	start := at - radius
	if start < 0 {
		start = 0
	}
	end := at + length + radius
	if end > len(content) {
		end = len(content)
	}
	return string(content[start:end])
}
