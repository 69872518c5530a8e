package search

import (
	"context"
	"time"

	"lexdraft/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Snippet      string `json:"snippet"`
	Status       string `json:"status"`
	DocumentType string `json:"documentType"`
	Jurisdiction string `json:"jurisdiction"`
}

// Query describes a search request. Results are restricted to documents
// owned by OwnerID or belonging to OrgID.
type Query struct {
	Text         string
	OwnerID      string
	OrgID        string
	Status       string
	Jurisdiction string
	Limit        int
	Offset       int
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	Status       string `json:"status"`
	DocumentType string `json:"documentType"`
	Jurisdiction string `json:"jurisdiction"`
	OwnerID      string `json:"ownerId"`
	OrgID        string `json:"orgId"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// RecordOf converts a document into its index record.
func RecordOf(doc store.Document) DocumentRecord {
	return DocumentRecord{
		ID:           doc.ID,
		Title:        doc.Title,
		Content:      doc.Content,
		Status:       string(doc.Status),
		DocumentType: doc.DocumentType,
		Jurisdiction: doc.Jurisdiction,
		OwnerID:      doc.OwnerID,
		OrgID:        doc.OrgID,
		UpdatedAt:    doc.UpdatedAt.UTC().Truncate(time.Second).Unix(),
	}
}
