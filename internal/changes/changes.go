// Package changes classifies the difference between two states of a
// document.
package changes

import (
	"strings"

	"lexdraft/api/internal/store"
)

// Field names a trackable document attribute.
type Field string

const (
	FieldTitle        Field = "title"
	FieldContent      Field = "content"
	FieldStatus       Field = "status"
	FieldDocumentType Field = "documentType"
	FieldJurisdiction Field = "jurisdiction"
)

// TrackedFields is the fixed, ordered set of attributes compared between
// states. ChangedFields always follows this order.
var TrackedFields = []Field{FieldTitle, FieldContent, FieldStatus, FieldDocumentType, FieldJurisdiction}

// Snapshot is the trackable state of a document.
type Snapshot struct {
	Title        string
	Content      string
	Status       store.Status
	DocumentType string
	Jurisdiction string
}

// SnapshotOf extracts the trackable state from a document.
func SnapshotOf(doc store.Document) Snapshot {
	return Snapshot{
		Title:        doc.Title,
		Content:      doc.Content,
		Status:       doc.Status,
		DocumentType: doc.DocumentType,
		Jurisdiction: doc.Jurisdiction,
	}
}

func (s Snapshot) value(field Field) string {
	switch field {
	case FieldTitle:
		return s.Title
	case FieldContent:
		return s.Content
	case FieldStatus:
		return string(s.Status)
	case FieldDocumentType:
		return s.DocumentType
	case FieldJurisdiction:
		return s.Jurisdiction
	default:
		return ""
	}
}

// Change is the result of Classify.
type Change struct {
	Type          store.ChangeType
	ChangedFields []string
	Summary       string
}

// Changed reports whether the change should produce a version.
func (c Change) Changed() bool {
	return c.Type == store.ChangeCreated || len(c.ChangedFields) > 0
}

// Classify compares previous with next. A nil previous means the document is
// being created. Classify has no side effects.
func Classify(previous *Snapshot, next Snapshot) Change {
	if previous == nil {
		return Change{
			Type:          store.ChangeCreated,
			ChangedFields: []string{},
			Summary:       "Created document",
		}
	}

	changed := []string{}
	contentChanged, statusChanged, otherChanged := false, false, false
	for _, field := range TrackedFields {
		if previous.value(field) == next.value(field) {
			continue
		}
		changed = append(changed, string(field))
		switch field {
		case FieldContent:
			contentChanged = true
		case FieldStatus:
			statusChanged = true
		default:
			otherChanged = true
		}
	}

	if len(changed) == 0 {
		return Change{ChangedFields: changed, Summary: "No changes"}
	}

	var changeType store.ChangeType
	switch {
	case contentChanged && statusChanged:
		changeType = store.ChangeMixed
	case contentChanged:
		changeType = store.ChangeContent
	case statusChanged && !otherChanged:
		changeType = store.ChangeStatus
	default:
		changeType = store.ChangeMetadata
	}

	return Change{
		Type:          changeType,
		ChangedFields: changed,
		Summary:       Summarize(changed),
	}
}

// Summarize renders a short description of the changed fields.
func Summarize(fields []string) string {
	if len(fields) == 0 {
		return "No changes"
	}
	return "Updated " + strings.Join(fields, ", ")
}

// Apply overlays the non-nil fields of patch onto base.
func Apply(base Snapshot, patch Patch) Snapshot {
	next := base
	if patch.Title != nil {
		next.Title = *patch.Title
	}
	if patch.Content != nil {
		next.Content = *patch.Content
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.DocumentType != nil {
		next.DocumentType = *patch.DocumentType
	}
	if patch.Jurisdiction != nil {
		next.Jurisdiction = *patch.Jurisdiction
	}
	return next
}

// Patch is a partial document update. Nil fields are left unchanged.
type Patch struct {
	Title        *string
	Content      *string
	Status       *store.Status
	DocumentType *string
	Jurisdiction *string
}
