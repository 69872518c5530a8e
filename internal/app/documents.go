package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"lexdraft/api/internal/changes"
	"lexdraft/api/internal/logging"
	"lexdraft/api/internal/metrics"
	"lexdraft/api/internal/rbac"
	"lexdraft/api/internal/search"
	"lexdraft/api/internal/store"
	"lexdraft/api/internal/util"
)

const maxTitleLength = 300

type CreateDocumentInput struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	Status       string `json:"status"`
	DocumentType string `json:"documentType"`
	Jurisdiction string `json:"jurisdiction"`
}

type UpdateDocumentInput struct {
	Title        *string `json:"title"`
	Content      *string `json:"content"`
	Status       *string `json:"status"`
	DocumentType *string `json:"documentType"`
	Jurisdiction *string `json:"jurisdiction"`
}

// UpdateResult reports the document after an update and the version it
// produced, if any.
type UpdateResult struct {
	Document DocumentView `json:"document"`
	Version  *VersionView `json:"version"`
}

type ListDocumentsInput struct {
	Query        string
	Status       string
	Jurisdiction string
	Limit        int
	Offset       int
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", validation("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", validation(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	return title, nil
}

func parseStatus(value string) (store.Status, error) {
	status, ok := store.ParseStatus(strings.ToUpper(strings.TrimSpace(value)))
	if !ok {
		return "", validation("status must be one of DRAFT, FINAL, ARCHIVED")
	}
	return status, nil
}

func (in UpdateDocumentInput) patch() (changes.Patch, error) {
	patch := changes.Patch{
		Content:      in.Content,
		DocumentType: in.DocumentType,
		Jurisdiction: in.Jurisdiction,
	}
	if in.Title != nil {
		title, err := validateTitle(*in.Title)
		if err != nil {
			return changes.Patch{}, err
		}
		patch.Title = &title
	}
	if in.Status != nil {
		status, err := parseStatus(*in.Status)
		if err != nil {
			return changes.Patch{}, err
		}
		patch.Status = &status
	}
	return patch, nil
}

// CreateDocument stores a new document owned by the session and records
// version 1 for it.
func (s *Service) CreateDocument(ctx context.Context, session Session, input CreateDocumentInput) (UpdateResult, error) {
	if session.UserID == "" {
		return UpdateResult{}, unauthorized()
	}
	title, err := validateTitle(input.Title)
	if err != nil {
		return UpdateResult{}, err
	}
	status := store.StatusDraft
	if strings.TrimSpace(input.Status) != "" {
		if status, err = parseStatus(input.Status); err != nil {
			return UpdateResult{}, err
		}
	}

	now := s.now()
	doc := store.Document{
		ID:           util.NewID("doc"),
		Title:        title,
		Content:      input.Content,
		Status:       status,
		DocumentType: strings.TrimSpace(input.DocumentType),
		Jurisdiction: strings.TrimSpace(input.Jurisdiction),
		OwnerID:      session.UserID,
		OrgID:        session.OrgID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return UpdateResult{}, fmt.Errorf("insert document: %w", err)
	}

	auditID := util.NewID("evt")
	change := changes.Classify(nil, changes.SnapshotOf(doc))
	version, err := s.appendVersion(ctx, session, doc, change, auditID)
	if err != nil {
		if deleteErr := s.store.DeleteDocument(ctx, doc.ID); deleteErr != nil {
			logging.From(ctx).Errorw("remove document after failed first version",
				"document_id", doc.ID,
				"error", deleteErr,
			)
		}
		return UpdateResult{}, fmt.Errorf("append first version: %w", err)
	}

	s.recordAudit(ctx, store.AuditEvent{
		ID:         auditID,
		OrgID:      doc.OrgID,
		DocumentID: doc.ID,
		ActorID:    session.UserID,
		Action:     "document.created",
		Details:    map[string]any{"title": doc.Title, "version": version.Version},
		CreatedAt:  now,
	})
	s.indexDocument(doc)

	view := versionView(version)
	return UpdateResult{Document: documentView(doc, rbac.RoleOwner), Version: &view}, nil
}

func (s *Service) GetDocument(ctx context.Context, session Session, documentID string) (DocumentView, error) {
	doc, role, err := s.authorize(ctx, session, documentID, rbac.ActionRead)
	if err != nil {
		return DocumentView{}, err
	}
	return documentView(doc, role), nil
}

// UpdateDocument applies a partial update. The new version is appended
// before the document row is written.
func (s *Service) UpdateDocument(ctx context.Context, session Session, documentID string, input UpdateDocumentInput) (UpdateResult, error) {
	patch, err := input.patch()
	if err != nil {
		return UpdateResult{}, err
	}
	return s.commit(ctx, session, documentID, "document.updated", nil, func(current changes.Snapshot) (changes.Snapshot, string) {
		return changes.Apply(current, patch), ""
	})
}

// commit runs the read, classify, append, write sequence for one document
// edit. A version number conflict re-reads the document and tries once
// more. edit returns the next state and an optional summary override.
func (s *Service) commit(
	ctx context.Context,
	session Session,
	documentID string,
	action string,
	auditDetails map[string]any,
	edit func(current changes.Snapshot) (changes.Snapshot, string),
) (UpdateResult, error) {
	logger := logging.From(ctx)
	for attempt := 1; ; attempt++ {
		doc, role, err := s.authorize(ctx, session, documentID, rbac.ActionWrite)
		if err != nil {
			return UpdateResult{}, err
		}

		current := changes.SnapshotOf(doc)
		next, summary := edit(current)
		change := changes.Classify(&current, next)
		if !change.Changed() {
			return UpdateResult{Document: documentView(doc, role)}, nil
		}
		if summary != "" {
			change.Summary = summary
		}

		auditID := util.NewID("evt")
		updated := doc
		updated.Title = next.Title
		updated.Content = next.Content
		updated.Status = next.Status
		updated.DocumentType = next.DocumentType
		updated.Jurisdiction = next.Jurisdiction

		version, err := s.appendVersion(ctx, session, updated, change, auditID)
		if errors.Is(err, store.ErrConcurrentWriteConflict) {
			if attempt == 1 {
				metrics.WriteConflicts.WithLabelValues("retried").Inc()
				logger.Warnw("version conflict, retrying", "document_id", documentID)
				continue
			}
			metrics.WriteConflicts.WithLabelValues("failed").Inc()
			logger.Warnw("version conflict persisted", "document_id", documentID)
			return UpdateResult{}, conflict()
		}
		if errors.Is(err, store.ErrNotFound) {
			return UpdateResult{}, notFound("Document")
		}
		if err != nil {
			return UpdateResult{}, fmt.Errorf("append version: %w", err)
		}

		updated.UpdatedAt = version.CreatedAt
		if err := s.store.UpdateDocument(ctx, updated); err != nil {
			logger.Errorw("document write failed after version append",
				"document_id", documentID,
				"version", version.Version,
				"error", err,
			)
			if errors.Is(err, store.ErrNotFound) {
				return UpdateResult{}, notFound("Document")
			}
			return UpdateResult{}, fmt.Errorf("update document: %w", err)
		}

		details := map[string]any{
			"version":       version.Version,
			"changeType":    string(change.Type),
			"changedFields": change.ChangedFields,
		}
		for key, value := range auditDetails {
			details[key] = value
		}
		s.recordAudit(ctx, store.AuditEvent{
			ID:         auditID,
			OrgID:      updated.OrgID,
			DocumentID: updated.ID,
			ActorID:    session.UserID,
			Action:     action,
			Details:    details,
			CreatedAt:  version.CreatedAt,
		})
		s.indexDocument(updated)

		view := versionView(version)
		return UpdateResult{Document: documentView(updated, role), Version: &view}, nil
	}
}

func (s *Service) appendVersion(ctx context.Context, session Session, doc store.Document, change changes.Change, auditID string) (store.DocumentVersion, error) {
	version, err := s.store.AppendVersion(ctx, store.VersionInput{
		ID:            util.NewID("ver"),
		DocumentID:    doc.ID,
		Title:         doc.Title,
		Content:       doc.Content,
		Status:        doc.Status,
		DocumentType:  doc.DocumentType,
		Jurisdiction:  doc.Jurisdiction,
		ChangeType:    change.Type,
		ChangeSummary: change.Summary,
		ChangedFields: change.ChangedFields,
		Actor:         session.actor(),
		AuditEventID:  &auditID,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return store.DocumentVersion{}, err
	}
	metrics.VersionsAppended.WithLabelValues(string(version.ChangeType)).Inc()
	logging.From(ctx).Debugw("version appended",
		"document_id", doc.ID,
		"version", version.Version,
		"change_type", string(version.ChangeType),
	)
	return version, nil
}

// ListDocuments returns the documents the session owns or that belong to
// its tenant, most recently updated first. A non-empty query searches
// instead of listing.
func (s *Service) ListDocuments(ctx context.Context, session Session, input ListDocumentsInput) (map[string]any, error) {
	if session.UserID == "" {
		return nil, unauthorized()
	}

	if q := strings.TrimSpace(input.Query); q != "" {
		if s.search == nil {
			return nil, unavailable("SEARCH_UNAVAILABLE", "Search is not configured")
		}
		resp := s.search.Search(ctx, search.Query{
			Text:         q,
			OwnerID:      session.UserID,
			OrgID:        session.OrgID,
			Status:       strings.ToUpper(strings.TrimSpace(input.Status)),
			Jurisdiction: strings.TrimSpace(input.Jurisdiction),
			Limit:        input.Limit,
			Offset:       input.Offset,
		})
		return map[string]any{"results": resp.Results, "total": resp.Total, "query": resp.Query}, nil
	}

	documents, err := s.store.ListDocumentsForViewer(ctx, session.UserID, session.OrgID)
	if err != nil {
		return nil, err
	}
	views := make([]DocumentView, 0, len(documents))
	for _, doc := range documents {
		if input.Status != "" && !strings.EqualFold(string(doc.Status), input.Status) {
			continue
		}
		if input.Jurisdiction != "" && doc.Jurisdiction != input.Jurisdiction {
			continue
		}
		views = append(views, documentView(doc, rbac.ForDocument(doc, session.UserID, session.OrgID)))
	}
	return map[string]any{"documents": views}, nil
}

// DeleteDocument removes a document together with its versions and shares.
func (s *Service) DeleteDocument(ctx context.Context, session Session, documentID string) error {
	doc, _, err := s.authorize(ctx, session, documentID, rbac.ActionDelete)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Document")
		}
		return fmt.Errorf("delete document: %w", err)
	}
	s.recordAudit(ctx, store.AuditEvent{
		OrgID:      doc.OrgID,
		DocumentID: doc.ID,
		ActorID:    session.UserID,
		Action:     "document.deleted",
		Details:    map[string]any{"title": doc.Title},
	})
	if s.search != nil {
		s.search.DeleteDocument(doc.ID)
	}
	return nil
}
