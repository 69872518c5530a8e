package app

import (
	"time"

	"lexdraft/api/internal/rbac"
	"lexdraft/api/internal/store"
)

type DocumentView struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Status       string    `json:"status"`
	DocumentType string    `json:"documentType"`
	Jurisdiction string    `json:"jurisdiction"`
	OwnerID      string    `json:"ownerId"`
	OrgID        string    `json:"orgId,omitempty"`
	Role         string    `json:"role,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func documentView(doc store.Document, role rbac.Role) DocumentView {
	return DocumentView{
		ID:           doc.ID,
		Title:        doc.Title,
		Content:      doc.Content,
		Status:       string(doc.Status),
		DocumentType: doc.DocumentType,
		Jurisdiction: doc.Jurisdiction,
		OwnerID:      doc.OwnerID,
		OrgID:        doc.OrgID,
		Role:         string(role),
		Capabilities: rbac.Capabilities(role),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

type ActorView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type VersionView struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"documentId"`
	Version       int       `json:"version"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Status        string    `json:"status"`
	DocumentType  string    `json:"documentType"`
	Jurisdiction  string    `json:"jurisdiction"`
	ChangeType    string    `json:"changeType"`
	ChangeSummary string    `json:"changeSummary"`
	ChangedFields []string  `json:"changedFields"`
	Actor         ActorView `json:"actor"`
	AuditEventID  *string   `json:"auditEventId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func versionView(v store.DocumentVersion) VersionView {
	fields := v.ChangedFields
	if fields == nil {
		fields = []string{}
	}
	return VersionView{
		ID:            v.ID,
		DocumentID:    v.DocumentID,
		Version:       v.Version,
		Title:         v.Title,
		Content:       v.Content,
		Status:        string(v.Status),
		DocumentType:  v.DocumentType,
		Jurisdiction:  v.Jurisdiction,
		ChangeType:    string(v.ChangeType),
		ChangeSummary: v.ChangeSummary,
		ChangedFields: fields,
		Actor:         ActorView{ID: v.ActorID, Name: v.ActorName, Avatar: v.ActorAvatar},
		AuditEventID:  v.AuditEventID,
		CreatedAt:     v.CreatedAt,
	}
}

// ShareView never carries the password hash. Token and URL are only
// returned to the document's owner and members.
type ShareView struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"documentId"`
	Token        string     `json:"token"`
	URL          string     `json:"url"`
	Permission   string     `json:"permission"`
	ExpiresAt    *time.Time `json:"expiresAt"`
	HasPassword  bool       `json:"hasPassword"`
	ViewCount    int        `json:"viewCount"`
	LastViewedAt *time.Time `json:"lastViewedAt"`
	Message      string     `json:"message"`
	Expired      bool       `json:"expired"`
	CreatedBy    string     `json:"createdBy"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (s *Service) shareView(share store.DocumentShare) ShareView {
	return ShareView{
		ID:           share.ID,
		DocumentID:   share.DocumentID,
		Token:        share.Token,
		URL:          s.shareURL(share.Token),
		Permission:   string(share.Permission),
		ExpiresAt:    share.ExpiresAt,
		HasPassword:  share.PasswordHash != nil,
		ViewCount:    share.ViewCount,
		LastViewedAt: share.LastViewedAt,
		Message:      share.Message,
		Expired:      share.Expired(s.now()),
		CreatedBy:    share.CreatedBy,
		CreatedAt:    share.CreatedAt,
	}
}

// SharedDocumentView is what an anonymous share holder sees.
type SharedDocumentView struct {
	Document struct {
		ID           string    `json:"id"`
		Title        string    `json:"title"`
		Content      string    `json:"content"`
		Status       string    `json:"status"`
		DocumentType string    `json:"documentType"`
		Jurisdiction string    `json:"jurisdiction"`
		UpdatedAt    time.Time `json:"updatedAt"`
	} `json:"document"`
	Permission   string     `json:"permission"`
	Capabilities []string   `json:"capabilities"`
	ViewCount    int        `json:"viewCount"`
	Message      string     `json:"message,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt"`
}

type AuditEventView struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"documentId"`
	ActorID    string         `json:"actorId"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func auditEventView(event store.AuditEvent) AuditEventView {
	details := event.Details
	if details == nil {
		details = map[string]any{}
	}
	return AuditEventView{
		ID:         event.ID,
		DocumentID: event.DocumentID,
		ActorID:    event.ActorID,
		Action:     event.Action,
		Details:    details,
		CreatedAt:  event.CreatedAt,
	}
}
