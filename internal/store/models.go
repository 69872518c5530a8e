package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrConcurrentWriteConflict = errors.New("concurrent write conflict")
	ErrDuplicateToken          = errors.New("duplicate share token")
)

type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusFinal    Status = "FINAL"
	StatusArchived Status = "ARCHIVED"
)

func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusDraft, StatusFinal, StatusArchived:
		return Status(value), true
	default:
		return "", false
	}
}

// ChangeType is the coarse classification of the edit that produced a version.
type ChangeType string

const (
	ChangeCreated  ChangeType = "CREATED"
	ChangeContent  ChangeType = "CONTENT"
	ChangeStatus   ChangeType = "STATUS"
	ChangeMetadata ChangeType = "METADATA"
	ChangeMixed    ChangeType = "MIXED"
)

func ParseChangeType(value string) (ChangeType, bool) {
	switch ChangeType(value) {
	case ChangeCreated, ChangeContent, ChangeStatus, ChangeMetadata, ChangeMixed:
		return ChangeType(value), true
	default:
		return "", false
	}
}

type Permission string

const (
	PermissionView    Permission = "VIEW"
	PermissionComment Permission = "COMMENT"
	PermissionEdit    Permission = "EDIT"
)

func ParsePermission(value string) (Permission, bool) {
	switch Permission(value) {
	case PermissionView, PermissionComment, PermissionEdit:
		return Permission(value), true
	default:
		return "", false
	}
}

type Document struct {
	ID           string
	Title        string
	Content      string
	Status       Status
	DocumentType string
	Jurisdiction string
	OwnerID      string
	OrgID        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor identifies the user on whose behalf a version was written.
type Actor struct {
	ID     string
	Name   string
	Avatar string
}

// DocumentVersion is an immutable snapshot. Version numbers start at 1 and
// grow by one per document.
type DocumentVersion struct {
	ID            string
	DocumentID    string
	Version       int
	Title         string
	Content       string
	Status        Status
	DocumentType  string
	Jurisdiction  string
	ChangeType    ChangeType
	ChangeSummary string
	ChangedFields []string
	ActorID       string
	ActorName     string
	ActorAvatar   string
	AuditEventID  *string
	CreatedAt     time.Time
}

// VersionInput carries everything AppendVersion needs except the number,
// which the store assigns.
type VersionInput struct {
	ID            string
	DocumentID    string
	Title         string
	Content       string
	Status        Status
	DocumentType  string
	Jurisdiction  string
	ChangeType    ChangeType
	ChangeSummary string
	ChangedFields []string
	Actor         Actor
	AuditEventID  *string
	CreatedAt     time.Time
}

type DocumentShare struct {
	ID           string
	DocumentID   string
	Token        string
	Permission   Permission
	ExpiresAt    *time.Time
	PasswordHash *string
	ViewCount    int
	LastViewedAt *time.Time
	Message      string
	CreatedBy    string
	CreatedAt    time.Time
}

// Expired reports whether the share has an expiry at or before now.
func (s DocumentShare) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// ShareUpdate is a partial update. Nil pointers leave the stored value
// untouched; the Set flags allow clearing nullable columns.
type ShareUpdate struct {
	Permission      *Permission
	SetExpiresAt    bool
	ExpiresAt       *time.Time
	SetPasswordHash bool
	PasswordHash    *string
	Message         *string
}

type AuditEvent struct {
	ID         string
	OrgID      string
	DocumentID string
	ActorID    string
	Action     string
	Details    map[string]any
	CreatedAt  time.Time
}

// OrphanVersion is a version newer than the document row it belongs to.
// It is left behind when a version append succeeds and the document write
// that follows does not.
type OrphanVersion struct {
	DocumentID        string
	Version           int
	VersionCreatedAt  time.Time
	DocumentUpdatedAt time.Time
}
