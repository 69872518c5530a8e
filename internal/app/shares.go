package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lexdraft/api/internal/email"
	"lexdraft/api/internal/logging"
	"lexdraft/api/internal/metrics"
	"lexdraft/api/internal/rbac"
	"lexdraft/api/internal/store"
	"lexdraft/api/internal/util"
)

const (
	shareTokenBytes    = 32
	shareTokenAttempts = 3
	maxMessageLength   = 2000
)

// Optional distinguishes an absent JSON field from an explicit null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	o.Value = &value
	return nil
}

type CreateShareInput struct {
	Permission     string  `json:"permission"`
	ExpiresAt      *string `json:"expiresAt"`
	Password       *string `json:"password"`
	Message        string  `json:"message"`
	RecipientEmail string  `json:"recipientEmail"`
}

type UpdateShareInput struct {
	Permission *string          `json:"permission"`
	ExpiresAt  Optional[string] `json:"expiresAt"`
	Password   Optional[string] `json:"password"`
	Message    *string          `json:"message"`
}

type CreateShareResult struct {
	Share          ShareView `json:"share"`
	InvitationSent bool      `json:"invitationSent"`
}

func parsePermission(value string) (store.Permission, error) {
	permission, ok := store.ParsePermission(strings.ToUpper(strings.TrimSpace(value)))
	if !ok {
		return "", validation("permission must be one of VIEW, COMMENT, EDIT")
	}
	return permission, nil
}

func (s *Service) parseExpiry(value string) (time.Time, error) {
	expiresAt, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, validation("expiresAt must be an RFC3339 timestamp")
	}
	if !expiresAt.After(s.now()) {
		return time.Time{}, validation("expiresAt must be in the future")
	}
	return expiresAt.UTC(), nil
}

func hashPassword(password string) (string, error) {
	if password == "" {
		return "", validation("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash share password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) shareURL(token string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/share/" + token
}

// CreateShare issues a new share token for a document.
func (s *Service) CreateShare(ctx context.Context, session Session, documentID string, input CreateShareInput) (CreateShareResult, error) {
	doc, _, err := s.authorize(ctx, session, documentID, rbac.ActionShare)
	if err != nil {
		return CreateShareResult{}, err
	}

	permission := store.PermissionView
	if strings.TrimSpace(input.Permission) != "" {
		if permission, err = parsePermission(input.Permission); err != nil {
			return CreateShareResult{}, err
		}
	}
	share := store.DocumentShare{
		DocumentID: doc.ID,
		Permission: permission,
		Message:    strings.TrimSpace(input.Message),
		CreatedBy:  session.UserID,
		CreatedAt:  s.now(),
	}
	if len(share.Message) > maxMessageLength {
		return CreateShareResult{}, validation(fmt.Sprintf("message must be at most %d characters", maxMessageLength))
	}
	if input.ExpiresAt != nil && strings.TrimSpace(*input.ExpiresAt) != "" {
		expiresAt, err := s.parseExpiry(*input.ExpiresAt)
		if err != nil {
			return CreateShareResult{}, err
		}
		share.ExpiresAt = &expiresAt
	}
	if input.Password != nil {
		hash, err := hashPassword(*input.Password)
		if err != nil {
			return CreateShareResult{}, err
		}
		share.PasswordHash = &hash
	}
	recipient := strings.TrimSpace(input.RecipientEmail)
	if recipient != "" && !strings.Contains(recipient, "@") {
		return CreateShareResult{}, validation("recipientEmail is not a valid address")
	}

	for attempt := 1; ; attempt++ {
		share.ID = util.NewID("shr")
		share.Token, err = util.NewToken(shareTokenBytes)
		if err != nil {
			return CreateShareResult{}, fmt.Errorf("generate share token: %w", err)
		}
		err = s.store.InsertShare(ctx, share)
		if errors.Is(err, store.ErrDuplicateToken) && attempt < shareTokenAttempts {
			continue
		}
		if errors.Is(err, store.ErrNotFound) {
			return CreateShareResult{}, notFound("Document")
		}
		if err != nil {
			return CreateShareResult{}, fmt.Errorf("insert share: %w", err)
		}
		break
	}

	s.recordAudit(ctx, store.AuditEvent{
		OrgID:      doc.OrgID,
		DocumentID: doc.ID,
		ActorID:    session.UserID,
		Action:     "share.created",
		Details: map[string]any{
			"shareId":     share.ID,
			"permission":  string(share.Permission),
			"hasPassword": share.PasswordHash != nil,
			"hasExpiry":   share.ExpiresAt != nil,
		},
	})

	sent := false
	if recipient != "" && s.mailer != nil && s.mailer.IsConfigured() {
		sharedBy := session.UserName
		if sharedBy == "" {
			sharedBy = "A colleague"
		}
		err := s.mailer.SendShareInvitation(recipient, email.InvitationData{
			SharedBy:      sharedBy,
			DocumentTitle: doc.Title,
			Permission:    string(share.Permission),
			ShareURL:      s.shareURL(share.Token),
			Message:       share.Message,
			ExpiresAt:     share.ExpiresAt,
			HasPassword:   share.PasswordHash != nil,
		})
		if err != nil {
			logging.From(ctx).Warnw("share invitation email failed", "share_id", share.ID, "error", err)
		} else {
			sent = true
		}
	}

	return CreateShareResult{Share: s.shareView(share), InvitationSent: sent}, nil
}

func (s *Service) ListShares(ctx context.Context, session Session, documentID string) ([]ShareView, error) {
	if _, _, err := s.authorize(ctx, session, documentID, rbac.ActionRead); err != nil {
		return nil, err
	}
	shares, err := s.store.ListShares(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	views := make([]ShareView, 0, len(shares))
	for _, share := range shares {
		views = append(views, s.shareView(share))
	}
	return views, nil
}

// documentShare loads a share and checks it belongs to documentID.
func (s *Service) documentShare(ctx context.Context, documentID, shareID string) (store.DocumentShare, error) {
	share, err := s.store.GetShare(ctx, shareID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && share.DocumentID != documentID) {
		return store.DocumentShare{}, notFound("Share")
	}
	if err != nil {
		return store.DocumentShare{}, fmt.Errorf("get share: %w", err)
	}
	return share, nil
}

func (s *Service) GetShare(ctx context.Context, session Session, documentID, shareID string) (ShareView, error) {
	if _, _, err := s.authorize(ctx, session, documentID, rbac.ActionRead); err != nil {
		return ShareView{}, err
	}
	share, err := s.documentShare(ctx, documentID, shareID)
	if err != nil {
		return ShareView{}, err
	}
	return s.shareView(share), nil
}

// UpdateShare changes only the fields present in input. An explicit null
// or empty string clears expiry and password.
func (s *Service) UpdateShare(ctx context.Context, session Session, documentID, shareID string, input UpdateShareInput) (ShareView, error) {
	doc, _, err := s.authorize(ctx, session, documentID, rbac.ActionShare)
	if err != nil {
		return ShareView{}, err
	}
	if _, err := s.documentShare(ctx, documentID, shareID); err != nil {
		return ShareView{}, err
	}

	update := store.ShareUpdate{}
	changed := []string{}
	if input.Permission != nil {
		permission, err := parsePermission(*input.Permission)
		if err != nil {
			return ShareView{}, err
		}
		update.Permission = &permission
		changed = append(changed, "permission")
	}
	if input.ExpiresAt.Set {
		update.SetExpiresAt = true
		if input.ExpiresAt.Value != nil && strings.TrimSpace(*input.ExpiresAt.Value) != "" {
			expiresAt, err := s.parseExpiry(*input.ExpiresAt.Value)
			if err != nil {
				return ShareView{}, err
			}
			update.ExpiresAt = &expiresAt
		}
		changed = append(changed, "expiresAt")
	}
	if input.Password.Set {
		update.SetPasswordHash = true
		if input.Password.Value != nil && *input.Password.Value != "" {
			hash, err := hashPassword(*input.Password.Value)
			if err != nil {
				return ShareView{}, err
			}
			update.PasswordHash = &hash
		}
		changed = append(changed, "password")
	}
	if input.Message != nil {
		message := strings.TrimSpace(*input.Message)
		if len(message) > maxMessageLength {
			return ShareView{}, validation(fmt.Sprintf("message must be at most %d characters", maxMessageLength))
		}
		update.Message = &message
		changed = append(changed, "message")
	}

	share, err := s.store.UpdateShare(ctx, shareID, update)
	if errors.Is(err, store.ErrNotFound) {
		return ShareView{}, notFound("Share")
	}
	if err != nil {
		return ShareView{}, fmt.Errorf("update share: %w", err)
	}

	if len(changed) > 0 {
		s.recordAudit(ctx, store.AuditEvent{
			OrgID:      doc.OrgID,
			DocumentID: doc.ID,
			ActorID:    session.UserID,
			Action:     "share.updated",
			Details:    map[string]any{"shareId": share.ID, "changedFields": changed},
		})
	}
	return s.shareView(share), nil
}

// RevokeShare deletes a share. Its token stops resolving immediately.
func (s *Service) RevokeShare(ctx context.Context, session Session, documentID, shareID string) error {
	doc, _, err := s.authorize(ctx, session, documentID, rbac.ActionShare)
	if err != nil {
		return err
	}
	if _, err := s.documentShare(ctx, documentID, shareID); err != nil {
		return err
	}
	if err := s.store.DeleteShare(ctx, shareID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Share")
		}
		return fmt.Errorf("delete share: %w", err)
	}
	s.recordAudit(ctx, store.AuditEvent{
		OrgID:      doc.OrgID,
		DocumentID: doc.ID,
		ActorID:    session.UserID,
		Action:     "share.revoked",
		Details:    map[string]any{"shareId": shareID},
	})
	return nil
}

// ResolveShare serves a share token to an anonymous caller. Checks run in
// order: unknown token, expiry, attempt limit, password. Only a fully
// successful resolution counts as a view. clientKey identifies the caller
// for password attempt limiting.
func (s *Service) ResolveShare(ctx context.Context, token, password, clientKey string) (SharedDocumentView, error) {
	logger := logging.From(ctx)
	token = strings.TrimSpace(token)
	if token == "" {
		metrics.ShareResolutions.WithLabelValues("not_found").Inc()
		return SharedDocumentView{}, notFound("Share")
	}

	share, err := s.store.GetShareByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		metrics.ShareResolutions.WithLabelValues("not_found").Inc()
		return SharedDocumentView{}, notFound("Share")
	}
	if err != nil {
		return SharedDocumentView{}, fmt.Errorf("get share by token: %w", err)
	}

	if share.Expired(s.now()) {
		metrics.ShareResolutions.WithLabelValues("expired").Inc()
		return SharedDocumentView{}, expired()
	}

	if share.PasswordHash != nil {
		limitKey := share.ID + ":" + clientKey
		blocked, retryAfter, err := s.limiter.Blocked(ctx, limitKey)
		if err != nil {
			logger.Warnw("share password limiter unavailable", "share_id", share.ID, "error", err)
		}
		if blocked {
			metrics.ShareResolutions.WithLabelValues("rate_limited").Inc()
			return SharedDocumentView{}, rateLimited(int(math.Ceil(retryAfter.Seconds())))
		}
		if password == "" {
			metrics.ShareResolutions.WithLabelValues("password_required").Inc()
			return SharedDocumentView{}, passwordRequired(false)
		}
		if bcrypt.CompareHashAndPassword([]byte(*share.PasswordHash), []byte(password)) != nil {
			if err := s.limiter.Fail(ctx, limitKey); err != nil {
				logger.Warnw("record failed share password attempt", "share_id", share.ID, "error", err)
			}
			metrics.ShareResolutions.WithLabelValues("password_rejected").Inc()
			logger.Infow("share password rejected", "share_id", share.ID)
			return SharedDocumentView{}, passwordRequired(true)
		}
		if err := s.limiter.Reset(ctx, limitKey); err != nil {
			logger.Warnw("reset share password attempts", "share_id", share.ID, "error", err)
		}
	}

	doc, err := s.store.GetDocument(ctx, share.DocumentID)
	if errors.Is(err, store.ErrNotFound) {
		metrics.ShareResolutions.WithLabelValues("not_found").Inc()
		return SharedDocumentView{}, notFound("Share")
	}
	if err != nil {
		return SharedDocumentView{}, fmt.Errorf("get shared document: %w", err)
	}

	viewed, err := s.store.RecordShareView(ctx, share.ID, s.now())
	if errors.Is(err, store.ErrNotFound) {
		metrics.ShareResolutions.WithLabelValues("not_found").Inc()
		return SharedDocumentView{}, notFound("Share")
	}
	if err != nil {
		return SharedDocumentView{}, fmt.Errorf("record share view: %w", err)
	}
	metrics.ShareResolutions.WithLabelValues("resolved").Inc()
	logger.Debugw("share resolved", "share_id", share.ID, "document_id", doc.ID, "view_count", viewed.ViewCount)

	var view SharedDocumentView
	view.Document.ID = doc.ID
	view.Document.Title = doc.Title
	view.Document.Content = doc.Content
	view.Document.Status = string(doc.Status)
	view.Document.DocumentType = doc.DocumentType
	view.Document.Jurisdiction = doc.Jurisdiction
	view.Document.UpdatedAt = doc.UpdatedAt
	view.Permission = string(viewed.Permission)
	view.Capabilities = shareCapabilities(viewed.Permission)
	view.ViewCount = viewed.ViewCount
	view.Message = viewed.Message
	view.ExpiresAt = viewed.ExpiresAt
	return view, nil
}

// shareCapabilities describes what a permission grants. They are reported
// to the client only; the anonymous path never writes.
func shareCapabilities(permission store.Permission) []string {
	role := rbac.ForPermission(permission)
	capabilities := []string{}
	if rbac.Can(role, rbac.ActionRead) {
		capabilities = append(capabilities, "view")
	}
	if rbac.Can(role, rbac.ActionComment) {
		capabilities = append(capabilities, "comment")
	}
	if rbac.Can(role, rbac.ActionWrite) {
		capabilities = append(capabilities, "edit")
	}
	return capabilities
}
