package app

import (
	"context"
	"errors"
	"time"

	"lexdraft/api/internal/auth"
	"lexdraft/api/internal/config"
	"lexdraft/api/internal/email"
	"lexdraft/api/internal/export"
	"lexdraft/api/internal/logging"
	"lexdraft/api/internal/ratelimit"
	"lexdraft/api/internal/rbac"
	"lexdraft/api/internal/search"
	"lexdraft/api/internal/store"
	"lexdraft/api/internal/util"
)

// Session is the identity an authenticated request acts as.
type Session struct {
	Token    string
	UserID   string
	UserName string
	Avatar   string
	OrgID    string
}

func (s Session) actor() store.Actor {
	return store.Actor{ID: s.UserID, Name: s.UserName, Avatar: s.Avatar}
}

type dataStore interface {
	Ping(ctx context.Context) error

	InsertDocument(context.Context, store.Document) error
	GetDocument(context.Context, string) (store.Document, error)
	UpdateDocument(context.Context, store.Document) error
	DeleteDocument(context.Context, string) error
	ListDocumentsForViewer(context.Context, string, string) ([]store.Document, error)

	AppendVersion(context.Context, store.VersionInput) (store.DocumentVersion, error)
	ListVersions(context.Context, string) ([]store.DocumentVersion, error)
	GetVersion(context.Context, string, int) (store.DocumentVersion, error)
	OrphanVersions(context.Context) ([]store.OrphanVersion, error)

	InsertShare(context.Context, store.DocumentShare) error
	GetShare(context.Context, string) (store.DocumentShare, error)
	GetShareByToken(context.Context, string) (store.DocumentShare, error)
	ListShares(context.Context, string) ([]store.DocumentShare, error)
	UpdateShare(context.Context, string, store.ShareUpdate) (store.DocumentShare, error)
	DeleteShare(context.Context, string) error
	RecordShareView(context.Context, string, time.Time) (store.DocumentShare, error)

	InsertAuditEvent(context.Context, store.AuditEvent) error
	ListAuditEvents(context.Context, string, int) ([]store.AuditEvent, error)
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord)
	DeleteDocument(id string)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type mailer interface {
	IsConfigured() bool
	SendShareInvitation(to string, data email.InvitationData) error
}

// Dependencies are the optional collaborators of the Service. Nil fields
// disable the feature they back, except Limiter, which falls back to an
// in-process limiter.
type Dependencies struct {
	Verifier *auth.Verifier
	Limiter  ratelimit.Limiter
	Search   searchIndex
	Exporter exporter
	Mailer   mailer
}

type Service struct {
	cfg      config.Config
	store    dataStore
	verifier *auth.Verifier
	limiter  ratelimit.Limiter
	search   searchIndex
	exporter exporter
	mailer   mailer
	logger   logging.Logger
	now      func() time.Time
}

func New(cfg config.Config, data dataStore, deps Dependencies) *Service {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewMemory(cfg.SharePasswordAttempts, cfg.SharePasswordWindow)
	}
	verifier := deps.Verifier
	if verifier == nil {
		verifier = auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	}
	return &Service{
		cfg:      cfg,
		store:    data,
		verifier: verifier,
		limiter:  limiter,
		search:   deps.Search,
		exporter: deps.Exporter,
		mailer:   deps.Mailer,
		logger:   logging.New("app"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SessionFromToken verifies a bearer token issued by the identity provider.
func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := s.verifier.ParseToken(token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:    token,
		UserID:   claims.UserID(),
		UserName: claims.Name,
		Avatar:   claims.Avatar,
		OrgID:    claims.OrgID,
	}, nil
}

// OrphanVersions reports documents whose newest version was never applied
// to the document row.
func (s *Service) OrphanVersions(ctx context.Context) ([]store.OrphanVersion, error) {
	return s.store.OrphanVersions(ctx)
}

// authorize loads a document and checks that the session may perform
// action on it. Missing documents are reported before permissions.
func (s *Service) authorize(ctx context.Context, session Session, documentID string, action rbac.Action) (store.Document, rbac.Role, error) {
	if session.UserID == "" {
		return store.Document{}, rbac.RoleNone, unauthorized()
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Document{}, rbac.RoleNone, notFound("Document")
		}
		return store.Document{}, rbac.RoleNone, err
	}
	role := rbac.ForDocument(doc, session.UserID, session.OrgID)
	if !rbac.Can(role, action) {
		logging.From(ctx).Infow("access denied",
			"document_id", documentID,
			"user_id", session.UserID,
			"role", string(role),
			"action", string(action),
		)
		return store.Document{}, role, forbidden()
	}
	return doc, role, nil
}

// recordAudit stores an audit event. Audit failures are logged and never
// fail the request that produced them.
func (s *Service) recordAudit(ctx context.Context, event store.AuditEvent) {
	if event.ID == "" {
		event.ID = util.NewID("evt")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	if event.Details == nil {
		event.Details = map[string]any{}
	}
	if err := s.store.InsertAuditEvent(ctx, event); err != nil {
		logging.From(ctx).Warnw("record audit event failed",
			"action", event.Action,
			"document_id", event.DocumentID,
			"error", err,
		)
	}
}

func (s *Service) ListAuditEvents(ctx context.Context, session Session, documentID string, limit int) ([]AuditEventView, error) {
	if _, _, err := s.authorize(ctx, session, documentID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	events, err := s.store.ListAuditEvents(ctx, documentID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]AuditEventView, 0, len(events))
	for _, event := range events {
		views = append(views, auditEventView(event))
	}
	return views, nil
}

func (s *Service) indexDocument(doc store.Document) {
	if s.search != nil {
		s.search.IndexDocument(search.RecordOf(doc))
	}
}
