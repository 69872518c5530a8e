package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	constraintVersionNumber = "uq_document_versions_number"
	constraintShareToken    = "uq_document_shares_token"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const documentColumns = `id, title, content, status, document_type, jurisdiction, owner_id, org_id, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var doc Document
	var status string
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &status, &doc.DocumentType, &doc.Jurisdiction, &doc.OwnerID, &doc.OrgID, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	doc.Status = Status(status)
	return doc, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, status, document_type, jurisdiction, owner_id, org_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, doc.ID, doc.Title, doc.Content, string(doc.Status), doc.DocumentType, doc.Jurisdiction, doc.OwnerID, doc.OrgID, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, doc Document) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title=$2, content=$3, status=$4, document_type=$5, jurisdiction=$6, updated_at=$7
		WHERE id=$1
	`, doc.ID, doc.Title, doc.Content, string(doc.Status), doc.DocumentType, doc.Jurisdiction, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDocument removes the document; versions and shares go with it
// through ON DELETE CASCADE.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListDocumentsForViewer(ctx context.Context, ownerID, orgID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE owner_id=$1 OR ($2 <> '' AND org_id=$2)
		ORDER BY updated_at DESC, id ASC
	`, ownerID, orgID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	documents := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, doc)
	}
	return documents, rows.Err()
}

const versionColumns = `id, document_id, version, title, content, status, document_type, jurisdiction,
	change_type, change_summary, changed_fields, actor_id, actor_name, actor_avatar, audit_event_id, created_at`

func scanVersion(row interface{ Scan(...any) error }) (DocumentVersion, error) {
	var version DocumentVersion
	var status, changeType string
	var changedFields []byte
	var auditEventID sql.NullString
	if err := row.Scan(
		&version.ID, &version.DocumentID, &version.Version, &version.Title, &version.Content, &status,
		&version.DocumentType, &version.Jurisdiction, &changeType, &version.ChangeSummary, &changedFields,
		&version.ActorID, &version.ActorName, &version.ActorAvatar, &auditEventID, &version.CreatedAt,
	); err != nil {
		return DocumentVersion{}, err
	}
	version.Status = Status(status)
	version.ChangeType = ChangeType(changeType)
	version.ChangedFields = []string{}
	if len(changedFields) > 0 {
		if err := json.Unmarshal(changedFields, &version.ChangedFields); err != nil {
			return DocumentVersion{}, fmt.Errorf("decode changed fields: %w", err)
		}
	}
	if auditEventID.Valid {
		id := auditEventID.String
		version.AuditEventID = &id
	}
	return version, nil
}

// AppendVersion assigns max(version)+1 while holding the document row lock,
// so concurrent appends for one document are serialized. The unique
// constraint on (document_id, version) backs this up; a violation surfaces
// as ErrConcurrentWriteConflict.
func (s *PostgresStore) AppendVersion(ctx context.Context, input VersionInput) (DocumentVersion, error) {
	changedFields, err := json.Marshal(nonNilStrings(input.ChangedFields))
	if err != nil {
		return DocumentVersion{}, fmt.Errorf("encode changed fields: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DocumentVersion{}, fmt.Errorf("begin append version: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE id=$1 FOR UPDATE`, input.DocumentID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentVersion{}, ErrNotFound
	}
	if err != nil {
		return DocumentVersion{}, fmt.Errorf("lock document: %w", err)
	}

	version, err := scanVersion(tx.QueryRowContext(ctx, `
		INSERT INTO document_versions (
			id, document_id, version, title, content, status, document_type, jurisdiction,
			change_type, change_summary, changed_fields, actor_id, actor_name, actor_avatar, audit_event_id, created_at
		)
		SELECT $1::text, $2::text, COALESCE(MAX(v.version), 0) + 1, $3::text, $4::text, $5::text, $6::text, $7::text,
			$8::text, $9::text, $10::jsonb, $11::text, $12::text, $13::text, $14::text, $15::timestamptz
		FROM document_versions v
		WHERE v.document_id = $2::text
		RETURNING `+versionColumns,
		input.ID, input.DocumentID, input.Title, input.Content, string(input.Status), input.DocumentType, input.Jurisdiction,
		string(input.ChangeType), input.ChangeSummary, string(changedFields),
		input.Actor.ID, input.Actor.Name, input.Actor.Avatar, input.AuditEventID, input.CreatedAt,
	))
	if err != nil {
		return DocumentVersion{}, classifyWriteError("append version", err)
	}

	if err := tx.Commit(); err != nil {
		return DocumentVersion{}, classifyWriteError("commit append version", err)
	}
	return version, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM document_versions
		WHERE document_id=$1
		ORDER BY version DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := []DocumentVersion{}
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func (s *PostgresStore) GetVersion(ctx context.Context, documentID string, number int) (DocumentVersion, error) {
	version, err := scanVersion(s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM document_versions
		WHERE document_id=$1 AND version=$2
	`, documentID, number))
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentVersion{}, ErrNotFound
	}
	if err != nil {
		return DocumentVersion{}, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// OrphanVersions lists documents whose newest version snapshot does not
// match the current document row.
func (s *PostgresStore) OrphanVersions(ctx context.Context) ([]OrphanVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, v.version, v.created_at, d.updated_at
		FROM documents d
		JOIN LATERAL (
			SELECT version, title, content, status, document_type, jurisdiction, created_at
			FROM document_versions
			WHERE document_id = d.id
			ORDER BY version DESC
			LIMIT 1
		) v ON TRUE
		WHERE v.title <> d.title
			OR v.content <> d.content
			OR v.status <> d.status
			OR v.document_type <> d.document_type
			OR v.jurisdiction <> d.jurisdiction
		ORDER BY d.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list orphan versions: %w", err)
	}
	defer rows.Close()

	orphans := []OrphanVersion{}
	for rows.Next() {
		var orphan OrphanVersion
		if err := rows.Scan(&orphan.DocumentID, &orphan.Version, &orphan.VersionCreatedAt, &orphan.DocumentUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan orphan version: %w", err)
		}
		orphans = append(orphans, orphan)
	}
	return orphans, rows.Err()
}

const shareColumns = `id, document_id, token, permission, expires_at, password_hash, view_count, last_viewed_at, message, created_by, created_at`

func scanShare(row interface{ Scan(...any) error }) (DocumentShare, error) {
	var share DocumentShare
	var permission string
	var expiresAt, lastViewedAt sql.NullTime
	var passwordHash sql.NullString
	if err := row.Scan(
		&share.ID, &share.DocumentID, &share.Token, &permission, &expiresAt, &passwordHash,
		&share.ViewCount, &lastViewedAt, &share.Message, &share.CreatedBy, &share.CreatedAt,
	); err != nil {
		return DocumentShare{}, err
	}
	share.Permission = Permission(permission)
	if expiresAt.Valid {
		value := expiresAt.Time
		share.ExpiresAt = &value
	}
	if passwordHash.Valid {
		value := passwordHash.String
		share.PasswordHash = &value
	}
	if lastViewedAt.Valid {
		value := lastViewedAt.Time
		share.LastViewedAt = &value
	}
	return share, nil
}

func (s *PostgresStore) InsertShare(ctx context.Context, share DocumentShare) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_shares (id, document_id, token, permission, expires_at, password_hash, message, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, share.ID, share.DocumentID, share.Token, string(share.Permission), share.ExpiresAt, share.PasswordHash, share.Message, share.CreatedBy, share.CreatedAt)
	if err != nil {
		return classifyWriteError("insert share", err)
	}
	return nil
}

func (s *PostgresStore) GetShare(ctx context.Context, shareID string) (DocumentShare, error) {
	share, err := scanShare(s.db.QueryRowContext(ctx, `SELECT `+shareColumns+` FROM document_shares WHERE id=$1`, shareID))
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentShare{}, ErrNotFound
	}
	if err != nil {
		return DocumentShare{}, fmt.Errorf("get share: %w", err)
	}
	return share, nil
}

func (s *PostgresStore) GetShareByToken(ctx context.Context, token string) (DocumentShare, error) {
	share, err := scanShare(s.db.QueryRowContext(ctx, `SELECT `+shareColumns+` FROM document_shares WHERE token=$1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentShare{}, ErrNotFound
	}
	if err != nil {
		return DocumentShare{}, fmt.Errorf("get share by token: %w", err)
	}
	return share, nil
}

func (s *PostgresStore) ListShares(ctx context.Context, documentID string) ([]DocumentShare, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shareColumns+`
		FROM document_shares
		WHERE document_id=$1
		ORDER BY created_at DESC, id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	shares := []DocumentShare{}
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		shares = append(shares, share)
	}
	return shares, rows.Err()
}

// UpdateShare applies a partial update in one statement. Each CASE keeps the
// stored value unless its flag is set.
func (s *PostgresStore) UpdateShare(ctx context.Context, shareID string, update ShareUpdate) (DocumentShare, error) {
	var permission *string
	if update.Permission != nil {
		value := string(*update.Permission)
		permission = &value
	}
	share, err := scanShare(s.db.QueryRowContext(ctx, `
		UPDATE document_shares
		SET permission = COALESCE($2::text, permission),
			expires_at = CASE WHEN $3::boolean THEN $4::timestamptz ELSE expires_at END,
			password_hash = CASE WHEN $5::boolean THEN $6::text ELSE password_hash END,
			message = COALESCE($7::text, message)
		WHERE id=$1
		RETURNING `+shareColumns,
		shareID, permission, update.SetExpiresAt, update.ExpiresAt, update.SetPasswordHash, update.PasswordHash, update.Message,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentShare{}, ErrNotFound
	}
	if err != nil {
		return DocumentShare{}, fmt.Errorf("update share: %w", err)
	}
	return share, nil
}

func (s *PostgresStore) DeleteShare(ctx context.Context, shareID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM document_shares WHERE id=$1`, shareID)
	if err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordShareView increments the view counter atomically in the database.
func (s *PostgresStore) RecordShareView(ctx context.Context, shareID string, at time.Time) (DocumentShare, error) {
	share, err := scanShare(s.db.QueryRowContext(ctx, `
		UPDATE document_shares
		SET view_count = view_count + 1, last_viewed_at = $2
		WHERE id=$1
		RETURNING `+shareColumns,
		shareID, at,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentShare{}, ErrNotFound
	}
	if err != nil {
		return DocumentShare{}, fmt.Errorf("record share view: %w", err)
	}
	return share, nil
}

func (s *PostgresStore) InsertAuditEvent(ctx context.Context, event AuditEvent) error {
	details := event.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, org_id, document_id, actor_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`, event.ID, event.OrgID, event.DocumentID, event.ActorID, event.Action, string(payload), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, documentID string, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, document_id, actor_id, action, details, created_at
		FROM audit_events
		WHERE document_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		var event AuditEvent
		var details []byte
		if err := rows.Scan(&event.ID, &event.OrgID, &event.DocumentID, &event.ActorID, &event.Action, &details, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Details = map[string]any{}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func classifyWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			switch pgErr.ConstraintName {
			case constraintVersionNumber:
				return fmt.Errorf("%s: %w", op, ErrConcurrentWriteConflict)
			case constraintShareToken:
				return fmt.Errorf("%s: %w", op, ErrDuplicateToken)
			}
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
