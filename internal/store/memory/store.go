// Package memory implements the document store on top of go-memdb. It is
// used for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"

	"lexdraft/api/internal/store"
)

// Store is an in-memory document store. Write transactions in go-memdb are
// serialized, which makes the version increment atomic.
type Store struct {
	db *memdb.MemDB
}

// New creates a new in-memory store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) InsertDocument(_ context.Context, doc store.Document) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", doc.ID)
	if err != nil {
		return fmt.Errorf("find document by id: %w", err)
	}
	if raw != nil {
		return fmt.Errorf("insert document %s: already exists", doc.ID)
	}
	if err := txn.Insert(tblDocuments, &doc); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *Store) GetDocument(_ context.Context, documentID string) (store.Document, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", documentID)
	if err != nil {
		return store.Document{}, fmt.Errorf("find document by id: %w", err)
	}
	if raw == nil {
		return store.Document{}, store.ErrNotFound
	}
	return *raw.(*store.Document), nil
}

func (s *Store) UpdateDocument(_ context.Context, doc store.Document) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", doc.ID)
	if err != nil {
		return fmt.Errorf("find document by id: %w", err)
	}
	if raw == nil {
		return store.ErrNotFound
	}
	existing := raw.(*store.Document)
	updated := *existing
	updated.Title = doc.Title
	updated.Content = doc.Content
	updated.Status = doc.Status
	updated.DocumentType = doc.DocumentType
	updated.Jurisdiction = doc.Jurisdiction
	updated.UpdatedAt = doc.UpdatedAt
	if err := txn.Insert(tblDocuments, &updated); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	txn.Commit()
	return nil
}

// DeleteDocument removes the document together with its versions and shares
// in one write transaction.
func (s *Store) DeleteDocument(_ context.Context, documentID string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", documentID)
	if err != nil {
		return fmt.Errorf("find document by id: %w", err)
	}
	if raw == nil {
		return store.ErrNotFound
	}
	if err := txn.Delete(tblDocuments, raw); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if _, err := txn.DeleteAll(tblVersions, "doc_id", documentID); err != nil {
		return fmt.Errorf("delete versions: %w", err)
	}
	if _, err := txn.DeleteAll(tblShares, "doc_id", documentID); err != nil {
		return fmt.Errorf("delete shares: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *Store) ListDocumentsForViewer(_ context.Context, ownerID, orgID string) ([]store.Document, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	seen := map[string]bool{}
	documents := []store.Document{}
	collect := func(index, value string) error {
		iter, err := txn.Get(tblDocuments, index, value)
		if err != nil {
			return fmt.Errorf("fetch documents by %s: %w", index, err)
		}
		for raw := iter.Next(); raw != nil; raw = iter.Next() {
			doc := raw.(*store.Document)
			if seen[doc.ID] {
				continue
			}
			seen[doc.ID] = true
			documents = append(documents, *doc)
		}
		return nil
	}

	if ownerID != "" {
		if err := collect("owner_id", ownerID); err != nil {
			return nil, err
		}
	}
	if orgID != "" {
		if err := collect("org_id", orgID); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(documents, func(i, j int) bool {
		if documents[i].UpdatedAt.Equal(documents[j].UpdatedAt) {
			return documents[i].ID < documents[j].ID
		}
		return documents[i].UpdatedAt.After(documents[j].UpdatedAt)
	})
	return documents, nil
}

func (s *Store) AppendVersion(_ context.Context, input store.VersionInput) (store.DocumentVersion, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblDocuments, "id", input.DocumentID)
	if err != nil {
		return store.DocumentVersion{}, fmt.Errorf("find document by id: %w", err)
	}
	if raw == nil {
		return store.DocumentVersion{}, store.ErrNotFound
	}

	latest, err := latestVersion(txn, input.DocumentID)
	if err != nil {
		return store.DocumentVersion{}, err
	}

	next := latest + 1
	existing, err := txn.First(tblVersions, "doc_id_version", input.DocumentID, next)
	if err != nil {
		return store.DocumentVersion{}, fmt.Errorf("find version: %w", err)
	}
	if existing != nil {
		return store.DocumentVersion{}, store.ErrConcurrentWriteConflict
	}

	version := &store.DocumentVersion{
		ID:            input.ID,
		DocumentID:    input.DocumentID,
		Version:       next,
		Title:         input.Title,
		Content:       input.Content,
		Status:        input.Status,
		DocumentType:  input.DocumentType,
		Jurisdiction:  input.Jurisdiction,
		ChangeType:    input.ChangeType,
		ChangeSummary: input.ChangeSummary,
		ChangedFields: append([]string{}, input.ChangedFields...),
		ActorID:       input.Actor.ID,
		ActorName:     input.Actor.Name,
		ActorAvatar:   input.Actor.Avatar,
		AuditEventID:  input.AuditEventID,
		CreatedAt:     input.CreatedAt,
	}
	if err := txn.Insert(tblVersions, version); err != nil {
		return store.DocumentVersion{}, fmt.Errorf("insert version: %w", err)
	}
	txn.Commit()
	return copyVersion(version), nil
}

func latestVersion(txn *memdb.Txn, documentID string) (int, error) {
	iter, err := txn.Get(tblVersions, "doc_id", documentID)
	if err != nil {
		return 0, fmt.Errorf("fetch versions of %s: %w", documentID, err)
	}
	latest := 0
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		if v := raw.(*store.DocumentVersion); v.Version > latest {
			latest = v.Version
		}
	}
	return latest, nil
}

func (s *Store) ListVersions(_ context.Context, documentID string) ([]store.DocumentVersion, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblVersions, "doc_id", documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch versions of %s: %w", documentID, err)
	}
	versions := []store.DocumentVersion{}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		versions = append(versions, copyVersion(raw.(*store.DocumentVersion)))
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Version > versions[j].Version
	})
	return versions, nil
}

func (s *Store) GetVersion(_ context.Context, documentID string, number int) (store.DocumentVersion, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblVersions, "doc_id_version", documentID, number)
	if err != nil {
		return store.DocumentVersion{}, fmt.Errorf("find version: %w", err)
	}
	if raw == nil {
		return store.DocumentVersion{}, store.ErrNotFound
	}
	return copyVersion(raw.(*store.DocumentVersion)), nil
}

func (s *Store) OrphanVersions(_ context.Context) ([]store.OrphanVersion, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblDocuments, "id")
	if err != nil {
		return nil, fmt.Errorf("fetch documents: %w", err)
	}
	orphans := []store.OrphanVersion{}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		doc := raw.(*store.Document)
		latest, err := latestVersion(txn, doc.ID)
		if err != nil {
			return nil, err
		}
		if latest == 0 {
			continue
		}
		vraw, err := txn.First(tblVersions, "doc_id_version", doc.ID, latest)
		if err != nil {
			return nil, fmt.Errorf("find version: %w", err)
		}
		v := vraw.(*store.DocumentVersion)
		if v.Title == doc.Title && v.Content == doc.Content && v.Status == doc.Status &&
			v.DocumentType == doc.DocumentType && v.Jurisdiction == doc.Jurisdiction {
			continue
		}
		orphans = append(orphans, store.OrphanVersion{
			DocumentID:        doc.ID,
			Version:           v.Version,
			VersionCreatedAt:  v.CreatedAt,
			DocumentUpdatedAt: doc.UpdatedAt,
		})
	}
	return orphans, nil
}

func (s *Store) InsertShare(_ context.Context, share store.DocumentShare) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	doc, err := txn.First(tblDocuments, "id", share.DocumentID)
	if err != nil {
		return fmt.Errorf("find document by id: %w", err)
	}
	if doc == nil {
		return store.ErrNotFound
	}
	existing, err := txn.First(tblShares, "token", share.Token)
	if err != nil {
		return fmt.Errorf("find share by token: %w", err)
	}
	if existing != nil {
		return store.ErrDuplicateToken
	}
	if err := txn.Insert(tblShares, &share); err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *Store) GetShare(_ context.Context, shareID string) (store.DocumentShare, error) {
	return s.firstShare("id", shareID)
}

func (s *Store) GetShareByToken(_ context.Context, token string) (store.DocumentShare, error) {
	return s.firstShare("token", token)
}

func (s *Store) firstShare(index, value string) (store.DocumentShare, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblShares, index, value)
	if err != nil {
		return store.DocumentShare{}, fmt.Errorf("find share by %s: %w", index, err)
	}
	if raw == nil {
		return store.DocumentShare{}, store.ErrNotFound
	}
	return *raw.(*store.DocumentShare), nil
}

func (s *Store) ListShares(_ context.Context, documentID string) ([]store.DocumentShare, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblShares, "doc_id", documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch shares of %s: %w", documentID, err)
	}
	shares := []store.DocumentShare{}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		shares = append(shares, *raw.(*store.DocumentShare))
	}
	sort.SliceStable(shares, func(i, j int) bool {
		if shares[i].CreatedAt.Equal(shares[j].CreatedAt) {
			return shares[i].ID < shares[j].ID
		}
		return shares[i].CreatedAt.After(shares[j].CreatedAt)
	})
	return shares, nil
}

func (s *Store) UpdateShare(_ context.Context, shareID string, update store.ShareUpdate) (store.DocumentShare, error) {
	return s.mutateShare(shareID, func(share *store.DocumentShare) {
		if update.Permission != nil {
			share.Permission = *update.Permission
		}
		if update.SetExpiresAt {
			share.ExpiresAt = update.ExpiresAt
		}
		if update.SetPasswordHash {
			share.PasswordHash = update.PasswordHash
		}
		if update.Message != nil {
			share.Message = *update.Message
		}
	})
}

func (s *Store) RecordShareView(_ context.Context, shareID string, at time.Time) (store.DocumentShare, error) {
	return s.mutateShare(shareID, func(share *store.DocumentShare) {
		share.ViewCount++
		viewedAt := at
		share.LastViewedAt = &viewedAt
	})
}

func (s *Store) mutateShare(shareID string, mutate func(*store.DocumentShare)) (store.DocumentShare, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblShares, "id", shareID)
	if err != nil {
		return store.DocumentShare{}, fmt.Errorf("find share by id: %w", err)
	}
	if raw == nil {
		return store.DocumentShare{}, store.ErrNotFound
	}
	updated := *raw.(*store.DocumentShare)
	mutate(&updated)
	if err := txn.Insert(tblShares, &updated); err != nil {
		return store.DocumentShare{}, fmt.Errorf("update share: %w", err)
	}
	txn.Commit()
	return updated, nil
}

func (s *Store) DeleteShare(_ context.Context, shareID string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblShares, "id", shareID)
	if err != nil {
		return fmt.Errorf("find share by id: %w", err)
	}
	if raw == nil {
		return store.ErrNotFound
	}
	if err := txn.Delete(tblShares, raw); err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *Store) InsertAuditEvent(_ context.Context, event store.AuditEvent) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tblAuditEvents, &event); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *Store) ListAuditEvents(_ context.Context, documentID string, limit int) ([]store.AuditEvent, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblAuditEvents, "doc_id", documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch audit events of %s: %w", documentID, err)
	}
	events := []store.AuditEvent{}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		events = append(events, *raw.(*store.AuditEvent))
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func copyVersion(v *store.DocumentVersion) store.DocumentVersion {
	out := *v
	out.ChangedFields = append([]string{}, v.ChangedFields...)
	return out
}
