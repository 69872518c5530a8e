package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func openIntegrationStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("LEXDRAFT_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("LEXDRAFT_TEST_DATABASE_URL is not set")
	}
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn, DefaultPoolConfig())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func seedIntegrationDocument(t *testing.T, s *PostgresStore) Document {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	doc := Document{
		ID:        fmt.Sprintf("doc_it_%d", now.UnixNano()),
		Title:     "NDA",
		Content:   "v1",
		Status:    StatusDraft,
		OwnerID:   "user_owner",
		OrgID:     "org_it",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.InsertDocument(context.Background(), doc); err != nil {
		t.Fatalf("insert document: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteDocument(context.Background(), doc.ID) })
	return doc
}

func TestPostgresConcurrentAppendsProduceGaplessVersions(t *testing.T) {
	s := openIntegrationStore(t)
	doc := seedIntegrationDocument(t, s)
	ctx := context.Background()

	const writers = 12
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendVersion(ctx, VersionInput{
				ID:         fmt.Sprintf("%s_v_%d", doc.ID, i),
				DocumentID: doc.ID,
				Title:      doc.Title,
				Content:    fmt.Sprintf("content %d", i),
				Status:     StatusDraft,
				ChangeType: ChangeContent,
				Actor:      Actor{ID: "user_owner"},
				CreatedAt:  time.Now().UTC(),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("append version: %v", err)
		}
	}

	versions, err := s.ListVersions(ctx, doc.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != writers {
		t.Fatalf("expected %d versions, got %d", writers, len(versions))
	}
	for i, version := range versions {
		if want := writers - i; version.Version != want {
			t.Fatalf("expected version %d at position %d, got %d", want, i, version.Version)
		}
	}
}

func TestPostgresVersionsRejectUpdate(t *testing.T) {
	s := openIntegrationStore(t)
	doc := seedIntegrationDocument(t, s)
	ctx := context.Background()

	version, err := s.AppendVersion(ctx, VersionInput{
		ID:         doc.ID + "_v1",
		DocumentID: doc.ID,
		Title:      doc.Title,
		Content:    doc.Content,
		Status:     doc.Status,
		ChangeType: ChangeCreated,
		Actor:      Actor{ID: "user_owner"},
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("append version: %v", err)
	}
	if version.Version != 1 {
		t.Fatalf("expected version 1, got %d", version.Version)
	}

	_, err = s.DB().ExecContext(ctx, `UPDATE document_versions SET content='rewritten' WHERE id=$1`, version.ID)
	if err == nil {
		t.Fatal("expected UPDATE to be blocked, but it succeeded")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PgError, got %T: %v", err, err)
	}
	if pgErr.Code != "55000" {
		t.Fatalf("expected SQLSTATE 55000, got %s (%s)", pgErr.Code, pgErr.Message)
	}
}

func TestPostgresShareViewsAndCascade(t *testing.T) {
	s := openIntegrationStore(t)
	doc := seedIntegrationDocument(t, s)
	ctx := context.Background()

	share := DocumentShare{
		ID:         doc.ID + "_share",
		DocumentID: doc.ID,
		Token:      doc.ID + "_token",
		Permission: PermissionView,
		CreatedBy:  "user_owner",
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.InsertShare(ctx, share); err != nil {
		t.Fatalf("insert share: %v", err)
	}
	duplicate := share
	duplicate.ID = share.ID + "_dup"
	if err := s.InsertShare(ctx, duplicate); !errors.Is(err, ErrDuplicateToken) {
		t.Fatalf("expected ErrDuplicateToken, got %v", err)
	}

	for want := 1; want <= 2; want++ {
		viewed, err := s.RecordShareView(ctx, share.ID, time.Now().UTC())
		if err != nil {
			t.Fatalf("record view: %v", err)
		}
		if viewed.ViewCount != want {
			t.Fatalf("expected view count %d, got %d", want, viewed.ViewCount)
		}
	}

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("delete document: %v", err)
	}
	if _, err := s.GetShareByToken(ctx, share.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected share to be removed with its document, got %v", err)
	}
	versions, err := s.ListVersions(ctx, doc.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 0 {
		t.Fatalf("expected versions to be removed with their document, got %d", len(versions))
	}
}
