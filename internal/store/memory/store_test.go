package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexdraft/api/internal/store"
	"lexdraft/api/internal/store/memory"
)

func newDocument(id, owner, org string, updatedAt time.Time) store.Document {
	return store.Document{
		ID:        id,
		Title:     "NDA",
		Content:   "v1",
		Status:    store.StatusDraft,
		OwnerID:   owner,
		OrgID:     org,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
}

func appendInput(docID string, n int) store.VersionInput {
	return store.VersionInput{
		ID:            fmt.Sprintf("%s_v_%d", docID, n),
		DocumentID:    docID,
		Title:         "NDA",
		Content:       fmt.Sprintf("content %d", n),
		Status:        store.StatusDraft,
		ChangeType:    store.ChangeContent,
		ChangedFields: []string{"content"},
		Actor:         store.Actor{ID: "user_1"},
		CreatedAt:     time.Now(),
	}
}

func TestStoreVersions(t *testing.T) {
	ctx := context.Background()
	db, err := memory.New()
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, db.InsertDocument(ctx, newDocument("doc_1", "user_1", "org_1", now)))

	t.Run("append assigns sequential numbers test", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			version, err := db.AppendVersion(ctx, appendInput("doc_1", i))
			require.NoError(t, err)
			assert.Equal(t, i, version.Version)
		}

		versions, err := db.ListVersions(ctx, "doc_1")
		require.NoError(t, err)
		require.Len(t, versions, 3)
		assert.Equal(t, 3, versions[0].Version)
		assert.Equal(t, 2, versions[1].Version)
		assert.Equal(t, 1, versions[2].Version)
	})

	t.Run("get version test", func(t *testing.T) {
		version, err := db.GetVersion(ctx, "doc_1", 2)
		require.NoError(t, err)
		assert.Equal(t, "content 2", version.Content)

		_, err = db.GetVersion(ctx, "doc_1", 42)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("returned versions are copies test", func(t *testing.T) {
		versions, err := db.ListVersions(ctx, "doc_1")
		require.NoError(t, err)
		versions[0].ChangedFields[0] = "tampered"

		again, err := db.GetVersion(ctx, "doc_1", versions[0].Version)
		require.NoError(t, err)
		assert.Equal(t, []string{"content"}, again.ChangedFields)
	})

	t.Run("append to missing document test", func(t *testing.T) {
		_, err := db.AppendVersion(ctx, appendInput("doc_missing", 1))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	db, err := memory.New()
	require.NoError(t, err)
	require.NoError(t, db.InsertDocument(ctx, newDocument("doc_c", "user_1", "org_1", time.Now())))

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := db.AppendVersion(ctx, appendInput("doc_c", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	versions, err := db.ListVersions(ctx, "doc_c")
	require.NoError(t, err)
	require.Len(t, versions, writers)
	for i, version := range versions {
		assert.Equal(t, writers-i, version.Version)
	}
}

func TestStoreDocumentsForViewer(t *testing.T) {
	ctx := context.Background()
	db, err := memory.New()
	require.NoError(t, err)

	base := time.Now()
	require.NoError(t, db.InsertDocument(ctx, newDocument("doc_own", "user_1", "", base)))
	require.NoError(t, db.InsertDocument(ctx, newDocument("doc_org", "user_2", "org_1", base.Add(time.Minute))))
	require.NoError(t, db.InsertDocument(ctx, newDocument("doc_both", "user_1", "org_1", base.Add(2*time.Minute))))
	require.NoError(t, db.InsertDocument(ctx, newDocument("doc_other", "user_3", "org_2", base.Add(3*time.Minute))))

	documents, err := db.ListDocumentsForViewer(ctx, "user_1", "org_1")
	require.NoError(t, err)
	ids := make([]string, 0, len(documents))
	for _, doc := range documents {
		ids = append(ids, doc.ID)
	}
	assert.Equal(t, []string{"doc_both", "doc_org", "doc_own"}, ids)

	documents, err = db.ListDocumentsForViewer(ctx, "user_9", "")
	require.NoError(t, err)
	assert.Empty(t, documents)
}

func TestStoreShares(t *testing.T) {
	ctx := context.Background()
	db, err := memory.New()
	require.NoError(t, err)
	require.NoError(t, db.InsertDocument(ctx, newDocument("doc_s", "user_1", "org_1", time.Now())))
	_, err = db.AppendVersion(ctx, appendInput("doc_s", 1))
	require.NoError(t, err)

	share := store.DocumentShare{
		ID:         "shr_1",
		DocumentID: "doc_s",
		Token:      "token-1",
		Permission: store.PermissionView,
		CreatedBy:  "user_1",
		CreatedAt:  time.Now(),
	}
	require.NoError(t, db.InsertShare(ctx, share))

	t.Run("duplicate token test", func(t *testing.T) {
		dup := share
		dup.ID = "shr_2"
		assert.ErrorIs(t, db.InsertShare(ctx, dup), store.ErrDuplicateToken)
	})

	t.Run("record view increments test", func(t *testing.T) {
		viewed, err := db.RecordShareView(ctx, "shr_1", time.Now())
		require.NoError(t, err)
		assert.Equal(t, 1, viewed.ViewCount)
		require.NotNil(t, viewed.LastViewedAt)

		viewed, err = db.RecordShareView(ctx, "shr_1", time.Now())
		require.NoError(t, err)
		assert.Equal(t, 2, viewed.ViewCount)
	})

	t.Run("partial update test", func(t *testing.T) {
		expiry := time.Now().Add(time.Hour)
		comment := store.PermissionComment
		updated, err := db.UpdateShare(ctx, "shr_1", store.ShareUpdate{
			Permission:   &comment,
			SetExpiresAt: true,
			ExpiresAt:    &expiry,
		})
		require.NoError(t, err)
		assert.Equal(t, store.PermissionComment, updated.Permission)
		require.NotNil(t, updated.ExpiresAt)
		assert.Equal(t, 2, updated.ViewCount)

		message := "please review"
		updated, err = db.UpdateShare(ctx, "shr_1", store.ShareUpdate{Message: &message, SetExpiresAt: true})
		require.NoError(t, err)
		assert.Equal(t, store.PermissionComment, updated.Permission)
		assert.Nil(t, updated.ExpiresAt)
		assert.Equal(t, "please review", updated.Message)
	})

	t.Run("delete document cascades test", func(t *testing.T) {
		require.NoError(t, db.DeleteDocument(ctx, "doc_s"))

		_, err := db.GetShareByToken(ctx, "token-1")
		assert.ErrorIs(t, err, store.ErrNotFound)

		versions, err := db.ListVersions(ctx, "doc_s")
		require.NoError(t, err)
		assert.Empty(t, versions)
	})
}

func TestStoreOrphanVersions(t *testing.T) {
	ctx := context.Background()
	db, err := memory.New()
	require.NoError(t, err)

	doc := newDocument("doc_o", "user_1", "org_1", time.Now())
	require.NoError(t, db.InsertDocument(ctx, doc))
	_, err = db.AppendVersion(ctx, store.VersionInput{
		ID: "ver_1", DocumentID: doc.ID, Title: doc.Title, Content: doc.Content, Status: doc.Status,
		ChangeType: store.ChangeCreated, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	orphans, err := db.OrphanVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	_, err = db.AppendVersion(ctx, appendInput(doc.ID, 2))
	require.NoError(t, err)

	orphans, err = db.OrphanVersions(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, doc.ID, orphans[0].DocumentID)
	assert.Equal(t, 2, orphans[0].Version)
}
