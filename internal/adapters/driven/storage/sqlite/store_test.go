package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	return store
}

// saveTestDocument saves a document to satisfy foreign key constraints.
func saveTestDocument(t *testing.T, store *Store, docID string) {
	t.Helper()
	err := store.DocumentStore().SaveDocument(context.Background(), &domain.Document{
		ID:       docID,
		Filename: docID + ".txt",
		Format:   ".txt",
		Size:     100,
		Status:   domain.DocumentPending,
	})
	require.NoError(t, err)
}

// intPtr returns a pointer to v.
func intPtr(v int) *int { return &v }

// ==================== Store Creation Tests ====================

func TestNewStore_Success(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	dbPath := filepath.Join(tempDir, "metadata.db")
	assert.Equal(t, dbPath, store.Path())
	assert.FileExists(t, dbPath)

	assert.NoError(t, store.db.Ping())
}

func TestNewStore_ErrorHandling(t *testing.T) {
	// Invalid path should fail to create the directory
	_, err := NewStore("/invalid\x00path")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "creating data directory")
}

func TestNewStore_CreatesNestedDirectory(t *testing.T) {
	tempDir := t.TempDir()
	nested := filepath.Join(tempDir, "a", "b", "data")

	store, err := NewStore(nested)
	require.NoError(t, err)
	defer store.Close()

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMigrate_Idempotent(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening runs migrations again against the same file.
	store, err = NewStore(tempDir)
	require.NoError(t, err)
	defer store.Close()

	var version int
	row := store.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	require.NoError(t, row.Scan(&version))
	assert.Equal(t, 1, version)
}

// ==================== Document Store Tests ====================

func TestDocumentStore_SaveAndGet(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	doc := &domain.Document{
		ID:       "doc_abc123",
		Filename: "report.pdf",
		Format:   ".pdf",
		Size:     4096,
		Status:   domain.DocumentPending,
	}
	require.NoError(t, docs.SaveDocument(ctx, doc))
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := docs.GetDocument(ctx, "doc_abc123")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", got.Filename)
	assert.Equal(t, ".pdf", got.Format)
	assert.Equal(t, int64(4096), got.Size)
	assert.Equal(t, domain.DocumentPending, got.Status)
}

func TestDocumentStore_SaveUpdatesStatus(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	doc := &domain.Document{ID: "doc_1", Filename: "a.txt", Status: domain.DocumentPending}
	require.NoError(t, docs.SaveDocument(ctx, doc))
	created := doc.CreatedAt

	doc.Status = domain.DocumentCompleted
	doc.ChunkCount = 7
	require.NoError(t, docs.SaveDocument(ctx, doc))

	got, err := docs.GetDocument(ctx, "doc_1")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentCompleted, got.Status)
	assert.Equal(t, 7, got.ChunkCount)
	assert.WithinDuration(t, created, got.CreatedAt, time.Second)
}

func TestDocumentStore_SaveFailedWithError(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	doc := &domain.Document{
		ID:       "doc_bad",
		Filename: "bad.txt",
		Status:   domain.DocumentFailed,
		Error:    "embedding service unreachable",
	}
	require.NoError(t, docs.SaveDocument(ctx, doc))

	got, err := docs.GetDocument(ctx, "doc_bad")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentFailed, got.Status)
	assert.Equal(t, "embedding service unreachable", got.Error)
}

func TestDocumentStore_SaveRejectsEmptyID(t *testing.T) {
	store := setupTestStore(t)

	err := store.DocumentStore().SaveDocument(context.Background(), &domain.Document{Filename: "x.txt"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentStore_GetNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.DocumentStore().GetDocument(context.Background(), "doc_missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_SaveAndGetChunks(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	saveTestDocument(t, store, "doc_1")

	chunks := []domain.Chunk{
		{VectorID: 1, DocumentID: "doc_1", Index: 0, Content: "first", StartOffset: 0, EndOffset: 5},
		{VectorID: 2, DocumentID: "doc_1", Index: 1, Content: "second", StartOffset: 3, EndOffset: 9, Page: intPtr(2)},
	}
	require.NoError(t, docs.SaveChunks(ctx, chunks))

	got, err := docs.GetChunks(ctx, "doc_1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, 0, got[0].Index)
	assert.Nil(t, got[0].Page)
	assert.Equal(t, "second", got[1].Content)
	require.NotNil(t, got[1].Page)
	assert.Equal(t, 2, *got[1].Page)
}

func TestDocumentStore_SaveChunks_Empty(t *testing.T) {
	store := setupTestStore(t)
	assert.NoError(t, store.DocumentStore().SaveChunks(context.Background(), nil))
}

func TestDocumentStore_SaveChunks_RequiresDocument(t *testing.T) {
	store := setupTestStore(t)

	// Foreign key constraint: no parent document
	err := store.DocumentStore().SaveChunks(context.Background(), []domain.Chunk{
		{VectorID: 1, DocumentID: "doc_orphan", Index: 0, Content: "x"},
	})
	assert.Error(t, err)
}

func TestDocumentStore_GetChunkByVectorID(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	saveTestDocument(t, store, "doc_1")
	require.NoError(t, docs.SaveChunks(ctx, []domain.Chunk{
		{VectorID: 42, DocumentID: "doc_1", Index: 0, Content: "hello world"},
	}))

	chunk, err := docs.GetChunkByVectorID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "doc_1", chunk.DocumentID)
	assert.Equal(t, "hello world", chunk.Content)

	_, err = docs.GetChunkByVectorID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_DeleteCascadesToChunks(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	saveTestDocument(t, store, "doc_1")
	require.NoError(t, docs.SaveChunks(ctx, []domain.Chunk{
		{VectorID: 1, DocumentID: "doc_1", Index: 0, Content: "a"},
		{VectorID: 2, DocumentID: "doc_1", Index: 1, Content: "b"},
	}))

	require.NoError(t, docs.DeleteDocument(ctx, "doc_1"))

	_, err := docs.GetDocument(ctx, "doc_1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	chunks, err := docs.GetChunks(ctx, "doc_1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestDocumentStore_DeleteNotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.DocumentStore().DeleteDocument(context.Background(), "doc_missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ListNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	older := &domain.Document{ID: "doc_old", Filename: "old.txt", CreatedAt: time.Now().UTC().Add(-time.Hour)}
	newer := &domain.Document{ID: "doc_new", Filename: "new.txt"}
	require.NoError(t, docs.SaveDocument(ctx, older))
	require.NoError(t, docs.SaveDocument(ctx, newer))

	list, err := docs.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "doc_new", list[0].ID)
	assert.Equal(t, "doc_old", list[1].ID)
}

func TestDocumentStore_ListVectorIDs(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	ids, err := docs.ListVectorIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	saveTestDocument(t, store, "doc_1")
	saveTestDocument(t, store, "doc_2")
	require.NoError(t, docs.SaveChunks(ctx, []domain.Chunk{
		{VectorID: 3, DocumentID: "doc_1", Index: 0, Content: "a"},
		{VectorID: 1, DocumentID: "doc_2", Index: 0, Content: "b"},
		{VectorID: 2, DocumentID: "doc_2", Index: 1, Content: "c"},
	}))

	ids, err = docs.ListVectorIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

// ==================== Quota Store Tests ====================

func TestQuotaStore_LoadBeforeSave(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.QuotaStore().LoadQuota(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuotaStore_SaveAndLoad(t *testing.T) {
	store := setupTestStore(t)
	quota := store.QuotaStore()
	ctx := context.Background()

	dayStart := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	require.NoError(t, quota.SaveQuota(ctx, &driven.QuotaState{
		DayStart: dayStart,
		Usage:    12345,
	}))

	state, err := quota.LoadQuota(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), state.Usage)
	assert.True(t, state.DayStart.Equal(dayStart))
}

func TestQuotaStore_SaveOverwrites(t *testing.T) {
	store := setupTestStore(t)
	quota := store.QuotaStore()
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	require.NoError(t, quota.SaveQuota(ctx, &driven.QuotaState{DayStart: day, Usage: 100}))
	require.NoError(t, quota.SaveQuota(ctx, &driven.QuotaState{DayStart: day, Usage: 250}))

	state, err := quota.LoadQuota(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(250), state.Usage)
}

func TestQuotaStore_History(t *testing.T) {
	store := setupTestStore(t)
	quota := store.QuotaStore()
	ctx := context.Background()

	require.NoError(t, quota.RecordHistory(ctx, "2026-03-13", 90000))
	require.NoError(t, quota.RecordHistory(ctx, "2026-03-14", 120000))
	// Re-recording a day replaces its total.
	require.NoError(t, quota.RecordHistory(ctx, "2026-03-14", 130000))

	history, err := quota.UsageHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"2026-03-13": 90000,
		"2026-03-14": 130000,
	}, history)
}

func TestQuotaStore_RecordHistoryRejectsEmptyDay(t *testing.T) {
	store := setupTestStore(t)

	err := store.QuotaStore().RecordHistory(context.Background(), "", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
