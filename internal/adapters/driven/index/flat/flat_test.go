package flat

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

func record(id int64, docID string, chunkIndex int, embedding ...float32) driven.VectorRecord {
	return driven.VectorRecord{
		VectorID:   id,
		DocumentID: docID,
		ChunkIndex: chunkIndex,
		Embedding:  embedding,
	}
}

func TestIndex_InsertAndSearch(t *testing.T) {
	idx := New("")
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, record(1, "doc-1", 0, 1, 0)))

	hits, err := idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].VectorID)
	assert.Equal(t, "doc-1", hits[0].DocumentID)
	assert.Equal(t, 0, hits[0].ChunkIndex)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestIndex_Search_EmptyIndex(t *testing.T) {
	idx := New("")

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_Search_InvalidTopK(t *testing.T) {
	idx := New("")

	_, err := idx.Search(context.Background(), []float32{1, 0}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = idx.Search(context.Background(), []float32{1, 0}, -3)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIndex_Search_Ordering(t *testing.T) {
	idx := New("")
	ctx := context.Background()

	norm := float32(math.Sqrt2 / 2)
	require.NoError(t, idx.Insert(ctx, record(1, "doc-1", 0, 0, 1)))       // score 0
	require.NoError(t, idx.Insert(ctx, record(2, "doc-1", 1, 1, 0)))       // score 1
	require.NoError(t, idx.Insert(ctx, record(3, "doc-2", 0, norm, norm))) // score ~0.707

	hits, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, int64(2), hits[0].VectorID)
	assert.Equal(t, int64(3), hits[1].VectorID)
	assert.Equal(t, int64(1), hits[2].VectorID)

	// Scores are monotonically non-increasing.
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Score, hits[i-1].Score)
	}
}

func TestIndex_Search_TieBreakByVectorID(t *testing.T) {
	idx := New("")
	ctx := context.Background()

	// Identical vectors, identical scores. Insert out of ID order.
	require.NoError(t, idx.Insert(ctx, record(7, "doc-1", 2, 1, 0)))
	require.NoError(t, idx.Insert(ctx, record(3, "doc-1", 1, 1, 0)))
	require.NoError(t, idx.Insert(ctx, record(5, "doc-1", 0, 1, 0)))

	for i := 0; i < 10; i++ {
		hits, err := idx.Search(ctx, []float32{1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, int64(3), hits[0].VectorID)
		assert.Equal(t, int64(5), hits[1].VectorID)
		assert.Equal(t, int64(7), hits[2].VectorID)
	}
}

func TestIndex_Search_TopKLargerThanIndex(t *testing.T) {
	idx := New("")
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, record(1, "doc-1", 0, 1, 0)))
	require.NoError(t, idx.Insert(ctx, record(2, "doc-1", 1, 0, 1)))

	hits, err := idx.Search(ctx, []float32{1, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestIndex_Insert_DimensionMismatch(t *testing.T) {
	idx := New("")
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, record(1, "doc-1", 0, 1, 0)))

	err := idx.Insert(ctx, record(2, "doc-1", 1, 1, 0, 0))
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestIndex_Insert_DuplicateVectorID(t *testing.T) {
	idx := New("")
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, record(1, "doc-1", 0, 1, 0)))

	err := idx.Insert(ctx, record(1, "doc-2", 0, 0, 1))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, 1, idx.Len())
}

func TestIndex_Insert_NaNRejected(t *testing.T) {
	idx := New("")

	err := idx.Insert(context.Background(), record(1, "doc-1", 0, float32(math.NaN()), 0))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, idx.Len())
}

func TestIndex_InsertBatch_AllOrNothing(t *testing.T) {
	idx := New("")
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, record(1, "doc-1", 0, 1, 0)))

	// Batch containing a duplicate must not be partially applied.
	err := idx.InsertBatch(ctx, []driven.VectorRecord{
		record(2, "doc-2", 0, 0, 1),
		record(1, "doc-2", 1, 1, 0),
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, 1, idx.Len())
}

func TestIndex_DeleteByDocument(t *testing.T) {
	idx := New("")
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, record(1, "doc-1", 0, 1, 0)))
	require.NoError(t, idx.Insert(ctx, record(2, "doc-2", 0, 0, 1)))
	require.NoError(t, idx.Insert(ctx, record(3, "doc-1", 1, 1, 0)))

	removed, err := idx.DeleteByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, idx.Len())

	hits, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].VectorID)

	// Deleting again is a no-op with zero count.
	removed, err = idx.DeleteByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestIndex_DeleteDuringSearch_Snapshot(t *testing.T) {
	idx := New("")
	ctx := context.Background()

	// One document with many records; a concurrent search must see
	// either all of them or none of them.
	const n = 200
	recs := make([]driven.VectorRecord, n)
	for i := 0; i < n; i++ {
		recs[i] = record(int64(i+1), "doc-1", i, 1, 0)
	}
	require.NoError(t, idx.InsertBatch(ctx, recs))

	var wg sync.WaitGroup
	results := make(chan int, 64)

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := idx.Search(ctx, []float32{1, 0}, n)
			if err != nil {
				return
			}
			results <- len(hits)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = idx.DeleteByDocument(ctx, "doc-1")
	}()

	wg.Wait()
	close(results)

	for count := range results {
		if count != 0 && count != n {
			t.Fatalf("search observed a partial document: %d of %d records", count, n)
		}
	}
}

func TestIndex_ReserveIDs(t *testing.T) {
	idx := New("")

	first := idx.ReserveIDs(3)
	assert.Equal(t, int64(1), first)

	second := idx.ReserveIDs(2)
	assert.Equal(t, int64(4), second)
}

func TestIndex_ReserveIDs_Concurrent(t *testing.T) {
	idx := New("")

	const workers = 16
	const perWorker = 10

	var wg sync.WaitGroup
	ids := make(chan int64, workers*perWorker)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ids <- idx.ReserveIDs(1)
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate reserved ID %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestIndex_ExplicitInsertNeverRollsBackIDCounter(t *testing.T) {
	idx := New("")
	ctx := context.Background()

	// Inserts with explicit IDs race reservations that overtake them.
	// The counter must only move forward, so no reserved ID repeats.
	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	ids := make(chan int64, workers*perWorker)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ids <- idx.ReserveIDs(1)
			}
		}()
	}

	// Explicit IDs land inside the range the reservations sweep, so a
	// backward store would hand already-reserved IDs out again.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			vid := int64(10 + i*30)
			assert.NoError(t, idx.Insert(ctx, record(vid, "doc_explicit", i, 1, 0)))
		}
	}()

	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "reused reserved ID %d", id)
		seen[id] = true
	}
	assert.Greater(t, idx.ReserveIDs(1), int64(workers*perWorker))
}

func TestIndex_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.idx")
	ctx := context.Background()

	idx := New(path)
	first := idx.ReserveIDs(2)
	require.NoError(t, idx.InsertBatch(ctx, []driven.VectorRecord{
		record(first, "doc-1", 0, 1, 0),
		record(first+1, "doc-1", 1, 0, 1),
	}))
	require.NoError(t, idx.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())

	// Reserved IDs continue past the persisted ones.
	assert.Equal(t, int64(3), loaded.ReserveIDs(1))

	hits, err := loaded.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, first, hits[0].VectorID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestLoad_MissingFile(t *testing.T) {
	idx, err := Load(filepath.Join(t.TempDir(), "absent.idx"))
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
}
