package services

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragcore/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

// seedIndex inserts chunks with known embeddings so query scores are
// exact cosines.
func seedIndex(t *testing.T, store *memory.DocumentStore, svc *RetrievalService, idx driven.VectorIndex, docID, filename string, vectors [][]float32) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.SaveDocument(ctx, &domain.Document{
		ID: docID, Filename: filename, Status: domain.DocumentCompleted,
	}))

	first := idx.ReserveIDs(len(vectors))
	chunks := make([]domain.Chunk, len(vectors))
	records := make([]driven.VectorRecord, len(vectors))
	for i, vec := range vectors {
		chunks[i] = domain.Chunk{
			VectorID:   first + int64(i),
			DocumentID: docID,
			Index:      i,
			Content:    "chunk content",
		}
		records[i] = driven.VectorRecord{
			VectorID:   first + int64(i),
			DocumentID: docID,
			ChunkIndex: i,
			Embedding:  vec,
		}
	}
	require.NoError(t, idx.InsertBatch(ctx, records))
	require.NoError(t, store.SaveChunks(ctx, chunks))

	_ = svc
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	store := memory.NewDocumentStore()
	idx := newTestIndex(t)
	svc := NewRetrievalService(store, idx, newStubEmbedder(4))

	result, err := svc.Retrieve(context.Background(), "anything", domain.RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	svc := NewRetrievalService(memory.NewDocumentStore(), newTestIndex(t), newStubEmbedder(4))

	_, err := svc.Retrieve(context.Background(), "   ", domain.RetrieveOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRetrieve_InvalidThreshold(t *testing.T) {
	store := memory.NewDocumentStore()
	idx := newTestIndex(t)
	svc := NewRetrievalService(store, idx, newStubEmbedder(4))
	seedIndex(t, store, svc, idx, "doc_1", "a.txt", [][]float32{unitVector(4, 0)})

	_, err := svc.Retrieve(context.Background(), "query", domain.RetrieveOptions{Threshold: 1.5})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Retrieve(context.Background(), "query", domain.RetrieveOptions{Threshold: -1.5})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRetrieve_RankedByScore(t *testing.T) {
	store := memory.NewDocumentStore()
	idx := newTestIndex(t)
	embedder := newStubEmbedder(4).on("query", unitVector(4, 0))
	svc := NewRetrievalService(store, idx, embedder)

	// Three chunks at increasing angles from the query vector.
	seedIndex(t, store, svc, idx, "doc_1", "a.txt", [][]float32{
		angledVector(4, 1.2), // cos ~0.36
		angledVector(4, 0.2), // cos ~0.98
		angledVector(4, 0.7), // cos ~0.76
	})

	result, err := svc.Retrieve(context.Background(), "query", domain.RetrieveOptions{TopK: 3})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 3)

	// Ordering mirrors the index ranking: descending score.
	assert.InDelta(t, math.Cos(0.2), result.Chunks[0].Score, 1e-5)
	assert.InDelta(t, math.Cos(0.7), result.Chunks[1].Score, 1e-5)
	assert.InDelta(t, math.Cos(1.2), result.Chunks[2].Score, 1e-5)
	assert.Equal(t, "a.txt", result.Chunks[0].Filename)
}

func TestRetrieve_ThresholdFilters(t *testing.T) {
	store := memory.NewDocumentStore()
	idx := newTestIndex(t)
	embedder := newStubEmbedder(4).on("query", unitVector(4, 0))
	svc := NewRetrievalService(store, idx, embedder)

	seedIndex(t, store, svc, idx, "doc_1", "a.txt", [][]float32{
		angledVector(4, 0.2), // cos ~0.98
		angledVector(4, 1.4), // cos ~0.17
	})

	result, err := svc.Retrieve(context.Background(), "query", domain.RetrieveOptions{TopK: 5, Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Greater(t, result.Chunks[0].Score, 0.5)
}

func TestRetrieve_RaisingThresholdNeverAddsResults(t *testing.T) {
	store := memory.NewDocumentStore()
	idx := newTestIndex(t)
	embedder := newStubEmbedder(4).on("query", unitVector(4, 0))
	svc := NewRetrievalService(store, idx, embedder)

	seedIndex(t, store, svc, idx, "doc_1", "a.txt", [][]float32{
		angledVector(4, 0.1),
		angledVector(4, 0.6),
		angledVector(4, 1.1),
	})

	ctx := context.Background()
	prev := 4
	for _, threshold := range []float64{0.0, 0.3, 0.6, 0.9} {
		result, err := svc.Retrieve(ctx, "query", domain.RetrieveOptions{TopK: 5, Threshold: threshold})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(result.Chunks), prev)
		prev = len(result.Chunks)
	}
}

func TestRetrieve_DocumentFilter(t *testing.T) {
	store := memory.NewDocumentStore()
	idx := newTestIndex(t)
	embedder := newStubEmbedder(4).on("query", unitVector(4, 0))
	svc := NewRetrievalService(store, idx, embedder)

	seedIndex(t, store, svc, idx, "doc_1", "a.txt", [][]float32{angledVector(4, 0.2)})
	seedIndex(t, store, svc, idx, "doc_2", "b.txt", [][]float32{angledVector(4, 0.1)})

	result, err := svc.Retrieve(context.Background(), "query", domain.RetrieveOptions{
		TopK:       5,
		DocumentID: "doc_1",
	})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "doc_1", result.Chunks[0].Chunk.DocumentID)
}

func TestRetrieve_DefaultThreshold(t *testing.T) {
	store := memory.NewDocumentStore()
	idx := newTestIndex(t)
	embedder := newStubEmbedder(4).on("query", unitVector(4, 0))
	svc := NewRetrievalService(store, idx, embedder)

	seedIndex(t, store, svc, idx, "doc_1", "a.txt", [][]float32{
		angledVector(4, 0.2), // cos ~0.98
		angledVector(4, 1.5), // cos ~0.07, below the default
	})

	// Zero threshold selects the default, which filters the weak hit.
	result, err := svc.Retrieve(context.Background(), "query", domain.RetrieveOptions{TopK: 5})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.GreaterOrEqual(t, result.Chunks[0].Score, DefaultThreshold)
}

func TestRetrieve_AllBelowThreshold(t *testing.T) {
	store := memory.NewDocumentStore()
	idx := newTestIndex(t)
	embedder := newStubEmbedder(4).on("query", unitVector(4, 0))
	svc := NewRetrievalService(store, idx, embedder)

	seedIndex(t, store, svc, idx, "doc_1", "a.txt", [][]float32{angledVector(4, 1.5)})

	result, err := svc.Retrieve(context.Background(), "query", domain.RetrieveOptions{TopK: 5, Threshold: 0.9})
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
}

func TestRetrieve_DefaultTopK(t *testing.T) {
	store := memory.NewDocumentStore()
	idx := newTestIndex(t)
	embedder := newStubEmbedder(4).on("query", unitVector(4, 0))
	svc := NewRetrievalService(store, idx, embedder)

	vectors := make([][]float32, 8)
	for i := range vectors {
		vectors[i] = angledVector(4, float64(i)*0.1)
	}
	seedIndex(t, store, svc, idx, "doc_1", "a.txt", vectors)

	result, err := svc.Retrieve(context.Background(), "query", domain.RetrieveOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Chunks, DefaultTopK)
}
