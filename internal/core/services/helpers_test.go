package services

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragcore/internal/adapters/driven/index/flat"
	"github.com/custodia-labs/ragcore/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragcore/internal/chunker"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
)

// stubEmbedder returns deterministic unit vectors. Each distinct text
// maps to a fixed vector; unknown texts get a default.
type stubEmbedder struct {
	dim     int
	vectors map[string][]float32
	fail    error
	calls   int
}

var _ driven.EmbeddingService = (*stubEmbedder)(nil)

func newStubEmbedder(dim int) *stubEmbedder {
	return &stubEmbedder{dim: dim, vectors: make(map[string][]float32)}
}

// on registers the vector returned for a given text.
func (e *stubEmbedder) on(text string, vec []float32) *stubEmbedder {
	e.vectors[text] = vec
	return e
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.fail != nil {
		return nil, e.fail
	}
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	return unitVector(e.dim, 0), nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int              { return e.dim }
func (e *stubEmbedder) ModelName() string            { return "stub-embed" }
func (e *stubEmbedder) Ping(_ context.Context) error { return nil }
func (e *stubEmbedder) Close() error                 { return nil }

// unitVector returns a unit vector along the given axis.
func unitVector(dim, axis int) []float32 {
	vec := make([]float32, dim)
	vec[axis%dim] = 1
	return vec
}

// angledVector returns a unit vector in the plane of axes 0 and 1 at
// the given angle from axis 0, so inner products against axis 0 equal
// cos(angle).
func angledVector(dim int, angle float64) []float32 {
	vec := make([]float32, dim)
	vec[0] = float32(math.Cos(angle))
	vec[1] = float32(math.Sin(angle))
	return vec
}

// stubLLM returns a fixed completion and captures the messages.
type stubLLM struct {
	completion driven.Completion
	err        error
	gotMsgs    []driven.ChatMessage
	calls      int
}

var _ driven.LLMService = (*stubLLM)(nil)

func (l *stubLLM) Chat(_ context.Context, messages []driven.ChatMessage, _ driven.ChatOptions) (*driven.Completion, error) {
	l.calls++
	l.gotMsgs = messages
	if l.err != nil {
		return nil, l.err
	}
	c := l.completion
	if c.Model == "" {
		c.Model = "stub-chat"
	}
	return &c, nil
}

func (l *stubLLM) ModelName() string            { return "stub-chat" }
func (l *stubLLM) Ping(_ context.Context) error { return nil }
func (l *stubLLM) Close() error                 { return nil }

// newTestIndex creates a flat index backed by a temp file.
func newTestIndex(t *testing.T) *flat.Index {
	t.Helper()
	idx, err := flat.Load(filepath.Join(t.TempDir(), "vectors.idx"))
	require.NoError(t, err)
	return idx
}

// newTestIngest wires an ingest service over in-memory stores.
func newTestIngest(t *testing.T, embedder driven.EmbeddingService, size, overlap int) (*IngestService, *memory.DocumentStore, *flat.Index) {
	t.Helper()
	splitter, err := chunker.New(chunker.WithChunkSize(size), chunker.WithOverlap(overlap))
	require.NoError(t, err)

	store := memory.NewDocumentStore()
	idx := newTestIndex(t)
	return NewIngestService(store, idx, embedder, splitter), store, idx
}
