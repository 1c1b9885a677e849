// Package embedding provides shared validation and normalization for
// the embedding service adapters.
//
// The retrieval core depends on embeddings being unit-length so that
// inner product equals cosine similarity; every adapter funnels its raw
// model output through Normalize before returning it.
package embedding

import (
	"fmt"
	"math"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

// Normalize validates a raw model vector and scales it to unit length.
// A wrong dimension, NaN component, or zero vector is malformed model
// output and surfaces as domain.ErrEmbeddingUnavailable.
func Normalize(vec []float64, wantDim int) ([]float32, error) {
	if len(vec) != wantDim {
		return nil, fmt.Errorf("%w: model returned %d dimensions, expected %d",
			domain.ErrEmbeddingUnavailable, len(vec), wantDim)
	}

	var sumSquares float64
	for _, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: model returned a non-finite component", domain.ErrEmbeddingUnavailable)
		}
		sumSquares += v * v
	}

	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return nil, fmt.Errorf("%w: model returned a zero vector", domain.ErrEmbeddingUnavailable)
	}

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}
