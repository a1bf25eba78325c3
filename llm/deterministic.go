package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"
)

// DeterministicEmbedder derives a pseudo-random unit vector from the
// sha256 of the input text. Local runs and tests use it in place of
// the embedding service: identical text always maps to an identical
// vector, so idempotency and retrieval paths can be exercised offline.
type DeterministicEmbedder struct {
	dim int
}

// NewDeterministicEmbedder returns an embedder producing dim-component
// vectors.
func NewDeterministicEmbedder(dim int) *DeterministicEmbedder {
	return &DeterministicEmbedder{dim: dim}
}

func (e *DeterministicEmbedder) Dim() int { return e.dim }

func (e *DeterministicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := sha256.Sum256([]byte(text))
	seed := int64(binary.BigEndian.Uint64(h[:8]))
	rng := rand.New(rand.NewSource(seed))

	vec := make([]float32, e.dim)
	var norm float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}
