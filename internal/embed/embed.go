// Package embed turns text into dense vectors for the vector index.
// The only backend wired in is a deterministic, network-free static
// embedder; cloud/ML embedding providers are out of scope, so the
// Embedder interface exists to keep that decision swappable rather
// than to abstract over multiple live implementations today.
package embed

import (
	"context"
	"math"
)

// Dimensions is the output size of the static embedder's vectors.
const Dimensions = 256

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

// normalizeVector returns a unit-length copy of v.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
