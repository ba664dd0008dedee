package port

import (
	"context"

	"docindex/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns the embedding for text. An error wrapping
	// domain.ErrEmbeddingUnavailable is an expected, non-fatal outcome.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorStore holds chunk embeddings per index and answers
// nearest-neighbour queries by cosine similarity.
type VectorStore interface {
	// Register adds or replaces the vector for a chunk.
	Register(index, chunkID string, vector []float32) error

	// Unregister removes chunk vectors. Unknown ids are ignored.
	Unregister(index string, chunkIDs ...string)

	// DropIndex removes every vector registered under index.
	DropIndex(index string)

	// Nearest returns up to k chunks ranked by descending cosine similarity.
	Nearest(index string, query []float32, k int) []domain.ScoredID

	// Count returns the number of vectors registered under index.
	Count(index string) int
}
