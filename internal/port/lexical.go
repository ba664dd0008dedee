package port

import "docindex/internal/domain"

// LexicalIndex keeps per-index term statistics for TF-IDF scoring.
type LexicalIndex interface {
	Register(index, chunkID, text string)

	Unregister(index string, chunkIDs ...string)

	DropIndex(index string)

	// Score ranks chunks of index against query. An index without chunks
	// yields an empty result.
	Score(index, query string, k int) []domain.ScoredID

	Count(index string) int
}
