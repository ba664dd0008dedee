package vectorstore

import (
	"fmt"
	"sort"
	"sync"

	"docindex/internal/domain"
)

// FlatStore answers nearest-neighbour queries with a brute-force linear
// scan. Vectors live in memory; durability comes from the index snapshot.
type FlatStore struct {
	mu      sync.RWMutex
	indexes map[string]*flatIndex
}

type flatIndex struct {
	nextSeq uint64
	vectors map[string]flatEntry
}

type flatEntry struct {
	seq    uint64
	vector []float32
}

func NewFlatStore() *FlatStore {
	return &FlatStore{indexes: make(map[string]*flatIndex)}
}

// Register adds or replaces the vector of a chunk.
func (s *FlatStore) Register(index, chunkID string, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("register %s: empty vector", chunkID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexes[index]
	if !ok {
		idx = &flatIndex{vectors: make(map[string]flatEntry)}
		s.indexes[index] = idx
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	idx.vectors[chunkID] = flatEntry{seq: idx.nextSeq, vector: vec}
	idx.nextSeq++
	return nil
}

// Unregister removes chunk vectors from index.
func (s *FlatStore) Unregister(index string, chunkIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexes[index]
	if !ok {
		return
	}
	for _, id := range chunkIDs {
		delete(idx.vectors, id)
	}
}

// DropIndex removes every vector of index.
func (s *FlatStore) DropIndex(index string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, index)
}

// Count returns the number of vectors registered under index.
func (s *FlatStore) Count(index string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.indexes[index]; ok {
		return len(idx.vectors)
	}
	return 0
}

// Nearest scores every vector of index against query and returns the top k
// by descending cosine similarity, ties in registration order. k <= 0
// returns all. Vectors whose length differs from query, or with zero
// magnitude, never match.
func (s *FlatStore) Nearest(index string, query []float32, k int) []domain.ScoredID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.indexes[index]
	if !ok || len(idx.vectors) == 0 || magnitude(query) == 0 {
		return nil
	}

	type scored struct {
		id    string
		seq   uint64
		score float64
	}

	scores := make([]scored, 0, len(idx.vectors))
	for id, entry := range idx.vectors {
		if len(entry.vector) != len(query) || magnitude(entry.vector) == 0 {
			continue
		}
		scores = append(scores, scored{
			id:    id,
			seq:   entry.seq,
			score: CosineSimilarity(query, entry.vector),
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].seq < scores[j].seq
	})

	if len(scores) == 0 {
		return nil
	}
	if k > 0 && k < len(scores) {
		scores = scores[:k]
	}

	results := make([]domain.ScoredID, len(scores))
	for i, sc := range scores {
		results[i] = domain.ScoredID{ChunkID: sc.id, Score: sc.score}
	}
	return results
}
