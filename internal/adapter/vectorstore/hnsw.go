package vectorstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"docindex/internal/domain"
)

// HNSWConfig tunes the approximate graph.
type HNSWConfig struct {
	M        int
	EfSearch int
}

// HNSWStore is an approximate alternative to FlatStore built on
// coder/hnsw. Each index keeps one graph per vector dimension; a query only
// searches the graph matching its own length, since vectors of another
// length score 0 anyway. Returned scores are exact cosine similarities.
type HNSWStore struct {
	mu      sync.RWMutex
	cfg     HNSWConfig
	indexes map[string]*hnswIndex
}

type hnswIndex struct {
	graphs  map[int]*hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	vectors map[uint64][]float32
	orphans int
	nextKey uint64
}

func NewHNSWStore(cfg HNSWConfig) *HNSWStore {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 20
	}
	return &HNSWStore{
		cfg:     cfg,
		indexes: make(map[string]*hnswIndex),
	}
}

func (s *HNSWStore) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = s.cfg.M
	g.EfSearch = s.cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Register adds or replaces the vector of a chunk. A replaced vector is
// orphaned in its graph rather than deleted.
func (s *HNSWStore) Register(index, chunkID string, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("register %s: empty vector", chunkID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexes[index]
	if !ok {
		idx = &hnswIndex{
			graphs:  make(map[int]*hnsw.Graph[uint64]),
			idMap:   make(map[string]uint64),
			keyMap:  make(map[uint64]string),
			vectors: make(map[uint64][]float32),
		}
		s.indexes[index] = idx
	}

	idx.forget(chunkID)

	key := idx.nextKey
	idx.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	idx.idMap[chunkID] = key
	idx.keyMap[key] = chunkID
	idx.vectors[key] = vec

	// Zero vectors have no direction; they never match and stay out of the graph.
	if magnitude(vec) == 0 {
		return nil
	}

	g, ok := idx.graphs[len(vec)]
	if !ok {
		g = s.newGraph()
		idx.graphs[len(vec)] = g
	}
	g.Add(hnsw.MakeNode(key, normalized(vec)))
	return nil
}

// Unregister orphans chunk vectors of index.
func (s *HNSWStore) Unregister(index string, chunkIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexes[index]
	if !ok {
		return
	}
	for _, id := range chunkIDs {
		idx.forget(id)
	}
}

// DropIndex discards every graph of index.
func (s *HNSWStore) DropIndex(index string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, index)
}

// Count returns the number of live vectors registered under index.
func (s *HNSWStore) Count(index string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.indexes[index]; ok {
		return len(idx.idMap)
	}
	return 0
}

// Nearest returns up to k approximate nearest neighbours of query.
func (s *HNSWStore) Nearest(index string, query []float32, k int) []domain.ScoredID {
	// Graph search mutates internal scratch state, so take the write lock.
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexes[index]
	if !ok || magnitude(query) == 0 {
		return nil
	}
	g, ok := idx.graphs[len(query)]
	if !ok || g.Len() == 0 {
		return nil
	}

	if k <= 0 || k > len(idx.idMap) {
		k = len(idx.idMap)
	}
	// Ask for extra candidates to make up for orphaned nodes.
	want := k + idx.orphans
	if want > g.Len() {
		want = g.Len()
	}

	nodes := g.Search(normalized(query), want)

	type scored struct {
		id    string
		key   uint64
		score float64
	}
	results := make([]scored, 0, len(nodes))
	for _, node := range nodes {
		id, live := idx.keyMap[node.Key]
		if !live {
			continue
		}
		results = append(results, scored{
			id:    id,
			key:   node.Key,
			score: CosineSimilarity(query, idx.vectors[node.Key]),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].key < results[j].key
	})
	if len(results) > k {
		results = results[:k]
	}

	out := make([]domain.ScoredID, len(results))
	for i, r := range results {
		out[i] = domain.ScoredID{ChunkID: r.id, Score: r.score}
	}
	return out
}

// forget removes the id mapping of chunkID, leaving any graph node orphaned.
func (idx *hnswIndex) forget(chunkID string) {
	key, ok := idx.idMap[chunkID]
	if !ok {
		return
	}
	if magnitude(idx.vectors[key]) != 0 {
		idx.orphans++
	}
	delete(idx.idMap, chunkID)
	delete(idx.keyMap, key)
	delete(idx.vectors, key)
}
