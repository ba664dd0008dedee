package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"docindex/internal/domain"
)

// QueryCache memoizes query results per index. Every mutation of an index
// bumps its generation, which makes older entries for that index stale.
type QueryCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, cacheEntry]
	gens    map[string]uint64
	ttl     time.Duration
}

type cacheEntry struct {
	results   []domain.QueryResult
	timestamp time.Time
	indexGen  uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	entries, _ := lru.New[string, cacheEntry](maxSize)
	return &QueryCache{
		entries: entries,
		gens:    make(map[string]uint64),
		ttl:     ttl,
	}
}

func cacheKey(index string, mode domain.QueryMode, k int, text string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d\x00%s", index, mode, k, text)))
	return hex.EncodeToString(hash[:16])
}

// Get returns a copy of the cached results, or false when absent or stale.
func (c *QueryCache) Get(index string, mode domain.QueryMode, k int, text string) ([]domain.QueryResult, bool) {
	key := cacheKey(index, mode, k, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if entry.indexGen != c.gens[index] || time.Since(entry.timestamp) > c.ttl {
		c.entries.Remove(key)
		return nil, false
	}

	return cloneResults(entry.results), true
}

// Put stores results computed at generation gen. Results computed before
// a concurrent mutation are dropped.
func (c *QueryCache) Put(index string, mode domain.QueryMode, k int, text string, gen uint64, results []domain.QueryResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gens[index] {
		return
	}

	c.entries.Add(cacheKey(index, mode, k, text), cacheEntry{
		results:   cloneResults(results),
		timestamp: time.Now(),
		indexGen:  gen,
	})
}

// Generation returns the current generation of index.
func (c *QueryCache) Generation(index string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[index]
}

// Invalidate marks every cached result of index as stale.
func (c *QueryCache) Invalidate(index string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[index]++
}

// Purge drops all entries.
func (c *QueryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	for index := range c.gens {
		c.gens[index]++
	}
}

func (c *QueryCache) Size() int {
	return c.entries.Len()
}

// cloneResults copies results together with their metadata maps, so
// neither the caller nor the cache can mutate the other's copy.
func cloneResults(results []domain.QueryResult) []domain.QueryResult {
	out := make([]domain.QueryResult, len(results))
	for i, r := range results {
		if r.Metadata != nil {
			meta := make(map[string]string, len(r.Metadata))
			for k, v := range r.Metadata {
				meta[k] = v
			}
			r.Metadata = meta
		}
		out[i] = r
	}
	return out
}
