package lexical

import (
	"math"
	"sort"
	"sync"

	"docindex/internal/domain"
	"docindex/internal/port"
)

// TFIDFIndex scores chunks by term frequency times inverse document
// frequency, treating every chunk as a document. Each index name owns an
// isolated corpus so statistics never leak across indexes.
type TFIDFIndex struct {
	tokenizer port.Tokenizer

	mu      sync.RWMutex
	corpora map[string]*corpus
}

type corpus struct {
	mu       sync.RWMutex
	nextSeq  uint64
	chunks   map[string]*chunkTerms
	postings map[string]map[string]int
}

type chunkTerms struct {
	seq uint64
	tf  map[string]int
}

func NewTFIDFIndex(tokenizer port.Tokenizer) *TFIDFIndex {
	return &TFIDFIndex{
		tokenizer: tokenizer,
		corpora:   make(map[string]*corpus),
	}
}

// Register adds chunk text under index. Registering an existing chunk id
// replaces its terms.
func (x *TFIDFIndex) Register(index, chunkID, text string) {
	tf := make(map[string]int)
	for _, token := range x.tokenizer.Tokenize(text) {
		tf[token]++
	}

	c := x.corpus(index, true)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.remove(chunkID)
	c.chunks[chunkID] = &chunkTerms{seq: c.nextSeq, tf: tf}
	c.nextSeq++
	for term, count := range tf {
		p, ok := c.postings[term]
		if !ok {
			p = make(map[string]int)
			c.postings[term] = p
		}
		p[chunkID] = count
	}
}

// Unregister removes chunks from index.
func (x *TFIDFIndex) Unregister(index string, chunkIDs ...string) {
	c := x.corpus(index, false)
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range chunkIDs {
		c.remove(id)
	}
}

// DropIndex forgets the whole corpus of index.
func (x *TFIDFIndex) DropIndex(index string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.corpora, index)
}

// Count returns the number of chunks registered under index.
func (x *TFIDFIndex) Count(index string) int {
	c := x.corpus(index, false)
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

// Score returns up to k chunks containing at least one query term, by
// descending score. Equal scores keep registration order. k <= 0 returns
// every match.
func (x *TFIDFIndex) Score(index, query string, k int) []domain.ScoredID {
	c := x.corpus(index, false)
	if c == nil {
		return nil
	}

	terms := uniqueTerms(x.tokenizer.Tokenize(query))
	if len(terms) == 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.chunks)
	if n == 0 {
		return nil
	}

	scores := make(map[string]float64)
	for _, term := range terms {
		postings := c.postings[term]
		if len(postings) == 0 {
			continue
		}
		idf := smoothedIDF(n, len(postings))
		for chunkID, tf := range postings {
			scores[chunkID] += float64(tf) * idf
		}
	}

	type ranked struct {
		id    string
		seq   uint64
		score float64
	}
	results := make([]ranked, 0, len(scores))
	for id, score := range scores {
		results = append(results, ranked{id: id, seq: c.chunks[id].seq, score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].seq < results[j].seq
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}

	out := make([]domain.ScoredID, len(results))
	for i, r := range results {
		out[i] = domain.ScoredID{ChunkID: r.id, Score: r.score}
	}
	return out
}

func (x *TFIDFIndex) corpus(index string, create bool) *corpus {
	x.mu.RLock()
	c, ok := x.corpora[index]
	x.mu.RUnlock()
	if ok || !create {
		return c
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if c, ok = x.corpora[index]; ok {
		return c
	}
	c = &corpus{
		chunks:   make(map[string]*chunkTerms),
		postings: make(map[string]map[string]int),
	}
	x.corpora[index] = c
	return c
}

// remove must be called with c.mu held.
func (c *corpus) remove(chunkID string) {
	ct, ok := c.chunks[chunkID]
	if !ok {
		return
	}
	for term := range ct.tf {
		p := c.postings[term]
		delete(p, chunkID)
		if len(p) == 0 {
			delete(c.postings, term)
		}
	}
	delete(c.chunks, chunkID)
}

// smoothedIDF is ln((1+N)/(1+df)) + 1, positive even when a term occurs
// in every chunk.
func smoothedIDF(n, df int) float64 {
	return math.Log(float64(1+n)/float64(1+df)) + 1
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
