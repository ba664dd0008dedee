package embedding

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"math"

	"docindex/internal/port"
)

// DefaultHashDimension is the vector length of HashEmbedder.
const DefaultHashDimension = 768

// HashEmbedder is a deterministic local embedder. Every term is hashed to
// a position of a fixed-size vector and weighted by its relative frequency;
// the result is L2-normalized. It needs no model and no network.
type HashEmbedder struct {
	tokenizer port.Tokenizer
	dimension int
}

func NewHashEmbedder(tokenizer port.Tokenizer, dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &HashEmbedder{tokenizer: tokenizer, dimension: dimension}
}

// Embed returns the hashed term vector of text. Text without terms yields
// a zero vector, which never matches anything.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector := make([]float32, e.dimension)
	terms := e.tokenizer.Tokenize(text)
	if len(terms) == 0 {
		return vector, nil
	}

	counts := make(map[string]int, len(terms))
	for _, term := range terms {
		counts[term]++
	}

	total := float64(len(terms))
	for term, count := range counts {
		vector[e.position(term)] += float32(float64(count) / total)
	}

	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	if norm := math.Sqrt(sum); norm > 0 {
		for i := range vector {
			vector[i] = float32(float64(vector[i]) / norm)
		}
	}
	return vector, nil
}

func (e *HashEmbedder) position(term string) int {
	sum := md5.Sum([]byte(term))
	return int(binary.BigEndian.Uint64(sum[8:]) % uint64(e.dimension))
}

func (e *HashEmbedder) ModelName() string {
	return "hash"
}
