package chunker

import (
	"strings"
	"testing"
)

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestSentenceChunkerBasic(t *testing.T) {
	c := NewSentenceChunker(5, 10)

	text := "Cats are small furry animals. Dogs are loyal companions too. Cats like to sleep all day."
	chunks := c.Chunk(text)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != "Cats are small furry animals." {
		t.Errorf("unexpected first chunk: %q", chunks[0])
	}
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

func TestSentenceChunkerEmptyInput(t *testing.T) {
	c := NewSentenceChunker(0, 0)

	if chunks := c.Chunk(""); chunks != nil {
		t.Errorf("expected nil for empty input, got %q", chunks)
	}
	if chunks := c.Chunk("   \n\t "); chunks != nil {
		t.Errorf("expected nil for whitespace input, got %q", chunks)
	}
}

func TestSentenceChunkerCoverage(t *testing.T) {
	c := NewSentenceChunker(8, 16)

	text := `The quick brown fox jumps over the lazy dog. It was a sunny day!
Was the fox happy? Nobody knows... "Maybe," said the farmer. (The dog slept.)
A final fragment without a terminator`

	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	joined := normalize(strings.Join(chunks, " "))
	if joined != normalize(text) {
		t.Errorf("chunks do not reconstruct the text:\n got: %q\nwant: %q", joined, normalize(text))
	}
}

func TestSentenceChunkerTargetSize(t *testing.T) {
	c := NewSentenceChunker(10, 20)

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString("one two three four five. ")
	}
	chunks := c.Chunk(sb.String())

	for i, chunk := range chunks {
		words := len(strings.Fields(chunk))
		if words > 20 {
			t.Errorf("chunk %d has %d words, exceeds max", i, words)
		}
	}
	if len(chunks) != 10 {
		t.Errorf("expected 10 chunks of two sentences, got %d", len(chunks))
	}
}

func TestSentenceChunkerMaxSize(t *testing.T) {
	c := NewSentenceChunker(6, 8)

	// A 5-word sentence followed by another: 10 words would exceed max.
	chunks := c.Chunk("a b c d e. f g h i j.")
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
}

func TestSentenceChunkerOversizedSentence(t *testing.T) {
	c := NewSentenceChunker(3, 5)

	long := "this sentence is much longer than the maximum chunk size allows."
	chunks := c.Chunk("Short one. " + long + " Tail here.")

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[1] != long {
		t.Errorf("expected oversized sentence as its own chunk, got %q", chunks[1])
	}
}

func TestSentenceChunkerWordWindowFallback(t *testing.T) {
	c := NewSentenceChunker(8, 16)

	words := make([]string, 20)
	for i := range words {
		words[i] = "w" + strings.Repeat("x", i%3)
	}
	text := strings.Join(words, " ")

	chunks := c.Chunk(text)
	// step = 8 - 2 = 6: windows start at 0, 6, 12 (12..20 reaches the end).
	if len(chunks) != 3 {
		t.Fatalf("expected 3 windows, got %d: %q", len(chunks), chunks)
	}
	for i, chunk := range chunks[:2] {
		if n := len(strings.Fields(chunk)); n != 8 {
			t.Errorf("window %d has %d words, want 8", i, n)
		}
	}

	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	if first[6] != second[0] || first[7] != second[1] {
		t.Errorf("expected 2-word overlap between windows: %q / %q", chunks[0], chunks[1])
	}

	last := strings.Fields(chunks[len(chunks)-1])
	if last[len(last)-1] != words[len(words)-1] {
		t.Errorf("fallback dropped trailing words")
	}
}

func TestSentenceChunkerShortUnpunctuated(t *testing.T) {
	c := NewSentenceChunker(0, 0)

	chunks := c.Chunk("  hello   world  ")
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Errorf("expected single normalized chunk, got %q", chunks)
	}
}

func TestSentenceChunkerDefaults(t *testing.T) {
	c := NewSentenceChunker(0, 0)
	if c.targetWords != DefaultTargetWords || c.maxWords != DefaultMaxWords {
		t.Errorf("unexpected defaults: target=%d max=%d", c.targetWords, c.maxWords)
	}

	c = NewSentenceChunker(100, 50)
	if c.maxWords != 100 {
		t.Errorf("expected max raised to target, got %d", c.maxWords)
	}
}
