package chunker

import (
	"regexp"
	"strings"

	"docindex/internal/adapter/analyzer"
)

const (
	DefaultTargetWords = 512
	DefaultMaxWords    = 1024
)

// sentenceEnd matches one sentence including its terminator and any
// closing quotes or brackets. Consecutive matches tile the text.
var sentenceEnd = regexp.MustCompile(`[^.!?]*[.!?]+["'”’)\]]*`)

// SentenceChunker accumulates whole sentences into chunks of roughly
// targetWords words, never exceeding maxWords unless a single sentence does.
type SentenceChunker struct {
	targetWords int
	maxWords    int
}

func NewSentenceChunker(targetWords, maxWords int) *SentenceChunker {
	if targetWords <= 0 {
		targetWords = DefaultTargetWords
	}
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	if maxWords < targetWords {
		maxWords = targetWords
	}
	return &SentenceChunker{
		targetWords: targetWords,
		maxWords:    maxWords,
	}
}

// Chunk splits text into ordered, non-empty chunks. Empty input yields nil.
func (c *SentenceChunker) Chunk(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	sentences, ok := splitSentences(trimmed)
	var chunks []string
	if ok {
		chunks = c.packSentences(sentences)
	} else {
		chunks = c.wordWindows(trimmed)
	}

	if len(chunks) == 0 {
		return []string{trimmed}
	}
	return chunks
}

func (c *SentenceChunker) packSentences(sentences []string) []string {
	var chunks []string
	var buf []string
	bufWords := 0

	flush := func() {
		if len(buf) > 0 {
			chunks = append(chunks, strings.Join(buf, " "))
		}
		buf = buf[:0]
		bufWords = 0
	}

	for _, s := range sentences {
		words := analyzer.CountWords(s)
		if len(buf) > 0 && (bufWords+words > c.maxWords || bufWords >= c.targetWords) {
			flush()
		}
		buf = append(buf, s)
		bufWords += words
	}
	flush()

	return chunks
}

// wordWindows is the fallback for text without sentence terminators:
// windows of targetWords words overlapping by a quarter window.
func (c *SentenceChunker) wordWindows(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= c.targetWords {
		return []string{strings.Join(words, " ")}
	}

	step := c.targetWords - c.targetWords/4
	if step <= 0 {
		step = 1
	}

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + c.targetWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// splitSentences returns the trimmed sentences of text. ok is false when
// text contains no sentence terminator at all.
func splitSentences(text string) ([]string, bool) {
	locs := sentenceEnd.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil, false
	}

	sentences := make([]string, 0, len(locs)+1)
	last := 0
	for _, loc := range locs {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences, len(sentences) > 0
}
