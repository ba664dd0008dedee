package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"docindex/config"
	"docindex/internal/adapter/analyzer"
	"docindex/internal/domain"
)

func TestOpenAIEmbedder(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
			return
		}
		if req.Model != "test-model" || len(req.Input) != 1 {
			t.Errorf("unexpected request %+v", req)
		}

		json.NewEncoder(w).Encode(embeddingResponse{
			Data: []embeddingData{{Index: 0, Embedding: []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer server.Close()

	t.Setenv("TEST_EMBED_KEY", "secret")
	e, err := NewOpenAICompatibleEmbedder("TEST_EMBED_KEY", "test-model", server.URL+"/", 0)
	if err != nil {
		t.Fatal(err)
	}

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 {
		t.Errorf("expected 3 dimensions, got %d", len(vec))
	}
	if e.ModelName() != "test-model" {
		t.Errorf("unexpected model name %s", e.ModelName())
	}
}

func TestOpenAIEmbedderUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	e := NewOllamaEmbedder("nomic-embed-text", server.URL)
	_, err := e.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestOpenAIEmbedderCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewOllamaEmbedder("nomic-embed-text", server.URL)
	_, err := e.Embed(ctx, "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewOpenAIEmbedderMissingKey(t *testing.T) {
	t.Setenv("TEST_EMPTY_KEY", "")
	if _, err := NewOpenAICompatibleEmbedder("TEST_EMPTY_KEY", "m", "http://localhost", 0); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(analyzer.NewTokenizer(true), 0)
	ctx := context.Background()

	a, err := e.Embed(ctx, "cats purr softly")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != DefaultHashDimension {
		t.Fatalf("expected %d dimensions, got %d", DefaultHashDimension, len(a))
	}

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
		t.Errorf("expected unit vector, norm=%f", math.Sqrt(sum))
	}

	b, _ := e.Embed(ctx, "cats purr softly")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("expected deterministic embeddings")
		}
	}

	empty, err := e.Embed(ctx, "   ")
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range empty {
		if v != 0 {
			t.Fatal("expected zero vector for text without terms")
		}
	}
}

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text))}, nil
}

func (c *countingEmbedder) ModelName() string { return "counting" }

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Embed(ctx, "same text"); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 cached entry, got %d", c.Len())
	}
	if c.ModelName() != "counting" {
		t.Errorf("unexpected model name %s", c.ModelName())
	}
}

func TestCachedEmbedderDoesNotCacheFailures(t *testing.T) {
	inner := &countingEmbedder{err: domain.ErrEmbeddingUnavailable}
	c := NewCachedEmbedder(inner, 10)

	c.Embed(context.Background(), "x")
	c.Embed(context.Background(), "x")
	if inner.calls != 2 {
		t.Errorf("expected failures to be retried, got %d calls", inner.calls)
	}
}

func TestNew(t *testing.T) {
	tok := analyzer.NewTokenizer(true)

	e, err := New(config.EmbeddingConfig{Provider: "none"}, tok)
	if err != nil || e != nil {
		t.Errorf("expected nil embedder for provider none, got %v, %v", e, err)
	}

	e, err = New(config.EmbeddingConfig{Provider: "hash", Dimension: 64}, tok)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*HashEmbedder); !ok {
		t.Errorf("expected *HashEmbedder, got %T", e)
	}

	e, err = New(config.EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text", CacheSize: 5}, tok)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Errorf("expected *CachedEmbedder, got %T", e)
	}

	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	e, err = New(config.EmbeddingConfig{Provider: "openai", APIKeyEnv: "TEST_OPENAI_KEY", Model: "text-embedding-3-small"}, tok)
	if err != nil {
		t.Fatal(err)
	}
	if oe, ok := e.(*OpenAIEmbedder); !ok || oe.baseURL != openAIBaseURL {
		t.Errorf("expected hosted OpenAI embedder, got %T", e)
	}

	e, err = New(config.EmbeddingConfig{Provider: "openai", APIKeyEnv: "TEST_OPENAI_KEY", BaseURL: "http://localhost:8080/v1/"}, tok)
	if err != nil {
		t.Fatal(err)
	}
	if oe, ok := e.(*OpenAIEmbedder); !ok || oe.baseURL != "http://localhost:8080/v1" {
		t.Errorf("expected compatible embedder at the configured URL, got %T", e)
	}

	if _, err := New(config.EmbeddingConfig{Provider: "voyage"}, tok); err == nil {
		t.Error("expected error for unknown provider")
	}
}
