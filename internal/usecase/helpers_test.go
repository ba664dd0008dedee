package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"docindex/internal/adapter/analyzer"
	"docindex/internal/adapter/cache"
	"docindex/internal/adapter/chunker"
	"docindex/internal/adapter/embedding"
	"docindex/internal/adapter/extract"
	"docindex/internal/adapter/lexical"
	"docindex/internal/adapter/store"
	"docindex/internal/adapter/vectorstore"
	"docindex/internal/domain"
	"docindex/internal/logging"
	"docindex/internal/port"
)

const petsText = "Cats are wonderful pets. Dogs are loyal companions. Cats sleep most of the day."

type testEnv struct {
	manager     *Manager
	coordinator *QueryCoordinator
	lexical     *lexical.TFIDFIndex
	vectors     *vectorstore.FlatStore
	store       *flakyStore
	path        string
	closed      bool
}

// newTestEnv wires a manager with real adapters over a bbolt file in a
// temp dir. Each sentence of petsText becomes its own chunk.
func newTestEnv(t *testing.T, configure func(*ManagerDeps, *ManagerOptions)) *testEnv {
	t.Helper()
	return openTestEnv(t, filepath.Join(t.TempDir(), "index.db"), configure)
}

func openTestEnv(t *testing.T, path string, configure func(*ManagerDeps, *ManagerOptions)) *testEnv {
	t.Helper()

	bolt, err := store.NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}

	tok := analyzer.NewTokenizer(true)
	env := &testEnv{
		lexical: lexical.NewTFIDFIndex(tok),
		vectors: vectorstore.NewFlatStore(),
		store:   &flakyStore{SnapshotStore: bolt},
		path:    path,
	}

	deps := ManagerDeps{
		Extractor: extract.NewRegistry(),
		Chunker:   chunker.NewSentenceChunker(3, 6),
		Tokenizer: tok,
		Embedder:  embedding.NewHashEmbedder(tok, 64),
		Lexical:   env.lexical,
		Vectors:   env.vectors,
		Store:     env.store,
		Cache:     cache.NewQueryCache(64, 0),
		Logger:    logging.Discard(),
	}
	opts := ManagerOptions{EmbedConcurrency: 2}
	if configure != nil {
		configure(&deps, &opts)
	}

	env.manager = NewManager(deps, opts)
	env.coordinator = NewQueryCoordinator(env.manager, QueryOptions{}, nil)

	if err := env.manager.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(env.close)
	return env
}

func (e *testEnv) close() {
	if e.closed {
		return
	}
	e.closed = true
	e.manager.Close()
}

func (e *testEnv) createIndex(t *testing.T, name string) {
	t.Helper()
	if _, err := e.manager.CreateIndex(context.Background(), name, "test index"); err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
}

func (e *testEnv) addText(t *testing.T, index, filename, text string) *domain.AddResult {
	t.Helper()
	res, err := e.manager.AddDocument(context.Background(), index, []byte(text), filename, nil)
	if err != nil {
		t.Fatalf("add %s: %v", filename, err)
	}
	return res
}

// flakyStore fails writes while fail is set.
type flakyStore struct {
	port.SnapshotStore
	fail  atomic.Bool
	saves atomic.Int64
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) SaveIndex(ctx context.Context, idx domain.Index) error {
	if s.fail.Load() {
		return errDiskFull
	}
	s.saves.Add(1)
	return s.SnapshotStore.SaveIndex(ctx, idx)
}

func (s *flakyStore) DeleteIndex(ctx context.Context, name string) error {
	if s.fail.Load() {
		return errDiskFull
	}
	return s.SnapshotStore.DeleteIndex(ctx, name)
}

// stubEmbedder returns err for every call, or blocks until the context is
// done when block is set.
type stubEmbedder struct {
	err     error
	block   bool
	started chan struct{}
	calls   atomic.Int64
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.calls.Add(1) == 1 && e.started != nil {
		close(e.started)
	}
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, e.err
}

func (e *stubEmbedder) ModelName() string { return "stub" }

func chunkTexts(results []domain.QueryResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Text
	}
	return out
}
