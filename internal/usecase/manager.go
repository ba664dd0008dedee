package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docindex/internal/adapter/cache"
	"docindex/internal/domain"
	"docindex/internal/port"
)

var validIndexName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ManagerDeps are the collaborators of a Manager. Embedder and Cache may
// be nil.
type ManagerDeps struct {
	Extractor port.Extractor
	Chunker   port.Chunker
	Tokenizer port.Tokenizer
	Embedder  port.Embedder
	Lexical   port.LexicalIndex
	Vectors   port.VectorStore
	Store     port.SnapshotStore
	Cache     *cache.QueryCache
	Logger    *slog.Logger
}

// ManagerOptions tune ingestion.
type ManagerOptions struct {
	// EmbedConcurrency bounds parallel embedding calls per document.
	EmbedConcurrency int
	// OriginalsDir keeps uploaded bytes when non-empty.
	OriginalsDir string
	// AllowFile rejects uploads by name when it returns false.
	AllowFile func(filename string) bool
}

// Manager owns the index registry: the documents of every index, their
// lexical and vector registrations, and the snapshot store.
type Manager struct {
	extractor port.Extractor
	chunker   port.Chunker
	tokenizer port.Tokenizer
	embedder  port.Embedder
	lexical   port.LexicalIndex
	vectors   port.VectorStore
	store     port.SnapshotStore
	cache     *cache.QueryCache
	logger    *slog.Logger
	opts      ManagerOptions

	mu      sync.RWMutex
	indexes map[string]*indexState

	// pendingMu guards pendingDeletes and is always taken last.
	pendingMu      sync.Mutex
	pendingDeletes map[string]struct{}
}

// indexState guards one index. mu protects the document list; persistMu
// serializes snapshot writes and protects dirty.
type indexState struct {
	mu       sync.RWMutex
	index    domain.Index
	docPos   map[string]int
	chunkRef map[string]chunkRef
	deleted  bool

	persistMu sync.Mutex
	dirty     bool
}

type chunkRef struct {
	docID string
	pos   int
}

func NewManager(deps ManagerDeps, opts ManagerOptions) *Manager {
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 4
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		extractor:      deps.Extractor,
		chunker:        deps.Chunker,
		tokenizer:      deps.Tokenizer,
		embedder:       deps.Embedder,
		lexical:        deps.Lexical,
		vectors:        deps.Vectors,
		store:          deps.Store,
		cache:          deps.Cache,
		logger:         logger,
		opts:           opts,
		indexes:        make(map[string]*indexState),
		pendingDeletes: make(map[string]struct{}),
	}
}

func newIndexState(idx domain.Index) *indexState {
	st := &indexState{index: idx}
	st.reindex()
	return st
}

// reindex rebuilds the lookup maps and stats from the document list.
func (st *indexState) reindex() {
	st.docPos = make(map[string]int, len(st.index.Documents))
	st.chunkRef = make(map[string]chunkRef)
	for i, doc := range st.index.Documents {
		st.docPos[doc.ID] = i
		for j, c := range doc.Chunks {
			st.chunkRef[c.ID] = chunkRef{docID: doc.ID, pos: j}
		}
	}
	st.index.Stats = domain.ComputeStats(st.index.Documents)
}

// snapshot copies the index so it can be encoded without holding mu.
// Committed documents are never mutated in place.
func (st *indexState) snapshot() domain.Index {
	idx := st.index
	idx.Documents = make([]domain.Document, len(st.index.Documents))
	copy(idx.Documents, st.index.Documents)
	return idx
}

func (st *indexState) summary() domain.IndexSummary {
	return domain.IndexSummary{
		Name:        st.index.Name,
		Description: st.index.Description,
		CreatedAt:   st.index.CreatedAt,
		Stats:       st.index.Stats,
	}
}

func (st *indexState) documentSummaries() []domain.DocumentSummary {
	out := make([]domain.DocumentSummary, len(st.index.Documents))
	for i, doc := range st.index.Documents {
		out[i] = domain.DocumentSummary{
			ID:         doc.ID,
			Filename:   doc.Filename,
			Size:       doc.Size,
			UploadedAt: doc.UploadedAt,
			ChunkCount: len(doc.Chunks),
			Metadata:   copyMetadata(doc.Metadata),
		}
	}
	return out
}

func (m *Manager) lookup(name string) (*indexState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.indexes[name]
	if !ok {
		return nil, fmt.Errorf("index %q: %w", name, domain.ErrNotFound)
	}
	return st, nil
}

func (m *Manager) invalidate(name string) {
	if m.cache != nil {
		m.cache.Invalidate(name)
	}
}

// generation returns the cache generation of name, or 0 without a cache.
func (m *Manager) generation(name string) uint64 {
	if m.cache == nil {
		return 0
	}
	return m.cache.Generation(name)
}

// CreateIndex registers an empty index.
func (m *Manager) CreateIndex(ctx context.Context, name, description string) (*domain.IndexSummary, error) {
	if !validIndexName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidName, name)
	}

	m.mu.Lock()
	if _, exists := m.indexes[name]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("index %q: %w", name, domain.ErrAlreadyExists)
	}
	st := newIndexState(domain.Index{
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		Documents:   []domain.Document{},
	})
	m.indexes[name] = st
	m.mu.Unlock()

	m.invalidate(name)
	m.logger.Info("index created", "index", name)

	summary := st.summary()
	if err := m.persist(ctx, st); err != nil {
		return &summary, err
	}
	return &summary, nil
}

// DeleteIndex removes an index with its registrations, snapshot record and
// kept originals.
func (m *Manager) DeleteIndex(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.indexes[name]
	if !ok {
		return fmt.Errorf("index %q: %w", name, domain.ErrNotFound)
	}
	delete(m.indexes, name)

	st.mu.Lock()
	st.deleted = true
	st.mu.Unlock()

	m.lexical.DropIndex(name)
	m.vectors.DropIndex(name)
	m.invalidate(name)

	if m.opts.OriginalsDir != "" {
		if err := os.RemoveAll(filepath.Join(m.opts.OriginalsDir, name)); err != nil {
			m.logger.Warn("failed to remove originals", "index", name, "error", err)
		}
	}

	m.logger.Info("index deleted", "index", name)

	// Wait for an in-flight snapshot write of this index before removing
	// its record.
	st.persistMu.Lock()
	defer st.persistMu.Unlock()

	if err := m.store.DeleteIndex(context.WithoutCancel(ctx), name); err != nil {
		m.pendingMu.Lock()
		m.pendingDeletes[name] = struct{}{}
		m.pendingMu.Unlock()
		m.logger.Error("failed to delete index record", "index", name, "error", err)
		return &domain.PersistenceError{Index: name, Err: err}
	}
	m.pendingMu.Lock()
	delete(m.pendingDeletes, name)
	m.pendingMu.Unlock()
	return nil
}

// ListIndexes returns a summary of every index ordered by name.
func (m *Manager) ListIndexes() []domain.IndexSummary {
	m.mu.RLock()
	states := make([]*indexState, 0, len(m.indexes))
	for _, st := range m.indexes {
		states = append(states, st)
	}
	m.mu.RUnlock()

	out := make([]domain.IndexSummary, 0, len(states))
	for _, st := range states {
		st.mu.RLock()
		out = append(out, st.summary())
		st.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetIndexInfo returns an index summary with its documents.
func (m *Manager) GetIndexInfo(name string) (*domain.IndexInfo, error) {
	st, err := m.lookup(name)
	if err != nil {
		return nil, err
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	return &domain.IndexInfo{
		IndexSummary: st.summary(),
		Documents:    st.documentSummaries(),
	}, nil
}

// GetDocuments returns the documents of an index in ingestion order.
func (m *Manager) GetDocuments(name string) ([]domain.DocumentSummary, error) {
	st, err := m.lookup(name)
	if err != nil {
		return nil, err
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.documentSummaries(), nil
}

// GetDocument returns a full document, chunks included.
func (m *Manager) GetDocument(name, docID string) (*domain.Document, error) {
	st, err := m.lookup(name)
	if err != nil {
		return nil, err
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	pos, ok := st.docPos[docID]
	if !ok {
		return nil, fmt.Errorf("document %q in index %q: %w", docID, name, domain.ErrNotFound)
	}
	doc := cloneDocument(st.index.Documents[pos])
	return &doc, nil
}

// AddDocument ingests data into an index. Nothing becomes visible until
// the final commit; a failed or cancelled call leaves the index unchanged.
// When only the snapshot write fails, the result is returned together with
// a *domain.PersistenceError.
func (m *Manager) AddDocument(ctx context.Context, name string, data []byte, filename string, metadata map[string]string) (*domain.AddResult, error) {
	st, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	if m.opts.AllowFile != nil && !m.opts.AllowFile(filename) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filename)
	}

	start := time.Now()

	text, err := m.extractor.Extract(ctx, data, filename)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, domain.ErrExtraction) {
			err = fmt.Errorf("%w: %v", domain.ErrExtraction, err)
		}
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s contains no text", domain.ErrExtraction, filename)
	}

	pieces := m.chunker.Chunk(text)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: %s produced no chunks", domain.ErrExtraction, filename)
	}

	doc := domain.Document{
		ID:         uuid.New().String(),
		Filename:   filename,
		Size:       int64(len(data)),
		Chunks:     make([]domain.Chunk, len(pieces)),
		Metadata:   copyMetadata(metadata),
		UploadedAt: time.Now().UTC(),
	}
	for i, piece := range pieces {
		doc.Chunks[i] = domain.Chunk{
			ID:   uuid.New().String(),
			Text: piece,
			Metadata: domain.ChunkMetadata{
				ChunkIndex: i,
				DocumentID: doc.ID,
				WordCount:  m.tokenizer.CountWords(piece),
				Extra:      copyMetadata(metadata),
			},
		}
	}

	embedded, err := m.embedChunks(ctx, doc.Chunks)
	if err != nil {
		return nil, err
	}

	originalDir, err := m.keepOriginal(name, doc.ID, filename, data)
	if err != nil {
		return nil, err
	}

	rollback := func() {
		if originalDir != "" {
			os.RemoveAll(originalDir)
		}
	}

	if err := ctx.Err(); err != nil {
		rollback()
		return nil, err
	}

	// Registration and commit share the write lock, so a query holding the
	// read lock sees either none or all of the document.
	st.mu.Lock()
	if st.deleted {
		st.mu.Unlock()
		rollback()
		return nil, fmt.Errorf("index %q: %w", name, domain.ErrNotFound)
	}
	embedded = m.register(name, doc.Chunks, embedded)
	st.index.Documents = append(st.index.Documents, doc)
	st.docPos[doc.ID] = len(st.index.Documents) - 1
	for j, c := range doc.Chunks {
		st.chunkRef[c.ID] = chunkRef{docID: doc.ID, pos: j}
	}
	st.index.Stats = domain.ComputeStats(st.index.Documents)
	st.mu.Unlock()

	m.invalidate(name)

	result := &domain.AddResult{
		DocumentID: doc.ID,
		ChunkCount: len(doc.Chunks),
		Embedded:   embedded,
		Size:       doc.Size,
	}

	m.logger.Info("document added",
		"index", name,
		"document", doc.ID,
		"filename", filename,
		"chunks", result.ChunkCount,
		"embedded", embedded,
		"duration", time.Since(start),
	)

	if err := m.persist(ctx, st); err != nil {
		return result, err
	}
	return result, nil
}

// embedChunks fills chunk embeddings in bounded parallel. Unavailable
// embeddings leave the chunk without a vector; any other failure or a
// cancelled context aborts.
func (m *Manager) embedChunks(ctx context.Context, chunks []domain.Chunk) (int, error) {
	if m.embedder == nil {
		return 0, ctx.Err()
	}

	var embedded, unavailable atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.EmbedConcurrency)

	for i := range chunks {
		g.Go(func() error {
			vec, err := m.embedder.Embed(gctx, chunks[i].Text)
			switch {
			case err == nil && len(vec) > 0:
				chunks[i].Embedding = vec
				embedded.Add(1)
				return nil
			case err == nil, errors.Is(err, domain.ErrEmbeddingUnavailable):
				unavailable.Add(1)
				return nil
			default:
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if n := unavailable.Load(); n > 0 {
		m.logger.Warn("embedding unavailable, chunks kept lexical-only",
			"model", m.embedder.ModelName(),
			"chunks", n,
		)
	}
	return int(embedded.Load()), nil
}

// register adds chunks to the lexical and vector indexes and returns the
// number of chunks whose vector was accepted. The caller holds st.mu.
func (m *Manager) register(name string, chunks []domain.Chunk, embedded int) int {
	for i := range chunks {
		c := &chunks[i]
		m.lexical.Register(name, c.ID, c.Text)
		if c.Embedding == nil {
			continue
		}
		if err := m.vectors.Register(name, c.ID, c.Embedding); err != nil {
			m.logger.Warn("vector rejected", "index", name, "chunk", c.ID, "error", err)
			c.Embedding = nil
			embedded--
		}
	}
	return embedded
}

func (m *Manager) unregister(name string, chunks []domain.Chunk) {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	m.lexical.Unregister(name, ids...)
	m.vectors.Unregister(name, ids...)
}

// keepOriginal stores the uploaded bytes and returns their directory, or
// "" when originals are not kept.
func (m *Manager) keepOriginal(name, docID, filename string, data []byte) (string, error) {
	if m.opts.OriginalsDir == "" {
		return "", nil
	}

	dir := filepath.Join(m.opts.OriginalsDir, name, docID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("store original %s: %w", filename, err)
	}
	base := filepath.Base(filepath.Clean(filename))
	if base == "." || base == string(filepath.Separator) {
		base = "document"
	}
	if err := os.WriteFile(filepath.Join(dir, base), data, 0644); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("store original %s: %w", filename, err)
	}
	return dir, nil
}

// DeleteDocument removes a document and unregisters its chunks.
func (m *Manager) DeleteDocument(ctx context.Context, name, docID string) error {
	st, err := m.lookup(name)
	if err != nil {
		return err
	}

	st.mu.Lock()
	pos, ok := st.docPos[docID]
	if !ok || st.deleted {
		st.mu.Unlock()
		return fmt.Errorf("document %q in index %q: %w", docID, name, domain.ErrNotFound)
	}
	doc := st.index.Documents[pos]

	docs := make([]domain.Document, 0, len(st.index.Documents)-1)
	docs = append(docs, st.index.Documents[:pos]...)
	docs = append(docs, st.index.Documents[pos+1:]...)
	st.index.Documents = docs
	st.reindex()
	m.unregister(name, doc.Chunks)
	st.mu.Unlock()

	m.invalidate(name)

	if m.opts.OriginalsDir != "" {
		if err := os.RemoveAll(filepath.Join(m.opts.OriginalsDir, name, docID)); err != nil {
			m.logger.Warn("failed to remove original", "index", name, "document", docID, "error", err)
		}
	}

	m.logger.Info("document deleted", "index", name, "document", docID, "chunks", len(doc.Chunks))

	return m.persist(ctx, st)
}

// persist writes the snapshot of one index. A failure marks the index
// dirty so Flush can retry it.
func (m *Manager) persist(ctx context.Context, st *indexState) error {
	st.persistMu.Lock()
	defer st.persistMu.Unlock()

	st.mu.RLock()
	if st.deleted {
		st.mu.RUnlock()
		return nil
	}
	snap := st.snapshot()
	st.mu.RUnlock()

	// A committed mutation is persisted even when the caller gives up.
	if err := m.store.SaveIndex(context.WithoutCancel(ctx), snap); err != nil {
		st.dirty = true
		m.logger.Error("failed to persist index", "index", snap.Name, "error", err)
		return &domain.PersistenceError{Index: snap.Name, Err: err}
	}
	st.dirty = false

	m.pendingMu.Lock()
	delete(m.pendingDeletes, snap.Name)
	m.pendingMu.Unlock()
	return nil
}

// Flush retries every snapshot write that failed earlier.
func (m *Manager) Flush(ctx context.Context) error {
	var errs []error

	// Registry lock first so a recreated index cannot persist between the
	// pending check and the record removal.
	m.mu.Lock()
	m.pendingMu.Lock()
	for name := range m.pendingDeletes {
		if _, live := m.indexes[name]; live {
			// Recreated under the same name. Its own snapshot write
			// replaces the stale record and clears the entry.
			continue
		}
		if err := m.store.DeleteIndex(ctx, name); err != nil {
			errs = append(errs, &domain.PersistenceError{Index: name, Err: err})
			continue
		}
		delete(m.pendingDeletes, name)
	}
	m.pendingMu.Unlock()
	states := make([]*indexState, 0, len(m.indexes))
	for _, st := range m.indexes {
		states = append(states, st)
	}
	m.mu.Unlock()

	for _, st := range states {
		st.persistMu.Lock()
		dirty := st.dirty
		st.persistMu.Unlock()
		if !dirty {
			continue
		}
		if err := m.persist(ctx, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load replaces the in-memory state with the snapshot store contents and
// rebuilds the lexical and vector indexes from it.
func (m *Manager) Load(ctx context.Context) error {
	indexes, err := m.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for name, st := range m.indexes {
		st.mu.Lock()
		st.deleted = true
		st.mu.Unlock()
		m.lexical.DropIndex(name)
		m.vectors.DropIndex(name)
		m.invalidate(name)
	}
	m.indexes = make(map[string]*indexState, len(indexes))

	var chunks, vectors int
	for _, idx := range indexes {
		if idx.Documents == nil {
			idx.Documents = []domain.Document{}
		}
		st := newIndexState(idx)
		for _, doc := range idx.Documents {
			for _, c := range doc.Chunks {
				m.lexical.Register(idx.Name, c.ID, c.Text)
				chunks++
				if len(c.Embedding) == 0 {
					continue
				}
				if err := m.vectors.Register(idx.Name, c.ID, c.Embedding); err != nil {
					m.logger.Warn("stored vector rejected", "index", idx.Name, "chunk", c.ID, "error", err)
					continue
				}
				vectors++
			}
		}
		m.indexes[idx.Name] = st
		m.invalidate(idx.Name)
	}

	m.logger.Info("indexes loaded", "indexes", len(indexes), "chunks", chunks, "vectors", vectors)
	return nil
}

// Close flushes pending writes and closes the snapshot store.
func (m *Manager) Close() error {
	flushErr := m.Flush(context.Background())
	return errors.Join(flushErr, m.store.Close())
}

// resolve maps scored chunk ids to results. Ids that no longer belong to a
// live document are dropped. The caller holds st.mu.
func (st *indexState) resolve(hits []domain.ScoredID) []domain.QueryResult {
	out := make([]domain.QueryResult, 0, len(hits))
	for _, hit := range hits {
		ref, ok := st.chunkRef[hit.ChunkID]
		if !ok {
			continue
		}
		doc := &st.index.Documents[st.docPos[ref.docID]]
		c := doc.Chunks[ref.pos]
		out = append(out, domain.QueryResult{
			Text:         c.Text,
			Score:        hit.Score,
			DocumentName: doc.Filename,
			DocumentID:   doc.ID,
			ChunkID:      c.ID,
			ChunkIndex:   c.Metadata.ChunkIndex,
			IndexName:    st.index.Name,
			Metadata:     copyMetadata(doc.Metadata),
		})
	}
	return out
}

func copyMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// cloneDocument copies doc deeply enough that callers cannot reach stored
// maps or slices.
func cloneDocument(doc domain.Document) domain.Document {
	doc.Metadata = copyMetadata(doc.Metadata)
	chunks := make([]domain.Chunk, len(doc.Chunks))
	for i, c := range doc.Chunks {
		if c.Embedding != nil {
			c.Embedding = append([]float32(nil), c.Embedding...)
		}
		c.Metadata.Extra = copyMetadata(c.Metadata.Extra)
		chunks[i] = c
	}
	doc.Chunks = chunks
	return doc
}
