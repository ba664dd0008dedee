package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"docindex/internal/domain"
)

// QueryOptions tune hybrid merging.
type QueryOptions struct {
	DefaultK      int
	LexicalWeight float64
	DedupPrefix   int
}

// QueryRequest asks for the top K chunks of Index matching Text.
// Zero K and empty Mode take the defaults (5, hybrid).
type QueryRequest struct {
	Index string
	Text  string
	K     int
	Mode  domain.QueryMode
}

// QueryCoordinator answers queries against the indexes of a Manager.
type QueryCoordinator struct {
	manager *Manager
	opts    QueryOptions
	logger  *slog.Logger
}

func NewQueryCoordinator(manager *Manager, opts QueryOptions, logger *slog.Logger) *QueryCoordinator {
	if opts.DefaultK <= 0 {
		opts.DefaultK = 5
	}
	if opts.LexicalWeight <= 0 {
		opts.LexicalWeight = 0.7
	}
	if opts.DedupPrefix <= 0 {
		opts.DedupPrefix = 100
	}
	if logger == nil {
		logger = manager.logger
	}
	return &QueryCoordinator{
		manager: manager,
		opts:    opts,
		logger:  logger,
	}
}

// Query runs req. An unavailable embedder never fails a query: vector
// evidence is simply absent.
func (q *QueryCoordinator) Query(ctx context.Context, req QueryRequest) (*domain.QueryResponse, error) {
	mode, k, err := q.normalize(req.Mode, req.K)
	if err != nil {
		return nil, err
	}
	req.Mode, req.K = mode, k

	st, err := q.manager.lookup(req.Index)
	if err != nil {
		return nil, err
	}

	results, err := q.run(ctx, st, req)
	if err != nil {
		return nil, err
	}
	return newResponse(req, results), nil
}

// MultiQueryRequest asks for the top K chunks across several indexes.
type MultiQueryRequest struct {
	Indexes []string
	Text    string
	K       int
	Mode    domain.QueryMode
}

// QueryMany runs one query against every named index in parallel and
// merges the results by score. Unknown names are reported rather than
// failing the query, unless none of the names exist.
func (q *QueryCoordinator) QueryMany(ctx context.Context, req MultiQueryRequest) (*domain.MultiQueryResponse, error) {
	mode, k, err := q.normalize(req.Mode, req.K)
	if err != nil {
		return nil, err
	}

	resp := &domain.MultiQueryResponse{
		Query:   req.Text,
		Mode:    mode,
		Indexes: []string{},
		Results: []domain.QueryResult{},
	}

	seen := make(map[string]bool, len(req.Indexes))
	var states []*indexState
	for _, name := range req.Indexes {
		if seen[name] {
			continue
		}
		seen[name] = true
		st, err := q.manager.lookup(name)
		if err != nil {
			resp.MissingIndexes = append(resp.MissingIndexes, name)
			continue
		}
		states = append(states, st)
		resp.Indexes = append(resp.Indexes, name)
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("indexes %v: %w", req.Indexes, domain.ErrNotFound)
	}

	perIndex := make([][]domain.QueryResult, len(states))
	g, gctx := errgroup.WithContext(ctx)
	for i, st := range states {
		g.Go(func() error {
			results, err := q.run(gctx, st, QueryRequest{Index: resp.Indexes[i], Text: req.Text, K: k, Mode: mode})
			if errors.Is(err, domain.ErrNotFound) {
				// Deleted while the query ran.
				return nil
			}
			perIndex[i] = results
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, results := range perIndex {
		resp.Results = append(resp.Results, results...)
	}
	sort.SliceStable(resp.Results, func(i, j int) bool { return resp.Results[i].Score > resp.Results[j].Score })
	resp.Results = truncate(resp.Results, k)
	resp.TotalResults = len(resp.Results)

	q.logger.Debug("multi-index query",
		"indexes", resp.Indexes,
		"missing", len(resp.MissingIndexes),
		"mode", mode,
		"k", k,
		"results", resp.TotalResults,
	)
	return resp, nil
}

func (q *QueryCoordinator) normalize(mode domain.QueryMode, k int) (domain.QueryMode, int, error) {
	if mode == "" {
		mode = domain.ModeHybrid
	}
	if !mode.Valid() {
		return "", 0, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}
	if k <= 0 {
		k = q.opts.DefaultK
	}
	return mode, k, nil
}

// run answers a normalized request against one index. Scoring and
// resolution happen under one read lock so every hit is checked against
// the same committed state it was scored in.
func (q *QueryCoordinator) run(ctx context.Context, st *indexState, req QueryRequest) ([]domain.QueryResult, error) {
	m := q.manager
	if m.cache != nil {
		if results, ok := m.cache.Get(req.Index, req.Mode, req.K, req.Text); ok {
			return results, nil
		}
	}
	gen := m.generation(req.Index)
	start := time.Now()

	var vec []float32
	if req.Mode != domain.ModeLexical {
		var err error
		if vec, err = q.embedQuery(ctx, req.Index, req.Text); err != nil {
			return nil, err
		}
	}

	st.mu.RLock()
	if st.deleted {
		st.mu.RUnlock()
		return nil, fmt.Errorf("index %q: %w", req.Index, domain.ErrNotFound)
	}
	var results []domain.QueryResult
	switch req.Mode {
	case domain.ModeLexical:
		results = q.lexical(st, req.Index, req.Text, req.K)
	case domain.ModeVector:
		results = q.vector(st, req.Index, vec, req.K)
	case domain.ModeHybrid:
		results = q.hybrid(st, req.Index, req.Text, vec, req.K)
	}
	st.mu.RUnlock()

	if m.cache != nil {
		m.cache.Put(req.Index, req.Mode, req.K, req.Text, gen, results)
	}

	q.logger.Debug("query",
		"index", req.Index,
		"mode", req.Mode,
		"k", req.K,
		"results", len(results),
		"duration", time.Since(start),
	)
	return results, nil
}

func newResponse(req QueryRequest, results []domain.QueryResult) *domain.QueryResponse {
	if results == nil {
		results = []domain.QueryResult{}
	}
	return &domain.QueryResponse{
		Query:        req.Text,
		Mode:         req.Mode,
		Results:      results,
		TotalResults: len(results),
	}
}

func (q *QueryCoordinator) lexical(st *indexState, index, text string, k int) []domain.QueryResult {
	hits := q.manager.lexical.Score(index, text, 0)
	return truncate(st.resolve(hits), k)
}

func (q *QueryCoordinator) vector(st *indexState, index string, vec []float32, k int) []domain.QueryResult {
	return truncate(st.resolve(q.nearest(index, vec, k)), k)
}

// embedQuery returns the query vector, or nil when there is no embedder,
// the index holds no vectors, or the embedder is unavailable.
func (q *QueryCoordinator) embedQuery(ctx context.Context, index, text string) ([]float32, error) {
	m := q.manager
	if m.embedder == nil || m.vectors.Count(index) == 0 {
		return nil, nil
	}

	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingUnavailable) {
			q.logger.Warn("query embedding unavailable", "index", index, "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

func (q *QueryCoordinator) nearest(index string, vec []float32, k int) []domain.ScoredID {
	if len(vec) == 0 {
		return nil
	}
	// Stale ids are filtered after the search, so over-fetch a little.
	return q.manager.vectors.Nearest(index, vec, k+k/2+1)
}

// hybrid merges lexical and vector results by a normalized text prefix.
// Lexical scores are damped before comparison; the higher weighted score
// wins and vector evidence is kept on ties.
func (q *QueryCoordinator) hybrid(st *indexState, index, text string, vec []float32, k int) []domain.QueryResult {
	candidateK := k * 3
	if candidateK < 20 {
		candidateK = 20
	}

	vectorResults := st.resolve(q.nearest(index, vec, candidateK))
	lexicalResults := st.resolve(q.manager.lexical.Score(index, text, candidateK))
	for i := range lexicalResults {
		lexicalResults[i].Score *= q.opts.LexicalWeight
	}

	merged := make([]domain.QueryResult, 0, len(vectorResults)+len(lexicalResults))
	byKey := make(map[string]int, cap(merged))

	add := func(r domain.QueryResult) {
		key := dedupKey(r.Text, q.opts.DedupPrefix)
		if i, ok := byKey[key]; ok {
			if r.Score > merged[i].Score {
				merged[i] = r
			}
			return
		}
		byKey[key] = len(merged)
		merged = append(merged, r)
	}
	for _, r := range vectorResults {
		add(r)
	}
	for _, r := range lexicalResults {
		add(r)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	return truncate(merged, k)
}

// dedupKey lowercases text, collapses whitespace and keeps the first n runes.
func dedupKey(text string, n int) string {
	var b strings.Builder
	count := 0
	space := false
	for _, r := range strings.TrimSpace(text) {
		if count >= n {
			break
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			count++
			space = false
			if count >= n {
				break
			}
		}
		b.WriteRune(unicode.ToLower(r))
		count++
	}
	return b.String()
}

func truncate(results []domain.QueryResult, k int) []domain.QueryResult {
	if k > 0 && len(results) > k {
		return results[:k]
	}
	return results
}
