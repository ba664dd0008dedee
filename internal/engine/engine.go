// Package engine wires configuration into a ready Manager and
// QueryCoordinator.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docindex/config"
	"docindex/internal/adapter/analyzer"
	"docindex/internal/adapter/cache"
	"docindex/internal/adapter/chunker"
	"docindex/internal/adapter/embedding"
	"docindex/internal/adapter/extract"
	"docindex/internal/adapter/lexical"
	"docindex/internal/adapter/store"
	"docindex/internal/adapter/vectorstore"
	"docindex/internal/logging"
	"docindex/internal/port"
	"docindex/internal/usecase"
)

// Engine is the wired index manager and query coordinator.
type Engine struct {
	Manager     *usecase.Manager
	Coordinator *usecase.QueryCoordinator
	Logger      *slog.Logger
	cleanup     func()
}

// Open opens the snapshot store under root, builds the engine from cfg
// and loads every persisted index.
func Open(ctx context.Context, cfg *config.Config, root string) (*Engine, error) {
	logger, closeLog, err := logging.Setup(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	if err := cfg.EnsureDataDir(root); err != nil {
		closeLog()
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := cfg.SnapshotPath(root)
	st, err := store.Open(cfg.Storage.Backend, dbPath)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}

	migration, err := st.Migrate(store.ComputeConfigHash(cfg))
	if err != nil {
		st.Close()
		closeLog()
		return nil, fmt.Errorf("failed to migrate index store: %w", err)
	}
	if migration.OldVersion != migration.NewVersion {
		logger.Info("migrated index store", "from", migration.OldVersion, "to", migration.NewVersion)
	}
	if migration.ConfigChanged {
		logger.Warn("configuration changed since documents were added; re-add them to apply it",
			"reason", migration.Reason)
	}

	tokenizer := analyzer.NewTokenizer(cfg.Index.Stopwords)

	embedder, err := embedding.New(cfg.Embedding, tokenizer)
	if err != nil {
		st.Close()
		closeLog()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	var vectors port.VectorStore
	switch cfg.Vector.Backend {
	case "hnsw":
		vectors = vectorstore.NewHNSWStore(vectorstore.HNSWConfig{
			M:        cfg.Vector.M,
			EfSearch: cfg.Vector.EfSearch,
		})
	default:
		vectors = vectorstore.NewFlatStore()
	}

	var queryCache *cache.QueryCache
	if cfg.Query.CacheSize > 0 {
		queryCache = cache.NewQueryCache(cfg.Query.CacheSize, 5*time.Minute)
	}

	opts := usecase.ManagerOptions{
		EmbedConcurrency: cfg.Embedding.Concurrency,
		AllowFile:        cfg.ExtensionAllowed,
	}
	if cfg.Ingest.KeepOriginals {
		opts.OriginalsDir = cfg.OriginalsDir(root)
	}

	manager := usecase.NewManager(usecase.ManagerDeps{
		Extractor: extract.NewRegistry(),
		Chunker:   chunker.NewSentenceChunker(cfg.Chunking.TargetSize, cfg.Chunking.MaxSize),
		Tokenizer: tokenizer,
		Embedder:  embedder,
		Lexical:   lexical.NewTFIDFIndex(tokenizer),
		Vectors:   vectors,
		Store:     st,
		Cache:     queryCache,
		Logger:    logger,
	}, opts)

	if err := manager.Load(ctx); err != nil {
		manager.Close()
		closeLog()
		return nil, fmt.Errorf("failed to load indexes: %w", err)
	}

	coordinator := usecase.NewQueryCoordinator(manager, usecase.QueryOptions{
		DefaultK:      cfg.Query.DefaultK,
		LexicalWeight: cfg.Query.LexicalWeight,
		DedupPrefix:   cfg.Query.DedupPrefix,
	}, logger)

	logger.Debug("engine ready",
		"store", dbPath,
		"vector_backend", cfg.Vector.Backend,
		"embedding_provider", cfg.Embedding.Provider,
	)

	return &Engine{
		Manager:     manager,
		Coordinator: coordinator,
		Logger:      logger,
		cleanup: func() {
			if err := manager.Close(); err != nil {
				logger.Error("failed to close index store", "error", err)
			}
			closeLog()
		},
	}, nil
}

// Close flushes pending snapshot writes and releases the store.
func (e *Engine) Close() {
	e.cleanup()
}
