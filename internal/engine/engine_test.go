package engine

import (
	"context"
	"path/filepath"
	"testing"

	"docindex/config"
	"docindex/internal/domain"
	"docindex/internal/usecase"
)

func testConfig(t *testing.T, backend, vectors string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = backend
	cfg.Vector.Backend = vectors
	cfg.Embedding.Dimension = 64
	cfg.Logging.Level = "error"
	return cfg
}

func TestOpenAndQuery(t *testing.T) {
	ctx := context.Background()

	for _, tt := range []struct{ storage, vectors string }{
		{"memory", "flat"},
		{"bolt", "hnsw"},
		{"sqlite", "flat"},
	} {
		t.Run(tt.storage+"/"+tt.vectors, func(t *testing.T) {
			eng, err := Open(ctx, testConfig(t, tt.storage, tt.vectors), t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			defer eng.Close()

			if _, err := eng.Manager.CreateIndex(ctx, "docs", ""); err != nil {
				t.Fatal(err)
			}
			res, err := eng.Manager.AddDocument(ctx, "docs", []byte("# Pets\n\nCats are wonderful pets."), "pets.md", nil)
			if err != nil {
				t.Fatal(err)
			}
			if res.Embedded != res.ChunkCount {
				t.Errorf("expected every chunk embedded, got %d of %d", res.Embedded, res.ChunkCount)
			}

			for _, mode := range []domain.QueryMode{domain.ModeLexical, domain.ModeVector, domain.ModeHybrid} {
				resp, err := eng.Coordinator.Query(ctx, usecase.QueryRequest{Index: "docs", Text: "cats", Mode: mode})
				if err != nil {
					t.Fatal(err)
				}
				if len(resp.Results) != 1 {
					t.Errorf("%s: expected 1 result, got %d", mode, len(resp.Results))
				}
			}
		})
	}
}

func TestOpenReloadsPersistedIndexes(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	cfg := testConfig(t, "bolt", "flat")

	eng, err := Open(ctx, cfg, root)
	if err != nil {
		t.Fatal(err)
	}
	eng.Manager.CreateIndex(ctx, "docs", "kept")
	eng.Manager.AddDocument(ctx, "docs", []byte("Dogs are loyal companions."), "dogs.txt", nil)
	eng.Close()

	eng, err = Open(ctx, cfg, root)
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()

	info, err := eng.Manager.GetIndexInfo("docs")
	if err != nil {
		t.Fatal(err)
	}
	if info.Description != "kept" || info.Stats.TotalDocuments != 1 {
		t.Errorf("unexpected reloaded index %+v", info.IndexSummary)
	}

	// Originals are kept under the data dir by default.
	matches, _ := filepath.Glob(filepath.Join(cfg.OriginalsDir(root), "docs", "*", "dogs.txt"))
	if len(matches) != 1 {
		t.Errorf("expected the original upload to be kept, found %v", matches)
	}
}

func TestOpenRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t, "memory", "flat")
	cfg.Embedding.Provider = "carrier-pigeon"

	if _, err := Open(context.Background(), cfg, t.TempDir()); err == nil {
		t.Error("expected error for unknown embedding provider")
	}
}
