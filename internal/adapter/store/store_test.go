package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"docindex/config"
	"docindex/internal/domain"
)

func sampleIndex(name string) domain.Index {
	docs := []domain.Document{{
		ID:       "doc-1",
		Filename: "pets.txt",
		Size:     27,
		Metadata: map[string]string{"source": "test"},
		Chunks: []domain.Chunk{
			{
				ID:        "chunk-1",
				Text:      "Cats purr.",
				Embedding: []float32{0.25, 0.5},
				Metadata:  domain.ChunkMetadata{ChunkIndex: 0, DocumentID: "doc-1", WordCount: 2},
			},
			{
				ID:       "chunk-2",
				Text:     "Dogs bark.",
				Metadata: domain.ChunkMetadata{ChunkIndex: 1, DocumentID: "doc-1", WordCount: 2},
			},
		},
		UploadedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}}
	return domain.Index{
		Name:        name,
		Description: "pets",
		CreatedAt:   time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC),
		Documents:   docs,
		Stats:       domain.ComputeStats(docs),
	}
}

func openStores(t *testing.T) map[string]Snapshots {
	t.Helper()
	dir := t.TempDir()

	stores := make(map[string]Snapshots)
	for _, backend := range []string{"bolt", "sqlite", "memory"} {
		s, err := Open(backend, filepath.Join(dir, backend+".db"))
		if err != nil {
			t.Fatalf("open %s: %v", backend, err)
		}
		t.Cleanup(func() { s.Close() })
		stores[backend] = s
	}
	return stores
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for backend, s := range openStores(t) {
		if err := s.SaveIndex(ctx, sampleIndex("pets")); err != nil {
			t.Fatalf("%s: save: %v", backend, err)
		}
		if err := s.SaveIndex(ctx, sampleIndex("archive")); err != nil {
			t.Fatalf("%s: save: %v", backend, err)
		}

		indexes, err := s.LoadAll(ctx)
		if err != nil {
			t.Fatalf("%s: load: %v", backend, err)
		}
		if len(indexes) != 2 {
			t.Fatalf("%s: expected 2 indexes, got %d", backend, len(indexes))
		}
		if indexes[0].Name != "archive" || indexes[1].Name != "pets" {
			t.Errorf("%s: expected name order, got %s, %s", backend, indexes[0].Name, indexes[1].Name)
		}

		got := indexes[1]
		if got.Stats.TotalChunks != 2 || got.Stats.TotalSizeBytes != 27 {
			t.Errorf("%s: unexpected stats %+v", backend, got.Stats)
		}
		chunks := got.Documents[0].Chunks
		if len(chunks[0].Embedding) != 2 || chunks[0].Embedding[1] != 0.5 {
			t.Errorf("%s: embedding not preserved: %v", backend, chunks[0].Embedding)
		}
		if chunks[1].Embedding != nil {
			t.Errorf("%s: expected absent embedding, got %v", backend, chunks[1].Embedding)
		}
		if !got.Documents[0].UploadedAt.Equal(sampleIndex("x").Documents[0].UploadedAt) {
			t.Errorf("%s: upload time not preserved", backend)
		}
	}
}

func TestSnapshotStoreOverwriteAndDelete(t *testing.T) {
	ctx := context.Background()

	for backend, s := range openStores(t) {
		idx := sampleIndex("pets")
		s.SaveIndex(ctx, idx)

		idx.Documents = nil
		idx.Stats = domain.ComputeStats(nil)
		if err := s.SaveIndex(ctx, idx); err != nil {
			t.Fatalf("%s: overwrite: %v", backend, err)
		}

		indexes, _ := s.LoadAll(ctx)
		if len(indexes) != 1 || len(indexes[0].Documents) != 0 {
			t.Errorf("%s: expected overwritten empty index, got %+v", backend, indexes)
		}

		if err := s.DeleteIndex(ctx, "pets"); err != nil {
			t.Fatalf("%s: delete: %v", backend, err)
		}
		if err := s.DeleteIndex(ctx, "missing"); err != nil {
			t.Errorf("%s: deleting a missing record should be a no-op: %v", backend, err)
		}
		indexes, _ = s.LoadAll(ctx)
		if len(indexes) != 0 {
			t.Errorf("%s: expected no indexes, got %d", backend, len(indexes))
		}
	}
}

func TestSnapshotStoreReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, backend := range []string{"bolt", "sqlite"} {
		path := filepath.Join(dir, backend+".db")
		s, err := Open(backend, path)
		if err != nil {
			t.Fatal(err)
		}
		s.SaveIndex(ctx, sampleIndex("pets"))
		s.Close()

		s, err = Open(backend, path)
		if err != nil {
			t.Fatal(err)
		}
		indexes, err := s.LoadAll(ctx)
		s.Close()
		if err != nil || len(indexes) != 1 {
			t.Errorf("%s: expected 1 index after reopen, got %d (%v)", backend, len(indexes), err)
		}
	}
}

func TestMigrateConfigHash(t *testing.T) {
	cfg := config.DefaultConfig()
	hash := ComputeConfigHash(cfg)

	cfg.Chunking.TargetSize = 128
	changed := ComputeConfigHash(cfg)
	if hash == changed {
		t.Fatal("expected hash to change with chunk size")
	}

	for backend, s := range openStores(t) {
		result, err := s.Migrate(hash)
		if err != nil {
			t.Fatalf("%s: %v", backend, err)
		}
		if result.ConfigChanged {
			t.Errorf("%s: fresh store should not report a config change", backend)
		}

		result, err = s.Migrate(changed)
		if err != nil {
			t.Fatalf("%s: %v", backend, err)
		}
		if !result.ConfigChanged {
			t.Errorf("%s: expected config change to be reported", backend)
		}
	}
}

func TestBoltMigrateLegacySnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	legacy := struct {
		Indexes []domain.Index `json:"indexes"`
	}{Indexes: []domain.Index{sampleIndex("pets"), sampleIndex("notes")}}
	legacy.Indexes[0].Stats = domain.IndexStats{}

	data, _ := json.Marshal(legacy)
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyLegacySnapshot, data)
	})
	if err != nil {
		t.Fatal(err)
	}

	info, _ := s.GetSchemaInfo()
	if info.Version != 1 {
		t.Fatalf("expected legacy file to report v1, got v%d", info.Version)
	}

	result, err := s.Migrate("hash")
	if err != nil {
		t.Fatal(err)
	}
	if result.OldVersion != 1 || result.NewVersion != CurrentSchemaVersion {
		t.Errorf("unexpected migration result %+v", result)
	}

	indexes, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(indexes) != 2 {
		t.Fatalf("expected 2 migrated indexes, got %d", len(indexes))
	}
	for _, idx := range indexes {
		if idx.Stats.TotalChunks != 2 {
			t.Errorf("expected stats recomputed for %s, got %+v", idx.Name, idx.Stats)
		}
	}

	info, _ = s.GetSchemaInfo()
	if info.Version != CurrentSchemaVersion {
		t.Errorf("expected v%d after migration, got v%d", CurrentSchemaVersion, info.Version)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("expected error for unknown backend")
	}
}
