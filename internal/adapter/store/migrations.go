package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"docindex/config"
	"docindex/internal/domain"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 2

var (
	keySchemaVersion = []byte("schema_version")
	keyConfigHash    = []byte("config_hash")
)

// Version 1 kept every index in one record under this key.
var keyLegacySnapshot = []byte("snapshot")

// SchemaInfo stores schema version and configuration hash.
type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

// ComputeConfigHash hashes the settings that shape stored chunks and
// embeddings. A different hash means existing documents were ingested
// under other settings and are worth re-adding.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		TargetSize  int    `json:"target_size"`
		MaxSize     int    `json:"max_size"`
		Stopwords   bool   `json:"stopwords"`
		EmbProvider string `json:"emb_provider"`
		EmbModel    string `json:"emb_model"`
		EmbDim      int    `json:"emb_dim"`
	}{
		TargetSize:  cfg.Chunking.TargetSize,
		MaxSize:     cfg.Chunking.MaxSize,
		Stopwords:   cfg.Index.Stopwords,
		EmbProvider: cfg.Embedding.Provider,
		EmbModel:    cfg.Embedding.Model,
		EmbDim:      cfg.Embedding.Dimension,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// MigrationResult describes the result of a migration.
type MigrationResult struct {
	OldVersion    int
	NewVersion    int
	ConfigChanged bool
	Reason        string
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		if versionData := b.Get(keySchemaVersion); versionData != nil {
			if err := json.Unmarshal(versionData, &info.Version); err != nil {
				info.Version = 1
			}
		} else if b.Get(keyLegacySnapshot) != nil {
			info.Version = 1
		}

		if hashData := b.Get(keyConfigHash); hashData != nil {
			info.ConfigHash = string(hashData)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}
		return b.Put(keyConfigHash, []byte(info.ConfigHash))
	})
}

// Migrate upgrades the file to CurrentSchemaVersion and records configHash.
func (s *BoltStore) Migrate(configHash string) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{OldVersion: info.Version, NewVersion: CurrentSchemaVersion}
	if info.Version > CurrentSchemaVersion {
		return nil, fmt.Errorf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
	}

	for v := info.Version; v < CurrentSchemaVersion; v++ {
		if err := s.runMigration(v, v+1); err != nil {
			return nil, fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}
	if info.Version != 0 && info.Version < CurrentSchemaVersion {
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	}

	if info.ConfigHash != "" && info.ConfigHash != configHash {
		result.ConfigChanged = true
		result.Reason = "index configuration changed"
	}

	if err := s.SetSchemaInfo(&SchemaInfo{Version: CurrentSchemaVersion, ConfigHash: configHash}); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BoltStore) runMigration(from, to int) error {
	switch {
	case from == 1 && to == 2:
		return s.db.Update(splitLegacySnapshot)
	default:
		return nil
	}
}

// splitLegacySnapshot moves the single v1 snapshot record into one record
// per index.
func splitLegacySnapshot(tx *bbolt.Tx) error {
	meta := tx.Bucket(bucketMeta)
	data := meta.Get(keyLegacySnapshot)
	if data == nil {
		return nil
	}

	var legacy struct {
		Indexes []domain.Index `json:"indexes"`
	}
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("decode legacy snapshot: %w", err)
	}

	indexes := tx.Bucket(bucketIndexes)
	for _, idx := range legacy.Indexes {
		idx.Stats = domain.ComputeStats(idx.Documents)
		record, err := json.Marshal(idx)
		if err != nil {
			return err
		}
		if err := indexes.Put([]byte(idx.Name), record); err != nil {
			return err
		}
	}
	return meta.Delete(keyLegacySnapshot)
}
