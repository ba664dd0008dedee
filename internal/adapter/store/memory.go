package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"docindex/internal/domain"
)

// MemoryStore keeps encoded index records in memory. Nothing survives the
// process; it backs throwaway sessions and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[string][]byte
	configHash string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
	}
}

// Migrate reports a config change only within the lifetime of the store.
func (s *MemoryStore) Migrate(configHash string) (*MigrationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &MigrationResult{OldVersion: CurrentSchemaVersion, NewVersion: CurrentSchemaVersion}
	if s.configHash != "" && s.configHash != configHash {
		result.ConfigChanged = true
		result.Reason = "index configuration changed"
	}
	s.configHash = configHash
	return result, nil
}

func (s *MemoryStore) SaveIndex(ctx context.Context, idx domain.Index) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Encoding detaches the record from the caller's slices and maps.
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index %s: %w", idx.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[idx.Name] = data
	return nil
}

func (s *MemoryStore) DeleteIndex(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, name)
	return nil
}

func (s *MemoryStore) LoadAll(ctx context.Context) ([]domain.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)

	indexes := make([]domain.Index, 0, len(names))
	for _, name := range names {
		var idx domain.Index
		if err := json.Unmarshal(s.records[name], &idx); err != nil {
			return nil, fmt.Errorf("decode index %s: %w", name, err)
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
