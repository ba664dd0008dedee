// Package store persists index snapshots.
package store

import (
	"fmt"

	"docindex/internal/port"
)

// Snapshots is a snapshot store that also tracks its schema.
type Snapshots interface {
	port.SnapshotStore
	Migrate(configHash string) (*MigrationResult, error)
}

// Open opens the snapshot store for backend ("bolt", "sqlite" or "memory")
// at path. The memory backend ignores path.
func Open(backend, path string) (Snapshots, error) {
	switch backend {
	case "", "bolt":
		return NewBoltStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
