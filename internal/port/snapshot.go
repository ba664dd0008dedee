package port

import (
	"context"

	"docindex/internal/domain"
)

// SnapshotStore is the durable record of every index, including
// documents, chunks and embeddings.
type SnapshotStore interface {
	// SaveIndex writes the full record of one index.
	SaveIndex(ctx context.Context, idx domain.Index) error

	// DeleteIndex removes the record of one index. Missing records are ignored.
	DeleteIndex(ctx context.Context, name string) error

	// LoadAll returns every stored index.
	LoadAll(ctx context.Context) ([]domain.Index, error)

	Close() error
}
