package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"docindex/internal/domain"
	"docindex/internal/port"
)

var (
	bucketIndexes = []byte("indexes")
	bucketMeta    = []byte("meta")
)

var _ port.SnapshotStore = (*BoltStore)(nil)

// BoltStore keeps one JSON record per index in a bbolt file. Each write is
// its own transaction, so a failed write leaves the previous record intact.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketIndexes, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveIndex(ctx context.Context, idx domain.Index) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index %s: %w", idx.Name, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIndexes).Put([]byte(idx.Name), data)
	})
}

func (s *BoltStore) DeleteIndex(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIndexes).Delete([]byte(name))
	})
}

// LoadAll returns every stored index ordered by name.
func (s *BoltStore) LoadAll(ctx context.Context) ([]domain.Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var indexes []domain.Index
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIndexes).ForEach(func(k, v []byte) error {
			var idx domain.Index
			if err := json.Unmarshal(v, &idx); err != nil {
				return fmt.Errorf("decode index %s: %w", k, err)
			}
			indexes = append(indexes, idx)
			return nil
		})
	})
	return indexes, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
