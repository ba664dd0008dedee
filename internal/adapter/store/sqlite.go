package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"docindex/internal/domain"
	"docindex/internal/port"
)

//go:embed migrations/*.sql
var sqliteMigrations embed.FS

var _ port.SnapshotStore = (*SQLiteStore)(nil)

// SQLiteStore keeps one row per index in the indexes table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(sqliteMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join("migrations", name))
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Migrate records configHash and reports whether it differs from the
// hash stored by a previous run.
func (s *SQLiteStore) Migrate(configHash string) (*MigrationResult, error) {
	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return nil, fmt.Errorf("getting current version: %w", err)
	}
	result := &MigrationResult{OldVersion: version, NewVersion: version}

	var previous string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'config_hash'").Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reading config hash: %w", err)
	}
	if previous != "" && previous != configHash {
		result.ConfigChanged = true
		result.Reason = "index configuration changed"
	}

	_, err = s.db.Exec(`INSERT INTO meta (key, value) VALUES ('config_hash', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, configHash)
	if err != nil {
		return nil, fmt.Errorf("storing config hash: %w", err)
	}
	return result, nil
}

func (s *SQLiteStore) SaveIndex(ctx context.Context, idx domain.Index) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index %s: %w", idx.Name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO indexes (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, idx.Name, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving index %s: %w", idx.Name, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteIndex(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM indexes WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting index %s: %w", name, err)
	}
	return nil
}

// LoadAll returns every stored index ordered by name.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]domain.Index, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, data FROM indexes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying indexes: %w", err)
	}
	defer rows.Close()

	var indexes []domain.Index
	for rows.Next() {
		var name string
		var data []byte
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("scanning index: %w", err)
		}
		var idx domain.Index
		if err := json.Unmarshal(data, &idx); err != nil {
			return nil, fmt.Errorf("decode index %s: %w", name, err)
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
