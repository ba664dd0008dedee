package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for docindex.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Index     IndexConfig     `yaml:"index"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Query     QueryConfig     `yaml:"query"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig selects where index snapshots live.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	Backend string `yaml:"backend"` // "bolt", "sqlite" or "memory"
}

// ChunkingConfig holds chunk sizes in words.
type ChunkingConfig struct {
	TargetSize int `yaml:"target_size"`
	MaxSize    int `yaml:"max_size"`
}

// IndexConfig holds lexical indexing configuration.
type IndexConfig struct {
	Stopwords bool `yaml:"stopwords"`
}

// VectorConfig selects the vector store backend.
type VectorConfig struct {
	Backend  string `yaml:"backend"` // "flat" or "hnsw"
	M        int    `yaml:"m"`
	EfSearch int    `yaml:"ef_search"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // "openai", "ollama", "hash", "none"
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"` // empty selects the hosted OpenAI API
	APIKeyEnv   string `yaml:"api_key_env"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	Concurrency int    `yaml:"concurrency"`
	CacheSize   int    `yaml:"cache_size"`
}

// QueryConfig holds query coordination settings.
type QueryConfig struct {
	DefaultK      int     `yaml:"default_k"`
	LexicalWeight float64 `yaml:"lexical_weight"`
	DedupPrefix   int     `yaml:"dedup_prefix"`
	CacheSize     int     `yaml:"cache_size"`
}

// IngestConfig holds document ingestion settings.
type IngestConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
	KeepOriginals     bool     `yaml:"keep_originals"`
	Includes          []string `yaml:"includes"`
	Excludes          []string `yaml:"excludes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: ".docindex",
			Backend: "bolt",
		},
		Chunking: ChunkingConfig{
			TargetSize: 512,
			MaxSize:    1024,
		},
		Index: IndexConfig{
			Stopwords: true,
		},
		Vector: VectorConfig{
			Backend:  "flat",
			M:        16,
			EfSearch: 20,
		},
		Embedding: EmbeddingConfig{
			Provider:    "hash",
			APIKeyEnv:   "OPENAI_API_KEY",
			Dimension:   768,
			TimeoutSecs: 60,
			Concurrency: 4,
			CacheSize:   1000,
		},
		Query: QueryConfig{
			DefaultK:      5,
			LexicalWeight: 0.7,
			DedupPrefix:   100,
			CacheSize:     256,
		},
		Ingest: IngestConfig{
			AllowedExtensions: []string{".txt", ".md", ".markdown", ".html", ".htm", ".docx", ".pdf"},
			KeepOriginals:     true,
			Includes:          []string{"**/*"},
			Excludes:          []string{"**/.git/**", "**/node_modules/**", "**/.docindex/**"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for docindex.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "docindex.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".docindex", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// applyDefaults fills zero values left by a partial YAML file.
func applyDefaults(cfg *Config) {
	def := DefaultConfig()

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = def.Storage.DataDir
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = def.Storage.Backend
	}
	if cfg.Chunking.TargetSize <= 0 {
		cfg.Chunking.TargetSize = def.Chunking.TargetSize
	}
	if cfg.Chunking.MaxSize < cfg.Chunking.TargetSize {
		cfg.Chunking.MaxSize = cfg.Chunking.TargetSize * 2
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = def.Vector.Backend
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = def.Embedding.Provider
	}
	if cfg.Embedding.Concurrency <= 0 {
		cfg.Embedding.Concurrency = def.Embedding.Concurrency
	}
	if cfg.Embedding.Provider == "openai" {
		if cfg.Embedding.APIKeyEnv == "" {
			cfg.Embedding.APIKeyEnv = def.Embedding.APIKeyEnv
		}
		if cfg.Embedding.Model == "" {
			cfg.Embedding.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embedding.Provider == "ollama" && cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Query.DefaultK <= 0 {
		cfg.Query.DefaultK = def.Query.DefaultK
	}
	if cfg.Query.LexicalWeight <= 0 {
		cfg.Query.LexicalWeight = def.Query.LexicalWeight
	}
	if cfg.Query.DedupPrefix <= 0 {
		cfg.Query.DedupPrefix = def.Query.DedupPrefix
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}

// Validate rejects settings no component can honour.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "bolt", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Vector.Backend {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("unknown vector backend %q", c.Vector.Backend)
	}
	switch c.Embedding.Provider {
	case "openai", "ollama", "hash", "none":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ExtensionAllowed reports whether filename passes the ingest filter.
// An empty list allows everything.
func (c *Config) ExtensionAllowed(filename string) bool {
	if len(c.Ingest.AllowedExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range c.Ingest.AllowedExtensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

// DataDir resolves the data directory against root.
func (c *Config) DataDir(root string) string {
	if filepath.IsAbs(c.Storage.DataDir) {
		return c.Storage.DataDir
	}
	return filepath.Join(root, c.Storage.DataDir)
}

// SnapshotPath returns the snapshot database file for the configured backend.
func (c *Config) SnapshotPath(root string) string {
	name := "index.db"
	if c.Storage.Backend == "sqlite" {
		name = "index.sqlite"
	}
	return filepath.Join(c.DataDir(root), name)
}

// OriginalsDir returns where uploaded files are kept.
func (c *Config) OriginalsDir(root string) string {
	return filepath.Join(c.DataDir(root), "originals")
}

// EnsureDataDir ensures the data directory exists.
func (c *Config) EnsureDataDir(root string) error {
	return os.MkdirAll(c.DataDir(root), 0755)
}
