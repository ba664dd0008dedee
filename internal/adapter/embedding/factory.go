package embedding

import (
	"fmt"
	"time"

	"docindex/config"
	"docindex/internal/port"
)

// New builds the embedder selected by cfg. Provider "none" returns a nil
// embedder: vector retrieval then yields no results.
func New(cfg config.EmbeddingConfig, tokenizer port.Tokenizer) (port.Embedder, error) {
	var inner port.Embedder

	switch cfg.Provider {
	case "none":
		return nil, nil
	case "hash":
		// Local and deterministic; caching would only cost memory.
		return NewHashEmbedder(tokenizer, cfg.Dimension), nil
	case "ollama":
		inner = NewOllamaEmbedder(cfg.Model, cfg.BaseURL)
	case "openai":
		timeout := time.Duration(cfg.TimeoutSecs) * time.Second
		var (
			e   *OpenAIEmbedder
			err error
		)
		if cfg.BaseURL == "" {
			e, err = NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, timeout)
		} else {
			e, err = NewOpenAICompatibleEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, timeout)
		}
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, cfg.CacheSize), nil
	}
	return inner, nil
}
