// Package app wires configuration into adapters and services shared by the commands.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arturoeanton/icd11-rag-ollama/internal/adapter/ai"
	"github.com/arturoeanton/icd11-rag-ollama/internal/adapter/cache"
	"github.com/arturoeanton/icd11-rag-ollama/internal/adapter/store"
	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
	"github.com/arturoeanton/icd11-rag-ollama/internal/service"
	"github.com/arturoeanton/icd11-rag-ollama/pkg/config"
)

// Vector store backends.
const (
	StorePostgres = "postgres"
	StoreFile     = "file"
)

// Stores groups the opened persistence adapters.
type Stores struct {
	Records  port.RecordStore
	Postgres *store.PostgresStore // nil for the file backend
}

// Close flushes buffered records and releases database connections.
func (s *Stores) Close() {
	if f, ok := s.Records.(port.Flusher); ok {
		if err := f.Flush(context.Background()); err != nil {
			slog.Error("flush vector store", "error", err)
		}
	}
	if s.Postgres != nil {
		s.Postgres.Close()
	}
}

// NewAI builds the Ollama provider from the embed and chat endpoint settings.
func NewAI(cfg *config.Config) *ai.OllamaProvider {
	return ai.NewOllamaProvider(
		ai.OllamaEndpointConfig{
			BaseURL: cfg.OllamaEmbedURL,
			Model:   cfg.OllamaEmbedModel,
			Token:   cfg.OllamaEmbedToken,
		},
		ai.OllamaEndpointConfig{
			BaseURL: cfg.OllamaChatURL,
			Model:   cfg.OllamaChatModel,
			Token:   cfg.OllamaChatToken,
		},
	)
}

// OpenStores opens the configured vector store. The postgres backend is migrated
// to the configured embedding dimension.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.VectorStore {
	case StorePostgres:
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, cfg.EmbeddingDimension); err != nil {
			pg.Close()
			return nil, err
		}
		return &Stores{Records: store.NewVectorStore(pg, cfg.EmbeddingDimension), Postgres: pg}, nil

	case StoreFile:
		fs := store.NewFileStore(cfg.FileStorePath, cfg.EmbeddingDimension)
		if err := fs.Load(); err != nil {
			return nil, err
		}
		return &Stores{Records: fs}, nil

	default:
		return nil, fmt.Errorf("unknown VECTOR_STORE %q (want %s or %s)", cfg.VectorStore, StorePostgres, StoreFile)
	}
}

// NewAnswerCache returns a Redis cache when REDIS_URL is set and reachable,
// the in-process LRU otherwise. The returned func closes it.
func NewAnswerCache(ctx context.Context, cfg *config.Config) (port.AnswerCache, func()) {
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err == nil {
			slog.Info("answer cache: redis", "ttl", cfg.CacheTTL)
			return rc, func() { rc.Close() }
		}
		slog.Warn("redis unavailable, using in-process cache", "error", err)
	}
	slog.Info("answer cache: lru", "size", cfg.CacheSize, "ttl", cfg.CacheTTL)
	return cache.NewLRUCache(cfg.CacheSize, cfg.CacheTTL), func() {}
}

// NewExpander loads the synonym table, merging SYNONYMS_FILE over the defaults.
func NewExpander(cfg *config.Config) (*service.Expander, error) {
	entries := service.DefaultSynonyms()
	if cfg.SynonymsFile != "" {
		merged, err := service.LoadSynonyms(cfg.SynonymsFile, entries)
		if err != nil {
			return nil, err
		}
		entries = merged
	}
	return service.NewExpander(entries), nil
}

// PreprocessOptions maps configuration to a preprocessing run.
func PreprocessOptions(cfg *config.Config) service.PreprocessOptions {
	return service.PreprocessOptions{
		JSONDir:                cfg.RawJSONDir,
		TextDir:                cfg.CleanTextDir,
		SkipMissingDefinitions: cfg.SkipMissingDefinitions,
		ChunkSize:              cfg.ChunkSize,
		ChunkOverlap:           cfg.ChunkOverlap,
		BatchSize:              cfg.BatchSize,
	}
}
