package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("WHO_ROOTS", "")
	t.Setenv("TOP_K", "")

	cfg := Load()

	assert.Equal(t, "7860", cfg.Port)
	assert.Equal(t, "postgres", cfg.VectorStore)
	assert.Equal(t, "phi3:medium", cfg.OllamaChatModel)
	assert.Equal(t, 4, cfg.TopK)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.FetchDelay)
	assert.Len(t, cfg.WHORoots, 2)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("TOP_K", "8")
	t.Setenv("SKIP_MISSING_DEFS", "true")
	t.Setenv("WHO_ROOTS", " https://id.who.int/icd/entity/1 , ,https://id.who.int/icd/entity/2")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434")
	t.Setenv("OLLAMA_EMBED_URL", "")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 8, cfg.TopK)
	assert.True(t, cfg.SkipMissingDefinitions)
	assert.Equal(t, []string{"https://id.who.int/icd/entity/1", "https://id.who.int/icd/entity/2"}, cfg.WHORoots)
	assert.Equal(t, "http://ollama:11434", cfg.OllamaEmbedURL)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("TOP_K", "many")
	t.Setenv("MCP_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 4, cfg.TopK)
	assert.False(t, cfg.MCPEnabled)
}
