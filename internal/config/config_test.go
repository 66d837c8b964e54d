package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", cfg.BaseURL)
	assert.Equal(t, "mixtral", cfg.ChatModel)
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 128, cfg.ChunkOverlap)
	assert.Equal(t, 5, cfg.MaxContextChunks)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "pdf_documents", cfg.Collection)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoadConfigOverridesAndFills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
base_url: http://ollama.internal:11434
chunk_size: 500
chunk_overlap: 50
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://ollama.internal:11434", cfg.BaseURL)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	// Unset fields fall back to defaults.
	assert.Equal(t, "mixtral", cfg.ChatModel)
	assert.Equal(t, 5, cfg.MaxContextChunks)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(": not yaml ["), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}
