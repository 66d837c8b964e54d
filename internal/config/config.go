package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the pipeline recognizes. Loaded once at
// process start and read-only thereafter.
type Config struct {
	BaseURL          string `yaml:"base_url"`
	ChatModel        string `yaml:"chat_model"`
	EmbeddingModel   string `yaml:"embedding_model"`
	ChunkSize        int    `yaml:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap"`
	MaxContextChunks int    `yaml:"max_context_chunks"`
	MaxRetries       int    `yaml:"max_retries"`
	DataDir          string `yaml:"data_dir"`
	Collection       string `yaml:"collection"`
}

const appName = "pdf-chat"

// LoadConfig reads the config from path. A missing file yields the
// defaults; zero-valued fields are filled with defaults as well.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "mixtral"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 128
	}
	if cfg.MaxContextChunks == 0 {
		cfg.MaxContextChunks = 5
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Collection == "" {
		cfg.Collection = "pdf_documents"
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			cfg.DataDir = "." + appName
			return
		}
		cfg.DataDir = filepath.Join(home, "."+appName)
	}
}
