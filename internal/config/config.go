// Package config loads application configuration for the converse CLI:
// defaults, then a TOML file, then CONVERSE_* env vars (env wins).
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Database  DatabaseConfig  `toml:"database"`
	Search    SearchConfig    `toml:"search"`
	Turn      TurnConfig      `toml:"turn"`
	Observer  ObserverConfig  `toml:"observer"`
}

type LLMConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
	// RPM and TPM throttle requests to the backend; 0 means unlimited.
	RPM int `toml:"rpm"`
	TPM int `toml:"tpm"`
}

type EmbeddingConfig struct {
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
}

type DatabaseConfig struct {
	// Driver selects the store backend: "memory", "sqlite", or "postgres".
	Driver string `toml:"driver"`
	// Path is the SQLite file location (sqlite driver only).
	Path string `toml:"path"`
	// URL is the PostgreSQL connection string (postgres driver only).
	URL string `toml:"url"`
}

type SearchConfig struct {
	TavilyAPIKey string `toml:"tavily_api_key"`
	MaxResults   int    `toml:"max_results"`
	FetchContent bool   `toml:"fetch_content"`
}

type TurnConfig struct {
	RecallTopK         int     `toml:"recall_top_k"`
	RecallMinScore     float64 `toml:"recall_min_score"`
	MaxResponseTokens  int     `toml:"max_response_tokens"`
	Temperature        float64 `toml:"temperature"`
	StepTimeoutSeconds int     `toml:"step_timeout_seconds"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied. The LLM and embedding
// endpoints point at two local llama.cpp servers on their usual ports.
func Default() Config {
	return Config{
		LLM:       LLMConfig{BaseURL: "http://localhost:8080/v1", Model: "local"},
		Embedding: EmbeddingConfig{BaseURL: "http://localhost:8081/v1", Model: "local-embed", Dimensions: 768},
		Database:  DatabaseConfig{Driver: "sqlite", Path: "converse.db"},
		Search:    SearchConfig{MaxResults: 1},
		Turn: TurnConfig{
			RecallTopK:         1,
			RecallMinScore:     0.60,
			MaxResponseTokens:  512,
			Temperature:        0.7,
			StepTimeoutSeconds: 60,
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "converse.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("CONVERSE_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("CONVERSE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("CONVERSE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("CONVERSE_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("CONVERSE_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("CONVERSE_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("CONVERSE_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("CONVERSE_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("CONVERSE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CONVERSE_DB_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("CONVERSE_TAVILY_API_KEY"); v != "" {
		cfg.Search.TavilyAPIKey = v
	}
	if v := os.Getenv("CONVERSE_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}

	return cfg
}
