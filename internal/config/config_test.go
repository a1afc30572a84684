package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "converse.db" {
		t.Errorf("got database %+v", cfg.Database)
	}
	if cfg.Turn.RecallTopK != 1 {
		t.Errorf("got recall_top_k %d", cfg.Turn.RecallTopK)
	}
	if cfg.Turn.RecallMinScore != 0.60 {
		t.Errorf("got recall_min_score %v", cfg.Turn.RecallMinScore)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("got dimensions %d", cfg.Embedding.Dimensions)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if cfg.LLM.BaseURL != "http://localhost:8080/v1" {
		t.Errorf("got %q", cfg.LLM.BaseURL)
	}
}

func TestLoad_TOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "converse.toml")
	data := `
[llm]
base_url = "http://gpu-box:8080/v1"
model = "qwen"

[database]
driver = "memory"

[turn]
recall_top_k = 3
recall_min_score = 0.5
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.LLM.BaseURL != "http://gpu-box:8080/v1" || cfg.LLM.Model != "qwen" {
		t.Errorf("got llm %+v", cfg.LLM)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("got driver %q", cfg.Database.Driver)
	}
	if cfg.Turn.RecallTopK != 3 || cfg.Turn.RecallMinScore != 0.5 {
		t.Errorf("got turn %+v", cfg.Turn)
	}
	// Untouched sections keep their defaults.
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("got dimensions %d", cfg.Embedding.Dimensions)
	}
}

func TestLoad_EnvOverridesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "converse.toml")
	if err := os.WriteFile(path, []byte("[llm]\nmodel = \"from-file\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONVERSE_LLM_MODEL", "from-env")
	t.Setenv("CONVERSE_TAVILY_API_KEY", "tvly-test")
	t.Setenv("CONVERSE_EMBEDDING_DIMENSIONS", "1024")
	t.Setenv("CONVERSE_OBSERVER_ENABLED", "1")

	cfg := Load(path)
	if cfg.LLM.Model != "from-env" {
		t.Errorf("got model %q", cfg.LLM.Model)
	}
	if cfg.Search.TavilyAPIKey != "tvly-test" {
		t.Errorf("got tavily key %q", cfg.Search.TavilyAPIKey)
	}
	if cfg.Embedding.Dimensions != 1024 {
		t.Errorf("got dimensions %d", cfg.Embedding.Dimensions)
	}
	if !cfg.Observer.Enabled {
		t.Error("observer should be enabled")
	}
}

func TestLoad_EmbeddingKeyFallsBackToLLMKey(t *testing.T) {
	t.Setenv("CONVERSE_LLM_API_KEY", "shared-key")
	cfg := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if cfg.Embedding.APIKey != "shared-key" {
		t.Errorf("got %q", cfg.Embedding.APIKey)
	}
}

func TestLoad_InvalidDimensionsIgnored(t *testing.T) {
	t.Setenv("CONVERSE_EMBEDDING_DIMENSIONS", "not-a-number")
	cfg := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("got %d, want default", cfg.Embedding.Dimensions)
	}
}
