/*-------------------------------------------------------------------------
 *
 * exoquery - Configuration Tests
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"exoquery/internal/cache"
	"exoquery/internal/catalog"
	"exoquery/internal/llm"
)

// clearEnv unsets every variable LoadConfig reads for the duration of a test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"EXOQUERY_CATALOG", "EXOQUERY_INSTRUMENTS", "EXOQUERY_TEXT_FORM",
		"EXOQUERY_SNAPSHOT", "EXOQUERY_SNAPSHOT_CACHE_DIR", "EXOQUERY_S3_REGION", "AWS_REGION",
		"EXOQUERY_S3_ENDPOINT", "EXOQUERY_S3_PATH_STYLE",
		"EXOQUERY_EMBEDDING_PROVIDER", "EXOQUERY_EMBEDDING_MODEL",
		"EXOQUERY_VOYAGE_API_KEY", "VOYAGE_API_KEY", "EXOQUERY_OPENAI_API_KEY", "OPENAI_API_KEY",
		"EXOQUERY_OLLAMA_URL", "OLLAMA_HOST",
		"EXOQUERY_LLM_PROVIDER", "EXOQUERY_LLM_MODEL", "EXOQUERY_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY",
		"EXOQUERY_LLM_BASE_URL", "EXOQUERY_LLM_MAX_TOKENS", "EXOQUERY_LLM_TIMEOUT",
		"EXOQUERY_K", "EXOQUERY_INCLUDE_SUMMARY", "EXOQUERY_MALFORMED_RETRIES", "EXOQUERY_PROMPT_DIR",
		"EXOQUERY_CACHE", "EXOQUERY_REDIS_ADDR", "REDIS_ADDR", "EXOQUERY_REDIS_PASSWORD",
		"EXOQUERY_BATCH_CONCURRENCY", "EXOQUERY_LOG_LEVEL", "EXOQUERY_LLM_LOG_LEVEL",
	} {
		if val, ok := os.LookupEnv(key); ok {
			os.Unsetenv(key)
			t.Cleanup(func() { os.Setenv(key, val) })
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.LLM.Provider != llm.ProviderOllama {
		t.Errorf("Expected default LLM provider ollama, got %s", cfg.LLM.Provider)
	}
	if cfg.Generation.K != 2 {
		t.Errorf("Expected default k 2, got %d", cfg.Generation.K)
	}
	if cfg.Generation.MalformedRetries != 0 {
		t.Error("Expected malformed retries to be off by default")
	}
	if cfg.Generation.IncludeSummary {
		t.Error("Expected summary to be disabled by default")
	}
	if cfg.Cache.Backend != cache.BackendNone {
		t.Errorf("Expected no cache by default, got %s", cfg.Cache.Backend)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Expected default log level error, got %s", cfg.Logging.Level)
	}
	if err := validateConfig(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "exoquery.yaml", `
catalog:
  csv_path: /data/ps_columns.csv
  text_form: description
index:
  snapshot_path: s3://exo-bucket/index/ps.db
  s3:
    region: us-west-2
    use_path_style: true
llm:
  provider: anthropic
  anthropic_api_key: sk-ant-file
  timeout: 45s
generation:
  k: 3
  include_summary: true
cache:
  backend: memory
  capacity: 10
`)

	cfg, err := LoadConfig(path, CLIFlags{ConfigFileSet: true})
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Catalog.CSVPath != "/data/ps_columns.csv" {
		t.Errorf("CSVPath = %q", cfg.Catalog.CSVPath)
	}
	if cfg.TextForm() != catalog.TextDescription {
		t.Errorf("TextForm() = %q", cfg.TextForm())
	}
	if cfg.Index.SnapshotPath != "s3://exo-bucket/index/ps.db" || cfg.Index.S3.Region != "us-west-2" || !cfg.Index.S3.UsePathStyle {
		t.Errorf("unexpected index config: %+v", cfg.Index)
	}
	if cfg.LLM.Provider != llm.ProviderAnthropic {
		t.Errorf("LLM provider = %q", cfg.LLM.Provider)
	}
	// Switching provider drops the Ollama default model
	if cfg.LLM.Model != "" {
		t.Errorf("LLM model = %q, want empty", cfg.LLM.Model)
	}

	lc := cfg.LLMClientConfig()
	if lc.APIKey != "sk-ant-file" || lc.Timeout != 45*time.Second {
		t.Errorf("unexpected llm config: %+v", lc)
	}

	opts := cfg.GeneratorOptions()
	if opts.K != 3 || !opts.IncludeSummary || opts.RetryBackoff != 500*time.Millisecond {
		t.Errorf("unexpected generator options: %+v", opts)
	}

	c, err := cfg.OpenCache(context.Background())
	if err != nil || c == nil {
		t.Fatalf("OpenCache() = %v, %v", c, err)
	}
	if _, ok := c.(*cache.MemoryCache); !ok {
		t.Errorf("expected memory cache, got %T", c)
	}
}

func TestLoadConfig_TOML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "exoquery.toml", `
[catalog]
csv_path = "columns.csv"

[embedding]
provider = "openai"
openai_api_key = "sk-embed"
openai_dimensions = 256

[generation]
malformed_retries = 2

[batch]
concurrency = 8
`)

	cfg, err := LoadConfig(path, CLIFlags{ConfigFileSet: true})
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Catalog.CSVPath != "columns.csv" {
		t.Errorf("CSVPath = %q", cfg.Catalog.CSVPath)
	}
	ec := cfg.EmbeddingProviderConfig()
	if ec.Provider != "openai" || ec.OpenAIAPIKey != "sk-embed" || ec.OpenAIDimensions != 256 || ec.Model != "" {
		t.Errorf("unexpected embedding config: %+v", ec)
	}
	if cfg.Generation.MalformedRetries != 2 || cfg.Batch.Concurrency != 8 {
		t.Errorf("unexpected generation/batch config: %+v %+v", cfg.Generation, cfg.Batch)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearEnv(t)
	missing := filepath.Join(t.TempDir(), "none.yaml")

	if _, err := LoadConfig(missing, CLIFlags{}); err != nil {
		t.Errorf("implicit missing config should fall back to defaults: %v", err)
	}
	if _, err := LoadConfig(missing, CLIFlags{ConfigFileSet: true}); err == nil {
		t.Error("explicit missing config should fail")
	}
}

func TestLoadConfig_BadFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "bad.yaml", "catalog: [unclosed")
	if _, err := LoadConfig(path, CLIFlags{}); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadConfig_Priority(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "exoquery.yaml", `
generation:
  k: 3
llm:
  model: file-model
cache:
  backend: memory
`)

	t.Setenv("EXOQUERY_K", "4")
	t.Setenv("EXOQUERY_LLM_MODEL", "env-model")
	t.Setenv("OLLAMA_HOST", "gpu-box:11434")

	cfg, err := LoadConfig(path, CLIFlags{
		ConfigFileSet: true,
		K:             5,
		KSet:          true,
		CacheBackend:  "none",
		// Not set, so ignored
		LLMModel: "flag-model",
	})
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Generation.K != 5 {
		t.Errorf("flag should win: k = %d", cfg.Generation.K)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("env should beat file: model = %q", cfg.LLM.Model)
	}
	if cfg.Cache.Backend != cache.BackendMemory {
		t.Errorf("unset flag should not apply: backend = %q", cfg.Cache.Backend)
	}
	if cfg.LLM.OllamaURL != "http://gpu-box:11434" || cfg.Embedding.OllamaURL != "http://gpu-box:11434" {
		t.Errorf("OLLAMA_HOST not applied: %q %q", cfg.LLM.OllamaURL, cfg.Embedding.OllamaURL)
	}
	if lc := cfg.LLMClientConfig(); lc.BaseURL != "http://gpu-box:11434" {
		t.Errorf("ollama base URL = %q", lc.BaseURL)
	}
}

func TestLoadConfig_APIKeys(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	keyFile := writeFile(t, dir, "anthropic.key", "  sk-ant-from-file\n")
	path := writeFile(t, dir, "exoquery.yaml", `
llm:
  provider: anthropic
  anthropic_api_key_file: `+keyFile+`
`)

	cfg, err := LoadConfig(path, CLIFlags{ConfigFileSet: true})
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.LLM.AnthropicAPIKey != "sk-ant-from-file" {
		t.Errorf("key from file = %q", cfg.LLM.AnthropicAPIKey)
	}

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	cfg, err = LoadConfig(path, CLIFlags{ConfigFileSet: true})
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.LLM.AnthropicAPIKey != "sk-ant-env" {
		t.Errorf("env key should win over key file, got %q", cfg.LLM.AnthropicAPIKey)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad text form", func(c *Config) { c.Catalog.TextForm = "vector" }, "text form"},
		{"no snapshot", func(c *Config) { c.Index.SnapshotPath = "" }, "snapshot path"},
		{"bad s3 location", func(c *Config) { c.Index.SnapshotPath = "s3://" }, "snapshot path"},
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "cohere" }, "embedding provider"},
		{"voyage without key", func(c *Config) { c.Embedding.Provider = "voyage" }, "Voyage"},
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "palm" }, "LLM provider"},
		{"openai llm without key", func(c *Config) { c.LLM.Provider = "openai" }, "OpenAI API key"},
		{"bad llm timeout", func(c *Config) { c.LLM.Timeout = "soon" }, "llm timeout"},
		{"zero k", func(c *Config) { c.Generation.K = 0 }, "k must be at least 1"},
		{"negative malformed retries", func(c *Config) { c.Generation.MalformedRetries = -1 }, "malformed_retries"},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }, "cache backend"},
		{"bad ttl", func(c *Config) { c.Cache.TTL = "-1h" }, "cache ttl"},
		{"zero batch concurrency", func(c *Config) { c.Batch.Concurrency = 0 }, "batch concurrency"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
		{"bad call level", func(c *Config) { c.Logging.CallLevel = "all" }, "call log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		in   string
		want string
	}{
		{"~/index.db", filepath.Join(home, "index.db")},
		{"~", home},
		{"/abs/index.db", "/abs/index.db"},
		{"s3://bucket/~/key", "s3://bucket/~/key"},
		{"~other/index.db", "~other/index.db"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	for _, name := range []string{"saved.yaml", "saved.toml"} {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Catalog.CSVPath = "columns.csv"
			cfg.Generation.K = 4

			path := filepath.Join(dir, "sub", name)
			if err := SaveConfig(path, cfg); err != nil {
				t.Fatalf("SaveConfig() error: %v", err)
			}
			loaded, err := LoadConfig(path, CLIFlags{ConfigFileSet: true})
			if err != nil {
				t.Fatalf("LoadConfig() error: %v", err)
			}
			if loaded.Catalog.CSVPath != "columns.csv" || loaded.Generation.K != 4 {
				t.Errorf("round trip lost values: %+v", loaded.Generation)
			}
		})
	}
}
