/*-------------------------------------------------------------------------
 *
 * exoquery - Configuration
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"exoquery/internal/cache"
	"exoquery/internal/catalog"
	"exoquery/internal/embedding"
	"exoquery/internal/llm"
	"exoquery/internal/logging"
	"exoquery/internal/querygen"
	"exoquery/internal/storage"
)

// Config represents the complete exoquery configuration
type Config struct {
	// Column catalog and instrument list
	Catalog CatalogConfig `yaml:"catalog" toml:"catalog"`

	// Index snapshot location
	Index IndexConfig `yaml:"index" toml:"index"`

	// Embedding provider used to build and search the index
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`

	// Language model used to generate queries
	LLM LLMConfig `yaml:"llm" toml:"llm"`

	// Query generation pipeline settings
	Generation GenerationConfig `yaml:"generation" toml:"generation"`

	// Result cache
	Cache CacheConfig `yaml:"cache" toml:"cache"`

	// Batch mode
	Batch BatchConfig `yaml:"batch" toml:"batch"`

	// Log levels
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// CatalogConfig locates the column catalog
type CatalogConfig struct {
	CSVPath         string `yaml:"csv_path" toml:"csv_path"`                 // Column description CSV
	InstrumentsPath string `yaml:"instruments_path" toml:"instruments_path"` // Instrument names, one per line (optional)
	TextForm        string `yaml:"text_form" toml:"text_form"`               // "name" or "description" (default: name)
}

// IndexConfig locates the persisted index
type IndexConfig struct {
	SnapshotPath     string           `yaml:"snapshot_path" toml:"snapshot_path"`         // Local path or s3://bucket/key
	CacheDir         string           `yaml:"cache_dir" toml:"cache_dir"`                 // Where S3 snapshots are downloaded to
	BuildConcurrency int              `yaml:"build_concurrency" toml:"build_concurrency"` // Parallel embedding calls during build (default: 4)
	S3               storage.S3Config `yaml:"s3" toml:"s3"`
}

// EmbeddingConfig holds embedding provider settings
type EmbeddingConfig struct {
	Provider         string `yaml:"provider" toml:"provider"`                       // "ollama", "openai", or "voyage"
	Model            string `yaml:"model" toml:"model"`                             // Provider-specific model name
	VoyageAPIKey     string `yaml:"voyage_api_key" toml:"voyage_api_key"`           // Direct key (discouraged, use a key file or env var)
	VoyageAPIKeyFile string `yaml:"voyage_api_key_file" toml:"voyage_api_key_file"` // Path to file containing the Voyage API key
	OpenAIAPIKey     string `yaml:"openai_api_key" toml:"openai_api_key"`           // Direct key (discouraged, use a key file or env var)
	OpenAIAPIKeyFile string `yaml:"openai_api_key_file" toml:"openai_api_key_file"` // Path to file containing the OpenAI API key
	OpenAIBaseURL    string `yaml:"openai_base_url" toml:"openai_base_url"`         // Any OpenAI-compatible server
	OpenAIDimensions int    `yaml:"openai_dimensions" toml:"openai_dimensions"`     // Shortened vectors (text-embedding-3 only)
	OllamaURL        string `yaml:"ollama_url" toml:"ollama_url"`                   // URL for Ollama service (default: http://localhost:11434)
	Timeout          string `yaml:"timeout" toml:"timeout"`                         // Per-request timeout (default: provider specific)
}

// LLMConfig holds language model settings
type LLMConfig struct {
	Provider            string `yaml:"provider" toml:"provider"`                             // "ollama", "anthropic", or "openai"
	Model               string `yaml:"model" toml:"model"`                                   // Provider-specific model name
	AnthropicAPIKey     string `yaml:"anthropic_api_key" toml:"anthropic_api_key"`           // Direct key (discouraged)
	AnthropicAPIKeyFile string `yaml:"anthropic_api_key_file" toml:"anthropic_api_key_file"` // Path to file containing the Anthropic API key
	OpenAIAPIKey        string `yaml:"openai_api_key" toml:"openai_api_key"`                 // Direct key (discouraged)
	OpenAIAPIKeyFile    string `yaml:"openai_api_key_file" toml:"openai_api_key_file"`       // Path to file containing the OpenAI API key
	BaseURL             string `yaml:"base_url" toml:"base_url"`                             // Overrides the provider's API URL
	OllamaURL           string `yaml:"ollama_url" toml:"ollama_url"`                         // URL for Ollama service (default: http://localhost:11434)
	MaxTokens           int    `yaml:"max_tokens" toml:"max_tokens"`                         // Reply length cap (default: 2048)
	Timeout             string `yaml:"timeout" toml:"timeout"`                               // Per-call timeout (default: 2m)
}

// GenerationConfig tunes the question-to-query pipeline
type GenerationConfig struct {
	K                int    `yaml:"k" toml:"k"`                                 // Columns retrieved per sub-query (default: 2)
	IncludeSummary   bool   `yaml:"include_summary" toml:"include_summary"`     // Ask the model for a narrative summary
	TimeoutRetries   int    `yaml:"timeout_retries" toml:"timeout_retries"`     // Repeats of a timed-out model call (default: 1, -1 disables)
	RetryBackoff     string `yaml:"retry_backoff" toml:"retry_backoff"`         // Wait before repeating (default: 500ms)
	MalformedRetries int    `yaml:"malformed_retries" toml:"malformed_retries"` // Re-prompts on unparseable replies (default: 0)
	PromptDir        string `yaml:"prompt_dir" toml:"prompt_dir"`               // Directory of *.prompt.tmpl overrides
}

// CacheConfig selects the result cache
type CacheConfig struct {
	Backend       string `yaml:"backend" toml:"backend"`               // "none", "memory", or "redis" (default: none)
	Capacity      int    `yaml:"capacity" toml:"capacity"`             // Memory cache entry limit (default: 512)
	TTL           string `yaml:"ttl" toml:"ttl"`                       // Entry lifetime (default: 1h)
	RedisAddr     string `yaml:"redis_addr" toml:"redis_addr"`         // Redis server (default: localhost:6379)
	RedisPassword string `yaml:"redis_password" toml:"redis_password"` // Redis password (optional)
	RedisDB       int    `yaml:"redis_db" toml:"redis_db"`             // Redis database number
}

// BatchConfig holds batch mode settings
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" toml:"concurrency"` // Questions generated in parallel (default: 2)
}

// LoggingConfig holds log levels
type LoggingConfig struct {
	Level     string `yaml:"level" toml:"level"`           // debug, info, warn, error (default: error)
	CallLevel string `yaml:"call_level" toml:"call_level"` // API call detail: none, info, debug, trace (default: none)
}

// LoadConfig loads configuration with proper priority:
// 1. Command line flags (highest priority)
// 2. Environment variables
// 3. Configuration file (YAML, or TOML when the name ends in .toml)
// 4. Hard-coded defaults (lowest priority)
func LoadConfig(configPath string, cliFlags CLIFlags) (*Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		fileCfg, err := loadConfigFile(configPath)
		if err != nil {
			// A missing default file is fine; an explicit one must load
			if cliFlags.ConfigFileSet || !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		} else {
			mergeConfig(cfg, fileCfg)
		}
	}

	applyEnvironmentVariables(cfg)

	applyCLIFlags(cfg, cliFlags)

	expandPaths(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// CLIFlags represents command line flags that can override config.
// Each value has a Set twin recording whether the flag was given.
type CLIFlags struct {
	ConfigFileSet bool
	ConfigFile    string

	CatalogPath        string
	CatalogPathSet     bool
	InstrumentsPath    string
	InstrumentsPathSet bool
	TextForm           string
	TextFormSet        bool

	SnapshotPath    string
	SnapshotPathSet bool

	EmbeddingProvider    string
	EmbeddingProviderSet bool
	EmbeddingModel       string
	EmbeddingModelSet    bool

	LLMProvider    string
	LLMProviderSet bool
	LLMModel       string
	LLMModelSet    bool

	K                 int
	KSet              bool
	IncludeSummary    bool
	IncludeSummarySet bool
	PromptDir         string
	PromptDirSet      bool

	CacheBackend    string
	CacheBackendSet bool

	BatchConcurrency    int
	BatchConcurrencySet bool

	LogLevel    string
	LogLevelSet bool
}

// defaultConfig returns a configuration with default values
func defaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			TextForm: string(catalog.TextName),
		},
		Index: IndexConfig{
			SnapshotPath:     "exoquery-index.db",
			BuildConcurrency: 4,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     embedding.DefaultOllamaModel,
			OllamaURL: embedding.DefaultOllamaURL,
		},
		LLM: LLMConfig{
			Provider:  llm.ProviderOllama,
			Model:     llm.DefaultOllamaModel,
			OllamaURL: llm.DefaultOllamaURL,
			MaxTokens: llm.DefaultMaxTokens,
			Timeout:   llm.DefaultTimeout.String(),
		},
		Generation: GenerationConfig{
			K:              querygen.DefaultK,
			TimeoutRetries: querygen.DefaultTimeoutRetries,
			RetryBackoff:   querygen.DefaultRetryBackoff.String(),
		},
		Cache: CacheConfig{
			Backend:   cache.BackendNone,
			Capacity:  cache.DefaultCapacity,
			TTL:       cache.DefaultTTL.String(),
			RedisAddr: cache.DefaultRedisAddr,
		},
		Batch: BatchConfig{
			Concurrency: 2,
		},
		Logging: LoggingConfig{
			Level:     "error",
			CallLevel: "none",
		},
	}
}

// loadConfigFile loads configuration from a YAML or TOML file
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
		return &cfg, nil
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// mergeConfig merges source config into dest (non-zero values only)
func mergeConfig(dest, src *Config) {
	setString(&dest.Catalog.CSVPath, src.Catalog.CSVPath)
	setString(&dest.Catalog.InstrumentsPath, src.Catalog.InstrumentsPath)
	setString(&dest.Catalog.TextForm, src.Catalog.TextForm)

	setString(&dest.Index.SnapshotPath, src.Index.SnapshotPath)
	setString(&dest.Index.CacheDir, src.Index.CacheDir)
	setInt(&dest.Index.BuildConcurrency, src.Index.BuildConcurrency)
	setString(&dest.Index.S3.Region, src.Index.S3.Region)
	setString(&dest.Index.S3.Endpoint, src.Index.S3.Endpoint)
	if src.Index.S3.UsePathStyle {
		dest.Index.S3.UsePathStyle = true
	}

	// A provider change drops the previous provider's default model
	if src.Embedding.Provider != "" && src.Embedding.Provider != dest.Embedding.Provider {
		dest.Embedding.Provider = src.Embedding.Provider
		dest.Embedding.Model = ""
	}
	setString(&dest.Embedding.Model, src.Embedding.Model)
	setString(&dest.Embedding.VoyageAPIKey, src.Embedding.VoyageAPIKey)
	setString(&dest.Embedding.VoyageAPIKeyFile, src.Embedding.VoyageAPIKeyFile)
	setString(&dest.Embedding.OpenAIAPIKey, src.Embedding.OpenAIAPIKey)
	setString(&dest.Embedding.OpenAIAPIKeyFile, src.Embedding.OpenAIAPIKeyFile)
	setString(&dest.Embedding.OpenAIBaseURL, src.Embedding.OpenAIBaseURL)
	setInt(&dest.Embedding.OpenAIDimensions, src.Embedding.OpenAIDimensions)
	setString(&dest.Embedding.OllamaURL, src.Embedding.OllamaURL)
	setString(&dest.Embedding.Timeout, src.Embedding.Timeout)

	if src.LLM.Provider != "" && src.LLM.Provider != dest.LLM.Provider {
		dest.LLM.Provider = src.LLM.Provider
		dest.LLM.Model = ""
	}
	setString(&dest.LLM.Model, src.LLM.Model)
	setString(&dest.LLM.AnthropicAPIKey, src.LLM.AnthropicAPIKey)
	setString(&dest.LLM.AnthropicAPIKeyFile, src.LLM.AnthropicAPIKeyFile)
	setString(&dest.LLM.OpenAIAPIKey, src.LLM.OpenAIAPIKey)
	setString(&dest.LLM.OpenAIAPIKeyFile, src.LLM.OpenAIAPIKeyFile)
	setString(&dest.LLM.BaseURL, src.LLM.BaseURL)
	setString(&dest.LLM.OllamaURL, src.LLM.OllamaURL)
	setInt(&dest.LLM.MaxTokens, src.LLM.MaxTokens)
	setString(&dest.LLM.Timeout, src.LLM.Timeout)

	setInt(&dest.Generation.K, src.Generation.K)
	if src.Generation.IncludeSummary {
		dest.Generation.IncludeSummary = true
	}
	setInt(&dest.Generation.TimeoutRetries, src.Generation.TimeoutRetries)
	setString(&dest.Generation.RetryBackoff, src.Generation.RetryBackoff)
	setInt(&dest.Generation.MalformedRetries, src.Generation.MalformedRetries)
	setString(&dest.Generation.PromptDir, src.Generation.PromptDir)

	setString(&dest.Cache.Backend, src.Cache.Backend)
	setInt(&dest.Cache.Capacity, src.Cache.Capacity)
	setString(&dest.Cache.TTL, src.Cache.TTL)
	setString(&dest.Cache.RedisAddr, src.Cache.RedisAddr)
	setString(&dest.Cache.RedisPassword, src.Cache.RedisPassword)
	setInt(&dest.Cache.RedisDB, src.Cache.RedisDB)

	setInt(&dest.Batch.Concurrency, src.Batch.Concurrency)

	setString(&dest.Logging.Level, src.Logging.Level)
	setString(&dest.Logging.CallLevel, src.Logging.CallLevel)
}

func setString(dest *string, val string) {
	if val != "" {
		*dest = val
	}
}

func setInt(dest *int, val int) {
	if val != 0 {
		*dest = val
	}
}

// setStringFromEnv sets a string config value from an environment variable if it exists
func setStringFromEnv(dest *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val
	}
}

// setStringFromEnvWithFallback sets a string config value from the first
// environment variable that is set
func setStringFromEnvWithFallback(dest *string, keys ...string) {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			*dest = val
			return
		}
	}
}

// setBoolFromEnv sets a boolean config value from an environment variable if it exists
func setBoolFromEnv(dest *bool, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val == "true" || val == "1" || val == "yes"
	}
}

// setIntFromEnv sets an integer config value from an environment variable if it exists
func setIntFromEnv(dest *int, key string) {
	if val := os.Getenv(key); val != "" {
		var intVal int
		if _, err := fmt.Sscanf(val, "%d", &intVal); err == nil {
			*dest = intVal
		}
	}
}

// applyEnvironmentVariables overrides config with environment variables if they exist
func applyEnvironmentVariables(cfg *Config) {
	setStringFromEnv(&cfg.Catalog.CSVPath, "EXOQUERY_CATALOG")
	setStringFromEnv(&cfg.Catalog.InstrumentsPath, "EXOQUERY_INSTRUMENTS")
	setStringFromEnv(&cfg.Catalog.TextForm, "EXOQUERY_TEXT_FORM")

	setStringFromEnv(&cfg.Index.SnapshotPath, "EXOQUERY_SNAPSHOT")
	setStringFromEnv(&cfg.Index.CacheDir, "EXOQUERY_SNAPSHOT_CACHE_DIR")
	setStringFromEnvWithFallback(&cfg.Index.S3.Region, "EXOQUERY_S3_REGION", "AWS_REGION")
	setStringFromEnv(&cfg.Index.S3.Endpoint, "EXOQUERY_S3_ENDPOINT")
	setBoolFromEnv(&cfg.Index.S3.UsePathStyle, "EXOQUERY_S3_PATH_STYLE")

	// Embedding
	setStringFromEnv(&cfg.Embedding.Provider, "EXOQUERY_EMBEDDING_PROVIDER")
	setStringFromEnv(&cfg.Embedding.Model, "EXOQUERY_EMBEDDING_MODEL")
	// API key loading priority: env vars > api_key_file > direct config value
	setStringFromEnvWithFallback(&cfg.Embedding.VoyageAPIKey, "EXOQUERY_VOYAGE_API_KEY", "VOYAGE_API_KEY")
	setStringFromEnvWithFallback(&cfg.Embedding.OpenAIAPIKey, "EXOQUERY_OPENAI_API_KEY", "OPENAI_API_KEY")
	loadKeyFile(&cfg.Embedding.VoyageAPIKey, cfg.Embedding.VoyageAPIKeyFile)
	loadKeyFile(&cfg.Embedding.OpenAIAPIKey, cfg.Embedding.OpenAIAPIKeyFile)
	setStringFromEnvWithFallback(&cfg.Embedding.OllamaURL, "EXOQUERY_OLLAMA_URL", "OLLAMA_HOST")

	// LLM
	setStringFromEnv(&cfg.LLM.Provider, "EXOQUERY_LLM_PROVIDER")
	setStringFromEnv(&cfg.LLM.Model, "EXOQUERY_LLM_MODEL")
	setStringFromEnvWithFallback(&cfg.LLM.AnthropicAPIKey, "EXOQUERY_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	setStringFromEnvWithFallback(&cfg.LLM.OpenAIAPIKey, "EXOQUERY_OPENAI_API_KEY", "OPENAI_API_KEY")
	loadKeyFile(&cfg.LLM.AnthropicAPIKey, cfg.LLM.AnthropicAPIKeyFile)
	loadKeyFile(&cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIAPIKeyFile)
	setStringFromEnv(&cfg.LLM.BaseURL, "EXOQUERY_LLM_BASE_URL")
	setStringFromEnvWithFallback(&cfg.LLM.OllamaURL, "EXOQUERY_OLLAMA_URL", "OLLAMA_HOST")
	setIntFromEnv(&cfg.LLM.MaxTokens, "EXOQUERY_LLM_MAX_TOKENS")
	setStringFromEnv(&cfg.LLM.Timeout, "EXOQUERY_LLM_TIMEOUT")

	// Generation
	setIntFromEnv(&cfg.Generation.K, "EXOQUERY_K")
	setBoolFromEnv(&cfg.Generation.IncludeSummary, "EXOQUERY_INCLUDE_SUMMARY")
	setIntFromEnv(&cfg.Generation.MalformedRetries, "EXOQUERY_MALFORMED_RETRIES")
	setStringFromEnv(&cfg.Generation.PromptDir, "EXOQUERY_PROMPT_DIR")

	// Cache
	setStringFromEnv(&cfg.Cache.Backend, "EXOQUERY_CACHE")
	setStringFromEnvWithFallback(&cfg.Cache.RedisAddr, "EXOQUERY_REDIS_ADDR", "REDIS_ADDR")
	setStringFromEnv(&cfg.Cache.RedisPassword, "EXOQUERY_REDIS_PASSWORD")

	setIntFromEnv(&cfg.Batch.Concurrency, "EXOQUERY_BATCH_CONCURRENCY")

	setStringFromEnv(&cfg.Logging.Level, logging.EnvLogLevel)
	setStringFromEnv(&cfg.Logging.CallLevel, logging.EnvCallLogLevel)

	// OLLAMA_HOST is commonly given as host:port
	cfg.Embedding.OllamaURL = withScheme(cfg.Embedding.OllamaURL)
	cfg.LLM.OllamaURL = withScheme(cfg.LLM.OllamaURL)
}

func withScheme(url string) string {
	if url == "" || strings.Contains(url, "://") {
		return url
	}
	return "http://" + url
}

// loadKeyFile fills an empty key from a key file. A missing file leaves
// the key empty; validation reports it if the provider needs one.
func loadKeyFile(dest *string, path string) {
	if *dest != "" || path == "" {
		return
	}
	key, err := readAPIKeyFromFile(path)
	if err != nil {
		logging.Warn("api_key_file_unreadable", "path", path, "error", err)
		return
	}
	*dest = key
}

// applyCLIFlags overrides config with CLI flags if they were explicitly set
func applyCLIFlags(cfg *Config, flags CLIFlags) {
	if flags.CatalogPathSet {
		cfg.Catalog.CSVPath = flags.CatalogPath
	}
	if flags.InstrumentsPathSet {
		cfg.Catalog.InstrumentsPath = flags.InstrumentsPath
	}
	if flags.TextFormSet {
		cfg.Catalog.TextForm = flags.TextForm
	}
	if flags.SnapshotPathSet {
		cfg.Index.SnapshotPath = flags.SnapshotPath
	}
	if flags.EmbeddingProviderSet {
		cfg.Embedding.Provider = flags.EmbeddingProvider
	}
	if flags.EmbeddingModelSet {
		cfg.Embedding.Model = flags.EmbeddingModel
	}
	if flags.LLMProviderSet {
		cfg.LLM.Provider = flags.LLMProvider
	}
	if flags.LLMModelSet {
		cfg.LLM.Model = flags.LLMModel
	}
	if flags.KSet {
		cfg.Generation.K = flags.K
	}
	if flags.IncludeSummarySet {
		cfg.Generation.IncludeSummary = flags.IncludeSummary
	}
	if flags.PromptDirSet {
		cfg.Generation.PromptDir = flags.PromptDir
	}
	if flags.CacheBackendSet {
		cfg.Cache.Backend = flags.CacheBackend
	}
	if flags.BatchConcurrencySet {
		cfg.Batch.Concurrency = flags.BatchConcurrency
	}
	if flags.LogLevelSet {
		cfg.Logging.Level = flags.LogLevel
	}
}

// expandPaths replaces a leading ~ in file paths with the home directory
func expandPaths(cfg *Config) {
	for _, p := range []*string{
		&cfg.Catalog.CSVPath,
		&cfg.Catalog.InstrumentsPath,
		&cfg.Index.SnapshotPath,
		&cfg.Index.CacheDir,
		&cfg.Generation.PromptDir,
	} {
		*p = ExpandPath(*p)
	}
}

// ExpandPath expands a leading ~ to the user's home directory. Other
// paths, including s3:// locations, are returned unchanged.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// validateConfig checks if the configuration is valid
func validateConfig(cfg *Config) error {
	if _, err := catalog.ParseTextForm(cfg.Catalog.TextForm); err != nil {
		return err
	}
	if cfg.Index.SnapshotPath == "" {
		return fmt.Errorf("index snapshot path is required")
	}
	if _, _, err := storage.ParseLocation(cfg.Index.SnapshotPath); err != nil {
		return fmt.Errorf("index snapshot path: %w", err)
	}
	if cfg.Index.BuildConcurrency < 1 {
		return fmt.Errorf("index build_concurrency must be at least 1")
	}

	switch cfg.Embedding.Provider {
	case "ollama":
	case "openai":
		if cfg.Embedding.OpenAIAPIKey == "" {
			return fmt.Errorf("OpenAI API key is required for OpenAI embeddings (set OPENAI_API_KEY or openai_api_key_file)")
		}
	case "voyage":
		if cfg.Embedding.VoyageAPIKey == "" {
			return fmt.Errorf("Voyage AI API key is required for Voyage embeddings (set VOYAGE_API_KEY or voyage_api_key_file)")
		}
	default:
		return fmt.Errorf("unsupported embedding provider: %s (supported: ollama, openai, voyage)", cfg.Embedding.Provider)
	}
	if _, err := parseDuration("embedding timeout", cfg.Embedding.Timeout); err != nil {
		return err
	}

	switch cfg.LLM.Provider {
	case llm.ProviderOllama:
	case llm.ProviderAnthropic:
		if cfg.LLM.AnthropicAPIKey == "" {
			return fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or anthropic_api_key_file)")
		}
	case llm.ProviderOpenAI:
		if cfg.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY or openai_api_key_file)")
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s (supported: ollama, anthropic, openai)", cfg.LLM.Provider)
	}
	if _, err := parseDuration("llm timeout", cfg.LLM.Timeout); err != nil {
		return err
	}

	if cfg.Generation.K < 1 {
		return fmt.Errorf("generation k must be at least 1, got %d", cfg.Generation.K)
	}
	if cfg.Generation.MalformedRetries < 0 {
		return fmt.Errorf("generation malformed_retries cannot be negative")
	}
	if _, err := parseDuration("generation retry_backoff", cfg.Generation.RetryBackoff); err != nil {
		return err
	}

	switch cfg.Cache.Backend {
	case cache.BackendNone, cache.BackendMemory, cache.BackendRedis:
	default:
		return fmt.Errorf("unsupported cache backend: %s (supported: none, memory, redis)", cfg.Cache.Backend)
	}
	if _, err := parseDuration("cache ttl", cfg.Cache.TTL); err != nil {
		return err
	}

	if cfg.Batch.Concurrency < 1 {
		return fmt.Errorf("batch concurrency must be at least 1")
	}

	if _, ok := logging.ParseLevel(cfg.Logging.Level); !ok {
		return fmt.Errorf("unknown log level: %s (expected debug, info, warn, or error)", cfg.Logging.Level)
	}
	if _, ok := logging.ParseCallLevel(cfg.Logging.CallLevel); !ok {
		return fmt.Errorf("unknown call log level: %s (expected none, info, debug, or trace)", cfg.Logging.CallLevel)
	}

	return nil
}

// parseDuration parses an optional duration; empty means zero
func parseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative", name)
	}
	return d, nil
}

// readAPIKeyFromFile reads an API key from a file
// Returns the key with whitespace trimmed, or empty string if file doesn't exist or is empty
func readAPIKeyFromFile(filePath string) (string, error) {
	if filePath == "" {
		return "", nil
	}
	filePath = ExpandPath(filePath)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return "", nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read API key file %s: %w", filePath, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// GetDefaultConfigPath returns the default config file path
// Searches /etc/exoquery/ first, then the user config directory
func GetDefaultConfigPath() string {
	systemPath := "/etc/exoquery/exoquery.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "exoquery.yaml"
	}
	return filepath.Join(dir, "exoquery", "exoquery.yaml")
}

// SaveConfig saves the configuration to a YAML or TOML file, chosen by
// extension
func SaveConfig(path string, cfg *Config) error {
	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(cfg)
		data = []byte(sb.String())
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
