/*-------------------------------------------------------------------------
 *
 * exoquery - Component Settings
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"context"
	"time"

	"exoquery/internal/cache"
	"exoquery/internal/catalog"
	"exoquery/internal/embedding"
	"exoquery/internal/llm"
	"exoquery/internal/logging"
	"exoquery/internal/querygen"
)

// Durations are checked by validateConfig, so the accessors below ignore
// parse errors.

func mustDuration(value string) time.Duration {
	d, _ := parseDuration("", value)
	return d
}

// EmbeddingProviderConfig returns the settings for embedding.NewProvider
func (c *Config) EmbeddingProviderConfig() embedding.Config {
	return embedding.Config{
		Provider:         c.Embedding.Provider,
		Model:            c.Embedding.Model,
		Timeout:          mustDuration(c.Embedding.Timeout),
		VoyageAPIKey:     c.Embedding.VoyageAPIKey,
		OpenAIAPIKey:     c.Embedding.OpenAIAPIKey,
		OpenAIBaseURL:    c.Embedding.OpenAIBaseURL,
		OpenAIDimensions: c.Embedding.OpenAIDimensions,
		OllamaURL:        c.Embedding.OllamaURL,
	}
}

// LLMClientConfig returns the settings for llm.NewCompleter
func (c *Config) LLMClientConfig() llm.Config {
	cfg := llm.Config{
		Provider:  c.LLM.Provider,
		Model:     c.LLM.Model,
		BaseURL:   c.LLM.BaseURL,
		Timeout:   mustDuration(c.LLM.Timeout),
		MaxTokens: c.LLM.MaxTokens,
	}
	switch c.LLM.Provider {
	case llm.ProviderAnthropic:
		cfg.APIKey = c.LLM.AnthropicAPIKey
	case llm.ProviderOpenAI:
		cfg.APIKey = c.LLM.OpenAIAPIKey
	default:
		if cfg.BaseURL == "" {
			cfg.BaseURL = c.LLM.OllamaURL
		}
	}
	return cfg
}

// TextForm returns the validated catalog text form
func (c *Config) TextForm() catalog.TextForm {
	form, _ := catalog.ParseTextForm(c.Catalog.TextForm)
	return form
}

// GeneratorOptions returns the pipeline options. Cache and Templates are
// left for the caller to attach.
func (c *Config) GeneratorOptions() querygen.Options {
	return querygen.Options{
		K:                c.Generation.K,
		IncludeSummary:   c.Generation.IncludeSummary,
		TimeoutRetries:   c.Generation.TimeoutRetries,
		RetryBackoff:     mustDuration(c.Generation.RetryBackoff),
		MalformedRetries: c.Generation.MalformedRetries,
	}
}

// OpenCache creates the configured result cache, or nil for "none"
func (c *Config) OpenCache(ctx context.Context) (cache.Cache, error) {
	ttl := mustDuration(c.Cache.TTL)
	switch c.Cache.Backend {
	case cache.BackendMemory:
		return cache.NewMemoryCache(c.Cache.Capacity, ttl), nil
	case cache.BackendRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     c.Cache.RedisAddr,
			Password: c.Cache.RedisPassword,
			DB:       c.Cache.RedisDB,
			TTL:      ttl,
		})
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		return nil, nil
	}
}

// ApplyLogging sets the process log levels
func (c *Config) ApplyLogging() {
	if level, ok := logging.ParseLevel(c.Logging.Level); ok {
		logging.SetLevel(level)
	}
	if level, ok := logging.ParseCallLevel(c.Logging.CallLevel); ok {
		logging.SetCallLevel(level)
	}
}
