/*-------------------------------------------------------------------------
 *
 * exoquery - Text Embedding Providers
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package embedding turns text into vectors using a remote embedding
// model.
package embedding

import (
	"context"
	"fmt"
	"time"
)

// Provider defines the interface for embedding generation
type Provider interface {
	// Embed generates an embedding vector for the given text
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the number of dimensions in the embedding vector,
	// or 0 when not known until the first call
	Dimensions() int

	// ModelName returns the name of the model being used
	ModelName() string

	// ProviderName returns the name of the provider (e.g., "voyage", "ollama", "openai")
	ProviderName() string
}

// Config holds configuration for embedding providers
type Config struct {
	Provider string // "voyage", "ollama", or "openai"
	Model    string // Model name (provider-specific)

	// Timeout bounds each embedding request; zero selects the provider default
	Timeout time.Duration

	// Voyage AI-specific
	VoyageAPIKey string
	VoyageURL    string

	// OpenAI-specific; OpenAIBaseURL may point at any compatible server
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIDimensions int

	// Ollama-specific
	OllamaURL string
}

// Defaults for the ollama provider
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
)

// NewProvider creates a new embedding provider based on configuration
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "voyage":
		if cfg.VoyageAPIKey == "" {
			return nil, fmt.Errorf("Voyage AI API key is required when provider is 'voyage'")
		}
		return NewVoyageProvider(cfg.VoyageAPIKey, cfg.Model, cfg.VoyageURL, cfg.Timeout)

	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required when provider is 'openai'")
		}
		return NewOpenAIProvider(OpenAIOptions{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.OpenAIBaseURL,
			Dimensions: cfg.OpenAIDimensions,
			Timeout:    cfg.Timeout,
		})

	case "ollama", "":
		return NewOllamaProvider(cfg.OllamaURL, cfg.Model, cfg.Timeout)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (supported: voyage, openai, ollama)", cfg.Provider)
	}
}

// toFloat32 narrows an API response vector
func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
