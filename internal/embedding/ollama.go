/*-------------------------------------------------------------------------
 *
 * exoquery - Ollama Embedding Provider
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// OllamaHTTPTimeout is the HTTP client timeout for Ollama API requests
	// Ollama might need time to load models, so this is longer than other providers
	OllamaHTTPTimeout = 60 * time.Second
)

// OllamaProvider implements embedding generation using Ollama
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client

	mu   sync.RWMutex
	dims int
}

// ollamaEmbeddingRequest represents a request to Ollama's embeddings API
type ollamaEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbeddingResponse represents a response from Ollama's embeddings API
// Note: Ollama returns an array of embeddings (one per input text)
type ollamaEmbeddingResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Model dimensions for Ollama embedding models
var ollamaModelDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"qwen3-embedding:0.6b":   1024,
	"snowflake-arctic-embed": 1024,
}

// NewOllamaProvider creates a new Ollama embedding provider
func NewOllamaProvider(baseURL, model string, timeout time.Duration) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if timeout <= 0 {
		timeout = OllamaHTTPTimeout
	}

	LogProviderInit("ollama", model, map[string]string{
		"base_url": baseURL,
	})

	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
		dims:    ollamaModelDimensions[model],
	}, nil
}

// Embed generates an embedding vector for the given text
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	startTime := time.Now()
	textLen := len(text)

	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	url := p.baseURL + "/api/embed"
	LogAPICallDetails("ollama", p.model, url, textLen)
	LogRequestTrace("ollama", p.model, text)

	reqBytes, err := json.Marshal(ollamaEmbeddingRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		LogConnectionError("ollama", url, err)
		LogAPICall("ollama", p.model, textLen, time.Since(startTime), 0, err)
		return nil, fmt.Errorf("failed to connect to Ollama at %s: %w (is Ollama running?)", p.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests {
			LogRateLimitError("ollama", p.model, resp.StatusCode, string(body))
		}
		err := fmt.Errorf("Ollama API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		LogAPICall("ollama", p.model, textLen, time.Since(startTime), 0, err)
		return nil, err
	}

	var embResp ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		LogAPICall("ollama", p.model, textLen, time.Since(startTime), 0, err)
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embResp.Embeddings) == 0 || len(embResp.Embeddings[0]) == 0 {
		err := fmt.Errorf("received empty embedding from Ollama (model may not be installed: try 'ollama pull %s')", p.model)
		LogAPICall("ollama", p.model, textLen, time.Since(startTime), 0, err)
		return nil, err
	}

	embedding := embResp.Embeddings[0]

	p.mu.Lock()
	if p.dims == 0 {
		p.dims = len(embedding)
	}
	p.mu.Unlock()

	LogResponseTrace("ollama", p.model, resp.StatusCode, len(embedding))
	LogAPICall("ollama", p.model, textLen, time.Since(startTime), len(embedding), nil)

	return embedding, nil
}

// Dimensions returns the number of dimensions for this model
func (p *OllamaProvider) Dimensions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dims
}

// ModelName returns the model name
func (p *OllamaProvider) ModelName() string {
	return p.model
}

// ProviderName returns "ollama"
func (p *OllamaProvider) ProviderName() string {
	return "ollama"
}
