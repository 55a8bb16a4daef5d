/*-------------------------------------------------------------------------
 *
 * exoquery - Voyage AI Embedding Provider
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
	"time"
)

const (
	// VoyageHTTPTimeout is the HTTP client timeout for Voyage API requests
	VoyageHTTPTimeout = 30 * time.Second

	// DefaultVoyageURL is the Voyage AI embeddings endpoint
	DefaultVoyageURL = "https://api.voyageai.com/v1/embeddings"
)

// VoyageProvider implements embedding generation using Voyage AI
type VoyageProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type voyageEmbeddingRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	InputType string   `json:"input_type,omitempty"`
}

type voyageEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Model dimensions for Voyage models
var voyageModelDimensions = map[string]int{
	"voyage-3":       1024,
	"voyage-3-lite":  512,
	"voyage-3-large": 1024,
	"voyage-3.5":     1024,
}

// NewVoyageProvider creates a new Voyage AI embedding provider
func NewVoyageProvider(apiKey, model, baseURL string, timeout time.Duration) (*VoyageProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Voyage AI API key cannot be empty")
	}
	if model == "" {
		model = "voyage-3-lite"
	}
	if _, ok := voyageModelDimensions[model]; !ok {
		return nil, fmt.Errorf("unsupported Voyage model: %s (supported: voyage-3, voyage-3-lite, voyage-3-large, voyage-3.5)", model)
	}
	if baseURL == "" {
		baseURL = DefaultVoyageURL
	}
	if timeout <= 0 {
		timeout = VoyageHTTPTimeout
	}

	LogProviderInit("voyage", model, map[string]string{
		"api_key":  apiKey,
		"base_url": baseURL,
	})

	return &VoyageProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Embed generates an embedding vector for the given text
func (p *VoyageProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	startTime := time.Now()
	textLen := len(text)

	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	LogAPICallDetails("voyage", p.model, p.baseURL, textLen)
	LogRequestTrace("voyage", p.model, text)

	reqBytes, err := json.Marshal(voyageEmbeddingRequest{
		Model: p.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		LogConnectionError("voyage", p.baseURL, err)
		LogAPICall("voyage", p.model, textLen, time.Since(startTime), 0, err)
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests {
			LogRateLimitError("voyage", p.model, resp.StatusCode, string(body))
		}
		err := fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		LogAPICall("voyage", p.model, textLen, time.Since(startTime), 0, err)
		return nil, err
	}

	var embResp voyageEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		LogAPICall("voyage", p.model, textLen, time.Since(startTime), 0, err)
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embResp.Data) == 0 || len(embResp.Data[0].Embedding) == 0 {
		err := fmt.Errorf("received empty embedding from API")
		LogAPICall("voyage", p.model, textLen, time.Since(startTime), 0, err)
		return nil, err
	}

	embedding := embResp.Data[0].Embedding
	LogResponseTrace("voyage", p.model, resp.StatusCode, len(embedding))
	LogAPICall("voyage", p.model, textLen, time.Since(startTime), len(embedding), nil)

	return embedding, nil
}

// Dimensions returns the number of dimensions for this model
func (p *VoyageProvider) Dimensions() int {
	return voyageModelDimensions[p.model]
}

// ModelName returns the model name
func (p *VoyageProvider) ModelName() string {
	return p.model
}

// ProviderName returns "voyage"
func (p *VoyageProvider) ProviderName() string {
	return "voyage"
}
