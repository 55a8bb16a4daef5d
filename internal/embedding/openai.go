/*-------------------------------------------------------------------------
 *
 * exoquery - OpenAI Embedding Provider
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const (
	// OpenAIHTTPTimeout is the HTTP client timeout for OpenAI API requests
	OpenAIHTTPTimeout = 30 * time.Second

	// DefaultOpenAIBaseURL is the public OpenAI API
	DefaultOpenAIBaseURL = "https://api.openai.com/v1/"
)

// Model dimensions for OpenAI embedding models
var openaiModelDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// OpenAIOptions configures an OpenAIProvider
type OpenAIOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	// Dimensions requests shortened vectors from text-embedding-3 models
	Dimensions int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAIProvider implements embedding generation using the OpenAI
// embeddings API or any compatible server
type OpenAIProvider struct {
	client    openai.Client
	model     string
	baseURL   string
	requested int

	mu   sync.RWMutex
	dims int
}

// NewOpenAIProvider creates a new OpenAI embedding provider
func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key cannot be empty")
	}

	model := opts.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
		// Only the public API has a fixed model list
		if _, ok := openaiModelDimensions[model]; !ok {
			return nil, fmt.Errorf("unsupported OpenAI model: %s (supported: text-embedding-3-large, text-embedding-3-small, text-embedding-ada-002)", model)
		}
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = OpenAIHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	LogProviderInit("openai", model, map[string]string{
		"api_key":  opts.APIKey,
		"base_url": baseURL,
	})

	dims := openaiModelDimensions[model]
	if opts.Dimensions > 0 {
		dims = opts.Dimensions
	}

	return &OpenAIProvider{
		client: openai.NewClient(
			option.WithAPIKey(opts.APIKey),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(0),
		),
		model:     model,
		baseURL:   baseURL,
		requested: opts.Dimensions,
		dims:      dims,
	}, nil
}

// Embed generates an embedding vector for the given text
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	startTime := time.Now()
	textLen := len(text)

	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	LogAPICallDetails("openai", p.model, p.baseURL+"embeddings", textLen)
	LogRequestTrace("openai", p.model, text)

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(p.model),
	}
	if p.requested > 0 {
		params.Dimensions = openai.Int(int64(p.requested))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == http.StatusTooManyRequests {
				LogRateLimitError("openai", p.model, apiErr.StatusCode, apiErr.Message)
			}
			err = fmt.Errorf("API request failed with status %d: %s", apiErr.StatusCode, apiErr.Message)
		} else {
			LogConnectionError("openai", p.baseURL, err)
			err = fmt.Errorf("failed to make API request: %w", err)
		}
		LogAPICall("openai", p.model, textLen, time.Since(startTime), 0, err)
		return nil, err
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		err := fmt.Errorf("received empty embedding from API")
		LogAPICall("openai", p.model, textLen, time.Since(startTime), 0, err)
		return nil, err
	}

	embedding := toFloat32(resp.Data[0].Embedding)

	p.mu.Lock()
	if p.dims == 0 {
		p.dims = len(embedding)
	}
	p.mu.Unlock()

	LogResponseTrace("openai", p.model, http.StatusOK, len(embedding))
	LogAPICall("openai", p.model, textLen, time.Since(startTime), len(embedding), nil)

	return embedding, nil
}

// Dimensions returns the number of dimensions for this model
func (p *OpenAIProvider) Dimensions() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dims
}

// ModelName returns the model name
func (p *OpenAIProvider) ModelName() string {
	return p.model
}

// ProviderName returns "openai"
func (p *OpenAIProvider) ProviderName() string {
	return "openai"
}
