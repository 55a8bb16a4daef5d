/*-------------------------------------------------------------------------
 *
 * exoquery - Anthropic Messages Client
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	qerrors "exoquery/internal/errors"
	"exoquery/internal/logging"
)

const (
	// DefaultAnthropicURL is the public Anthropic API
	DefaultAnthropicURL = "https://api.anthropic.com/v1"

	// DefaultAnthropicModel is used when no model is configured
	DefaultAnthropicModel = "claude-sonnet-4-5"

	anthropicVersion = "2023-06-01"
)

// AnthropicClient completes prompts with the Anthropic Messages API
type AnthropicClient struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	ID      string               `json:"id"`
	Type    string               `json:"type"`
	Role    string               `json:"role"`
	Content []claudeContentBlock `json:"content"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewAnthropicClient creates an Anthropic client. An API key is required.
func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, qerrors.InvalidArgument("Anthropic API key cannot be empty")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultAnthropicURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	LogClientInit(ProviderAnthropic, model, map[string]string{
		"api_key":  cfg.APIKey,
		"base_url": baseURL,
	})

	return &AnthropicClient{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		maxTokens: maxTokens,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// Complete sends the prompt as a single user message and joins the text
// blocks of the reply
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	url := c.baseURL + "/messages"
	LogCallStart(ProviderAnthropic, c.model, url, prompt)

	reply, err := c.complete(ctx, url, prompt)
	LogCall(ProviderAnthropic, c.model, prompt, reply, time.Since(start), err)
	return reply, err
}

func (c *AnthropicClient) complete(ctx context.Context, url, prompt string) (string, error) {
	reqBody := claudeRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", callError(ProviderAnthropic, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Warn("close_response_body_failed", "provider", ProviderAnthropic, "error", cerr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", callError(ProviderAnthropic, err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			LogRateLimitError(ProviderAnthropic, c.model, resp.StatusCode, string(body))
		}
		return "", statusError(ProviderAnthropic, resp.StatusCode, string(body))
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return "", callError(ProviderAnthropic, fmt.Errorf("failed to unmarshal response: %w", err))
	}

	var sb strings.Builder
	for _, block := range claudeResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// ModelName returns the model name
func (c *AnthropicClient) ModelName() string {
	return c.model
}

// ProviderName returns "anthropic"
func (c *AnthropicClient) ProviderName() string {
	return ProviderAnthropic
}
