/*-------------------------------------------------------------------------
 *
 * exoquery - Ollama Chat Client
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

	"exoquery/internal/logging"
)

const (
	// DefaultOllamaURL is the local Ollama server
	DefaultOllamaURL = "http://localhost:11434"

	// DefaultOllamaModel is the chat model used when none is configured
	DefaultOllamaModel = "hf.co/unsloth/Qwen3-Coder-30B-A3B-Instruct-GGUF:UD-Q4_K_XL"
)

// OllamaClient completes prompts with Ollama's native chat API
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// NewOllamaClient creates an Ollama chat client
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	LogClientInit(ProviderOllama, model, map[string]string{"base_url": baseURL})

	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Complete sends the prompt as a single user message
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	url := c.baseURL + "/api/chat"
	LogCallStart(ProviderOllama, c.model, url, prompt)

	reply, err := c.complete(ctx, url, prompt)
	LogCall(ProviderOllama, c.model, prompt, reply, time.Since(start), err)
	return reply, err
}

func (c *OllamaClient) complete(ctx context.Context, url, prompt string) (string, error) {
	reqBody := ollamaChatRequest{
		Model:    c.model,
		Messages: []ollamaMessage{{Role: "user", Content: prompt}},
		Stream:   false,
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

	resp, err := c.client.Do(req)
	if err != nil {
		return "", callError(ProviderOllama, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Warn("close_response_body_failed", "provider", ProviderOllama, "error", cerr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", callError(ProviderOllama, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(ProviderOllama, resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", callError(ProviderOllama, fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if chatResp.Error != "" {
		return "", callError(ProviderOllama, fmt.Errorf("%s", chatResp.Error))
	}
	return chatResp.Message.Content, nil
}

// ModelName returns the chat model name
func (c *OllamaClient) ModelName() string {
	return c.model
}

// ProviderName returns "ollama"
func (c *OllamaClient) ProviderName() string {
	return ProviderOllama
}
