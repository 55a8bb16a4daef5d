/*-------------------------------------------------------------------------
 *
 * exoquery - OpenAI Chat Client
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	qerrors "exoquery/internal/errors"
)

const (
	// DefaultOpenAIBaseURL is the public OpenAI API
	DefaultOpenAIBaseURL = "https://api.openai.com/v1/"

	// DefaultOpenAIModel is used when no model is configured
	DefaultOpenAIModel = "gpt-4o-mini"
)

// OpenAIClient completes prompts with the Chat Completions API of OpenAI
// or any compatible server
type OpenAIClient struct {
	client    openai.Client
	baseURL   string
	model     string
	maxTokens int
}

// NewOpenAIClient creates an OpenAI chat client. An API key is required.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, qerrors.InvalidArgument("OpenAI API key cannot be empty")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	LogClientInit(ProviderOpenAI, model, map[string]string{
		"api_key":  cfg.APIKey,
		"base_url": baseURL,
	})

	return &OpenAIClient{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(&http.Client{Timeout: timeout}),
			option.WithMaxRetries(0),
		),
		baseURL:   baseURL,
		model:     model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Complete sends the prompt as a single user message
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	LogCallStart(ProviderOpenAI, c.model, c.baseURL+"chat/completions", prompt)

	reply, err := c.complete(ctx, prompt)
	LogCall(ProviderOpenAI, c.model, prompt, reply, time.Since(start), err)
	return reply, err
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(c.model),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == http.StatusTooManyRequests {
				LogRateLimitError(ProviderOpenAI, c.model, apiErr.StatusCode, apiErr.Message)
			}
			return "", statusError(ProviderOpenAI, apiErr.StatusCode, apiErr.Message)
		}
		return "", callError(ProviderOpenAI, err)
	}

	if len(resp.Choices) == 0 {
		return "", qerrors.ModelUnavailable(fmt.Sprintf("%s returned no choices", ProviderOpenAI), nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// ModelName returns the model name
func (c *OpenAIClient) ModelName() string {
	return c.model
}

// ProviderName returns "openai"
func (c *OpenAIClient) ProviderName() string {
	return ProviderOpenAI
}
