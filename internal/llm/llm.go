/*-------------------------------------------------------------------------
 *
 * exoquery - Language Model Client
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package llm sends single-turn prompts to a chat model and returns the
// full text of its reply.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	qerrors "exoquery/internal/errors"
)

// Provider names
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const (
	// DefaultTimeout bounds a single completion call
	DefaultTimeout = 120 * time.Second

	// DefaultMaxTokens caps the reply length for providers that require it
	DefaultMaxTokens = 2048
)

// Completer sends one user message and returns the complete reply text.
// Implementations keep no conversation state between calls.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	ModelName() string
	ProviderName() string
}

// Config holds language model settings
type Config struct {
	Provider  string        // "ollama" (default), "anthropic", or "openai"
	Model     string        // Model name; provider default when empty
	BaseURL   string        // API base URL; provider default when empty
	APIKey    string        // Anthropic or OpenAI key
	Timeout   time.Duration // Per-call timeout
	MaxTokens int
}

// NewCompleter creates a Completer for the configured provider
func NewCompleter(cfg Config) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOllama:
		return NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	default:
		return nil, qerrors.InvalidArgument(fmt.Sprintf("unsupported LLM provider: %s (supported: ollama, anthropic, openai)", cfg.Provider))
	}
}

// callError maps a failed call to the model error kinds. Deadline expiry,
// whether from the context or the HTTP client, is a timeout; everything
// else means the model could not be reached or refused the request.
func callError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var qe *qerrors.QueryError
	if errors.As(err, &qe) {
		return err
	}
	if isTimeout(err) {
		return qerrors.ModelTimeout(fmt.Sprintf("%s request timed out", provider), err)
	}
	return qerrors.ModelUnavailable(fmt.Sprintf("%s request failed", provider), err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// statusError reports a non-2xx HTTP response
func statusError(provider string, status int, body string) error {
	return qerrors.ModelUnavailable(
		fmt.Sprintf("%s API returned status %d: %s", provider, status, truncate(body, 200)), nil)
}
