/*-------------------------------------------------------------------------
 *
 * exoquery - LLM Call Logging
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package llm

import (
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"exoquery/internal/logging"
)

// TokenEncoding is the tokenizer used for prompt size estimates
const TokenEncoding = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding(TokenEncoding)
		if err != nil {
			logging.Debug("tokenizer_unavailable", "encoding", TokenEncoding, "error", err)
			return
		}
		enc = e
	})
	return enc
}

// EstimateTokens returns the token count of text. When the tokenizer
// cannot be loaded it falls back to one token per four bytes.
func EstimateTokens(text string) int {
	return estimateWith(encoding(), text)
}

func estimateWith(e *tiktoken.Tiktoken, text string) int {
	if e == nil {
		return (len(text) + 3) / 4
	}
	return len(e.Encode(text, nil, nil))
}

// LogCall logs a completed completion call with timing
func LogCall(provider, model, prompt, reply string, duration time.Duration, err error) {
	if !logging.CallEnabled(logging.CallInfo) {
		return
	}
	if err != nil {
		logging.Call(logging.CallInfo, "llm_call_failed",
			"provider", provider, "model", model, "operation", "complete",
			"prompt_tokens", EstimateTokens(prompt),
			"duration_ms", duration.Milliseconds(), "error", err)
		return
	}
	logging.Call(logging.CallInfo, "llm_call",
		"provider", provider, "model", model, "operation", "complete",
		"prompt_tokens", EstimateTokens(prompt), "reply_length", len(reply),
		"duration_ms", duration.Milliseconds())
	logging.Call(logging.CallTrace, "llm_reply",
		"provider", provider, "model", model, "reply_preview", truncate(reply, 200))
}

// LogCallStart logs the request target and, at trace detail, a prompt preview
func LogCallStart(provider, model, url, prompt string) {
	logging.Call(logging.CallDebug, "llm_call_start",
		"provider", provider, "model", model, "url", url, "prompt_length", len(prompt))
	logging.Call(logging.CallTrace, "llm_request",
		"provider", provider, "model", model, "prompt_preview", truncate(prompt, 200))
}

// LogRateLimitError logs rate limit responses
func LogRateLimitError(provider, model string, statusCode int, responseBody string) {
	logging.Call(logging.CallInfo, "llm_rate_limited",
		"provider", provider, "model", model, "status_code", statusCode,
		"response", truncate(responseBody, 200))
}

// LogClientInit logs client construction. Values under "api_key" are
// redacted.
func LogClientInit(provider, model string, config map[string]string) {
	if !logging.CallEnabled(logging.CallDebug) {
		return
	}
	keyvals := []interface{}{"provider", provider, "model", model}
	for k, v := range config {
		if k == "api_key" {
			v = "***REDACTED***"
		}
		keyvals = append(keyvals, k, v)
	}
	logging.Call(logging.CallDebug, "llm_client_init", keyvals...)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
