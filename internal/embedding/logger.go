/*-------------------------------------------------------------------------
 *
 * exoquery - Embedding Call Logging
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package embedding

import (
	"time"

	"exoquery/internal/logging"
)

// LogAPICall logs an embedding API call with timing
func LogAPICall(provider, model string, textLen int, duration time.Duration, dimensions int, err error) {
	if err != nil {
		logging.Call(logging.CallInfo, "embedding_call_failed",
			"provider", provider, "model", model, "text_length", textLen,
			"duration_ms", duration.Milliseconds(), "error", err)
		return
	}
	logging.Call(logging.CallInfo, "embedding_call",
		"provider", provider, "model", model, "text_length", textLen,
		"dimensions", dimensions, "duration_ms", duration.Milliseconds())
}

// LogAPICallDetails logs detailed information about an API call
func LogAPICallDetails(provider, model, url string, textLen int) {
	logging.Call(logging.CallDebug, "embedding_call_start",
		"provider", provider, "model", model, "url", url, "text_length", textLen)
}

// LogRequestTrace logs trace-level request information
func LogRequestTrace(provider, model string, textPreview string) {
	logging.Call(logging.CallTrace, "embedding_request",
		"provider", provider, "model", model, "text_preview", truncate(textPreview, 100))
}

// LogResponseTrace logs trace-level response information
func LogResponseTrace(provider, model string, statusCode int, dimensions int) {
	logging.Call(logging.CallTrace, "embedding_response",
		"provider", provider, "model", model, "status_code", statusCode, "dimensions", dimensions)
}

// LogRateLimitError logs rate limit errors with specific details
func LogRateLimitError(provider, model string, statusCode int, responseBody string) {
	logging.Call(logging.CallInfo, "embedding_rate_limited",
		"provider", provider, "model", model, "status_code", statusCode,
		"response", truncate(responseBody, 200))
}

// LogConnectionError logs connection errors
func LogConnectionError(provider, url string, err error) {
	logging.Call(logging.CallInfo, "embedding_connection_failed",
		"provider", provider, "url", url, "error", err)
}

// LogProviderInit logs provider initialization. Values under "api_key"
// are redacted.
func LogProviderInit(provider, model string, config map[string]string) {
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
	logging.Call(logging.CallDebug, "embedding_provider_init", keyvals...)
}

// truncate truncates a string to maxLen bytes, adding "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
