/*-------------------------------------------------------------------------
 *
 * exoquery - Error Kinds
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestQueryError_Error(t *testing.T) {
	err := New(CategoryIndex, CodeCorruptIndex, "count mismatch")
	expected := "[INDEX:CORRUPT_INDEX] count mismatch"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestQueryError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("no such file")
	err := IndexUnavailable("failed to open snapshot", cause)
	expected := "[INDEX:INDEX_UNAVAILABLE] failed to open snapshot: no such file"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestQueryError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := MalformedModelOutput("no JSON object", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestQueryError_IsSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{"index unavailable", IndexUnavailable("x", nil), ErrIndexUnavailable, true},
		{"corrupt index", CorruptIndex("x"), ErrCorruptIndex, true},
		{"corrupt is not unavailable", CorruptIndex("x"), ErrIndexUnavailable, false},
		{"malformed", MalformedModelOutput("x", nil), ErrMalformedModelOutput, true},
		{"timeout", ModelTimeout("x", nil), ErrModelTimeout, true},
		{"timeout is not malformed", ModelTimeout("x", nil), ErrMalformedModelOutput, false},
		{"template", TemplateNotFound("t"), ErrTemplateNotFound, true},
		{"variable", MissingVariable("t", "V"), ErrMissingVariable, true},
		{"wrapped", fmt.Errorf("step 1: %w", MalformedModelOutput("x", nil)), ErrMalformedModelOutput, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.sentinel); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{CategoryModel, CodeModelTimeout, true},
		{CategoryModel, CodeModelUnavailable, true},
		{CategoryModel, CodeMalformedModelOutput, false},
		{CategoryIndex, CodeIndexUnavailable, false},
		{CategoryIndex, CodeCorruptIndex, false},
		{CategoryPrompt, CodeTemplateNotFound, false},
		{CategoryValidation, CodeInvalidArgument, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.category)+"/"+tt.code, func(t *testing.T) {
			err := New(tt.category, tt.code, "test")
			if err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tt.retryable)
			}
			if IsRetryable(fmt.Errorf("wrapped: %w", err)) != tt.retryable {
				t.Errorf("IsRetryable through wrapping = %v, want %v", !tt.retryable, tt.retryable)
			}
		})
	}

	if IsRetryable(fmt.Errorf("plain error")) {
		t.Error("plain errors should not be retryable")
	}
}

func TestCategoryHelpers(t *testing.T) {
	if !IsIndexError(CorruptIndex("x")) {
		t.Error("corrupt index should be an index error")
	}
	if !IsIndexError(fmt.Errorf("load: %w", IndexUnavailable("x", nil))) {
		t.Error("wrapped unavailable index should be an index error")
	}
	if IsIndexError(ModelTimeout("x", nil)) {
		t.Error("timeout is not an index error")
	}
	if !IsModelError(MalformedModelOutput("x", nil)) {
		t.Error("malformed output should be a model error")
	}
	if GetCode(fmt.Errorf("plain")) != "" {
		t.Error("plain errors have no code")
	}
	if GetCategory(InvalidArgument("x")) != CategoryValidation {
		t.Error("expected validation category")
	}
}

func TestWithDetails(t *testing.T) {
	base := CorruptIndex("count mismatch")
	detailed := base.WithDetails(map[string]interface{}{"vectors": 3, "columns": 4})
	if base.Details != nil {
		t.Error("WithDetails must not modify the original error")
	}
	if detailed.Details["vectors"] != 3 {
		t.Errorf("Details[vectors] = %v, want 3", detailed.Details["vectors"])
	}
}
