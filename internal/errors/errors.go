/*-------------------------------------------------------------------------
 *
 * exoquery - Error Kinds
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package errors provides the categorised error type used across the
// query-generation pipeline. Every error carries a category, a code, a
// message and a retryable flag so callers can tell an operational outage
// (the column index is unavailable) from a diagnostic failure (the model's
// answer could not be understood).
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by pipeline component.
type ErrorCategory string

const (
	CategoryIndex      ErrorCategory = "INDEX"
	CategoryModel      ErrorCategory = "MODEL"
	CategoryPrompt     ErrorCategory = "PROMPT"
	CategoryValidation ErrorCategory = "VALIDATION"
	CategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes.
const (
	// Index codes
	CodeIndexUnavailable = "INDEX_UNAVAILABLE"
	CodeCorruptIndex     = "CORRUPT_INDEX"

	// Model codes
	CodeMalformedModelOutput = "MALFORMED_MODEL_OUTPUT"
	CodeModelTimeout         = "MODEL_TIMEOUT"
	CodeModelUnavailable     = "MODEL_UNAVAILABLE"

	// Prompt codes
	CodeTemplateNotFound = "TEMPLATE_NOT_FOUND"
	CodeMissingVariable  = "MISSING_VARIABLE"

	// Validation codes
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for errors.Is matching. Only category and code are compared.
var (
	ErrIndexUnavailable     = New(CategoryIndex, CodeIndexUnavailable, "column index unavailable")
	ErrCorruptIndex         = New(CategoryIndex, CodeCorruptIndex, "column index snapshot is corrupt")
	ErrMalformedModelOutput = New(CategoryModel, CodeMalformedModelOutput, "model output could not be parsed")
	ErrModelTimeout         = New(CategoryModel, CodeModelTimeout, "model call timed out")
	ErrModelUnavailable     = New(CategoryModel, CodeModelUnavailable, "model service unavailable")
	ErrTemplateNotFound     = New(CategoryPrompt, CodeTemplateNotFound, "prompt template not found")
	ErrMissingVariable      = New(CategoryPrompt, CodeMissingVariable, "prompt variable missing")
	ErrInvalidArgument      = New(CategoryValidation, CodeInvalidArgument, "invalid argument")
)

// QueryError is the structured error type used throughout the pipeline.
type QueryError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *QueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *QueryError) Is(target error) bool {
	var t *QueryError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new QueryError.
func New(category ErrorCategory, code, message string) *QueryError {
	return &QueryError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new QueryError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *QueryError {
	return &QueryError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *QueryError) WithDetails(details map[string]interface{}) *QueryError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a QueryError.
func GetCategory(err error) ErrorCategory {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a QueryError.
func GetCode(err error) string {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// IsIndexError reports whether retrieval cannot proceed, either because the
// index could not be loaded or because its snapshot failed verification.
func IsIndexError(err error) bool {
	return GetCategory(err) == CategoryIndex
}

// IsModelError reports whether the failure came from the language model
// round trip (timeout, transport, or unparseable output).
func IsModelError(err error) bool {
	return GetCategory(err) == CategoryModel
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == CategoryModel && code == CodeModelTimeout:
		return true
	case category == CategoryModel && code == CodeModelUnavailable:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func IndexUnavailable(message string, cause error) *QueryError {
	return Wrap(CategoryIndex, CodeIndexUnavailable, message, cause)
}

func CorruptIndex(message string) *QueryError {
	return New(CategoryIndex, CodeCorruptIndex, message)
}

func MalformedModelOutput(message string, cause error) *QueryError {
	return Wrap(CategoryModel, CodeMalformedModelOutput, message, cause)
}

func ModelTimeout(message string, cause error) *QueryError {
	return Wrap(CategoryModel, CodeModelTimeout, message, cause)
}

func ModelUnavailable(message string, cause error) *QueryError {
	return Wrap(CategoryModel, CodeModelUnavailable, message, cause)
}

func TemplateNotFound(name string) *QueryError {
	return New(CategoryPrompt, CodeTemplateNotFound, fmt.Sprintf("template %q not found", name))
}

func MissingVariable(template, variable string) *QueryError {
	return New(CategoryPrompt, CodeMissingVariable,
		fmt.Sprintf("template %q requires variable %q", template, variable))
}

func InvalidArgument(message string) *QueryError {
	return New(CategoryValidation, CodeInvalidArgument, message)
}

func Internal(message string, cause error) *QueryError {
	return Wrap(CategoryInternal, CodeUnexpected, message, cause)
}
