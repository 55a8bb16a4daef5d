/*-------------------------------------------------------------------------
 *
 * exoquery - Structured Logging
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// EnvLogLevel is the environment variable controlling the log level
const EnvLogLevel = "EXOQUERY_LOG_LEVEL"

// CallLevel controls how much detail is logged about embedding and
// language model API calls. It is independent of LogLevel.
type CallLevel int

const (
	// CallNone disables API call logging
	CallNone CallLevel = iota
	// CallInfo logs one line per call (provider, model, duration, errors)
	CallInfo
	// CallDebug adds endpoints, sizes and token estimates
	CallDebug
	// CallTrace adds request and response previews
	CallTrace
)

// EnvCallLogLevel is the environment variable controlling API call logging
const EnvCallLogLevel = "EXOQUERY_LLM_LOG_LEVEL"

var (
	// currentLevel is the minimum log level to output.
	// Default to ERROR so CLI output is not cluttered with pipeline logs.
	currentLevel = LevelError

	callLevel = CallNone

	outMu sync.Mutex
	out   io.Writer = os.Stderr
)

func init() {
	if level, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		currentLevel = level
	}
	if level, ok := ParseCallLevel(os.Getenv(EnvCallLogLevel)); ok {
		callLevel = level
	}
}

// ParseCallLevel converts "none", "info", "debug" or "trace" to a
// CallLevel.
func ParseCallLevel(name string) (CallLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		return CallNone, true
	case "info":
		return CallInfo, true
	case "debug":
		return CallDebug, true
	case "trace":
		return CallTrace, true
	default:
		return CallNone, false
	}
}

// ParseLevel converts a level name to a LogLevel. The second return value
// is false for empty or unknown names.
func ParseLevel(name string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelError, false
	}
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// logEntry represents a structured log entry
type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger carries a fixed set of fields that are attached to every entry,
// e.g. the request id of one query-generation run.
type Logger struct {
	fields []interface{}
}

// With returns a Logger that adds the given key-value pairs to every entry
func With(keyvals ...interface{}) *Logger {
	return &Logger{fields: append([]interface{}(nil), keyvals...)}
}

// With returns a child Logger with additional key-value pairs
func (l *Logger) With(keyvals ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(keyvals))
	fields = append(fields, l.fields...)
	fields = append(fields, keyvals...)
	return &Logger{fields: fields}
}

func (l *Logger) Debug(message string, keyvals ...interface{}) {
	write(LevelDebug, message, l.merge(keyvals))
}

func (l *Logger) Info(message string, keyvals ...interface{}) {
	write(LevelInfo, message, l.merge(keyvals))
}

func (l *Logger) Warn(message string, keyvals ...interface{}) {
	write(LevelWarn, message, l.merge(keyvals))
}

func (l *Logger) Error(message string, keyvals ...interface{}) {
	write(LevelError, message, l.merge(keyvals))
}

func (l *Logger) merge(keyvals []interface{}) []interface{} {
	if l == nil || len(l.fields) == 0 {
		return keyvals
	}
	merged := make([]interface{}, 0, len(l.fields)+len(keyvals))
	merged = append(merged, l.fields...)
	return append(merged, keyvals...)
}

// write emits a structured log message if the level is enabled
func write(level LogLevel, message string, keyvals []interface{}) {
	if level < currentLevel {
		return
	}
	emit(level, message, keyvals)
}

func emit(level LogLevel, message string, keyvals []interface{}) {
	entry := logEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Message:   message,
		Fields:    make(map[string]interface{}),
	}

	// A trailing key without a value is dropped
	for i := 0; i+1 < len(keyvals); i += 2 {
		key := fmt.Sprintf("%v", keyvals[i])
		value := keyvals[i+1]
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		entry.Fields[key] = value
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to marshal log entry: %v\n", err)
		return
	}

	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintln(out, string(jsonBytes))
}

// Debug logs a debug-level message with structured fields
func Debug(message string, keyvals ...interface{}) {
	write(LevelDebug, message, keyvals)
}

// Info logs an info-level message with structured fields
func Info(message string, keyvals ...interface{}) {
	write(LevelInfo, message, keyvals)
}

// Warn logs a warning-level message with structured fields
func Warn(message string, keyvals ...interface{}) {
	write(LevelWarn, message, keyvals)
}

// Error logs an error-level message with structured fields
func Error(message string, keyvals ...interface{}) {
	write(LevelError, message, keyvals)
}

// Call logs an API call event when detail is enabled by the call level.
// Entries are written regardless of the general log level.
func Call(detail CallLevel, message string, keyvals ...interface{}) {
	if detail == CallNone || detail > callLevel {
		return
	}
	level := LevelInfo
	if detail >= CallDebug {
		level = LevelDebug
	}
	emit(level, message, keyvals)
}

// CallEnabled reports whether API call logging at the given detail is on
func CallEnabled(detail CallLevel) bool {
	return detail != CallNone && detail <= callLevel
}

// SetCallLevel sets the API call logging detail
func SetCallLevel(level CallLevel) {
	callLevel = level
}

// GetCallLevel returns the API call logging detail
func GetCallLevel() CallLevel {
	return callLevel
}

// SetLevel sets the minimum log level to output
func SetLevel(level LogLevel) {
	currentLevel = level
}

// GetLevel returns the current minimum log level
func GetLevel() LogLevel {
	return currentLevel
}

// SetOutput redirects log output and returns the previous writer
func SetOutput(w io.Writer) io.Writer {
	outMu.Lock()
	defer outMu.Unlock()
	prev := out
	out = w
	return prev
}
