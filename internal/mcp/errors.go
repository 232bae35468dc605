// errors.go — Structured error handling and error codes for MCP tools.
// Defines error constants, StructuredError type, and error response construction.
package mcp

import (
	"encoding/json"
	"fmt"
)

// Error codes are self-describing snake_case strings.
// Every code tells the LLM what went wrong.
const (
	// Input errors — LLM can fix arguments and retry immediately
	ErrInvalidJSON  = "invalid_json"
	ErrMissingParam = "missing_param"
	ErrInvalidParam = "invalid_param"
	ErrUnknownMode  = "unknown_mode"

	// Run errors — mirror the sandbox's wire-visible failure kinds (see
	// internal/sandbox). The LLM can usually fix the snippet and retry.
	ErrSyntax            = "syntax_error"
	ErrAnalysis          = "analysis_error"
	ErrTimeout           = "timeout_error"
	ErrWorker            = "worker_error"
	ErrRuntime           = "runtime_error"
	ErrAdapterNotFound   = "adapter_method_not_found"
	ErrNetworkBlocked    = "network_blocked"
	ErrTaskNotFound      = "task_not_found"

	// Internal errors — do not retry
	ErrInternal      = "internal_error"
	ErrMarshalFailed = "marshal_failed"
)

// StructuredError is embedded in MCP text content. Every field is
// self-describing so an LLM can act on it without a lookup table.
type StructuredError struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	Retry        string `json:"retry"`
	Retryable    bool   `json:"retryable"`
	RetryAfterMs int    `json:"retry_after_ms,omitempty"`
	Final        bool   `json:"final,omitempty"`
	Param        string `json:"param,omitempty"`
	Hint         string `json:"hint,omitempty"`
}

// StructuredErrorResponse constructs an MCP error response. Format:
//
//	Error: missing_param — Add the 'what' parameter and call again
//	{"error":"missing_param","message":"...","retry":"Add the 'what' parameter and call again","hint":"..."}
//
// The retry string is a plain-English instruction the LLM can follow directly.
func StructuredErrorResponse(code, message, retry string, opts ...func(*StructuredError)) json.RawMessage {
	se := StructuredError{Error: code, Message: message, Retry: retry}
	// Apply retryable defaults based on error code first, then user opts can override
	for _, defaultOpt := range RetryDefaultsForCode(code) {
		defaultOpt(&se)
	}
	for _, opt := range opts {
		opt(&se)
	}

	// Error impossible: StructuredError is a simple struct with no circular refs or unsupported types
	seJSON, _ := json.Marshal(se)
	text := fmt.Sprintf("Error: %s — %s\n%s", code, retry, string(seJSON))

	result := MCPToolResult{
		Content: []MCPContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
	return SafeMarshal(result, `{"content":[{"type":"text","text":"Internal error: failed to marshal result"}],"isError":true}`)
}

// WithParam is an option function to add param field to StructuredError.
func WithParam(p string) func(*StructuredError) {
	return func(se *StructuredError) { se.Param = p }
}

// WithHint is an option function to add hint field to StructuredError.
func WithHint(h string) func(*StructuredError) {
	return func(se *StructuredError) { se.Hint = h }
}

// WithRetryable marks whether the error is retryable by the LLM.
func WithRetryable(retryable bool) func(*StructuredError) {
	return func(se *StructuredError) { se.Retryable = retryable }
}

// WithRetryAfterMs sets the suggested delay before retrying (milliseconds).
func WithRetryAfterMs(ms int) func(*StructuredError) {
	return func(se *StructuredError) { se.RetryAfterMs = ms }
}

// WithFinal marks a structured error as terminal/non-terminal for async command flows.
func WithFinal(final bool) func(*StructuredError) {
	return func(se *StructuredError) { se.Final = final }
}

// RetryDefaultsForCode returns option functions that set retryable and retry_after_ms
// based on the error code. Retryable errors are transient conditions the LLM can
// retry after a brief delay; non-retryable errors require the LLM to change its input.
func RetryDefaultsForCode(code string) []func(*StructuredError) {
	switch code {
	case ErrTimeout:
		return []func(*StructuredError){WithRetryable(true), WithRetryAfterMs(1000)}
	case ErrWorker:
		return []func(*StructuredError){WithRetryable(true), WithRetryAfterMs(500)}
	default:
		return []func(*StructuredError){WithRetryable(false)}
	}
}
