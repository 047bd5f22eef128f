// Package llmerrors provides structured error classification for generation
// API interactions. Every failure that crosses the LLM boundary is wrapped
// into an *Error with a Type; the Type drives both the governor's retry
// policy and the user-facing message.
package llmerrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the categories of generation failures.
type ErrorType int8

const (
	// ErrorTypeQuota represents quota/rate-limit exhaustion (429,
	// RESOURCE_EXHAUSTED). Retried with aggressive backoff.
	ErrorTypeQuota ErrorType = iota
	// ErrorTypeUnavailable represents transient service trouble (503,
	// overloaded). Retried with gentler backoff.
	ErrorTypeUnavailable
	// ErrorTypeAuth represents authentication failures (401/403, bad API
	// key). Never retried; misconfiguration does not self-resolve.
	ErrorTypeAuth
	// ErrorTypeValidation represents missing required input caught before
	// any request is made. Never retried.
	ErrorTypeValidation
	// ErrorTypeMalformed represents an upstream response that was empty,
	// not JSON, or yielded no usable content. Never retried.
	ErrorTypeMalformed
	// ErrorTypeUnknown is the default for unclassified errors. Never retried.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeQuota:
		return "quota"
	case ErrorTypeUnavailable:
		return "unavailable"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeMalformed:
		return "malformed"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error is a classified generation failure.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Diagnostic message (logged, never shown to users)
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("llm error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("llm error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("llm error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the governor should retry this error type.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeQuota, ErrorTypeUnavailable:
		return true
	default:
		return false
	}
}

// New creates a classified error.
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewWithStatus creates a classified error carrying an HTTP status.
func NewWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{Type: errorType, StatusCode: statusCode, Message: message}
}

// NewWithCause creates a classified error wrapping another error.
func NewWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// Wrap classifies err and returns it as an *Error. Already-classified errors
// pass through unchanged.
func Wrap(err error) *Error {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}
	return &Error{Type: Classify(err), Err: err}
}

// Is checks whether err carries the given classified type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the classified type of err. Unwrapped errors are classified
// heuristically via Classify.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return Classify(err)
}

// Classify maps an unstructured error onto an ErrorType by inspecting its
// text for the markers the upstream services are known to emit. Structured
// wrapping at the transport is preferred; this is the fallback for errors
// that arrive as plain text.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	msg := err.Error()

	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "RESOURCE_EXHAUSTED"),
		strings.Contains(msg, "free_tier_requests"),
		containsFold(msg, "quota"):
		return ErrorTypeQuota
	case strings.Contains(msg, "503"),
		strings.Contains(msg, "UNAVAILABLE"),
		containsFold(msg, "overloaded"):
		return ErrorTypeUnavailable
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		containsFold(msg, "API key"):
		return ErrorTypeAuth
	default:
		return ErrorTypeUnknown
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// User-facing message per category. The exact wording is presentation; the
// category is the contract. Raw upstream error text never reaches users.
const (
	userMsgQuota       = "The daily AI quota has been used up. Your plan will be available again tomorrow."
	userMsgUnavailable = "The AI service is busy right now. Please try again in a few minutes."
	userMsgAuth        = "The AI service rejected the configured API key. Please check the app configuration."
	userMsgGeneric     = "The AI service is unavailable at the moment. Please try again later."
)

// UserMessage returns the fixed, user-safe message for err's category.
func UserMessage(err error) string {
	switch TypeOf(err) {
	case ErrorTypeQuota:
		return userMsgQuota
	case ErrorTypeUnavailable:
		return userMsgUnavailable
	case ErrorTypeAuth:
		return userMsgAuth
	default:
		return userMsgGeneric
	}
}
