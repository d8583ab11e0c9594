// Package errors provides the standardized error taxonomy shared by the
// aggregation and notification layers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Read path. A failed resource fetch degrades to an empty value and is
	// never surfaced to callers of the aggregator.
	ErrCodeResourceFetchFailed ErrorCode = "RESOURCE_FETCH_FAILED"
	ErrCodeAggregationFailed   ErrorCode = "AGGREGATION_FAILED"

	// Transport
	ErrCodeSessionExpired     ErrorCode = "SESSION_EXPIRED"
	ErrCodeAPIRequestFailed   ErrorCode = "API_REQUEST_FAILED"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"

	// Write path
	ErrCodeMutationFailed ErrorCode = "MUTATION_FAILED"

	// Real-time channel
	ErrCodePushSubscribeFailed ErrorCode = "PUSH_SUBSCRIBE_FAILED"
	ErrCodePushPayloadInvalid  ErrorCode = "PUSH_PAYLOAD_INVALID"

	ErrCodeAlertSendFailed ErrorCode = "ALERT_SEND_FAILED"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	Err error `json:"-"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Err
}

// Is matches any StandardError carrying the same code, so callers can test
// against a bare &StandardError{Code: ...}.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

func newError(code ErrorCode, message string, err error, retryable bool) *StandardError {
	se := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		Err:       err,
	}
	if err != nil {
		se.Details = err.Error()
	}
	return se
}

// NewResourceFetchFailedError records a failed fetch for one resource key.
func NewResourceFetchFailedError(resource string, err error) *StandardError {
	return newError(ErrCodeResourceFetchFailed, fmt.Sprintf("Fetching resource '%s' failed", resource), err, true).
		WithMetadata("resource", resource)
}

// NewAggregationFailedError creates the terminal aggregation error.
func NewAggregationFailedError(err error) *StandardError {
	return newError(ErrCodeAggregationFailed, "Aggregation run failed", err, true)
}

// NewSessionExpiredError is returned for 401 responses outside the login call.
func NewSessionExpiredError(path string, err error) *StandardError {
	return newError(ErrCodeSessionExpired, "Session expired", err, false).
		WithMetadata("path", path)
}

// NewAPIRequestFailedError wraps a non-2xx response or a transport failure.
func NewAPIRequestFailedError(method, path string, err error) *StandardError {
	return newError(ErrCodeAPIRequestFailed, fmt.Sprintf("%s %s failed", method, path), err, true).
		WithMetadata("method", method).
		WithMetadata("path", path)
}

// NewInvalidCredentialsError creates a non-retryable login error.
func NewInvalidCredentialsError(details string) *StandardError {
	se := newError(ErrCodeInvalidCredentials, "Invalid credentials", nil, false)
	se.Details = details
	return se
}

// NewMutationFailedError is surfaced to callers of markRead/delete.
func NewMutationFailedError(operation, id string, err error) *StandardError {
	return newError(ErrCodeMutationFailed, fmt.Sprintf("Operation '%s' failed for '%s'", operation, id), err, true).
		WithMetadata("operation", operation).
		WithMetadata("id", id)
}

// NewPushSubscribeFailedError creates a retryable subscription error.
func NewPushSubscribeFailedError(channel string, err error) *StandardError {
	return newError(ErrCodePushSubscribeFailed, fmt.Sprintf("Subscribing to '%s' failed", channel), err, true).
		WithMetadata("channel", channel)
}

// NewPushPayloadInvalidError creates a non-retryable payload error.
func NewPushPayloadInvalidError(details string) *StandardError {
	se := newError(ErrCodePushPayloadInvalid, "Push payload rejected", nil, false)
	se.Details = details
	return se
}

// NewAlertSendFailedError creates a retryable alert delivery error.
func NewAlertSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeAlertSendFailed, fmt.Sprintf("Alert delivery via '%s' failed", channel), err, true).
		WithMetadata("channel", channel)
}

// ==========================
// 3. Utility Functions
// ==========================

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeResourceFetchFailed,
		ErrCodeAPIRequestFailed,
		ErrCodePushSubscribeFailed,
		ErrCodeAlertSendFailed:
		return 3

	case ErrCodeAggregationFailed,
		ErrCodeMutationFailed:
		return 1

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SESSION") || strings.Contains(codeStr, "CREDENTIALS"):
		return "AUTH"
	case strings.Contains(codeStr, "RESOURCE") || strings.Contains(codeStr, "AGGREGATION"):
		return "AGGREGATION"
	case strings.Contains(codeStr, "PUSH"):
		return "PUSH"
	case strings.Contains(codeStr, "MUTATION"):
		return "MUTATION"
	case strings.Contains(codeStr, "API"):
		return "TRANSPORT"
	case strings.Contains(codeStr, "ALERT"):
		return "NOTIFICATION"
	default:
		return "OTHER"
	}
}

// CodeOf returns the code of the first StandardError in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err's chain carries a StandardError with code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &StandardError{Code: code})
}
