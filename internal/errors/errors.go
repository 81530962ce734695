package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents a specific error type for better error handling
type ErrorCode string

const (
	// Request processing errors
	ErrCodeInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"

	// Infrastructure errors
	ErrCodeServerConfiguration ErrorCode = "SERVER_CONFIGURATION"
	ErrCodeUpstreamFailure     ErrorCode = "UPSTREAM_FAILURE"
	ErrCodeStoreUnavailable    ErrorCode = "STORE_UNAVAILABLE"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// RouterError represents a structured error with context
type RouterError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`

	// Status and Payload are only set for upstream failures: the remote
	// HTTP status and its "error" payload, both propagated verbatim.
	Status  int             `json:"-"`
	Payload json.RawMessage `json:"-"`

	Cause error `json:"-"`
}

// Error implements the error interface
func (e *RouterError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Component, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *RouterError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error code
func (e *RouterError) Is(target error) bool {
	if t, ok := target.(*RouterError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithMetadata adds metadata to the error
func (e *RouterError) WithMetadata(key string, value interface{}) *RouterError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *RouterError) HTTPStatusCode() int {
	switch e.Code {
	case ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeUpstreamFailure:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new RouterError
func NewError(code ErrorCode, component, message string) *RouterError {
	return &RouterError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError wraps an existing error with RouterError structure
func WrapError(err error, code ErrorCode, component, message string) *RouterError {
	if err == nil {
		return nil
	}

	return &RouterError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Details:   err.Error(),
	}
}

// NewUpstreamError creates an error carrying a remote API's status and error payload
func NewUpstreamError(component string, status int, payload json.RawMessage) *RouterError {
	e := NewError(ErrCodeUpstreamFailure, component, fmt.Sprintf("remote API responded with status %d", status))
	e.Status = status
	e.Payload = payload
	return e.WithMetadata("status", status)
}

// NewStoreError creates an error for a failed store operation
func NewStoreError(backend, operation string, cause error) *RouterError {
	return WrapError(cause, ErrCodeStoreUnavailable, "store",
		fmt.Sprintf("%s %s failed", backend, operation)).
		WithMetadata("backend", backend).
		WithMetadata("operation", operation)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var rErr *RouterError
	if errors.As(err, &rErr) {
		return rErr.Code
	}
	return ErrCodeInternalError
}

// AsUpstream returns the upstream error wrapped in err, if any.
func AsUpstream(err error) (*RouterError, bool) {
	var rErr *RouterError
	if errors.As(err, &rErr) && rErr.Code == ErrCodeUpstreamFailure {
		return rErr, true
	}
	return nil, false
}
