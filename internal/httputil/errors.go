package httputil

import (
	"fmt"
	"net/http"
)

// Kind classifies an API error.
type Kind string

// Error kinds surfaced to clients.
const (
	KindValidation      Kind = "validation"
	KindUnauthorized    Kind = "unauthorized"
	KindNotFound        Kind = "not_found"
	KindRateLimited     Kind = "rate_limited"
	KindConflict        Kind = "conflict"
	KindUpstream        Kind = "upstream"
	KindUpstreamTimeout Kind = "upstream_timeout"
	KindUnavailable     Kind = "unavailable"
	KindInternal        Kind = "internal"
)

// APIError is an error with its wire representation.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
}

// With returns a copy of e carrying an extra detail field.
func (e *APIError) With(key string, value any) *APIError {
	out := *e
	out.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}

// Validation is a user-fixable input error.
func Validation(message string) *APIError {
	return &APIError{Kind: KindValidation, Status: http.StatusBadRequest, Message: message}
}

// Unauthorized never says which credential was wrong.
func Unauthorized(message string) *APIError {
	if message == "" {
		message = "Unauthorized"
	}
	return &APIError{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: message}
}

// NotFound reports a missing resource.
func NotFound(message string) *APIError {
	return &APIError{Kind: KindNotFound, Status: http.StatusNotFound, Message: message}
}

// RateLimited reports a denied rate limit check.
func RateLimited() *APIError {
	return &APIError{Kind: KindRateLimited, Status: http.StatusTooManyRequests, Message: "Too many requests, please try again later"}
}

// Conflict reports a stable, non-sensitive state conflict.
func Conflict(message string) *APIError {
	return &APIError{Kind: KindConflict, Status: http.StatusConflict, Message: message}
}

// Upstream reports a failed provider call with an opaque correlation id.
func Upstream(correlationID string) *APIError {
	return &APIError{
		Kind:    KindUpstream,
		Status:  http.StatusBadGateway,
		Message: "Upstream service error",
		Details: map[string]any{"correlation_id": correlationID},
	}
}

// UpstreamTimeout reports a provider call that timed out.
func UpstreamTimeout(correlationID string) *APIError {
	return &APIError{
		Kind:    KindUpstreamTimeout,
		Status:  http.StatusGatewayTimeout,
		Message: "Upstream service timed out",
		Details: map[string]any{"correlation_id": correlationID},
	}
}

// Unavailable reports a feature that is not configured on this deployment.
func Unavailable(message string) *APIError {
	return &APIError{Kind: KindUnavailable, Status: http.StatusServiceUnavailable, Message: message}
}

// Internal is the generic server failure.
func Internal() *APIError {
	return &APIError{Kind: KindInternal, Status: http.StatusInternalServerError, Message: "Internal server error"}
}
