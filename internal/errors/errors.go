// Package errors defines the application error vocabulary shared by the
// CLI and the HTTP surface: coded errors, wrapping helpers, and the
// correlation ID plumbing that ties a response to its log lines.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Stable machine-readable error codes. The HTTP layer maps each code to a
// status; CLI paths map them to foundry exit codes.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error is a coded application error. Code is one of the constants above,
// Message is safe to show to clients, and Details carries structured
// context for the response body. Err holds the wrapped cause, if any.
type Error struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches structured detail fields and returns e for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// New returns a coded error with no cause.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewValidationError reports client input that failed validation.
func NewValidationError(message string) *Error {
	return New(CodeValidation, message)
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(message string) *Error {
	return New(CodeNotFound, message)
}

// NewExternalServiceError reports a failure in a dependency outside this
// process, such as object storage or the schema service.
func NewExternalServiceError(message string) *Error {
	return New(CodeExternalService, message)
}

// WrapInternal wraps err as an internal error. When ctx carries a
// correlation ID it is stamped into the details so the failure can be
// matched to its request.
func WrapInternal(ctx context.Context, err error, message string) *Error {
	e := &Error{Code: CodeInternal, Message: message, Err: err}
	if id := CorrelationIDFromContext(ctx); id != "" {
		e.Details = map[string]any{"correlation_id": id}
	}
	return e
}

// AsError extracts a coded *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

type contextKey struct{}

var correlationIDKey contextKey

// WithCorrelationID returns a context carrying the request correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation ID stored in ctx, or
// the empty string when none is set.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
