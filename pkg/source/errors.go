package source

import (
	"errors"
	"fmt"
)

// Sentinel errors for source operations.
var (
	// ErrNotFound indicates the requested object or bucket does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAccessDenied indicates insufficient permissions or rejected credentials.
	ErrAccessDenied = errors.New("access denied")

	// ErrThrottled indicates the request was rate limited by the backend.
	ErrThrottled = errors.New("request throttled")

	// ErrCanceled indicates the operation was canceled or timed out.
	ErrCanceled = errors.New("operation canceled")
)

// SourceError wraps backend-specific errors with operation context.
type SourceError struct {
	// Op is the operation that failed (e.g., "List", "Get").
	Op string

	// Scheme is the source backend (e.g., "s3").
	Scheme Scheme

	// Bucket is the bucket name, if applicable.
	Bucket string

	// Key is the object key, if applicable.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	switch {
	case e.Bucket != "" && e.Key != "":
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Scheme, e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("%s %s: %s: %v", e.Scheme, e.Op, e.Bucket, e.Err)
	case e.Key != "":
		return fmt.Sprintf("%s %s: %s: %v", e.Scheme, e.Op, e.Key, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Scheme, e.Op, e.Err)
	}
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsThrottled returns true if the error indicates the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsCanceled returns true if the error indicates cancellation or timeout.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
