// Package source provides read-only access to configuration trees on local
// disk and in object storage. A Source lists, fetches, and stats objects by
// key; nothing in this package writes.
//
// Keys use forward slashes regardless of platform. Prefixes select keys by
// string prefix, matching object-store semantics, so "repos/team-a" covers
// both "repos/team-a/.travis.yml" and "repos/team-alpha/.travis.yml".
package source

import (
	"context"
	"io"
	"time"
)

// Scheme identifies a source backend.
type Scheme string

const (
	// SchemeFile is the local filesystem backend.
	SchemeFile Scheme = "file"
	// SchemeS3 is the AWS S3 (and S3-compatible) backend.
	SchemeS3 Scheme = "s3"
)

// String returns the scheme as used in URIs.
func (s Scheme) String() string {
	return string(s)
}

// ObjectInfo describes a single object found in a source.
type ObjectInfo struct {
	// Key is the object's slash-separated path within the source.
	Key string

	// Size is the object size in bytes.
	Size int64

	// ETag is the object's entity tag, without surrounding quotes.
	// Empty for backends that do not provide one.
	ETag string

	// LastModified is the object's last modification time.
	LastModified time.Time
}

// Source is a read-only view of a tree of objects.
//
// Implementations classify backend failures into the sentinel errors of this
// package (ErrNotFound, ErrAccessDenied, ErrThrottled, ErrCanceled), wrapped
// in a *SourceError.
type Source interface {
	// List walks every object whose key starts with prefix, in ascending
	// key order, invoking fn once per object. An error returned by fn
	// stops the walk and is returned unwrapped.
	List(ctx context.Context, prefix string, fn func(ObjectInfo) error) error

	// Get opens the object at key for reading and reports its size.
	// The caller owns the returned body and must close it.
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// Head returns metadata for the object at key without fetching the body.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// Close releases any resources held by the source.
	Close() error
}
