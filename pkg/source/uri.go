package source

import (
	"errors"
	"fmt"
	"strings"
)

// URI parsing errors
var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedScheme indicates the URI scheme is not supported.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrMissingBucket indicates an s3 URI is missing a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")
)

// URI is a parsed source address.
//
// Supported forms:
//
//	file:///abs/path         local tree rooted at /abs/path
//	relative/or/abs/path     shorthand for a file URI
//	s3://bucket              whole bucket
//	s3://bucket/prefix       keys under prefix
type URI struct {
	// Scheme is the backend the URI addresses.
	Scheme Scheme

	// Bucket is the bucket name. Set only for s3 URIs.
	Bucket string

	// Path is the filesystem path for file URIs, or the key prefix
	// (without a leading slash) for s3 URIs.
	Path string
}

// ParseURI parses a source address into its components.
//
// Parsing is manual rather than url.Parse so glob characters like ? survive
// in the path; callers split pattern from prefix themselves. Input without a
// scheme is treated as a local path, so plain CLI arguments like "." or
// "./configs" work without the file:// wrapper.
func ParseURI(raw string) (URI, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return URI{}, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	schemeEnd := strings.Index(raw, "://")
	if schemeEnd == -1 {
		return URI{Scheme: SchemeFile, Path: raw}, nil
	}

	scheme := strings.ToLower(raw[:schemeEnd])
	remainder := raw[schemeEnd+3:]

	switch Scheme(scheme) {
	case SchemeFile:
		if remainder == "" {
			return URI{}, fmt.Errorf("%w: no path in %s", ErrInvalidURI, raw)
		}
		return URI{Scheme: SchemeFile, Path: remainder}, nil

	case SchemeS3:
		if remainder == "" {
			return URI{}, fmt.Errorf("%w: in %s", ErrMissingBucket, raw)
		}
		bucket := remainder
		path := ""
		if idx := strings.Index(remainder, "/"); idx != -1 {
			bucket = remainder[:idx]
			path = remainder[idx+1:]
		}
		if bucket == "" {
			return URI{}, fmt.Errorf("%w: in %s", ErrMissingBucket, raw)
		}
		return URI{Scheme: SchemeS3, Bucket: bucket, Path: path}, nil

	default:
		return URI{}, fmt.Errorf("%w: %s (supported: file, s3)", ErrUnsupportedScheme, scheme)
	}
}

// String returns the URI in canonical form.
func (u URI) String() string {
	if u.Scheme == SchemeS3 {
		if u.Path == "" {
			return "s3://" + u.Bucket
		}
		return "s3://" + u.Bucket + "/" + u.Path
	}
	return "file://" + u.Path
}
