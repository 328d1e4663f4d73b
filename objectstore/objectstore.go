// Package objectstore abstracts put/get/stream operations over a remote
// object bucket, with strongly-typed cache-control options and an error
// taxonomy that distinguishes retryable failures from fatal ones.
package objectstore

import (
	"context"
	"errors"
	"io"
)

// CacheControl selects the Cache-Control semantics for a stored object.
type CacheControl int

const (
	// CacheControlImmutable marks content-addressed artifacts that never
	// change once written: package files, npm-compat tarballs, per-version
	// manifests.
	CacheControlImmutable CacheControl = iota
	// CacheControlNone marks mutable objects that must always be
	// revalidated: per-package manifests, npm-compat version manifests.
	CacheControlNone
)

// Header renders the cache-control value as an HTTP Cache-Control header.
func (c CacheControl) Header() string {
	switch c {
	case CacheControlImmutable:
		return "public, max-age=31536000, immutable"
	case CacheControlNone:
		return "no-cache"
	default:
		return "no-cache"
	}
}

// PutOptions configures how an object is written.
type PutOptions struct {
	ContentType  string
	CacheControl CacheControl
	GzipEncoded  bool
}

// Store is the uniform interface every backend implements.
type Store interface {
	// Get returns the full contents of path, or ok=false if it does not exist.
	Get(ctx context.Context, path string) (r io.ReadCloser, ok bool, err error)
	// GetStream returns a reader positioned at offset, or ok=false if path
	// does not exist.
	GetStream(ctx context.Context, path string, offset int64) (r io.ReadCloser, ok bool, err error)
	// Put writes r to path with the given options.
	Put(ctx context.Context, path string, r io.Reader, opts PutOptions) error
}

// Error wraps a backend failure with a retryable/fatal classification.
// Upstream code treats the classification as authoritative: retryable
// errors should be retried by the caller (typically by reverting a
// publishing task to pending), fatal errors require operator
// intervention.
type Error struct {
	Retryable bool
	Err       error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Retryable classifies err as retryable storage error. Errors not produced
// by this package (i.e. not wrapped via Error) are treated as fatal, since
// an unclassified failure must not be silently retried forever.
func Retryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

func retryableErr(err error) error { return &Error{Retryable: true, Err: err} }
func fatalErr(err error) error     { return &Error{Retryable: false, Err: err} }
