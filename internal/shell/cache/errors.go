// Package cache persists per-record deployment state as a single
// human-inspectable JSON document. The cache is the only durable
// witness of which records the ledger has accepted: a failed or
// interrupted deploy resumes from it instead of re-submitting work.
package cache

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrCacheMissing is returned when the cache file does not exist.
	// The upload command creates it.
	ErrCacheMissing = errors.New("cache file not found")

	// ErrCacheEmpty is returned when the cache file exists but holds
	// no items.
	ErrCacheEmpty = errors.New("cache has no items")

	// ErrBadFormat is returned when the cache file cannot be parsed.
	ErrBadFormat = errors.New("cache file has invalid format")

	// ErrNotFound is returned when an index has no cache entry.
	ErrNotFound = errors.New("cache item not found")
)

// CacheError wraps cache failures with the operation and file path.
type CacheError struct {
	Op   string // Operation that failed (e.g., "Load", "Flush")
	Path string // Cache file path
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func newError(op, path string, err error) *CacheError {
	return &CacheError{Op: op, Path: path, Err: err}
}
