package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheTimeout is reported when a page cache lookup does not finish
	// within the lookup timeout.
	ErrCacheTimeout = errors.New("cache lookup timed out")

	// ErrNoEngine is returned by Run on a Pipeline created without an engine.
	ErrNoEngine = errors.New("pipeline has no engine")
)

// CacheLookupError is reported when a page cache lookup fails for a reason
// other than the timeout.
type CacheLookupError struct {
	// Key is the cache key that was looked up.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CacheLookupError) Error() string {
	return fmt.Sprintf("cache lookup %s failed: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *CacheLookupError) Unwrap() error {
	return e.Err
}
