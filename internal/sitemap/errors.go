package sitemap

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSitemaps is returned by Resolve when it is given no URLs.
	ErrNoSitemaps = errors.New("no sitemap URLs to resolve")

	// ErrMaxDepthExceeded is wrapped by ParseError when nested sitemap
	// indexes go deeper than the resolver allows.
	ErrMaxDepthExceeded = errors.New("maximum sitemap index depth exceeded")
)

// ParseError reports a sitemap document that could not be parsed.
type ParseError struct {
	// URL is the sitemap document.
	URL string

	// Depth is the index nesting level of the document. Top-level
	// candidates have depth 0.
	Depth int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse sitemap %s (depth %d): %v", e.URL, e.Depth, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}
