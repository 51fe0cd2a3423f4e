package model

import "time"

// CacheKeyPrefix is prepended to a page URL to build its cache key.
const CacheKeyPrefix = "sitemark:page:"

// CacheKey returns the page cache key for a URL.
// The URL is used verbatim; no normalization is applied.
func CacheKey(url string) string {
	return CacheKeyPrefix + url
}

// CacheOutcome classifies the result of a page cache lookup.
// It is reported only and never changes whether a page is transformed.
type CacheOutcome int

const (
	// CacheMiss means the key was not found.
	CacheMiss CacheOutcome = iota

	// CacheHit means a record exists for the key.
	CacheHit

	// CacheTimedOut means the lookup did not finish within its time bound.
	CacheTimedOut

	// CacheLookupError means the lookup failed for any other reason.
	CacheLookupError
)

// String returns a human-readable representation of the outcome.
func (o CacheOutcome) String() string {
	switch o {
	case CacheHit:
		return "hit"
	case CacheMiss:
		return "miss"
	case CacheTimedOut:
		return "timed_out"
	case CacheLookupError:
		return "lookup_error"
	default:
		return "unknown"
	}
}

// CrawlRecord is a page cache row written by the crawl engine.
type CrawlRecord struct {
	Key         string
	URL         string
	StatusCode  int
	ContentType string
	Title       string
	Hash        string
	RenderMode  RenderMode
	FetchedAt   time.Time
}

// NewCrawlRecord builds the cache record for a fetched page.
func NewCrawlRecord(p *Page) CrawlRecord {
	return CrawlRecord{
		Key:         CacheKey(p.URL),
		URL:         p.URL,
		StatusCode:  p.StatusCode,
		ContentType: p.ContentType,
		Title:       p.Title,
		Hash:        p.Hash,
		RenderMode:  p.RenderMode,
		FetchedAt:   p.FetchedAt,
	}
}
