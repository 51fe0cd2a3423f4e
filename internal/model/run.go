package model

import "time"

// CrawlMode describes which producer drove a crawl run.
type CrawlMode string

const (
	// CrawlModeSitemap restricts the engine to sitemap-declared pages.
	CrawlModeSitemap CrawlMode = "sitemap"

	// CrawlModeSmart lets the engine discover pages by following links.
	CrawlModeSmart CrawlMode = "smart"

	// CrawlModeDirect fetches sitemap-declared pages one by one without the engine.
	CrawlModeDirect CrawlMode = "direct"
)

// PageOutput is one transformed page ready to be written.
type PageOutput struct {
	// Index is the zero-based receive order of the page.
	Index int64 `json:"index"`

	// URL is the page URL.
	URL string `json:"url"`

	// Markdown is the transformed page body.
	Markdown string `json:"markdown"`

	// Outcome is the cache classification for the page.
	Outcome CacheOutcome `json:"-"`

	// Cache is Outcome as text, for JSON output.
	Cache string `json:"cache"`
}

// RunSummary holds the totals of one crawl run.
type RunSummary struct {
	ID           int64         `json:"id,omitempty"`
	Target       string        `json:"target"`
	Mode         CrawlMode     `json:"mode"`
	RenderMode   RenderMode    `json:"-"`
	StartedAt    time.Time     `json:"started_at"`
	Elapsed      time.Duration `json:"elapsed"`
	Pages        int64         `json:"pages"`
	Skipped      int64         `json:"skipped"`
	Hits         int64         `json:"cache_hits"`
	Misses       int64         `json:"cache_misses"`
	TimedOut     int64         `json:"cache_timeouts"`
	LookupErrors int64         `json:"cache_errors"`
}

// Count increments the counter matching a cache outcome.
// It is not safe for concurrent use.
func (s *RunSummary) Count(o CacheOutcome) {
	switch o {
	case CacheHit:
		s.Hits++
	case CacheMiss:
		s.Misses++
	case CacheTimedOut:
		s.TimedOut++
	case CacheLookupError:
		s.LookupErrors++
	}
}
