package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when no target URL is specified.
	ErrNoTarget = errors.New("no target specified: provide the root URL of a site")

	// ErrInvalidTarget is returned when the target is not an http(s) URL with a host.
	ErrInvalidTarget = errors.New("invalid target URL")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBacklog is returned when the event backlog capacity is not positive.
	ErrInvalidBacklog = errors.New("invalid backlog capacity: must be positive")

	// ErrInvalidCacheTimeout is returned when the cache lookup timeout is not positive.
	ErrInvalidCacheTimeout = errors.New("invalid cache lookup timeout: must be positive")

	// ErrInvalidSitemapDepth is returned when the sitemap recursion limit is not positive.
	ErrInvalidSitemapDepth = errors.New("invalid max sitemap depth: must be positive")

	// ErrInvalidWorkers is returned when the direct mode concurrency is not positive.
	ErrInvalidWorkers = errors.New("invalid worker count: must be positive")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidRenderMode is returned when the render mode is not auto, plain or scripted.
	ErrInvalidRenderMode = errors.New("invalid render mode: must be auto, plain or scripted")

	// ErrConflictingOutputFormats is returned when both --json and --markdown are set.
	ErrConflictingOutputFormats = errors.New("conflicting output formats: --json and --markdown cannot be used together")

	// ErrConflictingProxy is returned when both --tor and --proxy are set.
	ErrConflictingProxy = errors.New("conflicting proxy settings: --tor and --proxy cannot be used together")
)
