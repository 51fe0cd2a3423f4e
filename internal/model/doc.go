// Package model defines the core data structures shared across sitemark.
//
// This package contains the following main types:
//   - Page: A fetched document together with the metadata the crawler collected
//   - VisitEvent: The notification the crawl engine publishes for each fetched page
//   - RenderMode: The fetch strategy chosen for a site
//   - CacheOutcome: The classification of a page cache lookup
//   - CrawlRecord: A page cache row
//   - RunSummary: The totals reported at the end of a crawl run
//
// Keeping them here lets crawler, pipeline, database, and report share the
// same types without import cycles.
package model
