// Package database provides SQLite-based storage for sitemark.
//
// The CrawlDB stores:
//   - the page cache, one row per cache key, written in a batch by the
//     crawl engine at the end of a crawl and read by the event pipeline
//   - a history of crawl runs with their totals
//
// SQLite is used through modernc.org/sqlite, which needs no cgo. The
// database is a single file under the XDG data directory.
package database
