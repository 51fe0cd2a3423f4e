// Package crawler provides the crawl engine used by sitemark.
//
// # Architecture
//
// The Spider fetches pages and publishes a model.VisitEvent for each one to
// a single subscriber through a bounded channel. It has two crawl modes:
//
//   - CrawlSitemapOnly visits exactly the URLs of its Scope, which come
//     from the resolved sitemaps, and follows no links.
//   - CrawlSmart starts at the Scope root and follows same-host links
//     breadth-first up to a maximum depth. Pages are fetched with plain
//     HTTP first; in scripted render mode, a page that carries the script
//     marker is fetched again with the headless browser.
//
// When a crawl ends, the Spider writes a cache record for every fetched
// page to its PageStore in one batch.
//
// # Subscription
//
//	events := spider.Subscribe(500)
//	go consume(events)
//	err := spider.CrawlSmart(ctx)
//	spider.Unsubscribe()
//
// Unsubscribe closes the channel; events still buffered remain readable.
// A crawl that fails closes the channel itself.
//
// # Politeness
//
//   - robots.txt rules are respected through a robots.Policy
//   - a delay separates page fetches; a longer robots.txt Crawl-delay wins
//   - only the root host is crawled; subdomains are other hosts
//   - ignore and follow patterns restrict which paths are visited
package crawler
