// Package fetch provides the network layer used by every other part of
// sitemark: robots.txt and sitemap retrieval, the render-mode probe, and
// page fetches during a crawl.
//
// Two Fetcher implementations exist:
//   - Client performs plain HTTP GETs with retries, a politeness rate limit,
//     a body size cap, and charset decoding of HTML to UTF-8.
//   - Browser renders pages in headless Chromium (go-rod) with stealth
//     patches applied, for sites whose content is produced by scripts.
//
// Failures reaching a remote document are reported as *Error.
package fetch
