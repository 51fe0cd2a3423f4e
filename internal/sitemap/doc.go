// Package sitemap resolves sitemap documents into the page URLs they list.
//
// Documents are parsed as a stream of pull events, never as a tree. A
// sitemap index is resolved recursively: each <sitemap><loc> is fetched and
// parsed before the rest of the outer document. A urlset contributes the
// <url><loc> entries it contains. The result is deduplicated by exact string
// and keeps first-seen order.
//
// A document that cannot be fetched or parsed is logged and skipped; the
// remaining candidates are still resolved. Cycles are cut by a visited set
// and by a maximum index depth.
package sitemap
