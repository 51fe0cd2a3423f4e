// Package main provides the entry point for the sitemark CLI.
//
// sitemark crawls a website and writes every visited page as Markdown.
// Pages are taken from the sitemaps declared in robots.txt when there are
// any; otherwise links are followed from the site root.
//
// Usage:
//
//	sitemark crawl <url>
//	sitemark history [url]
//
// See --help for all available options.
package main

// main is the entry point for sitemark.
func main() {
	Execute()
}
