// Package transform converts fetched HTML pages to markdown.
//
// With preserveLayout set, the whole document is converted and tables and
// strikethrough are kept. Without it, the main article is extracted with a
// readability pass first; pages where the article is too short to be the
// real content fall back to converting the whole document.
package transform
