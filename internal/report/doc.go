// Package report writes transformed pages and run summaries.
//
// This package contains writers for different output formats:
//   - TextWriter: the page stream for the terminal, one separator and
//     counter header per page, and a closing elapsed-time line
//   - MarkdownWriter: a Markdown document with a section per page and a
//     summary table, suitable for saving to a file
//   - JSONWriter: JSON lines for tool integration
//
// All writers are safe for concurrent use; a page is always written as one
// block so pages written by parallel work units never interleave.
package report
