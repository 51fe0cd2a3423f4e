package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/sitemark/internal/model"
)

// PageSeparator precedes every page in the text stream.
const PageSeparator = "\n\n#### ==== ####\n"

// TextWriter outputs the plain page stream:
//
//	#### ==== ####
//	<n> => <url>
//	<markdown>
//
// followed by one elapsed-time line when the run ends.
type TextWriter struct {
	baseWriter
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer) *TextWriter {
	return &TextWriter{
		baseWriter: baseWriter{output: output},
	}
}

// WritePage outputs the separator, the counter header and the page body.
func (w *TextWriter) WritePage(page model.PageOutput) error {
	var b strings.Builder
	b.WriteString(PageSeparator)
	fmt.Fprintf(&b, "%d => %s\n", page.Index, page.URL)
	b.WriteString(page.Markdown)
	b.WriteString("\n")

	return w.write([]byte(b.String()))
}

// WriteSummary outputs the elapsed time and page total.
func (w *TextWriter) WriteSummary(summary model.RunSummary) error {
	line := fmt.Sprintf("Time elapsed in crawl is: %v for total pages: %d\n", summary.Elapsed, summary.Pages)
	return w.write([]byte(line))
}
