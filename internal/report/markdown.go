package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitemark/internal/model"
)

// MarkdownWriter outputs a Markdown document: one section per page and a
// summary with a table and a cache outcome chart.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: baseWriter{output: output},
	}
}

// WritePage outputs a section headed by the page URL.
func (w *MarkdownWriter) WritePage(page model.PageOutput) error {
	md := markdown.NewMarkdown(io.Discard)

	md.H2(page.URL)
	md.PlainText("")
	md.PlainTextf("*Page %d, cache %s*", page.Index, page.Outcome.String())
	md.PlainText("")
	md.PlainText(strings.TrimSpace(page.Markdown))
	md.PlainText("")

	return w.write([]byte(md.String() + "\n"))
}

// WriteSummary outputs the run totals.
func (w *MarkdownWriter) WriteSummary(summary model.RunSummary) error {
	md := markdown.NewMarkdown(io.Discard)

	w.writeHeader(md, summary)
	w.writeCache(md, summary)
	w.writeFooter(md)

	return w.write([]byte(md.String() + "\n"))
}

// writeHeader writes the run information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary model.RunSummary) {
	md.HorizontalRule()
	md.PlainText("")
	md.H1("Crawl Summary")
	md.PlainText("")

	rows := [][]string{}
	if summary.Target != "" {
		rows = append(rows, []string{"Target", "`" + summary.Target + "`"})
	}
	if !summary.StartedAt.IsZero() {
		rows = append(rows, []string{"Started", summary.StartedAt.Format("2006-01-02 15:04:05 MST")})
	}
	rows = append(rows,
		[]string{"Mode", string(summary.Mode)},
		[]string{"Render Mode", summary.RenderMode.String()},
		[]string{"Elapsed", summary.Elapsed.String()},
		[]string{"Pages", strconv.FormatInt(summary.Pages, 10)},
		[]string{"Skipped", strconv.FormatInt(summary.Skipped, 10)},
	)

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeCache writes the cache outcome counts and, when there are any, a
// mermaid pie chart of them.
func (w *MarkdownWriter) writeCache(md *markdown.Markdown, summary model.RunSummary) {
	md.H2("Page Cache")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Pages"},
		Rows: [][]string{
			{"Hit", strconv.FormatInt(summary.Hits, 10)},
			{"Miss", strconv.FormatInt(summary.Misses, 10)},
			{"Timed out", strconv.FormatInt(summary.TimedOut, 10)},
			{"Lookup error", strconv.FormatInt(summary.LookupErrors, 10)},
		},
	})
	md.PlainText("")

	if summary.Hits+summary.Misses+summary.TimedOut+summary.LookupErrors == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Cache Outcomes"),
		piechart.WithShowData(true),
	)
	for _, c := range []struct {
		label string
		n     int64
	}{
		{"Hit", summary.Hits},
		{"Miss", summary.Misses},
		{"Timed out", summary.TimedOut},
		{"Lookup error", summary.LookupErrors},
	} {
		if c.n > 0 {
			chart.LabelAndIntValue(c.label, uint64(c.n))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.PlainTextf("*Generated by [sitemark](https://github.com/nao1215/sitemark)*")
}
