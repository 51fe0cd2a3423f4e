package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/sitemark/internal/model"
)

// JSONWriter outputs JSON lines: one object per page and one for the
// summary, each tagged with a "type" field.
type JSONWriter struct {
	baseWriter
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer) *JSONWriter {
	return &JSONWriter{
		baseWriter: baseWriter{output: output},
	}
}

// pageLine is the JSON form of a page.
type pageLine struct {
	Type string `json:"type"`
	model.PageOutput
}

// summaryLine is the JSON form of a run summary.
type summaryLine struct {
	Type       string `json:"type"`
	RenderMode string `json:"render_mode"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	model.RunSummary
}

// WritePage outputs one page line.
func (w *JSONWriter) WritePage(page model.PageOutput) error {
	if page.Cache == "" {
		page.Cache = page.Outcome.String()
	}
	return w.writeJSON(pageLine{Type: "page", PageOutput: page})
}

// WriteSummary outputs the summary line.
func (w *JSONWriter) WriteSummary(summary model.RunSummary) error {
	return w.writeJSON(summaryLine{
		Type:       "summary",
		RenderMode: summary.RenderMode.String(),
		ElapsedMS:  summary.Elapsed.Milliseconds(),
		RunSummary: summary,
	})
}

// writeJSON marshals the given value to JSON and writes it as one line.
func (w *JSONWriter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	return w.write(data)
}
