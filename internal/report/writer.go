package report

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/nao1215/sitemark/internal/model"
)

// ErrUnknownFormat is returned by New for an unsupported format.
var ErrUnknownFormat = errors.New("unknown output format")

// Writer defines the interface for page output.
// Implementations must be safe for concurrent use.
type Writer interface {
	// WritePage outputs one transformed page.
	WritePage(page model.PageOutput) error

	// WriteSummary outputs the totals of a finished run.
	WriteSummary(summary model.RunSummary) error
}

// Format names an output format.
type Format string

const (
	// FormatText is the plain page stream.
	FormatText Format = "text"

	// FormatMarkdown is a Markdown document.
	FormatMarkdown Format = "markdown"

	// FormatJSON is JSON lines.
	FormatJSON Format = "json"
)

// New creates the Writer for format.
func New(format Format, output io.Writer) (Writer, error) {
	switch format {
	case FormatText, "":
		return NewTextWriter(output), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
	}
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for streaming pages to the terminal while also saving a
// report file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WritePage outputs the page to all configured Writers.
// Every writer is tried; the errors are joined.
func (m *MultiWriter) WritePage(page model.PageOutput) error {
	var errs []error
	for _, w := range m.writers {
		if err := w.WritePage(page); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteSummary outputs the summary to all configured Writers.
func (m *MultiWriter) WriteSummary(summary model.RunSummary) error {
	var errs []error
	for _, w := range m.writers {
		if err := w.WriteSummary(summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// baseWriter serializes writes to the output destination.
type baseWriter struct {
	mu     sync.Mutex
	output io.Writer
}

// write outputs b in a single call under the lock.
func (w *baseWriter) write(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := w.output.Write(b)
	return err
}
