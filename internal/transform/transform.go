package transform

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/strikethrough"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// DefaultMinArticleWords is the shortest extracted article that is used
// instead of the whole document.
const DefaultMinArticleWords = 50

// ErrConvert is wrapped by every conversion failure.
var ErrConvert = errors.New("failed to convert html to markdown")

// Transformer converts HTML to markdown. It is safe for concurrent use.
type Transformer struct {
	article  *converter.Converter
	layout   *converter.Converter
	minWords int
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithMinArticleWords sets the word count below which an extracted article
// is discarded in favor of the whole document.
func WithMinArticleWords(n int) Option {
	return func(t *Transformer) {
		if n >= 0 {
			t.minWords = n
		}
	}
}

// New creates a Transformer.
func New(opts ...Option) *Transformer {
	t := &Transformer{
		article: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		layout: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
				strikethrough.NewStrikethroughPlugin(),
			),
		),
		minWords: DefaultMinArticleWords,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ToMarkdown converts html to markdown. An empty document converts to an
// empty string.
func (t *Transformer) ToMarkdown(html string, preserveLayout bool) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	if !preserveLayout {
		if md, ok := t.extractArticle(html); ok {
			return md, nil
		}
	}

	conv := t.article
	if preserveLayout {
		conv = t.layout
	}
	md, err := conv.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConvert, err)
	}
	return strings.TrimSpace(md), nil
}

// extractArticle runs readability on html and converts the article it
// finds. ok is false when no article long enough was found.
func (t *Transformer) extractArticle(html string) (string, bool) {
	article, err := readability.FromReader(bytes.NewReader([]byte(html)), nil)
	if err != nil || article.Node == nil {
		return "", false
	}

	raw, err := t.article.ConvertNode(article.Node)
	if err != nil {
		return "", false
	}
	md := strings.TrimSpace(string(raw))
	if len(strings.Fields(md)) < t.minWords {
		return "", false
	}
	return md, true
}
