package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	xpp "github.com/mmcdole/goxpp"
	"golang.org/x/net/html/charset"

	"github.com/nao1215/sitemark/internal/fetch"
)

// DefaultMaxDepth is the default maximum nesting of sitemap indexes.
const DefaultMaxDepth = 8

// Resolver turns sitemap URLs into page URLs.
// It is safe for concurrent use; every Resolve call has its own state.
type Resolver struct {
	fetcher  fetch.Fetcher
	maxDepth int
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth sets how deep sitemap indexes may nest. Zero allows only the
// candidates themselves.
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		if depth >= 0 {
			r.maxDepth = depth
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a Resolver that retrieves documents with f.
func NewResolver(f fetch.Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher:  f,
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// resolution is the state of one Resolve call.
type resolution struct {
	visited map[string]struct{}
	seen    map[string]struct{}
	leaves  []string
}

func (res *resolution) addLeaf(u string) {
	if _, ok := res.seen[u]; ok {
		return
	}
	res.seen[u] = struct{}{}
	res.leaves = append(res.leaves, u)
}

// Resolve fetches and parses every candidate and returns the page URLs they
// list, deduplicated in first-seen order. Failed documents are skipped, so
// the result may be empty without an error. An error is returned only for
// empty input or a cancelled context.
func (r *Resolver) Resolve(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, ErrNoSitemaps
	}

	res := &resolution{
		visited: make(map[string]struct{}),
		seen:    make(map[string]struct{}),
	}

	for _, u := range urls {
		if err := r.resolve(ctx, res, u, 0); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.skip(err)
		}
	}

	r.logger.Debug("sitemaps resolved",
		"candidates", len(urls),
		"documents", len(res.visited),
		"pages", len(res.leaves))

	return res.leaves, nil
}

func (r *Resolver) skip(err error) {
	r.logger.Warn("skipping sitemap", "error", err)
}

// resolve fetches one document and parses it, recursing into nested
// indexes. Failures of nested documents are skipped here; the returned error
// concerns sitemapURL itself.
func (r *Resolver) resolve(ctx context.Context, res *resolution, sitemapURL string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > r.maxDepth {
		return &ParseError{URL: sitemapURL, Depth: depth, Err: ErrMaxDepthExceeded}
	}
	if _, ok := res.visited[sitemapURL]; ok {
		r.logger.Debug("sitemap already resolved", "url", sitemapURL, "depth", depth)
		return nil
	}
	res.visited[sitemapURL] = struct{}{}

	resp, err := r.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return err
	}

	r.logger.Debug("parsing sitemap", "url", sitemapURL, "depth", depth, "bytes", len(resp.Body))
	return r.parse(ctx, res, sitemapURL, depth, resp.Body)
}

func (r *Resolver) parse(ctx context.Context, res *resolution, sitemapURL string, depth int, body []byte) error {
	p := xpp.NewXMLPullParser(bytes.NewReader(body), false, charset.NewReaderLabel)
	var m machine

	for {
		event, err := p.Next()
		if err != nil {
			return &ParseError{URL: sitemapURL, Depth: depth, Err: err}
		}

		switch event {
		case xpp.EndDocument:
			return nil
		case xpp.StartTag:
			m.startTag(strings.ToLower(p.Name))
		case xpp.Text:
			act, loc := m.text(strings.TrimSpace(p.Text))
			switch act {
			case actLeaf:
				res.addLeaf(loc)
			case actNested:
				if err := r.resolve(ctx, res, loc, depth+1); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					r.skip(fmt.Errorf("nested in %s: %w", sitemapURL, err))
				}
			case actNone:
			}
		}
	}
}
