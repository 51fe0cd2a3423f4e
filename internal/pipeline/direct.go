package pipeline

import (
	"context"

	"github.com/nao1215/sitemark/internal/fetch"
	"github.com/nao1215/sitemark/internal/model"
	"golang.org/x/sync/errgroup"
)

// RunDirect fetches every URL with f and runs each page through the same
// work unit as Run, without a crawl engine. At most the configured number
// of workers fetch at once. Failed fetches are logged and skipped.
//
// Cancelling ctx stops new fetches; pages already fetched are still
// written. The summary is always written.
func (p *Pipeline) RunDirect(ctx context.Context, f fetch.Fetcher, urls []string) (model.RunSummary, error) {
	r := newRun(model.CrawlModeDirect)

	p.logger.Info("starting direct fetch",
		"pages", len(urls),
		"concurrency", p.workers,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, pageURL := range urls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			resp, err := f.Fetch(gctx, pageURL)
			if err != nil {
				p.logger.Warn("skipping page", "url", pageURL, "error", err)
				r.skipped.Add(1)
				return nil
			}

			page := &model.Page{
				URL:         pageURL,
				FinalURL:    resp.FinalURL,
				StatusCode:  resp.StatusCode,
				ContentType: resp.ContentType,
				Body:        string(resp.Body),
				RenderMode:  model.PlainFetch,
			}
			n := r.counter.Add(1) - 1
			p.handle(ctx, r, n, model.NewVisitEvent(page))
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // work units never fail

	summary := r.finish(p)
	return summary, ctx.Err()
}
