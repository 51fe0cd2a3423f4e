package pipeline

import (
	"context"
	"errors"

	"github.com/nao1215/sitemark/internal/model"
)

type lookupResult struct {
	record *model.CrawlRecord
	err    error
}

// lookup checks the page cache under the lookup timeout. The caller's
// cancellation does not shorten it, and a cache that ignores its context
// still cannot hold the work unit past the timeout.
func (p *Pipeline) lookup(ctx context.Context, key string) (model.CacheOutcome, error) {
	if p.cache == nil {
		return model.CacheMiss, nil
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.lookupTimeout)
	defer cancel()

	done := make(chan lookupResult, 1)
	go func() {
		rec, err := p.cache.Lookup(lctx, key)
		done <- lookupResult{record: rec, err: err}
	}()

	select {
	case res := <-done:
		return classifyLookup(key, res.record, res.err)
	case <-lctx.Done():
		return model.CacheTimedOut, ErrCacheTimeout
	}
}

// classifyLookup maps a lookup result to its outcome. The returned error is
// for logging only.
func classifyLookup(key string, rec *model.CrawlRecord, err error) (model.CacheOutcome, error) {
	switch {
	case err == nil && rec != nil:
		return model.CacheHit, nil
	case err == nil:
		return model.CacheMiss, nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrCacheTimeout):
		return model.CacheTimedOut, ErrCacheTimeout
	default:
		return model.CacheLookupError, &CacheLookupError{Key: key, Err: err}
	}
}
