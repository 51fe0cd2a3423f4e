package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nao1215/sitemark/internal/model"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBacklog is the capacity of the engine event channel.
	DefaultBacklog = 500

	// DefaultLookupTimeout bounds a single page cache lookup.
	DefaultLookupTimeout = 50 * time.Millisecond

	// DefaultWorkers is the fetch concurrency of RunDirect.
	DefaultWorkers = 8
)

// Engine publishes a VisitEvent per fetched page.
// Unsubscribe must close the channel returned by Subscribe.
type Engine interface {
	Subscribe(capacity int) <-chan model.VisitEvent
	Unsubscribe()
}

// Cache looks up page cache records. A miss is a nil record and a nil error.
type Cache interface {
	Lookup(ctx context.Context, key string) (*model.CrawlRecord, error)
}

// Transformer converts an HTML document to Markdown.
type Transformer interface {
	ToMarkdown(html string, preserveLayout bool) (string, error)
}

// Writer receives transformed pages and the run summary.
// WritePage is called from many goroutines.
type Writer interface {
	WritePage(page model.PageOutput) error
	WriteSummary(summary model.RunSummary) error
}

// Pipeline consumes engine events and writes one transformed page per event.
// A Pipeline may be run more than once; each run has its own counter.
type Pipeline struct {
	engine      Engine
	cache       Cache
	transformer Transformer
	writer      Writer

	backlog        int
	lookupTimeout  time.Duration
	workers        int
	preserveLayout bool

	target     string
	renderMode model.RenderMode
	crawlMode  model.CrawlMode

	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithBacklog sets the capacity of the engine event channel.
func WithBacklog(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.backlog = n
		}
	}
}

// WithLookupTimeout sets the time bound of a page cache lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.lookupTimeout = d
		}
	}
}

// WithWorkers sets how many pages RunDirect fetches at once.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithPreserveLayout converts whole documents instead of extracting the
// main article first.
func WithPreserveLayout(preserve bool) Option {
	return func(p *Pipeline) {
		p.preserveLayout = preserve
	}
}

// WithTarget sets the site and render mode recorded in the run summary.
func WithTarget(target string, mode model.RenderMode) Option {
	return func(p *Pipeline) {
		p.target = target
		p.renderMode = mode
	}
}

// WithCrawlMode sets the crawl mode Run records in the summary.
func WithCrawlMode(mode model.CrawlMode) Option {
	return func(p *Pipeline) {
		p.crawlMode = mode
	}
}

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a Pipeline. engine may be nil when only RunDirect is used,
// and cache may be nil to classify every page as a miss.
func New(engine Engine, cache Cache, transformer Transformer, writer Writer, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:        engine,
		cache:         cache,
		transformer:   transformer,
		writer:        writer,
		backlog:       DefaultBacklog,
		lookupTimeout: DefaultLookupTimeout,
		workers:       DefaultWorkers,
		crawlMode:     model.CrawlModeSmart,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// Run subscribes to the engine and runs produce until either produce
// returns or the engine closes the event channel. When produce returns the
// engine is unsubscribed and buffered events are still consumed. When the
// engine closes the channel first, the context passed to produce is
// cancelled and Run waits for produce to return.
//
// Run waits for all work units, writes the summary and returns it together
// with the error of produce.
func (p *Pipeline) Run(ctx context.Context, produce func(ctx context.Context) error) (model.RunSummary, error) {
	r := newRun(p.crawlMode)
	if p.engine == nil {
		return r.finish(p), ErrNoEngine
	}

	events := p.engine.Subscribe(p.backlog)

	prodCtx, cancelProd := context.WithCancel(ctx)
	defer cancelProd()

	produced := make(chan error, 1)
	go func() {
		err := produce(prodCtx)
		p.engine.Unsubscribe()
		produced <- err
	}()

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for ev := range events {
			n := r.counter.Add(1) - 1
			r.units.Go(func() error {
				p.handle(ctx, r, n, ev)
				return nil
			})
		}
	}()

	var err error
	select {
	case err = <-produced:
		<-consumed
	case <-consumed:
		p.logger.Debug("event channel closed by engine")
		cancelProd()
		err = <-produced
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			err = nil
		}
	}

	_ = r.units.Wait() //nolint:errcheck // work units never fail

	return r.finish(p), err
}

// handle is one work unit: cache lookup, transform and write.
func (p *Pipeline) handle(ctx context.Context, r *run, n int64, ev model.VisitEvent) {
	key := model.CacheKey(ev.URL())
	outcome, err := p.lookup(ctx, key)
	if err != nil {
		p.logger.Debug("cache lookup", "url", ev.URL(), "outcome", outcome.String(), "error", err)
	}
	r.count(outcome)

	markdown, err := p.transformer.ToMarkdown(ev.HTMLBody(), p.preserveLayout)
	if err != nil {
		p.logger.Warn("skipping page", "url", ev.URL(), "error", err)
		r.skipped.Add(1)
		return
	}

	out := model.PageOutput{
		Index:    n,
		URL:      ev.URL(),
		Markdown: markdown,
		Outcome:  outcome,
		Cache:    outcome.String(),
	}
	if err := p.writer.WritePage(out); err != nil {
		p.logger.Error("failed to write page", "url", ev.URL(), "error", err)
	}
}

// run is the state of one Run or RunDirect call.
type run struct {
	start   time.Time
	mode    model.CrawlMode
	counter atomic.Int64
	skipped atomic.Int64
	units   errgroup.Group

	mu      sync.Mutex
	summary model.RunSummary
}

func newRun(mode model.CrawlMode) *run {
	return &run{start: time.Now(), mode: mode}
}

func (r *run) count(o model.CacheOutcome) {
	r.mu.Lock()
	r.summary.Count(o)
	r.mu.Unlock()
}

// finish builds the summary and writes it.
func (r *run) finish(p *Pipeline) model.RunSummary {
	r.mu.Lock()
	summary := r.summary
	r.mu.Unlock()

	summary.Target = p.target
	summary.Mode = r.mode
	summary.RenderMode = p.renderMode
	summary.StartedAt = r.start
	summary.Elapsed = time.Since(r.start)
	summary.Pages = r.counter.Load()
	summary.Skipped = r.skipped.Load()

	if err := p.writer.WriteSummary(summary); err != nil {
		p.logger.Error("failed to write summary", "error", err)
	}
	return summary
}
