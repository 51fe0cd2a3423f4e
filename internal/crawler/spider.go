package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/sitemark/internal/fetch"
	"github.com/nao1215/sitemark/internal/model"
	"github.com/nao1215/sitemark/internal/render"
	"github.com/nao1215/sitemark/internal/robots"
)

var (
	// ErrNotConfigured is returned by a crawl started before Configure.
	ErrNotConfigured = errors.New("spider is not configured")

	// ErrEmptyScope is returned by CrawlSitemapOnly when the scope lists no URLs.
	ErrEmptyScope = errors.New("scope has no URLs")
)

// PageStore receives the cache records of a finished crawl.
type PageStore interface {
	PutRecords(ctx context.Context, records []model.CrawlRecord) error
}

// Scope is what a crawl is allowed to visit and how pages are fetched.
type Scope struct {
	// Root is the site root. Smart crawls start here and stay on its host.
	Root string

	// URLs restricts a sitemap-only crawl to these pages.
	URLs []string

	// RenderMode selects the fetcher. ScriptedFetch also enables per-page
	// escalation in smart crawls.
	RenderMode model.RenderMode
}

// Spider is the crawl engine. It fetches pages, publishes a VisitEvent per
// fetched page to its subscriber, and writes cache records when a crawl ends.
// Crawls on one Spider must not run concurrently; Subscribe, Unsubscribe and
// Stats may be called from any goroutine.
type Spider struct {
	// plain fetches with HTTP GET.
	plain fetch.Fetcher

	// scripted renders pages with a browser. It may be nil.
	scripted fetch.Fetcher

	// store receives cache records at crawl end. It may be nil.
	store PageStore

	// policy holds the robots.txt rules. nil allows everything.
	policy *robots.Policy

	// maxDepth limits how many links away from Root a smart crawl goes.
	// 0 means only the root page.
	maxDepth int

	// maxPages limits the pages fetched per crawl. 0 means no limit.
	maxPages int

	// delay is the time to wait between page fetches.
	delay time.Duration

	// ignorePatterns are URL path patterns to skip during crawling.
	// Patterns use glob syntax (e.g., "/admin/*", "*.pdf").
	ignorePatterns []string

	// followPatterns are URL path patterns to follow during crawling.
	// If set, only URLs matching these patterns are crawled.
	followPatterns []string

	logger *slog.Logger

	scope      Scope
	configured bool

	// mutex protects the crawl state below.
	mutex     sync.Mutex
	visited   map[string]bool
	pageCount int
	failed    int
	escalated int
	published int
	records   []model.CrawlRecord

	subMu sync.Mutex
	sub   *subscription
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithScripted sets the script-capable fetcher used for scripted render mode.
func WithScripted(f fetch.Fetcher) SpiderOption {
	return func(s *Spider) {
		s.scripted = f
	}
}

// WithStore sets where cache records are written when a crawl ends.
func WithStore(store PageStore) SpiderOption {
	return func(s *Spider) {
		s.store = store
	}
}

// WithPolicy sets the robots.txt rules to respect.
func WithPolicy(p *robots.Policy) SpiderOption {
	return func(s *Spider) {
		s.policy = p
	}
}

// WithMaxDepth sets the maximum crawl depth.
// 0 = only the starting page, 1 = starting page plus linked pages, etc.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithMaxPages sets the maximum number of pages to crawl.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithDelay sets the delay between requests.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only URLs matching at least one pattern are crawled.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider creates a Spider that fetches with plain.
func NewSpider(plain fetch.Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		plain:    plain,
		maxDepth: 25,
		maxPages: 500,
		logger:   slog.Default(),
		visited:  make(map[string]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Configure sets the scope of the next crawl and resets crawl state.
func (s *Spider) Configure(scope Scope) error {
	u, err := url.Parse(scope.Root)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid root URL %q", scope.Root)
	}

	if scope.RenderMode == model.ScriptedFetch && s.scripted == nil {
		s.logger.Warn("scripted render mode without a browser, falling back to plain fetch")
	}

	s.scope = scope
	s.configured = true
	s.Reset()
	return nil
}

// Subscribe returns a channel receiving one VisitEvent per fetched page.
// The channel buffers up to capacity events; when it is full the crawl waits.
// A previous subscription is closed. The channel is closed by Unsubscribe,
// or by the Spider when a crawl fails.
func (s *Spider) Subscribe(capacity int) <-chan model.VisitEvent {
	sub := newSubscription(capacity)

	s.subMu.Lock()
	prev := s.sub
	s.sub = sub
	s.subMu.Unlock()

	if prev != nil {
		prev.close()
	}
	return sub.ch
}

// Unsubscribe closes the current subscription. Events already buffered stay
// readable. It is safe to call more than once.
func (s *Spider) Unsubscribe() {
	s.subMu.Lock()
	sub := s.sub
	s.sub = nil
	s.subMu.Unlock()

	if sub != nil {
		sub.close()
	}
}

// publish delivers ev to the current subscriber, if any.
func (s *Spider) publish(ctx context.Context, ev model.VisitEvent) {
	s.subMu.Lock()
	sub := s.sub
	s.subMu.Unlock()

	if sub == nil {
		return
	}
	if sub.send(ctx, ev) {
		s.mutex.Lock()
		s.published++
		s.mutex.Unlock()
	}
}

// CrawlSitemapOnly fetches exactly the scope URLs, in order, with the
// fetcher of the scope render mode. Links are not followed.
func (s *Spider) CrawlSitemapOnly(ctx context.Context) (err error) {
	if !s.configured {
		s.Unsubscribe()
		return ErrNotConfigured
	}
	if len(s.scope.URLs) == 0 {
		s.Unsubscribe()
		return ErrEmptyScope
	}
	defer s.finish(ctx, &err)

	s.logger.Info("starting sitemap crawl", "root", s.scope.Root, "pages", len(s.scope.URLs), "render_mode", s.scope.RenderMode.String())

	first := true
	for i, pageURL := range s.scope.URLs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.limitReached() {
			s.logger.Warn("page limit reached, dropping remaining sitemap pages",
				"max_pages", s.maxPages, "dropped", len(s.scope.URLs)-i)
			break
		}
		if s.isVisited(pageURL) || !s.allowed(pageURL) {
			continue
		}
		s.markVisited(pageURL)

		if !first {
			if err := s.wait(ctx); err != nil {
				return err
			}
		}
		first = false

		page, err := s.fetchPage(ctx, pageURL, s.scope.RenderMode, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.skip(pageURL, err)
			continue
		}
		s.visit(ctx, page)
	}

	return nil
}

// CrawlSmart starts at the scope root and follows same-host links up to the
// maximum depth. Pages are fetched plainly first. In scripted render mode a
// page whose body carries the script marker is fetched again with the
// scripted fetcher.
func (s *Spider) CrawlSmart(ctx context.Context) (err error) {
	if !s.configured {
		s.Unsubscribe()
		return ErrNotConfigured
	}
	defer s.finish(ctx, &err)

	start, err := url.Parse(s.scope.Root)
	if err != nil {
		return fmt.Errorf("invalid root URL: %w", err)
	}

	s.logger.Info("starting smart crawl", "root", s.scope.Root, "max_depth", s.maxDepth, "render_mode", s.scope.RenderMode.String())

	// host follows a redirect of the root page, so links on the redirected
	// site still count as same-host.
	host := start.Host
	queue := []queueItem{{url: start.String(), depth: 0}}
	first := true

	for len(queue) > 0 && !s.limitReached() {
		if err := ctx.Err(); err != nil {
			return err
		}

		item := queue[0]
		queue = queue[1:]

		if s.isVisited(item.url) {
			continue
		}
		s.markVisited(item.url)

		if !s.allowed(item.url) {
			continue
		}

		if !first {
			if err := s.wait(ctx); err != nil {
				return err
			}
		}
		first = false

		page, err := s.fetchSmart(ctx, item.url, item.depth)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.skip(item.url, err)
			continue
		}
		if page.FinalURL != item.url {
			s.markVisited(page.FinalURL)
			if item.depth == 0 {
				host = s.adoptRedirect(host, page.FinalURL)
			}
		}
		s.visit(ctx, page)

		if item.depth < s.maxDepth {
			for _, link := range page.Links {
				if !s.isVisited(link) && s.isSameService(host, link) && s.shouldCrawl(link) {
					queue = append(queue, queueItem{url: link, depth: item.depth + 1})
				}
			}
		}
	}

	return nil
}

// adoptRedirect returns the host of finalURL when the root page was
// redirected to another host, and host otherwise.
func (s *Spider) adoptRedirect(host, finalURL string) string {
	u, err := url.Parse(finalURL)
	if err != nil || u.Host == "" || strings.EqualFold(u.Host, host) {
		return host
	}
	s.logger.Info("root redirected to another host", "from", host, "to", u.Host)
	return u.Host
}

// queueItem represents an item in the crawl queue.
type queueItem struct {
	url   string
	depth int
}

// fetchSmart fetches plainly and escalates to the scripted fetcher when the
// scope asks for scripts and the page looks script-rendered.
func (s *Spider) fetchSmart(ctx context.Context, pageURL string, depth int) (*model.Page, error) {
	page, err := s.fetchPage(ctx, pageURL, model.PlainFetch, depth)
	if err != nil {
		return nil, err
	}
	if s.scope.RenderMode != model.ScriptedFetch || s.scripted == nil || !page.IsHTML() {
		return page, nil
	}
	if render.Detect(page.Body) != model.ScriptedFetch {
		return page, nil
	}

	rendered, err := s.fetchPage(ctx, pageURL, model.ScriptedFetch, depth)
	if err != nil {
		s.logger.Warn("scripted fetch failed, keeping plain page", "url", pageURL, "error", err)
		return page, nil
	}

	s.mutex.Lock()
	s.escalated++
	s.mutex.Unlock()

	return rendered, nil
}

// fetchPage fetches a single page and extracts its title and links.
func (s *Spider) fetchPage(ctx context.Context, pageURL string, mode model.RenderMode, depth int) (*model.Page, error) {
	f := s.plain
	if mode == model.ScriptedFetch && s.scripted != nil {
		f = s.scripted
	} else {
		mode = model.PlainFetch
	}

	resp, err := f.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	finalURL := resp.FinalURL
	if finalURL == "" {
		finalURL = pageURL
	}

	page := &model.Page{
		URL:         pageURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Body:        string(resp.Body),
		RenderMode:  mode,
		Depth:       depth,
		FetchedAt:   time.Now(),
	}
	page.ComputeHash()

	if page.IsHTML() {
		parser, err := NewParser(finalURL)
		if err == nil {
			result, err := parser.Parse(strings.NewReader(page.Body))
			if err == nil {
				page.Title = result.Title
				page.Links = result.InternalLinks
			}
		}
	}

	return page, nil
}

// visit records a fetched page and publishes it.
func (s *Spider) visit(ctx context.Context, page *model.Page) {
	s.mutex.Lock()
	s.pageCount++
	s.records = append(s.records, model.NewCrawlRecord(page))
	s.mutex.Unlock()

	s.logger.Debug("page fetched", "url", page.URL, "status", page.StatusCode, "render_mode", page.RenderMode.String())
	s.publish(ctx, model.NewVisitEvent(page))
}

func (s *Spider) skip(pageURL string, err error) {
	s.mutex.Lock()
	s.failed++
	s.mutex.Unlock()

	s.logger.Warn("skipping page", "url", pageURL, "error", err)
}

// finish writes the cache records of the crawl. A crawl that failed for a
// reason other than cancellation closes the subscription.
func (s *Spider) finish(ctx context.Context, errp *error) {
	if *errp != nil && !errors.Is(*errp, context.Canceled) && !errors.Is(*errp, context.DeadlineExceeded) {
		s.logger.Error("crawl failed", "error", *errp)
		s.Unsubscribe()
	}

	s.mutex.Lock()
	records := s.records
	s.records = nil
	s.mutex.Unlock()

	if s.store == nil || len(records) == 0 {
		return
	}
	if err := s.store.PutRecords(context.WithoutCancel(ctx), records); err != nil {
		s.logger.Warn("failed to write page cache", "pages", len(records), "error", err)
		return
	}
	s.logger.Debug("page cache written", "pages", len(records))
}

// wait sleeps for the politeness delay. A robots.txt Crawl-delay longer
// than the configured delay wins.
func (s *Spider) wait(ctx context.Context) error {
	d := s.delay
	if cd := s.policy.CrawlDelay(); cd > d {
		d = cd
	}
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Spider) allowed(pageURL string) bool {
	if s.policy.Allowed(pageURL) {
		return true
	}
	s.logger.Debug("disallowed by robots.txt", "url", pageURL)
	return false
}

func (s *Spider) limitReached() bool {
	if s.maxPages <= 0 {
		return false
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.pageCount >= s.maxPages
}

// isVisited checks if a URL has been visited.
func (s *Spider) isVisited(pageURL string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.visited[s.normalizeURL(pageURL)]
}

// markVisited marks a URL as visited.
func (s *Spider) markVisited(pageURL string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.visited[s.normalizeURL(pageURL)] = true
}

// normalizeURL normalizes a URL for the visited set. The fragment is dropped,
// scheme and host are lowercased, and an empty path becomes "/".
func (s *Spider) normalizeURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}

// isSameService reports whether targetURL is on baseHost. Subdomains are
// other hosts.
func (s *Spider) isSameService(baseHost, targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	return strings.EqualFold(u.Host, baseHost)
}

// Reset clears the spider's crawl state, allowing it to be reused.
func (s *Spider) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.visited = make(map[string]bool)
	s.pageCount = 0
	s.failed = 0
	s.escalated = 0
	s.published = 0
	s.records = nil
}

// Stats returns current crawl statistics.
func (s *Spider) Stats() SpiderStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return SpiderStats{
		PagesVisited: s.pageCount,
		URLsQueued:   len(s.visited),
		Failed:       s.failed,
		Escalated:    s.escalated,
		Published:    s.published,
	}
}

// SpiderStats contains crawl statistics.
type SpiderStats struct {
	// PagesVisited is the number of pages successfully fetched.
	PagesVisited int

	// URLsQueued is the number of unique URLs encountered.
	URLsQueued int

	// Failed is the number of pages that could not be fetched.
	Failed int

	// Escalated is the number of pages fetched again with the scripted fetcher.
	Escalated int

	// Published is the number of VisitEvents delivered to a subscriber.
	Published int
}

// shouldCrawl checks if a URL should be crawled based on ignore/follow patterns.
//
// Logic:
//  1. If URL matches any ignorePattern, skip it (return false)
//  2. If followPatterns is set and URL matches none, skip it (return false)
//  3. Otherwise, crawl it (return true)
func (s *Spider) shouldCrawl(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range s.ignorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(s.followPatterns) > 0 {
		for _, pattern := range s.followPatterns {
			if matchPattern(pattern, path) {
				return true
			}
		}
		return false
	}

	return true
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		ext := strings.TrimPrefix(pattern, "*")
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Bare patterns like "*.pdf" also match the last path segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		filename := filepath.Base(path)
		matched, err := filepath.Match(pattern, filename)
		if err == nil && matched {
			return true
		}
	}

	return false
}
