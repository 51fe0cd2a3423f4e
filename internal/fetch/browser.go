package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	defaultRenderStable = 500 * time.Millisecond
	defaultMaxTabs      = 3
)

// blockedResourceTypes are never downloaded while rendering.
var blockedResourceTypes = []proto.NetworkResourceType{
	proto.NetworkResourceTypeImage,
	proto.NetworkResourceTypeFont,
	proto.NetworkResourceTypeStylesheet,
	proto.NetworkResourceTypeMedia,
}

// Browser renders pages in a headless Chromium instance so that
// script-generated content is present in the returned document.
// Create with NewBrowser and call Close when done.
type Browser struct {
	browser   *rod.Browser
	tabSem    chan struct{}
	timeout   time.Duration
	stable    time.Duration
	userAgent string
	headers   map[string]string
	cookie    string
	proxy     string
	dataDir   string
	maxTabs   int
	logger    *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// BrowserOption configures a Browser.
type BrowserOption func(*Browser)

// WithBrowserTimeout bounds a single page render.
func WithBrowserTimeout(d time.Duration) BrowserOption {
	return func(b *Browser) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithBrowserUserAgent overrides the browser's User-Agent.
func WithBrowserUserAgent(ua string) BrowserOption {
	return func(b *Browser) {
		b.userAgent = ua
	}
}

// WithBrowserHeaders sets extra headers sent with every navigation.
func WithBrowserHeaders(headers map[string]string) BrowserOption {
	return func(b *Browser) {
		b.headers = headers
	}
}

// WithBrowserCookie sets a raw Cookie header sent with every navigation.
func WithBrowserCookie(cookie string) BrowserOption {
	return func(b *Browser) {
		b.cookie = cookie
	}
}

// WithBrowserProxy routes browser traffic through a SOCKS5 proxy at "host:port".
func WithBrowserProxy(addr string) BrowserOption {
	return func(b *Browser) {
		b.proxy = addr
	}
}

// WithBrowserDataDir sets the browser profile directory.
func WithBrowserDataDir(dir string) BrowserOption {
	return func(b *Browser) {
		b.dataDir = dir
	}
}

// WithMaxTabs limits the number of pages rendered at once.
func WithMaxTabs(n int) BrowserOption {
	return func(b *Browser) {
		if n > 0 {
			b.maxTabs = n
		}
	}
}

// WithBrowserLogger sets the logger.
func WithBrowserLogger(logger *slog.Logger) BrowserOption {
	return func(b *Browser) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// newBrowser applies options without launching anything.
func newBrowser(opts ...BrowserOption) *Browser {
	b := &Browser{
		timeout:   defaultTimeout,
		stable:    defaultRenderStable,
		userAgent: defaultUserAgent,
		maxTabs:   defaultMaxTabs,
		logger:    slog.Default(),
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.tabSem = make(chan struct{}, b.maxTabs)
	return b
}

// NewBrowser launches headless Chromium and connects to it.
func NewBrowser(opts ...BrowserOption) (*Browser, error) {
	b := newBrowser(opts...)

	l := b.launcher()
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch headless browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to headless browser: %w", err)
	}
	b.browser = browser

	b.logger.Debug("headless browser started", "tabs", b.maxTabs, "proxy", b.proxy)
	return b, nil
}

func (b *Browser) launcher() *launcher.Launcher {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage")
	if b.proxy != "" {
		l = l.Proxy("socks5://" + b.proxy)
	}
	if b.dataDir != "" {
		l = l.UserDataDir(b.dataDir)
	}
	return l
}

// Fetch renders rawURL and returns the resulting DOM as HTML.
func (b *Browser) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	select {
	case <-b.closed:
		return nil, &Error{URL: rawURL, Err: ErrBrowserClosed}
	default:
	}

	select {
	case b.tabSem <- struct{}{}:
		defer func() { <-b.tabSem }()
	case <-ctx.Done():
		return nil, &Error{URL: rawURL, Err: ctx.Err()}
	case <-b.closed:
		return nil, &Error{URL: rawURL, Err: ErrBrowserClosed}
	}

	html, err := b.render(ctx, rawURL)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	return &Response{
		URL:         rawURL,
		FinalURL:    rawURL,
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(html),
	}, nil
}

func (b *Browser) render(ctx context.Context, rawURL string) (string, error) {
	page, err := stealth.Page(b.browser)
	if err != nil {
		return "", fmt.Errorf("failed to open tab: %w", err)
	}
	defer page.Close()

	renderCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	page = page.Context(renderCtx)

	if b.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.userAgent}); err != nil {
			return "", fmt.Errorf("failed to set user agent: %w", err)
		}
	}
	if headers := b.extraHeaders(); len(headers) > 0 {
		cleanup, err := page.SetExtraHeaders(headers)
		if err != nil {
			return "", fmt.Errorf("failed to set headers: %w", err)
		}
		defer cleanup()
	}

	router := page.HijackRequests()
	for _, rt := range blockedResourceTypes {
		_ = router.Add("*", rt, func(h *rod.Hijack) { //nolint:errcheck // pattern is static
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
	}
	go router.Run()
	defer func() { _ = router.Stop() }() //nolint:errcheck // best effort

	if err := page.Navigate(rawURL); err != nil {
		return "", fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitStable(b.stable); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		b.logger.Debug("page did not settle", "url", rawURL, "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read rendered HTML: %w", err)
	}
	return html, nil
}

// extraHeaders flattens headers and cookie into rod's key/value list.
func (b *Browser) extraHeaders() []string {
	out := make([]string, 0, 2*len(b.headers)+2)
	for k, v := range b.headers {
		out = append(out, k, v)
	}
	if b.cookie != "" {
		out = append(out, "Cookie", b.cookie)
	}
	return out
}

// Close shuts down the browser process. It is safe to call more than once.
func (b *Browser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		if b.browser != nil {
			err = b.browser.Close()
		}
	})
	return err
}
