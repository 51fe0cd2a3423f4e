package fetch

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent   = "SpiderBot"
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 10 * 1024 * 1024 // 10MB
	defaultMaxRetries  = 2
	defaultBackoff     = time.Second

	// maxRetryAfter caps how long a Retry-After header may stall a fetch.
	maxRetryAfter = 120 * time.Second

	// sniffLen is how much of an HTML body is inspected for a charset.
	sniffLen = 1024
)

// Client fetches documents over plain HTTP.
// It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	headers     map[string]string
	cookie      string
	maxBodySize int64
	maxRetries  int
	backoff     time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client, e.g. one that dials
// through a SOCKS5 proxy.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHeaders sets extra headers sent with every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithCookie sets a raw Cookie header sent with every request.
func WithCookie(cookie string) ClientOption {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithMaxBodySize caps how many body bytes are read. Larger bodies are truncated.
func WithMaxBodySize(size int64) ClientOption {
	return func(c *Client) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay of the exponential retry backoff.
func WithBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// WithDelay enforces a minimum interval between requests made by this client.
// Zero disables the limit.
func WithDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		userAgent:   defaultUserAgent,
		maxBodySize: defaultMaxBodySize,
		maxRetries:  defaultMaxRetries,
		backoff:     defaultBackoff,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Fetch retrieves rawURL. A non-2xx final status is reported as *Error
// wrapping ErrUnexpectedStatus.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{URL: rawURL, Err: err}
		}
	}

	resp, err := c.doWithRetry(ctx, rawURL)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode, Err: ErrUnexpectedStatus}
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := c.readBody(resp.Body, contentType)
	if err != nil {
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// doWithRetry performs the GET with exponential backoff on transient errors.
// A Retry-After header of up to two minutes overrides the backoff.
func (c *Client) doWithRetry(ctx context.Context, rawURL string) (*http.Response, error) {
	var resp *http.Response
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<(attempt-1))
			if resp != nil {
				if ra := retryAfter(resp); ra > 0 {
					wait = ra
				}
				resp.Body.Close()
			}
			c.logger.Debug("retrying fetch", "url", rawURL, "attempt", attempt, "wait", wait)

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		req, reqErr := c.newRequest(ctx, rawURL)
		if reqErr != nil {
			return nil, reqErr
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil || !isRetryableError(err) {
				return nil, err
			}
			resp = nil
			continue
		}
		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}
	}

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.5")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	return req, nil
}

// readBody reads at most maxBodySize bytes. Text bodies other than XML are
// decoded to UTF-8; XML keeps its bytes so the parser can honor the
// encoding declared in the document.
func (c *Client) readBody(r io.Reader, contentType string) ([]byte, error) {
	limited := io.LimitReader(r, c.maxBodySize)
	if !needsDecoding(contentType) {
		return io.ReadAll(limited)
	}

	br := bufio.NewReaderSize(limited, sniffLen)
	peek, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}

	enc := detectEncoding(peek, contentType)
	if enc == nil {
		return io.ReadAll(br)
	}
	return io.ReadAll(transform.NewReader(br, enc.NewDecoder()))
}

// detectEncoding returns the body encoding, or nil when it is UTF-8.
func detectEncoding(peek []byte, contentType string) encoding.Encoding {
	enc, name, _ := charset.DetermineEncoding(peek, contentType)
	if enc == nil || name == "utf-8" {
		return nil
	}
	return enc
}

func needsDecoding(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if strings.HasSuffix(mediaType, "xml") && mediaType != "application/xhtml+xml" {
		return false
	}
	return strings.HasPrefix(mediaType, "text/") || mediaType == "application/xhtml+xml"
}

func retryAfter(resp *http.Response) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	secs, err := strconv.Atoi(ra)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return 0
	}
	return d
}
