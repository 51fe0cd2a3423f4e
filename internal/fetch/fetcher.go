package fetch

import "context"

// Response is a fetched document.
type Response struct {
	// URL is the URL that was requested.
	URL string

	// FinalURL is the URL after redirects.
	FinalURL string

	// StatusCode is the HTTP status code. Rendered pages report 200.
	StatusCode int

	// ContentType is the Content-Type response header.
	ContentType string

	// Body is the response body. HTML bodies are decoded to UTF-8.
	Body []byte
}

// Fetcher retrieves a single document.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, rawURL string) (*Response, error)

// Fetch calls f(ctx, rawURL).
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	return f(ctx, rawURL)
}
