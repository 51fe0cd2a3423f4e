package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrUnexpectedStatus is wrapped by Error when the server answered with
	// a non-2xx status code.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrBrowserClosed is returned by Browser.Fetch after Close.
	ErrBrowserClosed = errors.New("browser closed")
)

// Error reports a failure to retrieve a remote document: robots.txt, a
// sitemap, or a page. It is the FetchError of the crawl pipeline.
type Error struct {
	// URL is the document that could not be retrieved.
	URL string

	// StatusCode is the HTTP status, or 0 if no response was received.
	StatusCode int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a fetch error with status 404 or 410.
func IsNotFound(err error) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.StatusCode == http.StatusNotFound || fe.StatusCode == http.StatusGone
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
