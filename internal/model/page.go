package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Page represents a fetched web page.
// The crawler fills it in and wraps it in a VisitEvent for subscribers.
type Page struct {
	// URL is the URL the page was requested with.
	URL string `json:"url"`

	// FinalURL is the URL after redirects. Links are resolved against it.
	FinalURL string `json:"final_url,omitempty"`

	// StatusCode is the HTTP response status code.
	// Pages rendered by the headless browser report 200.
	StatusCode int `json:"status_code"`

	// ContentType is the MIME type of the response.
	ContentType string `json:"content_type"`

	// Title is the page title extracted from the <title> tag.
	Title string `json:"title,omitempty"`

	// Body is the document body, decoded to UTF-8.
	Body string `json:"-"`

	// Links contains the absolute same-host links found on the page.
	Links []string `json:"links,omitempty"`

	// Hash is the SHA-256 hash of Body.
	Hash string `json:"hash"`

	// RenderMode is the strategy that produced Body.
	RenderMode RenderMode `json:"render_mode"`

	// Depth is the link distance from the crawl root.
	Depth int `json:"depth"`

	// FetchedAt is when the page was fetched.
	FetchedAt time.Time `json:"fetched_at"`
}

// ComputeHash calculates and sets the SHA-256 hash of the page body.
func (p *Page) ComputeHash() {
	if p.Body == "" {
		p.Hash = ""
		return
	}

	hash := sha256.Sum256([]byte(p.Body))
	p.Hash = hex.EncodeToString(hash[:])
}

// IsHTML reports whether the page content type is HTML.
// An empty content type is treated as HTML because scripted fetches
// do not expose one.
func (p *Page) IsHTML() bool {
	if p.ContentType == "" {
		return true
	}
	ct := strings.ToLower(p.ContentType)
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

// VisitEvent is published by the crawl engine each time a page is fetched.
// It is read-only for subscribers.
type VisitEvent struct {
	page *Page
}

// NewVisitEvent wraps a fetched page in a VisitEvent.
func NewVisitEvent(p *Page) VisitEvent {
	return VisitEvent{page: p}
}

// URL returns the URL of the visited page.
func (e VisitEvent) URL() string {
	if e.page == nil {
		return ""
	}
	return e.page.URL
}

// HTMLBody returns the fetched document body.
func (e VisitEvent) HTMLBody() string {
	if e.page == nil {
		return ""
	}
	return e.page.Body
}

// Page returns the underlying page. The result must not be modified.
func (e VisitEvent) Page() *Page {
	return e.page
}
