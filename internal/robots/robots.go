package robots

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/nao1215/sitemark/internal/fetch"
)

// SitemapToken marks a line declaring a sitemap. Matching is case-sensitive.
const SitemapToken = "Sitemap: "

// Document is a retrieved robots.txt.
type Document struct {
	// URL is where the document was requested.
	URL string

	// StatusCode is the HTTP status. A missing robots.txt has 404 and an empty Body.
	StatusCode int

	// Body is the document text.
	Body string
}

// Sitemaps returns the sitemap URLs declared in the document.
func (d *Document) Sitemaps() ([]string, bool) {
	if d == nil {
		return nil, false
	}
	return Extract(d.Body)
}

// Policy returns the allow rules of the document for agent.
func (d *Document) Policy(agent string) *Policy {
	if d == nil {
		return AllowAll()
	}
	p, err := NewPolicy(d.StatusCode, []byte(d.Body), agent)
	if err != nil {
		return AllowAll()
	}
	return p
}

// Extract returns the distinct sitemap URLs declared in a robots.txt body,
// in file order. The second result is false when no line declares one.
func Extract(text string) ([]string, bool) {
	var urls []string
	seen := make(map[string]struct{})

	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, SitemapToken) {
			continue
		}
		fields := strings.Fields(line)
		last := fields[len(fields)-1]
		// "Sitemap: " with no value
		if strings.HasSuffix(last, "Sitemap:") {
			continue
		}
		if _, dup := seen[last]; dup {
			continue
		}
		seen[last] = struct{}{}
		urls = append(urls, last)
	}

	if len(urls) == 0 {
		return nil, false
	}
	return urls, true
}

// URL returns the robots.txt location for a crawl target.
func URL(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target %q: %w", target, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid target %q: not an absolute URL", target)
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String(), nil
}

// Fetch retrieves the robots.txt of target. A missing document (404 or 410)
// is not an error: it yields an empty Document. Any other failure is
// returned as the *fetch.Error from f.
func Fetch(ctx context.Context, f fetch.Fetcher, target string) (*Document, error) {
	robotsURL, err := URL(target)
	if err != nil {
		return nil, err
	}

	resp, err := f.Fetch(ctx, robotsURL)
	if err != nil {
		if fetch.IsNotFound(err) {
			return &Document{URL: robotsURL, StatusCode: 404}, nil
		}
		return nil, err
	}

	return &Document{
		URL:        robotsURL,
		StatusCode: resp.StatusCode,
		Body:       string(resp.Body),
	}, nil
}

// SitemapsFromRobots fetches the robots.txt of target and extracts its
// sitemap URLs.
func SitemapsFromRobots(ctx context.Context, f fetch.Fetcher, target string) ([]string, bool, error) {
	doc, err := Fetch(ctx, f, target)
	if err != nil {
		return nil, false, err
	}
	urls, ok := doc.Sitemaps()
	return urls, ok, nil
}
