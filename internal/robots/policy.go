package robots

import (
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// Policy answers whether a URL may be crawled by one user agent.
// The zero value and a nil *Policy allow everything.
type Policy struct {
	group *robotstxt.Group
}

// NewPolicy parses a robots.txt response for agent.
func NewPolicy(statusCode int, body []byte, agent string) (*Policy, error) {
	data, err := robotstxt.FromStatusAndBytes(statusCode, body)
	if err != nil {
		return nil, err
	}
	return &Policy{group: data.FindGroup(agent)}, nil
}

// AllowAll returns a policy that allows every URL.
func AllowAll() *Policy {
	return &Policy{}
}

// Allowed reports whether rawURL may be fetched.
func (p *Policy) Allowed(rawURL string) bool {
	if p == nil || p.group == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return p.group.Test(path)
}

// CrawlDelay returns the Crawl-delay declared for the agent, or zero.
func (p *Policy) CrawlDelay() time.Duration {
	if p == nil || p.group == nil {
		return 0
	}
	return p.group.CrawlDelay
}
