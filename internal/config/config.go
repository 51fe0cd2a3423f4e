package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitemark"

	// DefaultUserAgent is sent with every request, including robots.txt
	// and sitemap fetches.
	DefaultUserAgent = "SpiderBot"

	// DefaultTimeout is the timeout for a single HTTP request or page render.
	DefaultTimeout = 30 * time.Second

	// DefaultCrawlDepth is the maximum link distance from the root followed
	// by the smart crawl.
	DefaultCrawlDepth = 25

	// DefaultMaxPages caps the number of pages visited in one run.
	DefaultMaxPages = 500

	// DefaultCrawlDelay is the minimum interval between requests to the target.
	DefaultCrawlDelay = 250 * time.Millisecond

	// DefaultMaxBodySize limits the response body size read per page.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultBacklogCapacity is the number of visit events the engine may
	// queue before the consumer catches up.
	DefaultBacklogCapacity = 500

	// DefaultCacheLookupTimeout bounds a single page cache lookup.
	DefaultCacheLookupTimeout = 50 * time.Millisecond

	// DefaultMaxSitemapDepth bounds recursion through nested sitemap indexes.
	DefaultMaxSitemapDepth = 8

	// DefaultWorkers is the number of concurrent fetches in direct mode.
	DefaultWorkers = 8

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// RenderModeAuto lets the classifier pick the render mode.
	RenderModeAuto = "auto"
)

// Config holds all configuration options for a crawl run.
// It is populated from CLI flags and passed down explicitly.
type Config struct {
	// Target is the root URL of the site to crawl.
	// After Normalize it always has a scheme and ends with "/".
	Target string

	// Timeout is the timeout for each HTTP request or page render.
	Timeout time.Duration

	// CrawlDepth is the maximum link depth followed by the smart crawl.
	CrawlDepth int

	// MaxPages caps the number of pages visited. Zero means no limit.
	MaxPages int

	// CrawlDelay is the minimum interval between two requests.
	CrawlDelay time.Duration

	// UserAgent is the User-Agent header sent with each request.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// BacklogCapacity is the capacity of the visit event channel.
	BacklogCapacity int

	// CacheLookupTimeout bounds each page cache lookup in the pipeline.
	CacheLookupTimeout time.Duration

	// MaxSitemapDepth bounds sitemap index recursion.
	MaxSitemapDepth int

	// Workers is the fetch concurrency of direct mode.
	Workers int

	// RenderMode forces "plain" or "scripted", or lets the classifier
	// decide with "auto".
	RenderMode string

	// Direct fetches sitemap pages one by one instead of handing them to
	// the crawl engine. It has no effect when the site declares no sitemaps.
	Direct bool

	// RespectRobots makes the engine skip URLs disallowed for UserAgent.
	RespectRobots bool

	// ProxyAddress routes all fetches through a SOCKS5 proxy at "host:port".
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes fetches through it.
	// Mutually exclusive with ProxyAddress.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon. Only used when UseTor is true.
	TorStartupTimeout time.Duration

	// ConfigFilePath is the path to the site configuration file.
	// If empty, .sitemark is searched in the current and home directories.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations from the config file.
	SiteConfigs *File

	// JSONOutput writes one JSON object per page instead of the text stream.
	JSONOutput bool

	// MarkdownOutput writes a Markdown document instead of the text stream.
	MarkdownOutput bool

	// OutputFile redirects page output to a file instead of stdout.
	OutputFile string

	// ReportFile additionally writes a Markdown run report to this path.
	ReportFile string

	// PreserveLayout converts whole documents instead of extracting the
	// main article first.
	PreserveLayout bool

	// DBDir is the directory of the page cache database.
	DBDir string

	// NoCache disables the page cache and run history.
	NoCache bool

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON.
	LogJSON bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:            DefaultTimeout,
		CrawlDepth:         DefaultCrawlDepth,
		MaxPages:           DefaultMaxPages,
		CrawlDelay:         DefaultCrawlDelay,
		UserAgent:          DefaultUserAgent,
		MaxBodySize:        DefaultMaxBodySize,
		BacklogCapacity:    DefaultBacklogCapacity,
		CacheLookupTimeout: DefaultCacheLookupTimeout,
		MaxSitemapDepth:    DefaultMaxSitemapDepth,
		Workers:            DefaultWorkers,
		RenderMode:         RenderModeAuto,
		RespectRobots:      true,
		TorStartupTimeout:  DefaultTorStartupTimeout,
		DBDir:              XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for sitemark.
// On Linux: ~/.local/share/sitemark
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitemark.
// On Linux: ~/.config/sitemark
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for sitemark.
// The headless browser keeps its downloaded binary here.
// On Linux: ~/.cache/sitemark
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// NormalizeTarget turns user input into a crawl root URL.
// A missing scheme defaults to https, the fragment and query are dropped,
// and the path always ends with "/" so that "robots.txt" can be appended.
func NormalizeTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoTarget
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}

	u.Fragment = ""
	u.RawQuery = ""
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.Target == "" {
		return ErrNoTarget
	}
	if _, err := NormalizeTarget(c.Target); err != nil {
		return err
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.BacklogCapacity <= 0 {
		return ErrInvalidBacklog
	}

	if c.CacheLookupTimeout <= 0 {
		return ErrInvalidCacheTimeout
	}

	if c.MaxSitemapDepth <= 0 {
		return ErrInvalidSitemapDepth
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	switch c.RenderMode {
	case RenderModeAuto, "plain", "scripted":
	default:
		return ErrInvalidRenderMode
	}

	if c.JSONOutput && c.MarkdownOutput {
		return ErrConflictingOutputFormats
	}

	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingProxy
	}

	return nil
}
