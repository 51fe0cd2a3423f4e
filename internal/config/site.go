package config

import (
	"fmt"
	"net/url"
	"strings"
)

// SiteConfig holds crawl settings for a single site.
type SiteConfig struct {
	// Cookie is an HTTP cookie sent with every request to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent with every request to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the global crawl depth. Zero keeps the global value.
	Depth int `yaml:"depth,omitempty"`

	// MaxPages overrides the global page limit. Zero keeps the global value.
	MaxPages int `yaml:"maxPages,omitempty"`

	// RenderMode forces "plain" or "scripted" for this site.
	// Empty or "auto" lets the classifier decide.
	RenderMode string `yaml:"renderMode,omitempty"`

	// UserAgent overrides the global User-Agent for this site.
	UserAgent string `yaml:"userAgent,omitempty"`

	// IgnorePatterns are URL path patterns to skip during crawling (glob syntax).
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict crawling to URL paths matching at least one pattern.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .sitemark configuration file.
type File struct {
	// Sites maps host names (e.g. "docs.example.com") to their configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to every site unless overridden per site.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a target URL or host.
// Site-specific values override the defaults field by field.
func (cf *File) GetSiteConfig(target string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}

	result := cf.Defaults
	siteConfig, ok := cf.Sites[hostOf(target)]
	if !ok {
		siteConfig, ok = cf.Sites[target]
	}
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Depth != 0 {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.MaxPages != 0 {
		result.MaxPages = siteConfig.MaxPages
	}
	if siteConfig.RenderMode != "" {
		result.RenderMode = siteConfig.RenderMode
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if len(siteConfig.Headers) > 0 {
		merged := make(map[string]string, len(result.Headers)+len(siteConfig.Headers))
		for k, v := range result.Headers {
			merged[k] = v
		}
		for k, v := range siteConfig.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}

	return result
}

// validate checks the render modes declared in the file.
func (cf *File) validate() error {
	if err := checkRenderMode(cf.Defaults.RenderMode); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	for host, site := range cf.Sites {
		if err := checkRenderMode(site.RenderMode); err != nil {
			return fmt.Errorf("site %s: %w", host, err)
		}
	}
	return nil
}

func checkRenderMode(mode string) error {
	switch mode {
	case "", RenderModeAuto, "plain", "scripted":
		return nil
	default:
		return ErrInvalidRenderMode
	}
}

// hostOf returns the host of a URL, or the input unchanged if it has none.
func hostOf(target string) string {
	if !strings.Contains(target, "://") {
		return strings.TrimSuffix(target, "/")
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return target
	}
	return u.Host
}
