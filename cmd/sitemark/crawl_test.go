package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/sitemark/internal/config"
	"github.com/nao1215/sitemark/internal/database"
	"github.com/nao1215/sitemark/internal/model"
)

func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "crawl <url>" {
			t.Errorf("expected use 'crawl <url>', got %q", cmd.Use)
		}
		if cmd.Short == "" || cmd.Long == "" {
			t.Error("expected non-empty descriptions")
		}
	})

	t.Run("requires exactly one argument", func(t *testing.T) {
		t.Parallel()
		if err := cmd.Args(cmd, nil); err == nil {
			t.Error("expected error for no arguments")
		}
		if err := cmd.Args(cmd, []string{"a.test", "b.test"}); err == nil {
			t.Error("expected error for two arguments")
		}
		if err := cmd.Args(cmd, []string{"a.test"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	flags := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{name: "timeout", shorthand: "t", defValue: config.DefaultTimeout.String()},
		{name: "depth", shorthand: "d", defValue: "25"},
		{name: "max-pages", shorthand: "p", defValue: "500"},
		{name: "user-agent", shorthand: "u", defValue: config.DefaultUserAgent},
		{name: "workers", shorthand: "w", defValue: "8"},
		{name: "backlog", defValue: "500"},
		{name: "cache-timeout", defValue: "50ms"},
		{name: "sitemap-depth", defValue: "8"},
		{name: "render", defValue: config.RenderModeAuto},
		{name: "direct", defValue: "false"},
		{name: "ignore-robots", defValue: "false"},
		{name: "proxy", defValue: ""},
		{name: "tor", defValue: "false"},
		{name: "tor-timeout", shorthand: "T", defValue: config.DefaultTorStartupTimeout.String()},
		{name: "config", shorthand: "c", defValue: ""},
		{name: "json", shorthand: "j", defValue: "false"},
		{name: "markdown", shorthand: "m", defValue: "false"},
		{name: "output", shorthand: "o", defValue: ""},
		{name: "report", defValue: ""},
		{name: "no-cache", defValue: "false"},
		{name: "preserve-layout", defValue: "false"},
	}
	for _, tt := range flags {
		t.Run("has "+tt.name+" flag", func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("builds config with default values", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		cfg, err := buildConfig(cmd, []string{"docs.example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Target != "docs.example.com" {
			t.Errorf("expected target docs.example.com, got %q", cfg.Target)
		}
		if !cfg.RespectRobots {
			t.Error("expected RespectRobots to be true")
		}
		if cfg.BacklogCapacity != config.DefaultBacklogCapacity {
			t.Errorf("expected backlog %d, got %d", config.DefaultBacklogCapacity, cfg.BacklogCapacity)
		}
		if cfg.CacheLookupTimeout != config.DefaultCacheLookupTimeout {
			t.Errorf("expected cache timeout %v, got %v", config.DefaultCacheLookupTimeout, cfg.CacheLookupTimeout)
		}
		if cfg.SiteConfigs == nil {
			t.Error("expected non-nil SiteConfigs")
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})

	t.Run("reads every flag", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		args := []string{
			"--timeout", "5s", "--delay", "0s", "--user-agent", "TestBot",
			"--max-body", "1024", "--ignore-robots", "--depth", "3",
			"--max-pages", "7", "--render", "scripted", "--direct",
			"--workers", "2", "--backlog", "10", "--cache-timeout", "1s",
			"--sitemap-depth", "2", "--preserve-layout", "--proxy", "127.0.0.1:9050",
			"--json", "--output", "out.jsonl", "--report", "report.md", "--no-cache",
		}
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"docs.example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Timeout != 5*time.Second || cfg.CrawlDelay != 0 || cfg.UserAgent != "TestBot" {
			t.Errorf("unexpected request settings: %v %v %q", cfg.Timeout, cfg.CrawlDelay, cfg.UserAgent)
		}
		if cfg.MaxBodySize != 1024 || cfg.RespectRobots {
			t.Errorf("unexpected body size %d or robots %v", cfg.MaxBodySize, cfg.RespectRobots)
		}
		if cfg.CrawlDepth != 3 || cfg.MaxPages != 7 || cfg.RenderMode != "scripted" || !cfg.Direct {
			t.Errorf("unexpected crawl settings: %+v", cfg)
		}
		if cfg.Workers != 2 || cfg.BacklogCapacity != 10 || cfg.CacheLookupTimeout != time.Second || cfg.MaxSitemapDepth != 2 {
			t.Errorf("unexpected pipeline settings: %+v", cfg)
		}
		if !cfg.PreserveLayout || cfg.ProxyAddress != "127.0.0.1:9050" {
			t.Errorf("unexpected layout %v or proxy %q", cfg.PreserveLayout, cfg.ProxyAddress)
		}
		if !cfg.JSONOutput || cfg.OutputFile != "out.jsonl" || cfg.ReportFile != "report.md" || !cfg.NoCache {
			t.Errorf("unexpected output settings: %+v", cfg)
		}
	})

	t.Run("loads config file when specified", func(t *testing.T) {
		t.Parallel()

		configFile := filepath.Join(t.TempDir(), ".sitemark")
		configContent := `defaults:
  depth: 50
sites:
  docs.example.com:
    cookie: "site-cookie"
    renderMode: plain
`
		if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"--config", configFile}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"docs.example.com"})
		if err != nil {
			t.Fatalf("buildConfig() error = %v", err)
		}

		site := cfg.SiteConfigs.GetSiteConfig("https://docs.example.com/")
		if site.Depth != 50 || site.Cookie != "site-cookie" || site.RenderMode != "plain" {
			t.Errorf("unexpected site config %+v", site)
		}
	})

	t.Run("returns error for missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		_, err := buildConfig(cmd, []string{"docs.example.com"})
		if err == nil || !strings.Contains(err.Error(), "configuration file not found") {
			t.Errorf("expected not found error, got %v", err)
		}
	})

	t.Run("returns error for invalid config file", func(t *testing.T) {
		t.Parallel()

		configFile := filepath.Join(t.TempDir(), ".sitemark")
		if err := os.WriteFile(configFile, []byte("invalid: yaml: content: ["), 0600); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"--config", configFile}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		if _, err := buildConfig(cmd, []string{"docs.example.com"}); err == nil {
			t.Error("expected error for invalid config file")
		}
	})
}

func TestApplySiteConfig(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	applySiteConfig(cfg, config.SiteConfig{})
	if cfg.CrawlDepth != config.DefaultCrawlDepth || cfg.RenderMode != config.RenderModeAuto {
		t.Errorf("empty site config changed the config: %+v", cfg)
	}

	applySiteConfig(cfg, config.SiteConfig{
		Depth:      2,
		MaxPages:   9,
		RenderMode: "plain",
		UserAgent:  "SiteBot",
	})
	if cfg.CrawlDepth != 2 || cfg.MaxPages != 9 || cfg.RenderMode != "plain" || cfg.UserAgent != "SiteBot" {
		t.Errorf("site config not applied: %+v", cfg)
	}
}

func TestRunCrawlCmdErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "no arguments",
			args: []string{"crawl"},
			want: "accepts 1 arg",
		},
		{
			name: "conflicting formats",
			args: []string{"crawl", "--json", "--markdown", "docs.example.com"},
			want: "conflicting output formats",
		},
		{
			name: "conflicting proxies",
			args: []string{"crawl", "--tor", "--proxy", "127.0.0.1:9050", "docs.example.com"},
			want: "conflicting proxy settings",
		},
		{
			name: "invalid render mode",
			args: []string{"crawl", "--render", "fast", "docs.example.com"},
			want: "invalid render mode",
		},
		{
			name: "unsupported scheme",
			args: []string{"crawl", "ftp://docs.example.com"},
			want: "invalid target URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rootCmd := NewRootCmd()
			rootCmd.SetArgs(tt.args)
			rootCmd.SetOut(io.Discard)
			rootCmd.SetErr(io.Discard)

			err := rootCmd.Execute()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

// testSite serves a small site. robots and sitemap may be empty to answer 404.
func testSite(t *testing.T, robots, sitemap string) *httptest.Server {
	t.Helper()

	page := func(title, links string) string {
		return fmt.Sprintf("<html><head><title>%s</title></head><body><h1>%s</h1><p>Welcome to %s.</p>%s</body></html>",
			title, title, title, links)
	}

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			if robots == "" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, strings.ReplaceAll(robots, "{{host}}", srv.URL))
		case "/sitemap.xml":
			if sitemap == "" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, strings.ReplaceAll(sitemap, "{{host}}", srv.URL))
		case "/":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, page("Home", `<a href="/alpha">alpha</a> <a href="/beta">beta</a> <a href="/private">private</a>`))
		case "/alpha":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, page("Alpha", ""))
		case "/beta":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, page("Beta", ""))
		case "/private":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, page("Private", ""))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

const sitemapRobots = "User-agent: *\nDisallow: /private\nSitemap: {{host}}/sitemap.xml\n"

const testSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>{{host}}/alpha</loc></url>
  <url><loc>{{host}}/beta</loc></url>
  <url><loc>{{host}}/private</loc></url>
</urlset>`

// testConfig returns a config for crawling srv without delays or a cache.
func testConfig(t *testing.T, srv *httptest.Server) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Target = srv.URL
	cfg.Timeout = 5 * time.Second
	cfg.CrawlDelay = 0
	cfg.RenderMode = "plain"
	cfg.CacheLookupTimeout = 5 * time.Second
	cfg.NoCache = true
	cfg.DBDir = t.TempDir()
	return cfg
}

// lockedBuffer is a bytes.Buffer safe for concurrent log writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunCrawl(t *testing.T) {
	t.Parallel()

	t.Run("crawls sitemap pages", func(t *testing.T) {
		t.Parallel()

		srv := testSite(t, sitemapRobots, testSitemap)
		var out bytes.Buffer

		summary, err := runCrawl(context.Background(), testConfig(t, srv), &out, quietLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if summary.Mode != model.CrawlModeSitemap {
			t.Errorf("expected sitemap mode, got %s", summary.Mode)
		}
		if summary.Pages != 2 {
			t.Errorf("expected 2 pages, got %d", summary.Pages)
		}

		output := out.String()
		for _, want := range []string{"#### ==== ####", srv.URL + "/alpha", srv.URL + "/beta", "Alpha", "Beta"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, srv.URL+"/private") {
			t.Error("expected disallowed page to be skipped")
		}
		if !strings.HasSuffix(output, "for total pages: 2\n") {
			t.Errorf("expected summary line at the end, got %q", output)
		}
		if strings.Contains(output, "Home") {
			t.Error("expected root page to stay out of a sitemap crawl")
		}
	})

	t.Run("ignores robots rules when asked", func(t *testing.T) {
		t.Parallel()

		srv := testSite(t, sitemapRobots, testSitemap)
		cfg := testConfig(t, srv)
		cfg.RespectRobots = false

		summary, err := runCrawl(context.Background(), cfg, io.Discard, quietLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Pages != 3 {
			t.Errorf("expected 3 pages, got %d", summary.Pages)
		}
	})

	t.Run("fetches sitemap pages directly", func(t *testing.T) {
		t.Parallel()

		srv := testSite(t, sitemapRobots, testSitemap)
		cfg := testConfig(t, srv)
		cfg.Direct = true
		cfg.Workers = 2

		summary, err := runCrawl(context.Background(), cfg, io.Discard, quietLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Mode != model.CrawlModeDirect {
			t.Errorf("expected direct mode, got %s", summary.Mode)
		}
		if summary.Pages != 3 {
			t.Errorf("expected every sitemap page, got %d", summary.Pages)
		}
	})

	t.Run("follows links without robots.txt", func(t *testing.T) {
		t.Parallel()

		srv := testSite(t, "", "")
		cfg := testConfig(t, srv)
		cfg.RenderMode = config.RenderModeAuto
		var out bytes.Buffer

		summary, err := runCrawl(context.Background(), cfg, &out, quietLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Mode != model.CrawlModeSmart {
			t.Errorf("expected smart mode, got %s", summary.Mode)
		}
		if summary.RenderMode != model.PlainFetch {
			t.Errorf("expected plain render mode, got %s", summary.RenderMode)
		}
		if summary.Pages != 4 {
			t.Errorf("expected 4 pages, got %d", summary.Pages)
		}
		if !strings.Contains(out.String(), "0 => "+srv.URL+"/\n") {
			t.Errorf("expected the root page first, got %q", out.String())
		}
	})

	t.Run("follows links when sitemaps list nothing", func(t *testing.T) {
		t.Parallel()

		srv := testSite(t, sitemapRobots, "")
		summary, err := runCrawl(context.Background(), testConfig(t, srv), io.Discard, quietLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Mode != model.CrawlModeSmart {
			t.Errorf("expected smart mode, got %s", summary.Mode)
		}
		if summary.Pages != 3 {
			t.Errorf("expected root, alpha and beta, got %d", summary.Pages)
		}
	})

	t.Run("applies site configuration", func(t *testing.T) {
		t.Parallel()

		srv := testSite(t, "", "")
		cfg := testConfig(t, srv)
		cfg.SiteConfigs = &config.File{
			Sites: map[string]config.SiteConfig{
				strings.TrimPrefix(srv.URL, "http://"): {Depth: 0, MaxPages: 2},
			},
		}

		summary, err := runCrawl(context.Background(), cfg, io.Discard, quietLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if summary.Pages != 2 {
			t.Errorf("expected the site page limit of 2, got %d", summary.Pages)
		}
	})

	t.Run("writes output and report files", func(t *testing.T) {
		t.Parallel()

		srv := testSite(t, sitemapRobots, testSitemap)
		dir := t.TempDir()
		cfg := testConfig(t, srv)
		cfg.JSONOutput = true
		cfg.OutputFile = filepath.Join(dir, "out", "pages.jsonl")
		cfg.ReportFile = filepath.Join(dir, "report.md")

		var stdout bytes.Buffer
		if _, err := runCrawl(context.Background(), cfg, &stdout, quietLogger()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stdout.Len() != 0 {
			t.Errorf("expected nothing on stdout, got %q", stdout.String())
		}

		f, err := os.Open(cfg.OutputFile)
		if err != nil {
			t.Fatalf("failed to open output: %v", err)
		}
		defer f.Close()

		types := map[string]int{}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var line map[string]any
			if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
				t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
			}
			typ, _ := line["type"].(string) //nolint:errcheck // missing type is counted as ""
			types[typ]++
		}
		if types["page"] != 2 || types["summary"] != 1 {
			t.Errorf("unexpected line types %v", types)
		}

		report, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(report), "# Crawl Summary") {
			t.Error("expected a Markdown run report")
		}
	})

	t.Run("records runs and serves pages from cache", func(t *testing.T) {
		t.Parallel()

		srv := testSite(t, sitemapRobots, testSitemap)
		cfg := testConfig(t, srv)
		cfg.NoCache = false

		first, err := runCrawl(context.Background(), cfg, io.Discard, quietLogger())
		if err != nil {
			t.Fatalf("first crawl: %v", err)
		}
		// Records are written when the crawl ends, so a late lookup may hit.
		if first.Misses+first.Hits != 2 || first.TimedOut != 0 {
			t.Errorf("expected 2 completed lookups, got %+v", first)
		}

		second, err := runCrawl(context.Background(), cfg, io.Discard, quietLogger())
		if err != nil {
			t.Fatalf("second crawl: %v", err)
		}
		if second.Hits != 2 {
			t.Errorf("expected 2 hits on the second crawl, got %+v", second)
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), cfg.Target, 0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].Hits != 2 {
			t.Errorf("expected newest run first, got %+v", runs[0])
		}
	})

	t.Run("logs spider and cache totals", func(t *testing.T) {
		t.Parallel()

		srv := testSite(t, sitemapRobots, testSitemap)
		cfg := testConfig(t, srv)
		cfg.NoCache = false

		var logs lockedBuffer
		logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		if _, err := runCrawl(context.Background(), cfg, io.Discard, logger); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := logs.String()
		for _, want := range []string{`msg="spider finished" visited=2`, `msg="page cache size" pages=2`} {
			if !strings.Contains(output, want) {
				t.Errorf("expected log to contain %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("reports interruption", func(t *testing.T) {
		t.Parallel()

		srv := testSite(t, "", "")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := runCrawl(ctx, testConfig(t, srv), io.Discard, quietLogger())
		if err == nil {
			t.Error("expected error for a cancelled crawl")
		}
	})

	t.Run("rejects an unreachable proxy", func(t *testing.T) {
		t.Parallel()

		srv := testSite(t, "", "")
		cfg := testConfig(t, srv)
		cfg.ProxyAddress = "127.0.0.1:1"

		_, err := runCrawl(context.Background(), cfg, io.Discard, quietLogger())
		if err == nil || !strings.Contains(err.Error(), "proxy check failed") {
			t.Errorf("expected proxy check error, got %v", err)
		}
	})
}

func TestCreateFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b", "out.txt")
	f, err := createFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.WriteString("data"); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil || string(content) != "data" {
		t.Errorf("unexpected content %q, %v", content, err)
	}
}
