package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nao1215/sitemark/internal/config"
	"github.com/nao1215/sitemark/internal/crawler"
	"github.com/nao1215/sitemark/internal/database"
	"github.com/nao1215/sitemark/internal/fetch"
	"github.com/nao1215/sitemark/internal/log"
	"github.com/nao1215/sitemark/internal/model"
	"github.com/nao1215/sitemark/internal/pipeline"
	"github.com/nao1215/sitemark/internal/render"
	"github.com/nao1215/sitemark/internal/report"
	"github.com/nao1215/sitemark/internal/robots"
	"github.com/nao1215/sitemark/internal/sitemap"
	"github.com/nao1215/sitemark/internal/socks"
	"github.com/nao1215/sitemark/internal/transform"
	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a website and print its pages as Markdown",
		Long: `Crawl visits a website and writes every page it finds as Markdown.

The crawl starts from robots.txt:
- If it declares sitemaps, they are resolved recursively and exactly the
  pages they list are visited.
- Otherwise the crawler follows links from the site root, staying on the
  same host.

Sites whose root page relies on scripts are rendered in a headless browser.
Each page is looked up in the local page cache before it is written.

Examples:
  # Crawl a site and print Markdown to stdout
  sitemark crawl docs.example.com

  # Fetch sitemap pages directly with 16 workers
  sitemark crawl --direct -w 16 https://docs.example.com/

  # Force browser rendering and write JSON lines to a file
  sitemark crawl --render scripted --json -o pages.jsonl example.com

  # Also write a Markdown run report
  sitemark crawl --report report.md example.com

  # Route requests through a SOCKS5 proxy
  sitemark crawl --proxy 127.0.0.1:9050 example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	// Request flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request or page render")
	cmd.Flags().Duration("delay", config.DefaultCrawlDelay,
		"Minimum interval between two requests")
	cmd.Flags().StringP("user-agent", "u", config.DefaultUserAgent,
		"User-Agent sent with every request")
	cmd.Flags().Int64("max-body", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	cmd.Flags().Bool("ignore-robots", false,
		"Visit pages disallowed by robots.txt")

	// Crawl behavior flags
	cmd.Flags().IntP("depth", "d", config.DefaultCrawlDepth,
		"Maximum link depth followed when the site has no sitemap")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to visit (0 = no limit)")
	cmd.Flags().String("render", config.RenderModeAuto,
		"Render mode: auto, plain or scripted")
	cmd.Flags().Bool("direct", false,
		"Fetch sitemap pages directly instead of through the crawl engine")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Concurrent fetches in direct mode")
	cmd.Flags().Int("backlog", config.DefaultBacklogCapacity,
		"Capacity of the visit event queue")
	cmd.Flags().Duration("cache-timeout", config.DefaultCacheLookupTimeout,
		"Time bound of a single page cache lookup")
	cmd.Flags().Int("sitemap-depth", config.DefaultMaxSitemapDepth,
		"Maximum nesting of sitemap indexes")
	cmd.Flags().Bool("preserve-layout", false,
		"Convert whole documents instead of extracting the main article")

	// Proxy flags
	cmd.Flags().String("proxy", "",
		"Route requests through a SOCKS5 proxy at host:port")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route requests through it")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitemark in current or home directory)")

	// Output flags
	cmd.Flags().BoolP("json", "j", false,
		"Write one JSON object per line (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Write a Markdown document (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write pages to specified file path (creates directories if needed)")
	cmd.Flags().String("report", "",
		"Also write a Markdown run report to specified file path")
	cmd.Flags().Bool("no-cache", false,
		"Do not use the page cache or record the run")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewLogger(os.Stderr, cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	_, err = runCrawl(ctx, cfg, cmd.OutOrStdout(), logger)
	return err
}

// getBoolFlag retrieves a bool flag from the command or the root command.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		value, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return value
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body"); err != nil {
		return nil, err
	}

	ignoreRobots, err := flags.GetBool("ignore-robots")
	if err != nil {
		return nil, err
	}
	cfg.RespectRobots = !ignoreRobots

	if cfg.CrawlDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.RenderMode, err = flags.GetString("render"); err != nil {
		return nil, err
	}
	if cfg.Direct, err = flags.GetBool("direct"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.BacklogCapacity, err = flags.GetInt("backlog"); err != nil {
		return nil, err
	}
	if cfg.CacheLookupTimeout, err = flags.GetDuration("cache-timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxSitemapDepth, err = flags.GetInt("sitemap-depth"); err != nil {
		return nil, err
	}
	if cfg.PreserveLayout, err = flags.GetBool("preserve-layout"); err != nil {
		return nil, err
	}

	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use empty config if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	if cfg.JSONOutput, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownOutput, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.OutputFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	if cfg.NoCache, err = flags.GetBool("no-cache"); err != nil {
		return nil, err
	}

	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	if len(args) > 0 {
		cfg.Target = args[0]
	}

	return cfg, nil
}

// applySiteConfig overrides cfg with the non-zero values of site.
func applySiteConfig(cfg *config.Config, site config.SiteConfig) {
	if site.Depth > 0 {
		cfg.CrawlDepth = site.Depth
	}
	if site.MaxPages > 0 {
		cfg.MaxPages = site.MaxPages
	}
	if site.RenderMode != "" {
		cfg.RenderMode = site.RenderMode
	}
	if site.UserAgent != "" {
		cfg.UserAgent = site.UserAgent
	}
}

// runCrawl crawls cfg.Target and writes every page to stdout or cfg.OutputFile.
func runCrawl(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) (model.RunSummary, error) {
	target, err := config.NormalizeTarget(cfg.Target)
	if err != nil {
		return model.RunSummary{}, err
	}
	cfg.Target = target

	site := cfg.SiteConfigs.GetSiteConfig(target)
	applySiteConfig(cfg, site)

	logger.Info("starting crawl",
		"target", target,
		"renderMode", cfg.RenderMode,
		"direct", cfg.Direct,
		"respectRobots", cfg.RespectRobots,
	)

	tr, err := newTransport(ctx, cfg, logger)
	if err != nil {
		return model.RunSummary{}, err
	}
	defer tr.close()

	plain := fetch.NewClient(
		fetch.WithHTTPClient(tr.client),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithHeaders(site.Headers),
		fetch.WithCookie(site.Cookie),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithDelay(cfg.CrawlDelay),
		fetch.WithLogger(logger),
	)

	mode, err := render.Select(ctx, plain, target, cfg.RenderMode)
	if err != nil {
		logger.Warn("failed to classify render mode, using plain fetch", "error", err)
		mode = model.PlainFetch
	}

	// Only the sitemap list is needed when robots.txt rules are ignored.
	var doc *robots.Document
	var sitemaps []string
	var hasSitemaps bool
	if cfg.RespectRobots {
		doc, err = robots.Fetch(ctx, plain, target)
		sitemaps, hasSitemaps = doc.Sitemaps()
	} else {
		sitemaps, hasSitemaps, err = robots.SitemapsFromRobots(ctx, plain, target)
	}
	if err != nil {
		logger.Warn("failed to fetch robots.txt", "error", err)
	}

	var db *database.CrawlDB
	var cache pipeline.Cache
	var store crawler.PageStore
	if !cfg.NoCache {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return model.RunSummary{}, fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		cache, store = db, db
		logger.Debug("database opened", "path", db.Path())
	}

	out, closeOut, err := openOutput(cfg.OutputFile, stdout)
	if err != nil {
		return model.RunSummary{}, err
	}
	defer closeOut()

	writer, closeWriter, err := newWriter(cfg, out)
	if err != nil {
		return model.RunSummary{}, err
	}
	defer closeWriter()

	spiderOpts := []crawler.SpiderOption{
		crawler.WithStore(store),
		crawler.WithMaxDepth(cfg.CrawlDepth),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithIgnorePatterns(site.IgnorePatterns),
		crawler.WithFollowPatterns(site.FollowPatterns),
		crawler.WithLogger(logger),
	}
	if cfg.RespectRobots {
		policy := doc.Policy(cfg.UserAgent)
		spiderOpts = append(spiderOpts, crawler.WithPolicy(policy))
		if d := policy.CrawlDelay(); d > cfg.CrawlDelay {
			logger.Debug("using robots.txt crawl delay", "delay", d)
			spiderOpts = append(spiderOpts, crawler.WithDelay(d))
		}
	}

	if mode == model.ScriptedFetch {
		browser, err := fetch.NewBrowser(
			fetch.WithBrowserTimeout(cfg.Timeout),
			fetch.WithBrowserUserAgent(cfg.UserAgent),
			fetch.WithBrowserHeaders(site.Headers),
			fetch.WithBrowserCookie(site.Cookie),
			fetch.WithBrowserProxy(tr.proxyAddr),
			fetch.WithBrowserDataDir(filepath.Join(config.XDGCacheDir(), "browser")),
			fetch.WithBrowserLogger(logger),
		)
		if err != nil {
			logger.Warn("failed to start headless browser, using plain fetch", "error", err)
			mode = model.PlainFetch
		} else {
			defer browser.Close()
			spiderOpts = append(spiderOpts, crawler.WithScripted(browser))
		}
	}

	spider := crawler.NewSpider(plain, spiderOpts...)

	var pages []string
	if hasSitemaps {
		resolver := sitemap.NewResolver(plain,
			sitemap.WithMaxDepth(cfg.MaxSitemapDepth),
			sitemap.WithLogger(logger),
		)
		pages, err = resolver.Resolve(ctx, sitemaps)
		if err != nil {
			return model.RunSummary{}, fmt.Errorf("failed to resolve sitemaps: %w", err)
		}
		if len(pages) == 0 {
			logger.Warn("sitemaps list no pages, following links instead", "sitemaps", len(sitemaps))
		}
	}

	crawlMode := model.CrawlModeSmart
	if len(pages) > 0 {
		crawlMode = model.CrawlModeSitemap
	}

	p := pipeline.New(spider, cache, transform.New(), writer,
		pipeline.WithBacklog(cfg.BacklogCapacity),
		pipeline.WithLookupTimeout(cfg.CacheLookupTimeout),
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithPreserveLayout(cfg.PreserveLayout),
		pipeline.WithTarget(target, mode),
		pipeline.WithCrawlMode(crawlMode),
		pipeline.WithLogger(logger),
	)

	var summary model.RunSummary
	switch {
	case len(pages) > 0 && cfg.Direct:
		summary, err = p.RunDirect(ctx, plain, pages)
	case len(pages) > 0:
		if err := spider.Configure(crawler.Scope{Root: target, URLs: pages, RenderMode: mode}); err != nil {
			return model.RunSummary{}, err
		}
		summary, err = p.Run(ctx, spider.CrawlSitemapOnly)
	default:
		if err := spider.Configure(crawler.Scope{Root: target, RenderMode: mode}); err != nil {
			return model.RunSummary{}, err
		}
		summary, err = p.Run(ctx, spider.CrawlSmart)
	}

	if !(len(pages) > 0 && cfg.Direct) {
		stats := spider.Stats()
		logger.Debug("spider finished",
			"visited", stats.PagesVisited,
			"queued", stats.URLsQueued,
			"failed", stats.Failed,
			"escalated", stats.Escalated,
			"published", stats.Published,
		)
	}

	if db != nil {
		if serr := db.SaveRun(context.WithoutCancel(ctx), &summary); serr != nil {
			logger.Error("failed to save run", "error", serr)
		}
		if n, cerr := db.CountRecords(context.WithoutCancel(ctx)); cerr == nil {
			logger.Debug("page cache size", "pages", n)
		}
	}

	logger.Info("crawl finished",
		"pages", summary.Pages,
		"skipped", summary.Skipped,
		"elapsed", summary.Elapsed,
	)

	if errors.Is(err, context.Canceled) {
		return summary, fmt.Errorf("crawl interrupted: %w", err)
	}
	return summary, err
}

// transport is the HTTP client all fetches go through.
type transport struct {
	client *http.Client

	// proxyAddr is the SOCKS5 address used by the browser, or empty.
	proxyAddr string

	stop func() error
}

func (t *transport) close() {
	if t.stop == nil {
		return
	}
	if err := t.stop(); err != nil {
		slog.Error("failed to stop embedded Tor", "error", err)
	}
}

// newTransport returns a direct HTTP client, or one routed through the
// configured SOCKS5 proxy or an embedded Tor daemon.
func newTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*transport, error) {
	switch {
	case cfg.ProxyAddress != "":
		client, err := socks.NewClient(cfg.ProxyAddress, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create proxy client: %w", err)
		}

		if status := client.CheckConnection(ctx); status != socks.ProxyStatusOK {
			return nil, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				status.Err(), cfg.ProxyAddress)
		}

		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
		return &transport{client: client.HTTPClient(), proxyAddr: cfg.ProxyAddress}, nil

	case cfg.UseTor:
		return startEmbeddedTor(ctx, cfg, logger)

	default:
		return &transport{client: &http.Client{Timeout: cfg.Timeout}}, nil
	}
}

// startEmbeddedTor starts an embedded Tor daemon using tornago.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*transport, error) {
	fmt.Fprintln(os.Stderr, "Starting embedded Tor daemon...")
	fmt.Fprintf(os.Stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := socks.NewEmbeddedTor(
		socks.WithStartupTimeout(cfg.TorStartupTimeout),
	)

	if err := embeddedTor.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	logger.Info("embedded Tor daemon started", "socksAddr", embeddedTor.SocksAddr())

	client, err := embeddedTor.NewClient(cfg.Timeout)
	if err != nil {
		_ = embeddedTor.Stop() //nolint:errcheck // Best effort cleanup
		return nil, fmt.Errorf("failed to create Tor client: %w", err)
	}

	if status := client.CheckConnection(ctx); status != socks.ProxyStatusOK {
		_ = embeddedTor.Stop() //nolint:errcheck // Best effort cleanup
		return nil, fmt.Errorf("embedded Tor proxy check failed: %w", status.Err())
	}

	return &transport{
		client:    client.HTTPClient(),
		proxyAddr: embeddedTor.SocksAddr(),
		stop:      embeddedTor.Stop,
	}, nil
}

// openOutput returns the page output destination.
func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}

	f, err := createFile(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck // written data is already flushed
}

// newWriter builds the page writer for the configured format, adding a
// Markdown report writer when cfg.ReportFile is set.
func newWriter(cfg *config.Config, out io.Writer) (pipeline.Writer, func(), error) {
	format := report.FormatText
	switch {
	case cfg.JSONOutput:
		format = report.FormatJSON
	case cfg.MarkdownOutput:
		format = report.FormatMarkdown
	}

	w, err := report.New(format, out)
	if err != nil {
		return nil, nil, err
	}
	if cfg.ReportFile == "" {
		return w, func() {}, nil
	}

	f, err := createFile(cfg.ReportFile)
	if err != nil {
		return nil, nil, err
	}
	return report.NewMultiWriter(w, report.NewMarkdownWriter(f)), func() { _ = f.Close() }, nil //nolint:errcheck // written data is already flushed
}

// createFile creates or truncates path with owner-only permissions,
// creating parent directories as needed.
func createFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
