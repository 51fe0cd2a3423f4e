package robots

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/nao1215/sitemark/internal/fetch"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		want   []string
		wantOK bool
	}{
		{
			name:   "single sitemap",
			text:   "User-agent: *\nSitemap: https://x.test/sitemap.xml\n",
			want:   []string{"https://x.test/sitemap.xml"},
			wantOK: true,
		},
		{
			name: "file order is kept",
			text: "Sitemap: https://x.test/b.xml\n" +
				"Disallow: /private\n" +
				"Sitemap: https://x.test/a.xml\n",
			want:   []string{"https://x.test/b.xml", "https://x.test/a.xml"},
			wantOK: true,
		},
		{
			name: "duplicates are dropped",
			text: "Sitemap: https://x.test/a.xml\n" +
				"Sitemap: https://x.test/a.xml\n" +
				"Sitemap: https://x.test/c.xml\n",
			want:   []string{"https://x.test/a.xml", "https://x.test/c.xml"},
			wantOK: true,
		},
		{
			name:   "no sitemap lines",
			text:   "User-agent: *\nDisallow: /\n",
			want:   nil,
			wantOK: false,
		},
		{
			name:   "empty document",
			text:   "",
			want:   nil,
			wantOK: false,
		},
		{
			name:   "lowercase directive is not matched",
			text:   "sitemap: https://x.test/sitemap.xml\n",
			want:   nil,
			wantOK: false,
		},
		{
			name:   "missing space after colon is not matched",
			text:   "Sitemap:https://x.test/sitemap.xml\n",
			want:   nil,
			wantOK: false,
		},
		{
			name:   "last token of the line wins",
			text:   "# see Sitemap: https://x.test/old.xml https://x.test/new.xml\n",
			want:   []string{"https://x.test/new.xml"},
			wantOK: true,
		},
		{
			name:   "CRLF line endings",
			text:   "Sitemap: https://x.test/a.xml\r\nSitemap: https://x.test/b.xml\r\n",
			want:   []string{"https://x.test/a.xml", "https://x.test/b.xml"},
			wantOK: true,
		},
		{
			name:   "directive without a value",
			text:   "Sitemap: \nSitemap: https://x.test/a.xml\n",
			want:   []string{"https://x.test/a.xml"},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Extract(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target  string
		want    string
		wantErr bool
	}{
		{target: "https://x.test/", want: "https://x.test/robots.txt"},
		{target: "https://x.test/docs/", want: "https://x.test/robots.txt"},
		{target: "http://x.test:8080/", want: "http://x.test:8080/robots.txt"},
		{target: "x.test", wantErr: true},
		{target: "://bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			t.Parallel()
			got, err := URL(tt.target)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	t.Parallel()

	t.Run("document is retrieved", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/robots.txt" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /admin\nSitemap: https://x.test/s.xml\n"))
		}))
		defer srv.Close()

		doc, err := Fetch(context.Background(), fetch.NewClient(fetch.WithMaxRetries(0)), srv.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if doc.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", doc.StatusCode)
		}
		urls, ok := doc.Sitemaps()
		if !ok || len(urls) != 1 || urls[0] != "https://x.test/s.xml" {
			t.Errorf("unexpected sitemaps: %v %v", urls, ok)
		}
		p := doc.Policy("SpiderBot")
		if p.Allowed(srv.URL + "/admin/users") {
			t.Error("expected /admin to be disallowed")
		}
		if !p.Allowed(srv.URL + "/blog") {
			t.Error("expected /blog to be allowed")
		}
	})

	t.Run("missing document is absence", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		urls, ok, err := SitemapsFromRobots(context.Background(), fetch.NewClient(fetch.WithMaxRetries(0)), srv.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok || urls != nil {
			t.Errorf("expected absence, got %v", urls)
		}
	})

	t.Run("server error is a fetch error", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		_, _, err := SitemapsFromRobots(context.Background(), fetch.NewClient(fetch.WithMaxRetries(0)), srv.URL+"/")
		var fe *fetch.Error
		if !errors.As(err, &fe) {
			t.Fatalf("expected *fetch.Error, got %v", err)
		}
		if fe.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403, got %d", fe.StatusCode)
		}
	})

	t.Run("unreachable host is a fetch error", func(t *testing.T) {
		t.Parallel()
		f := fetch.FetcherFunc(func(_ context.Context, rawURL string) (*fetch.Response, error) {
			return nil, &fetch.Error{URL: rawURL, Err: errors.New("connection refused")}
		})
		_, err := Fetch(context.Background(), f, "https://x.test/")
		var fe *fetch.Error
		if !errors.As(err, &fe) {
			t.Fatalf("expected *fetch.Error, got %v", err)
		}
		if fe.URL != "https://x.test/robots.txt" {
			t.Errorf("unexpected URL %q", fe.URL)
		}
	})
}

func TestPolicy(t *testing.T) {
	t.Parallel()

	body := []byte("User-agent: SpiderBot\nDisallow: /private\nCrawl-delay: 2\n\nUser-agent: *\nDisallow: /\n")

	p, err := NewPolicy(http.StatusOK, body, "SpiderBot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Allowed("https://x.test/private/page") {
		t.Error("expected /private to be disallowed")
	}
	if !p.Allowed("https://x.test/public") {
		t.Error("expected /public to be allowed")
	}
	if p.CrawlDelay() != 2*time.Second {
		t.Errorf("expected 2s crawl delay, got %v", p.CrawlDelay())
	}

	other, err := NewPolicy(http.StatusOK, body, "OtherBot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.Allowed("https://x.test/public") {
		t.Error("expected everything to be disallowed for other agents")
	}

	t.Run("nil and allow-all policies allow everything", func(t *testing.T) {
		t.Parallel()
		var nilPolicy *Policy
		for _, p := range []*Policy{nilPolicy, AllowAll()} {
			if !p.Allowed("https://x.test/anything") {
				t.Error("expected allowed")
			}
			if p.CrawlDelay() != 0 {
				t.Error("expected no crawl delay")
			}
		}
	})

	t.Run("nil document", func(t *testing.T) {
		t.Parallel()
		var doc *Document
		if _, ok := doc.Sitemaps(); ok {
			t.Error("expected absence")
		}
		if !doc.Policy("SpiderBot").Allowed("https://x.test/") {
			t.Error("expected allowed")
		}
	})
}
