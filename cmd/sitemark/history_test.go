package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitemark/internal/database"
	"github.com/nao1215/sitemark/internal/model"
)

// seedRuns stores one run per target in a new database and returns its directory.
func seedRuns(t *testing.T, targets ...string) string {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, target := range targets {
		run := model.RunSummary{
			Target:    target,
			Mode:      model.CrawlModeSitemap,
			StartedAt: start.Add(time.Duration(i) * time.Hour),
			Elapsed:   1200 * time.Millisecond,
			Pages:     int64(10 + i),
			Hits:      4,
			Misses:    int64(6 + i),
		}
		if err := db.SaveRun(context.Background(), &run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}
	return dir
}

// runHistory executes the history command and returns its output.
func runHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	cmd := NewHistoryCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()
	if cmd.Use != "history [url]" {
		t.Errorf("expected use 'history [url]', got %q", cmd.Use)
	}

	flag := cmd.Flags().Lookup("limit")
	if flag == nil {
		t.Fatal("expected limit flag")
	}
	if flag.Shorthand != "n" || flag.DefValue != "20" {
		t.Errorf("unexpected limit flag %q/%q", flag.Shorthand, flag.DefValue)
	}
	if cmd.Flags().Lookup("json") == nil {
		t.Error("expected json flag")
	}
}

func TestRunHistoryCmd(t *testing.T) {
	t.Parallel()

	t.Run("prints a table of runs", func(t *testing.T) {
		t.Parallel()

		dir := seedRuns(t, "https://a.test/", "https://b.test/")
		output, err := runHistory(t, "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, want := range []string{"Started", "Cache Hits", "https://a.test/", "https://b.test/", "sitemap", "1.2s"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got %q", want, output)
			}
		}
		if strings.Index(output, "https://b.test/") > strings.Index(output, "https://a.test/") {
			t.Error("expected newest run first")
		}
	})

	t.Run("filters by target and limits", func(t *testing.T) {
		t.Parallel()

		dir := seedRuns(t, "https://a.test/", "https://b.test/", "https://a.test/")
		output, err := runHistory(t, "--db-dir", dir, "--json", "-n", "1", "a.test")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var runs []model.RunSummary
		if err := json.Unmarshal([]byte(output), &runs); err != nil {
			t.Fatalf("invalid JSON %q: %v", output, err)
		}
		if len(runs) != 1 {
			t.Fatalf("expected 1 run, got %d", len(runs))
		}
		if runs[0].Target != "https://a.test/" || runs[0].Pages != 12 {
			t.Errorf("expected the newest a.test run, got %+v", runs[0])
		}
	})

	t.Run("reports an empty history", func(t *testing.T) {
		t.Parallel()

		output, err := runHistory(t, "--db-dir", t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "No crawl runs recorded.") {
			t.Errorf("unexpected output %q", output)
		}
	})

	t.Run("writes an empty JSON array", func(t *testing.T) {
		t.Parallel()

		output, err := runHistory(t, "--db-dir", t.TempDir(), "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.TrimSpace(output) != "[]" {
			t.Errorf("expected [], got %q", output)
		}
	})

	t.Run("rejects an invalid target", func(t *testing.T) {
		t.Parallel()

		if _, err := runHistory(t, "--db-dir", t.TempDir(), "ftp://a.test"); err == nil {
			t.Error("expected error for an invalid target")
		}
	})
}
