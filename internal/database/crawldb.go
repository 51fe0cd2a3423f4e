package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitemark/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "sitemark.db"

// CrawlDB provides SQLite-based storage for the page cache and run history.
// It is safe for concurrent use.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so cache reads are not blocked
	// by the engine's batch write.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Page cache, keyed by the prefixed page URL
	CREATE TABLE IF NOT EXISTS pages (
		cache_key TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		status_code INTEGER,
		content_type TEXT,
		title TEXT,
		content_hash TEXT,
		render_mode TEXT,
		fetched_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pages_fetched_at ON pages(fetched_at);

	-- One row per finished crawl run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		mode TEXT NOT NULL,
		render_mode TEXT NOT NULL,
		started_at TEXT NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		pages INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		cache_hits INTEGER NOT NULL,
		cache_misses INTEGER NOT NULL,
		cache_timeouts INTEGER NOT NULL,
		cache_errors INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// Lookup returns the cached record for key. A missing key is not an error:
// it returns nil, nil. The lookup honors ctx, so a deadline bounds it.
func (cdb *CrawlDB) Lookup(ctx context.Context, key string) (*model.CrawlRecord, error) {
	query := `
	SELECT cache_key, url, status_code, content_type, title, content_hash, render_mode, fetched_at
	FROM pages
	WHERE cache_key = ?
	`

	var record model.CrawlRecord
	var renderMode string
	var fetchedAt string

	err := cdb.db.QueryRowContext(ctx, query, key).Scan(
		&record.Key,
		&record.URL,
		&record.StatusCode,
		&record.ContentType,
		&record.Title,
		&record.Hash,
		&renderMode,
		&fetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", key, err)
	}

	// Unknown names fall back to plain; the cache is informational.
	record.RenderMode, _ = model.ParseRenderMode(renderMode) //nolint:errcheck
	record.FetchedAt = parseTimestamp(fetchedAt)

	return &record, nil
}

// PutRecords inserts or updates records in one transaction.
// Uses UPSERT so a page crawled again replaces its previous row.
func (cdb *CrawlDB) PutRecords(ctx context.Context, records []model.CrawlRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after Commit
	}()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO pages (cache_key, url, status_code, content_type, title, content_hash, render_mode, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(cache_key) DO UPDATE SET
		url = excluded.url,
		status_code = excluded.status_code,
		content_type = excluded.content_type,
		title = excluded.title,
		content_hash = excluded.content_hash,
		render_mode = excluded.render_mode,
		fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		key := r.Key
		if key == "" {
			key = model.CacheKey(r.URL)
		}
		fetchedAt := r.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			key,
			r.URL,
			r.StatusCode,
			r.ContentType,
			r.Title,
			r.Hash,
			r.RenderMode.String(),
			formatTimestamp(fetchedAt),
		); err != nil {
			return fmt.Errorf("failed to insert page %s: %w", r.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pages: %w", err)
	}
	return nil
}

// CountRecords returns the number of cached pages.
func (cdb *CrawlDB) CountRecords(ctx context.Context) (int, error) {
	var count int
	if err := cdb.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return count, nil
}

// SaveRun stores the totals of a finished run and sets summary.ID.
func (cdb *CrawlDB) SaveRun(ctx context.Context, summary *model.RunSummary) error {
	query := `
	INSERT INTO runs (target, mode, render_mode, started_at, elapsed_ms, pages, skipped,
		cache_hits, cache_misses, cache_timeouts, cache_errors)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := cdb.db.ExecContext(ctx, query,
		summary.Target,
		string(summary.Mode),
		summary.RenderMode.String(),
		formatTimestamp(summary.StartedAt),
		summary.Elapsed.Milliseconds(),
		summary.Pages,
		summary.Skipped,
		summary.Hits,
		summary.Misses,
		summary.TimedOut,
		summary.LookupErrors,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read run id: %w", err)
	}
	summary.ID = id
	return nil
}

// ListRuns returns recorded runs, newest first. An empty target lists runs
// for every target. A limit of zero or less returns all runs.
func (cdb *CrawlDB) ListRuns(ctx context.Context, target string, limit int) ([]model.RunSummary, error) {
	query := `
	SELECT id, target, mode, render_mode, started_at, elapsed_ms, pages, skipped,
		cache_hits, cache_misses, cache_timeouts, cache_errors
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if target != "" {
		query += " AND target = ?"
		args = append(args, target)
	}

	query += " ORDER BY started_at DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunSummary
	for rows.Next() {
		var run model.RunSummary
		var mode, renderMode, startedAt string
		var elapsedMS int64

		if err := rows.Scan(
			&run.ID,
			&run.Target,
			&mode,
			&renderMode,
			&startedAt,
			&elapsedMS,
			&run.Pages,
			&run.Skipped,
			&run.Hits,
			&run.Misses,
			&run.TimedOut,
			&run.LookupErrors,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.Mode = model.CrawlMode(mode)
		run.RenderMode, _ = model.ParseRenderMode(renderMode) //nolint:errcheck
		run.StartedAt = parseTimestamp(startedAt)
		run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,          // written by formatTimestamp
	time.RFC3339,              // Full RFC3339 format
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// timestampLayout is fixed-width so stored values sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
