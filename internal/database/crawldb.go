package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the name of the database file inside the database directory.
const FileName = "crawlkit.db"

// CrawlDB provides SQLite-based storage for crawl history.
// It records one row per crawl, one row per fetched page and one row per
// failed request.
//
// Design decision: a single database file holds every crawl. Pages and
// failures are keyed by crawl id, so a resumed crawl keeps appending to the
// rows it wrote before it was paused.
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

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
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
// If CreateIfNotExists is true, the directory and database file are created.
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

	// mode=rw refuses to create a missing file; mode=rwc creates it.
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

	// Workers write pages concurrently; SQLite only supports one writer,
	// so every statement goes through a single connection.
	db.SetMaxOpenConns(1)
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

// Path returns the path of the database file.
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
	-- One row per crawl, updated when the crawl stops
	CREATE TABLE IF NOT EXISTS crawls (
		crawl_id TEXT PRIMARY KEY,
		seeds TEXT NOT NULL,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME,
		state TEXT NOT NULL,
		stats TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_crawls_started ON crawls(started_at);

	-- Pages store successful fetches
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		crawl_id TEXT NOT NULL,
		url TEXT NOT NULL,
		final_url TEXT,
		status INTEGER,
		content_type TEXT,
		title TEXT,
		hash TEXT,
		generation INTEGER DEFAULT 0,
		headers TEXT,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(crawl_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	CREATE INDEX IF NOT EXISTS idx_pages_fetched ON pages(fetched_at);

	-- Failures store requests dropped after a transport or status error
	CREATE TABLE IF NOT EXISTS failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		crawl_id TEXT NOT NULL,
		url TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT,
		generation INTEGER DEFAULT 0,
		failed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_failures_crawl ON failures(crawl_id);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// CrawlRecord represents a stored crawl.
type CrawlRecord struct {
	CrawlID    string
	Seeds      []string
	StartedAt  time.Time
	FinishedAt time.Time
	State      string
	Stats      map[string]int
}

// StartCrawl records the start of a crawl. Starting a crawl id that already
// exists marks it running again, which is what a resumed crawl does.
func (cdb *CrawlDB) StartCrawl(ctx context.Context, crawlID string, seeds []string) error {
	seedsJSON, err := json.Marshal(seeds)
	if err != nil {
		return fmt.Errorf("failed to serialize seeds: %w", err)
	}

	query := `
	INSERT INTO crawls (crawl_id, seeds, state)
	VALUES (?, ?, 'running')
	ON CONFLICT(crawl_id) DO UPDATE SET
		state = 'running',
		finished_at = NULL
	`
	if _, err := cdb.db.ExecContext(ctx, query, crawlID, string(seedsJSON)); err != nil {
		return fmt.Errorf("failed to start crawl: %w", err)
	}
	return nil
}

// FinishCrawl stores the final state and counters of a crawl.
func (cdb *CrawlDB) FinishCrawl(ctx context.Context, crawlID, state string, stats map[string]int) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to serialize stats: %w", err)
	}

	query := `
	UPDATE crawls
	SET state = ?, stats = ?, finished_at = CURRENT_TIMESTAMP
	WHERE crawl_id = ?
	`
	result, err := cdb.db.ExecContext(ctx, query, state, string(statsJSON), crawlID)
	if err != nil {
		return fmt.Errorf("failed to finish crawl: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish crawl: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrCrawlNotFound, crawlID)
	}
	return nil
}

// GetCrawl retrieves a crawl by id. It returns nil when the crawl is unknown.
func (cdb *CrawlDB) GetCrawl(ctx context.Context, crawlID string) (*CrawlRecord, error) {
	query := `
	SELECT crawl_id, seeds, started_at, finished_at, state, stats
	FROM crawls
	WHERE crawl_id = ?
	`

	record, err := scanCrawl(cdb.db.QueryRowContext(ctx, query, crawlID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl: %w", err)
	}
	return record, nil
}

// ListCrawls returns every crawl, most recent first.
func (cdb *CrawlDB) ListCrawls(ctx context.Context) ([]*CrawlRecord, error) {
	query := `
	SELECT crawl_id, seeds, started_at, finished_at, state, stats
	FROM crawls
	ORDER BY started_at DESC, crawl_id
	`

	rows, err := cdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawls: %w", err)
	}
	defer rows.Close()

	var records []*CrawlRecord
	for rows.Next() {
		record, err := scanCrawl(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crawl: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCrawl(row rowScanner) (*CrawlRecord, error) {
	var (
		record     CrawlRecord
		seedsJSON  string
		startedAt  string
		finishedAt sql.NullString
		statsJSON  sql.NullString
	)
	if err := row.Scan(&record.CrawlID, &seedsJSON, &startedAt, &finishedAt, &record.State, &statsJSON); err != nil {
		return nil, err
	}

	record.StartedAt = parseTimestamp(startedAt)
	if finishedAt.Valid {
		record.FinishedAt = parseTimestamp(finishedAt.String)
	}
	if err := json.Unmarshal([]byte(seedsJSON), &record.Seeds); err != nil {
		return nil, fmt.Errorf("failed to parse seeds: %w", err)
	}
	if statsJSON.Valid && statsJSON.String != "" {
		if err := json.Unmarshal([]byte(statsJSON.String), &record.Stats); err != nil {
			return nil, fmt.Errorf("failed to parse stats: %w", err)
		}
	}
	return &record, nil
}

// PageRecord represents a stored page fetch.
type PageRecord struct {
	ID          int64
	CrawlID     string
	URL         string
	FinalURL    string
	Status      int
	ContentType string
	Title       string
	Hash        string
	Generation  int
	Headers     map[string][]string
	FetchedAt   time.Time
}

// InsertPage inserts or updates a page record.
// Uses UPSERT to handle duplicates (same crawl + URL).
func (cdb *CrawlDB) InsertPage(ctx context.Context, record *PageRecord) (int64, error) {
	headersJSON, err := json.Marshal(record.Headers)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize headers: %w", err)
	}

	query := `
	INSERT INTO pages (crawl_id, url, final_url, status, content_type, title, hash, generation, headers)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(crawl_id, url) DO UPDATE SET
		final_url = excluded.final_url,
		status = excluded.status,
		content_type = excluded.content_type,
		title = excluded.title,
		hash = excluded.hash,
		generation = excluded.generation,
		headers = excluded.headers,
		fetched_at = CURRENT_TIMESTAMP
	`

	result, err := cdb.db.ExecContext(ctx, query,
		record.CrawlID,
		record.URL,
		record.FinalURL,
		record.Status,
		record.ContentType,
		record.Title,
		record.Hash,
		record.Generation,
		string(headersJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert page: %w", err)
	}

	return result.LastInsertId()
}

// GetPage retrieves a page record by crawl id and URL.
// It returns nil when no such page was stored.
func (cdb *CrawlDB) GetPage(ctx context.Context, crawlID, url string) (*PageRecord, error) {
	query := `
	SELECT id, crawl_id, url, final_url, status, content_type, title, hash, generation, headers, fetched_at
	FROM pages
	WHERE crawl_id = ? AND url = ?
	`

	var record PageRecord
	var headersJSON string
	var fetchedAt string

	err := cdb.db.QueryRowContext(ctx, query, crawlID, url).Scan(
		&record.ID,
		&record.CrawlID,
		&record.URL,
		&record.FinalURL,
		&record.Status,
		&record.ContentType,
		&record.Title,
		&record.Hash,
		&record.Generation,
		&headersJSON,
		&fetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}

	record.FetchedAt = parseTimestamp(fetchedAt)

	if headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &record.Headers); err != nil {
			return nil, fmt.Errorf("failed to parse headers: %w", err)
		}
	}

	return &record, nil
}

// CountPages returns the number of pages stored for a crawl.
func (cdb *CrawlDB) CountPages(ctx context.Context, crawlID string) (int, error) {
	var count int
	err := cdb.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages WHERE crawl_id = ?", crawlID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return count, nil
}

// FailureRecord represents a request that was dropped after an error.
type FailureRecord struct {
	ID         int64
	CrawlID    string
	URL        string
	Kind       string
	Message    string
	Generation int
	FailedAt   time.Time
}

// RecordFailure stores a failed request.
func (cdb *CrawlDB) RecordFailure(ctx context.Context, record *FailureRecord) error {
	query := `
	INSERT INTO failures (crawl_id, url, kind, message, generation)
	VALUES (?, ?, ?, ?, ?)
	`

	_, err := cdb.db.ExecContext(ctx, query,
		record.CrawlID,
		record.URL,
		record.Kind,
		record.Message,
		record.Generation,
	)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// ListFailures returns the failures of a crawl in the order they happened.
func (cdb *CrawlDB) ListFailures(ctx context.Context, crawlID string) ([]FailureRecord, error) {
	query := `
	SELECT id, crawl_id, url, kind, message, generation, failed_at
	FROM failures
	WHERE crawl_id = ?
	ORDER BY id
	`

	rows, err := cdb.db.QueryContext(ctx, query, crawlID)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer rows.Close()

	var results []FailureRecord
	for rows.Next() {
		var f FailureRecord
		var failedAt string
		if err := rows.Scan(&f.ID, &f.CrawlID, &f.URL, &f.Kind, &f.Message, &f.Generation, &failedAt); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.FailedAt = parseTimestamp(failedAt)
		results = append(results, f)
	}

	return results, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
