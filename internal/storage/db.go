package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DB is the single store behind every persistence contract of the funnel:
// rules, fingerprints, market prices, run reports, sinks and metadata.
// Queries are written with ? placeholders and rebound per driver.
type DB struct {
	conn   *sqlx.DB
	driver string
}

// Open connects to sqlite (dsn is a file path) or postgres (dsn is a
// connection string) and ensures the schema exists.
func Open(driver, dsn string) (*DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case "", "sqlite":
		driver = "sqlite"
		if dir := filepath.Dir(dsn); dsn != ":memory:" && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if driver == "sqlite" {
		// One writer at a time; WAL lets readers proceed alongside it.
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
			_ = conn.Close()
			return nil, err
		}
		if _, err := conn.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	db := &DB{conn: conn, driver: driver}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d.driver == "postgres" {
		id = "BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS brand_rules (
  id %s,
  canonical_name TEXT NOT NULL,
  variations TEXT NOT NULL DEFAULT '[]',
  active BOOLEAN NOT NULL DEFAULT TRUE,
  priority INTEGER NOT NULL DEFAULT 0,
  updated_at TEXT NOT NULL
)`, id),
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_brand_rules_active_canonical ON brand_rules(canonical_name) WHERE active`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS category_rules (
  id %s,
  keyword TEXT NOT NULL,
  include BOOLEAN NOT NULL,
  match_type TEXT NOT NULL,
  active BOOLEAN NOT NULL DEFAULT TRUE,
  updated_at TEXT NOT NULL
)`, id),

		`CREATE TABLE IF NOT EXISTS fingerprints (
  dedup_key TEXT PRIMARY KEY,
  first_seen_at TEXT NOT NULL,
  last_seen_at TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active'
)`,
		`CREATE INDEX IF NOT EXISTS idx_fingerprints_status ON fingerprints(status)`,

		`CREATE TABLE IF NOT EXISTS market_prices (
  price_key TEXT PRIMARY KEY,
  ean TEXT,
  brand TEXT NOT NULL DEFAULT '',
  model TEXT NOT NULL DEFAULT '',
  price NUMERIC NOT NULL,
  currency TEXT NOT NULL DEFAULT '',
  updated_at TEXT,
  synced_at TEXT NOT NULL
)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS import_runs (
  id %s,
  batch_id TEXT NOT NULL UNIQUE,
  source TEXT NOT NULL,
  run_ts TEXT NOT NULL,
  duration_ms BIGINT NOT NULL,
  total_seen INTEGER NOT NULL,
  brand_rejected INTEGER NOT NULL,
  category_rejected INTEGER NOT NULL,
  duplicate INTEGER NOT NULL,
  profitable INTEGER NOT NULL,
  unprofitable INTEGER NOT NULL,
  errors INTEGER NOT NULL,
  cancelled BOOLEAN NOT NULL DEFAULT FALSE
)`, id),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS import_requests (
  id %s,
  batch_id TEXT NOT NULL,
  external_id TEXT NOT NULL,
  ean TEXT,
  brand_name TEXT NOT NULL,
  model_name TEXT NOT NULL,
  supplier_price NUMERIC NOT NULL,
  market_price NUMERIC NOT NULL,
  margin_percent NUMERIC NOT NULL,
  roi_percent NUMERIC NOT NULL,
  price_source TEXT NOT NULL,
  affiliate_link TEXT,
  created_at TEXT NOT NULL
)`, id),
		`CREATE INDEX IF NOT EXISTS idx_import_requests_batch ON import_requests(batch_id)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS review_queue (
  id %s,
  batch_id TEXT NOT NULL,
  external_id TEXT NOT NULL,
  ean TEXT,
  brand_name TEXT NOT NULL,
  model_name TEXT NOT NULL,
  supplier_price NUMERIC NOT NULL,
  market_price NUMERIC NOT NULL,
  estimated BOOLEAN NOT NULL,
  margin_percent NUMERIC NOT NULL,
  reason TEXT NOT NULL,
  created_at TEXT NOT NULL
)`, id),
		`CREATE INDEX IF NOT EXISTS idx_review_queue_batch ON review_queue(batch_id)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS error_log (
  id %s,
  batch_id TEXT NOT NULL,
  external_id TEXT NOT NULL,
  line_no INTEGER NOT NULL,
  stage TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at TEXT NOT NULL
)`, id),

		`CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
)`,
	}

	for _, stmt := range statements {
		if _, err := d.conn.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.conn.ExecContext(ctx, d.conn.Rebind(query), args...)
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.exec(context.Background(), `
INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`, key, value, now())
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.Get(&value, d.conn.Rebind(`SELECT value FROM metadata WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// Timestamps are stored as fixed-width UTC text so they sort and compare
// the same way on both drivers.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func now() string {
	return stamp(time.Now())
}

func stamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
