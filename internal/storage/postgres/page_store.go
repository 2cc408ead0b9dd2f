// Package postgres persists page records in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/yacrawler/internal/crawler"
)

const defaultTable = "pages"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool used for page rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PageStore writes one row per fetched page.
type PageStore struct {
	pool  execCloser
	table string
}

// NewPageStore connects a pool from cfg.
func NewPageStore(ctx context.Context, cfg Config) (*PageStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PageStore{pool: pool, table: table}, nil
}

// NewPageStoreWithPool builds a store on an existing pool.
func NewPageStoreWithPool(pool execCloser, table string) (*PageStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &PageStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the pool.
func (s *PageStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the page table when it does not exist.
func (s *PageStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id       TEXT        NOT NULL,
	url          TEXT        NOT NULL,
	final_url    TEXT        NOT NULL,
	depth        INTEGER     NOT NULL,
	status_code  INTEGER     NOT NULL,
	content_type TEXT        NOT NULL DEFAULT '',
	title        TEXT        NOT NULL DEFAULT '',
	content_hash TEXT        NOT NULL DEFAULT '',
	bytes        BIGINT      NOT NULL DEFAULT 0,
	blob_uri     TEXT        NOT NULL DEFAULT '',
	headers      JSONB       NOT NULL DEFAULT '{}'::jsonb,
	fetched_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, url)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// SaveRecord implements crawler.RecordStore. Saving the same run and URL twice
// overwrites the earlier row.
func (s *PageStore) SaveRecord(ctx context.Context, record crawler.Record) error {
	if s == nil || s.pool == nil {
		return errors.New("page store is not configured")
	}
	if record.RunID == "" || record.URL == "" {
		return errors.New("record run id and url are required")
	}
	headers := record.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	url,
	final_url,
	depth,
	status_code,
	content_type,
	title,
	content_hash,
	bytes,
	blob_uri,
	headers,
	fetched_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (run_id, url) DO UPDATE SET
	final_url = EXCLUDED.final_url,
	status_code = EXCLUDED.status_code,
	content_type = EXCLUDED.content_type,
	title = EXCLUDED.title,
	content_hash = EXCLUDED.content_hash,
	bytes = EXCLUDED.bytes,
	blob_uri = EXCLUDED.blob_uri,
	headers = EXCLUDED.headers,
	fetched_at = EXCLUDED.fetched_at`, s.table)

	args := []any{
		record.RunID,
		record.URL,
		record.FinalURL,
		record.Depth,
		record.StatusCode,
		record.ContentType,
		record.Title,
		record.ContentHash,
		record.Bytes,
		record.BlobURI,
		headersJSON,
		record.FetchedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert page %s: %w", record.URL, err)
	}
	return nil
}
