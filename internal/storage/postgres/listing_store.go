// Package postgres records the listings retained by each run in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable holds one row per retained listing per run.
const DefaultTable = "tender_listings"

// Config controls the Postgres connection pool used for run history.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error)
	Close()
}

// ListingStore writes run history rows.
type ListingStore struct {
	pool  pool
	table string
}

var _ tender.HistoryStore = (*ListingStore)(nil)

// NewListingStore connects a pool using cfg.
func NewListingStore(ctx context.Context, cfg Config) (*ListingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewListingStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewListingStoreWithPool constructs a store from an existing pool.
func NewListingStoreWithPool(p pool, table string) (*ListingStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ListingStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ListingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the history table when it does not exist.
func (s *ListingStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id             TEXT        NOT NULL,
	position           INTEGER     NOT NULL,
	title              TEXT        NOT NULL,
	organization       TEXT        NOT NULL DEFAULT '',
	published_date     TEXT        NOT NULL DEFAULT '',
	closing_date       TEXT        NOT NULL DEFAULT '',
	link               TEXT        NOT NULL DEFAULT '',
	description        TEXT        NOT NULL DEFAULT '',
	page               INTEGER     NOT NULL,
	scraped_at         TIMESTAMPTZ NOT NULL,
	predicted_category TEXT,
	confidence         DOUBLE PRECISION,
	PRIMARY KEY (run_id, position)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// historyColumns are written by StoreRun in this order.
var historyColumns = []string{
	"run_id",
	"position",
	"title",
	"organization",
	"published_date",
	"closing_date",
	"link",
	"description",
	"page",
	"scraped_at",
	"predicted_category",
	"confidence",
}

// StoreRun copies every listing of a run in a single COPY, which either
// stores all rows or none.
func (s *ListingStore) StoreRun(ctx context.Context, runID string, listings []tender.Listing) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("listing store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(listings) == 0 {
		return nil
	}
	rows := make([][]any, len(listings))
	for i, l := range listings {
		var category *string
		if l.PredictedCategory != "" {
			c := l.PredictedCategory
			category = &c
		}
		rows[i] = []any{
			runID,
			int32(i),
			l.Title,
			l.Organization,
			l.PublishedDate,
			l.ClosingDate,
			l.Link,
			l.Description,
			int32(l.Page),
			l.ScrapedAt,
			category,
			l.Confidence,
		}
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.table}, historyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy run %s: %w", runID, err)
	}
	if n != int64(len(rows)) {
		return fmt.Errorf("copy run %s: stored %d of %d listings", runID, n, len(rows))
	}
	return nil
}
