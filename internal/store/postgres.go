package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"candlecache/internal/market"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
)

const pgUpsertSQL = `
	INSERT INTO candle_cache (ticker, timeframe, ts, open, high, low, close, volume, fetched_at)
	VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9)
	ON CONFLICT (ticker, timeframe, ts) DO UPDATE SET
	    open=excluded.open,
	    high=excluded.high,
	    low=excluded.low,
	    close=excluded.close,
	    volume=excluded.volume,
	    fetched_at=excluded.fetched_at`

// PostgresStore implements Store on PostgreSQL via the pgx stdlib driver.
type PostgresStore struct {
	db   *sql.DB
	opts options
}

// NewPostgresStore connects to dsn and ensures the candle_cache schema.
func NewPostgresStore(ctx context.Context, dsn string, cfg Config, opts ...Option) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres store: dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 8
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensurePostgresSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db, opts: buildOptions(opts)}, nil
}

func ensurePostgresSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candle_cache (
			ticker     TEXT NOT NULL,
			timeframe  TEXT NOT NULL,
			ts         TIMESTAMPTZ NOT NULL,
			open       NUMERIC NOT NULL,
			high       NUMERIC NOT NULL,
			low        NUMERIC NOT NULL,
			close      NUMERIC NOT NULL,
			volume     NUMERIC NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (ticker, timeframe, ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candle_cache_fetched ON candle_cache (ticker, timeframe, fetched_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) ReadFresh(ctx context.Context, ticker string, tf market.Timeframe, start, end time.Time) ([]market.Candle, error) {
	if err := validateKey(ticker, tf); err != nil {
		return nil, storageErr("read", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open::text, high::text, low::text, close::text, volume::text
		FROM candle_cache
		WHERE ticker = $1 AND timeframe = $2 AND ts BETWEEN $3 AND $4 AND fetched_at > $5
		ORDER BY ts`,
		ticker, tf.String(), start.UTC(), end.UTC(), s.opts.freshSince(tf))
	if err != nil {
		return nil, storageErr("read", err)
	}
	defer rows.Close()
	var out []market.Candle
	for rows.Next() {
		var (
			ts            time.Time
			o, h, l, c, v string
		)
		if err := rows.Scan(&ts, &o, &h, &l, &c, &v); err != nil {
			return nil, storageErr("read", err)
		}
		candle := market.Candle{Ticker: ticker, Timeframe: tf, Timestamp: ts.UTC()}
		if candle.Open, err = decimal.NewFromString(o); err != nil {
			return nil, storageErr("read", err)
		}
		if candle.High, err = decimal.NewFromString(h); err != nil {
			return nil, storageErr("read", err)
		}
		if candle.Low, err = decimal.NewFromString(l); err != nil {
			return nil, storageErr("read", err)
		}
		if candle.Close, err = decimal.NewFromString(c); err != nil {
			return nil, storageErr("read", err)
		}
		if candle.Volume, err = decimal.NewFromString(v); err != nil {
			return nil, storageErr("read", err)
		}
		out = append(out, candle)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("read", err)
	}
	return out, nil
}

func pgArgs(rec market.CacheRecord) []any {
	return []any{
		rec.Ticker, rec.Timeframe.String(), rec.Timestamp.UTC(),
		rec.Open.String(), rec.High.String(), rec.Low.String(), rec.Close.String(), rec.Volume.String(),
		rec.FetchedAt.UTC(),
	}
}

// Upsert writes the batch in one transaction, retrying row by row on failure.
func (s *PostgresStore) Upsert(ctx context.Context, records []market.CacheRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if err := validateKey(rec.Ticker, rec.Timeframe); err != nil {
			return storageErr("upsert", err)
		}
	}
	if err := s.upsertBatch(ctx, records); err == nil {
		return nil
	}
	var rowErrs []error
	for _, rec := range records {
		if _, err := s.db.ExecContext(ctx, pgUpsertSQL, pgArgs(rec)...); err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("%s@%s %s: %w", rec.Ticker, rec.Timeframe, rec.Timestamp.Format(time.RFC3339), err))
		}
	}
	if len(rowErrs) > 0 {
		return storageErr("upsert", errors.Join(rowErrs...))
	}
	return nil
}

func (s *PostgresStore) upsertBatch(ctx context.Context, records []market.CacheRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, pgUpsertSQL)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, pgArgs(rec)...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) Stats(ctx context.Context, ticker string, tf market.Timeframe) (Manifest, error) {
	m := Manifest{Ticker: ticker, Timeframe: tf.String()}
	var minTs, maxTs, lastFetched sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1), MIN(ts), MAX(ts), MAX(fetched_at)
		FROM candle_cache WHERE ticker = $1 AND timeframe = $2`,
		ticker, tf.String()).Scan(&m.Rows, &minTs, &maxTs, &lastFetched)
	if err != nil {
		return Manifest{}, storageErr("stats", err)
	}
	if minTs.Valid {
		m.MinTime = minTs.Time.UTC()
	}
	if maxTs.Valid {
		m.MaxTime = maxTs.Time.UTC()
	}
	if lastFetched.Valid {
		m.LastFetchedAt = lastFetched.Time.UTC()
	}
	return m, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
