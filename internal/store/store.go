package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"candlecache/internal/market"
)

// Store persists cached candles keyed by (ticker, timeframe, timestamp).
type Store interface {
	// ReadFresh returns rows in [start, end] still inside their TTL, ascending.
	ReadFresh(ctx context.Context, ticker string, tf market.Timeframe, start, end time.Time) ([]market.Candle, error)
	// Upsert inserts or overwrites records by key.
	Upsert(ctx context.Context, records []market.CacheRecord) error
	// Stats summarizes the rows held for ticker@tf regardless of freshness.
	Stats(ctx context.Context, ticker string, tf market.Timeframe) (Manifest, error)
	Close() error
}

// Manifest records row statistics of one ticker@timeframe series.
type Manifest struct {
	Ticker        string    `json:"ticker"`
	Timeframe     string    `json:"timeframe"`
	Rows          int64     `json:"rows"`
	MinTime       time.Time `json:"min_time"`
	MaxTime       time.Time `json:"max_time"`
	LastFetchedAt time.Time `json:"last_fetched_at"`
}

// StorageError wraps a backend failure. Callers treat it as non-fatal.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

type Option func(*options)

type options struct {
	now    func() time.Time
	policy market.TTLPolicy
}

// WithClock overrides the clock used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTTLPolicy overrides the freshness windows.
func WithTTLPolicy(p market.TTLPolicy) Option {
	return func(o *options) { o.policy = p }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, policy: market.DefaultTTLPolicy()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// freshSince is the oldest fetched_at still considered fresh for tf.
func (o options) freshSince(tf market.Timeframe) time.Time {
	return o.now().UTC().Add(-o.policy.TTL(tf))
}

func validateKey(ticker string, tf market.Timeframe) error {
	if strings.TrimSpace(ticker) == "" || !tf.Valid() {
		return fmt.Errorf("ticker/timeframe required (got %q@%q)", ticker, tf)
	}
	return nil
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config selects and tunes a backend.
type Config struct {
	Driver       string
	Path         string
	DSN          string
	MaxOpenConns int
	BatchSize    int
}

// Open builds the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		return NewGormStore(cfg.Path, cfg, opts...)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN, cfg, opts...)
	case DriverMemory:
		return NewMemoryStore(opts...), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
