package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"candlecache/internal/market"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const defaultBatchSize = 500

// candleModel is the candle_cache row. Prices are stored as text to keep
// decimal precision in SQLite.
type candleModel struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Ticker    string          `gorm:"column:ticker;size:32;not null;uniqueIndex:idx_candle_cache_key,priority:1"`
	Timeframe string          `gorm:"column:timeframe;size:8;not null;uniqueIndex:idx_candle_cache_key,priority:2"`
	Ts        int64           `gorm:"column:ts;not null;uniqueIndex:idx_candle_cache_key,priority:3"`
	Open      decimal.Decimal `gorm:"column:open;type:text;not null"`
	High      decimal.Decimal `gorm:"column:high;type:text;not null"`
	Low       decimal.Decimal `gorm:"column:low;type:text;not null"`
	Close     decimal.Decimal `gorm:"column:close;type:text;not null"`
	Volume    decimal.Decimal `gorm:"column:volume;type:text;not null"`
	FetchedAt int64           `gorm:"column:fetched_at;not null;index"`
}

func (candleModel) TableName() string { return "candle_cache" }

func toModel(rec market.CacheRecord) candleModel {
	return candleModel{
		Ticker:    rec.Ticker,
		Timeframe: rec.Timeframe.String(),
		Ts:        rec.Timestamp.UTC().UnixMilli(),
		Open:      rec.Open,
		High:      rec.High,
		Low:       rec.Low,
		Close:     rec.Close,
		Volume:    rec.Volume,
		FetchedAt: rec.FetchedAt.UTC().UnixMilli(),
	}
}

func (m candleModel) candle() market.Candle {
	return market.Candle{
		Ticker:    m.Ticker,
		Timeframe: market.Timeframe(m.Timeframe),
		Timestamp: time.UnixMilli(m.Ts).UTC(),
		Open:      m.Open,
		High:      m.High,
		Low:       m.Low,
		Close:     m.Close,
		Volume:    m.Volume,
	}
}

// GormStore implements Store on SQLite through gorm and the pure-Go driver.
type GormStore struct {
	db        *gorm.DB
	opts      options
	batchSize int
}

// NewGormStore opens (creating if needed) the SQLite cache at path.
func NewGormStore(path string, cfg Config, opts ...Option) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: sqlite path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&candleModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a couple of connections let reads overlap the writer.
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 2
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &GormStore{db: db, opts: buildOptions(opts), batchSize: batch}, nil
}

func (s *GormStore) ReadFresh(ctx context.Context, ticker string, tf market.Timeframe, start, end time.Time) ([]market.Candle, error) {
	if err := validateKey(ticker, tf); err != nil {
		return nil, storageErr("read", err)
	}
	var rows []candleModel
	err := s.db.WithContext(ctx).
		Where("ticker = ? AND timeframe = ? AND ts BETWEEN ? AND ? AND fetched_at > ?",
			ticker, tf.String(), start.UTC().UnixMilli(), end.UTC().UnixMilli(), s.opts.freshSince(tf).UnixMilli()).
		Order("ts ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageErr("read", err)
	}
	out := make([]market.Candle, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.candle())
	}
	return out, nil
}

var upsertClause = clause.OnConflict{
	Columns: []clause.Column{{Name: "ticker"}, {Name: "timeframe"}, {Name: "ts"}},
	DoUpdates: clause.Assignments(map[string]interface{}{
		"open":       gorm.Expr("excluded.open"),
		"high":       gorm.Expr("excluded.high"),
		"low":        gorm.Expr("excluded.low"),
		"close":      gorm.Expr("excluded.close"),
		"volume":     gorm.Expr("excluded.volume"),
		"fetched_at": gorm.Expr("excluded.fetched_at"),
	}),
}

// Upsert writes the batch in one transaction. When the batch fails it falls
// back to one statement per row so a bad row cannot drop its neighbours.
func (s *GormStore) Upsert(ctx context.Context, records []market.CacheRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]candleModel, 0, len(records))
	for _, rec := range records {
		if err := validateKey(rec.Ticker, rec.Timeframe); err != nil {
			return storageErr("upsert", err)
		}
		models = append(models, toModel(rec))
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(upsertClause).CreateInBatches(&models, s.batchSize).Error
	})
	if err == nil {
		return nil
	}
	var rowErrs []error
	for i := range models {
		row := models[i]
		row.ID = 0
		if rerr := s.db.WithContext(ctx).Clauses(upsertClause).Create(&row).Error; rerr != nil {
			rowErrs = append(rowErrs, fmt.Errorf("%s@%s %d: %w", row.Ticker, row.Timeframe, row.Ts, rerr))
		}
	}
	if len(rowErrs) > 0 {
		return storageErr("upsert", errors.Join(rowErrs...))
	}
	return nil
}

func (s *GormStore) Stats(ctx context.Context, ticker string, tf market.Timeframe) (Manifest, error) {
	var row struct {
		RowCount    int64
		MinTs       int64
		MaxTs       int64
		LastFetched int64
	}
	err := s.db.WithContext(ctx).Model(&candleModel{}).
		Select("COUNT(1) AS row_count, COALESCE(MIN(ts), 0) AS min_ts, COALESCE(MAX(ts), 0) AS max_ts, COALESCE(MAX(fetched_at), 0) AS last_fetched").
		Where("ticker = ? AND timeframe = ?", ticker, tf.String()).
		Scan(&row).Error
	if err != nil {
		return Manifest{}, storageErr("stats", err)
	}
	m := Manifest{Ticker: ticker, Timeframe: tf.String(), Rows: row.RowCount}
	if row.RowCount > 0 {
		m.MinTime = time.UnixMilli(row.MinTs).UTC()
		m.MaxTime = time.UnixMilli(row.MaxTs).UTC()
		m.LastFetchedAt = time.UnixMilli(row.LastFetched).UTC()
	}
	return m, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
