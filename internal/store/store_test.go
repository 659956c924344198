package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"candlecache/internal/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func bar(ts time.Time, closePx string) market.Candle {
	px := decimal.RequireFromString(closePx)
	return market.Candle{
		Ticker:    "AAPL",
		Timeframe: market.Timeframe1d,
		Timestamp: ts,
		Open:      px,
		High:      px,
		Low:       px,
		Close:     px,
		Volume:    decimal.NewFromInt(1000),
	}
}

func days(from time.Time, n int) []market.Candle {
	out := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, bar(from.AddDate(0, 0, i), "185.123456789"))
	}
	return out
}

func backends(t *testing.T, clock *fakeClock) map[string]Store {
	t.Helper()
	gs, err := NewGormStore(filepath.Join(t.TempDir(), "cache", "candles.db"), Config{}, WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gs.Close() })
	out := map[string]Store{
		"memory": NewMemoryStore(WithClock(clock.Now)),
		"sqlite": gs,
	}
	if dsn := os.Getenv("CANDLECACHE_TEST_PG_DSN"); dsn != "" {
		ps, err := NewPostgresStore(context.Background(), dsn, Config{}, WithClock(clock.Now))
		require.NoError(t, err)
		_, _ = ps.db.Exec(`DELETE FROM candle_cache WHERE ticker = 'AAPL'`)
		t.Cleanup(func() { _ = ps.Close() })
		out["postgres"] = ps
	}
	return out
}

func TestStoreReadFreshOrderedAndInclusive(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for name, s := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			bars := days(start, 10)
			// insert out of order
			recs := market.ToRecords(append(bars[5:], bars[:5]...), clock.now)
			require.NoError(t, s.Upsert(ctx, recs))

			got, err := s.ReadFresh(ctx, "AAPL", market.Timeframe1d, start.AddDate(0, 0, 2), start.AddDate(0, 0, 6))
			require.NoError(t, err)
			require.Len(t, got, 5)
			for i := 1; i < len(got); i++ {
				assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp))
			}
			assert.Equal(t, start.AddDate(0, 0, 2), got[0].Timestamp)
			assert.True(t, got[0].Close.Equal(decimal.RequireFromString("185.123456789")))
		})
	}
}

func TestStoreUpsertOverwritesByKey(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)}
	ts := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	for name, s := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Upsert(ctx, market.ToRecords([]market.Candle{bar(ts, "100")}, clock.now)))
			require.NoError(t, s.Upsert(ctx, market.ToRecords([]market.Candle{bar(ts, "101.5")}, clock.now)))

			got, err := s.ReadFresh(ctx, "AAPL", market.Timeframe1d, ts, ts)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.True(t, got[0].Close.Equal(decimal.RequireFromString("101.5")))

			m, err := s.Stats(ctx, "AAPL", market.Timeframe1d)
			require.NoError(t, err)
			assert.EqualValues(t, 1, m.Rows)
			assert.Equal(t, ts, m.MinTime)
			assert.Equal(t, clock.now, m.LastFetchedAt)
		})
	}
}

func TestStoreExcludesStaleRows(t *testing.T) {
	base := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	ts := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	for name, s := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock.now = base
			c := bar(ts, "10")
			c.Timeframe = market.Timeframe1m
			require.NoError(t, s.Upsert(ctx, market.ToRecords([]market.Candle{c}, clock.now.Add(-59*time.Minute))))
			got, err := s.ReadFresh(ctx, "AAPL", market.Timeframe1m, ts, ts)
			require.NoError(t, err)
			assert.Len(t, got, 1)

			clock.now = clock.now.Add(time.Minute)
			got, err = s.ReadFresh(ctx, "AAPL", market.Timeframe1m, ts, ts)
			require.NoError(t, err)
			assert.Empty(t, got)

			m, err := s.Stats(ctx, "AAPL", market.Timeframe1m)
			require.NoError(t, err)
			assert.EqualValues(t, 1, m.Rows, "stale rows are kept, only ignored")
		})
	}
}

// rejectRow installs triggers that make any write of the row at ts fail.
func rejectRow(t *testing.T, s Store, ts time.Time) {
	t.Helper()
	switch st := s.(type) {
	case *GormStore:
		for _, event := range []string{"INSERT", "UPDATE"} {
			require.NoError(t, st.db.Exec(fmt.Sprintf(
				`CREATE TRIGGER reject_%s BEFORE %s ON candle_cache WHEN NEW.ts = %d BEGIN SELECT RAISE(ABORT, 'rejected row'); END`,
				strings.ToLower(event), event, ts.UnixMilli())).Error)
		}
	case *PostgresStore:
		_, err := st.db.Exec(fmt.Sprintf(`CREATE OR REPLACE FUNCTION candle_cache_reject() RETURNS trigger AS $$
BEGIN
	IF NEW.ts = '%s'::timestamptz THEN
		RAISE EXCEPTION 'rejected row';
	END IF;
	RETURN NEW;
END $$ LANGUAGE plpgsql`, ts.UTC().Format(time.RFC3339)))
		require.NoError(t, err)
		_, err = st.db.Exec(`CREATE TRIGGER candle_cache_reject BEFORE INSERT OR UPDATE ON candle_cache
			FOR EACH ROW EXECUTE FUNCTION candle_cache_reject()`)
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = st.db.Exec(`DROP TRIGGER IF EXISTS candle_cache_reject ON candle_cache`)
			_, _ = st.db.Exec(`DROP FUNCTION IF EXISTS candle_cache_reject()`)
		})
	default:
		t.Skipf("%T has no failing write path", s)
	}
}

func TestStoreUpsertFallsBackRowByRow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bad := start.AddDate(0, 0, 1)
	for name, s := range backends(t, clock) {
		if name == "memory" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			existing := []market.Candle{bar(start, "100"), bar(bad, "100"), bar(start.AddDate(0, 0, 2), "100")}
			require.NoError(t, s.Upsert(ctx, market.ToRecords(existing, clock.now)))
			rejectRow(t, s, bad)

			batch := make([]market.Candle, 0, 5)
			for i := 0; i < 5; i++ {
				batch = append(batch, bar(start.AddDate(0, 0, i), "200"))
			}
			err := s.Upsert(ctx, market.ToRecords(batch, clock.now))
			require.Error(t, err)
			var se *StorageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "upsert", se.Op)
			joined, ok := se.Err.(interface{ Unwrap() []error })
			require.True(t, ok, "row errors are joined")
			assert.Len(t, joined.Unwrap(), 1)
			assert.Contains(t, err.Error(), "rejected row")

			got, err := s.ReadFresh(ctx, "AAPL", market.Timeframe1d, start, start.AddDate(0, 0, 4))
			require.NoError(t, err)
			require.Len(t, got, 5)
			for _, c := range got {
				want := "200"
				if c.Timestamp.Equal(bad) {
					want = "100"
				}
				assert.True(t, c.Close.Equal(decimal.RequireFromString(want)), "close at %s = %s", c.Timestamp, c.Close)
			}
		})
	}
}

func TestStoreRejectsInvalidKey(t *testing.T) {
	s := NewMemoryStore()
	err := s.Upsert(context.Background(), []market.CacheRecord{{Candle: market.Candle{Timeframe: market.Timeframe1d}}})
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "upsert", se.Op)
}

func TestOpenSelectsDriver(t *testing.T) {
	s, err := Open(context.Background(), Config{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(context.Background(), Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	assert.IsType(t, &GormStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), Config{Driver: "mongo"})
	assert.Error(t, err)
}
