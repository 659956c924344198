package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" 15M ")
	require.NoError(t, err)
	assert.Equal(t, Timeframe15m, tf)
	assert.Equal(t, 15*time.Minute, tf.Interval())

	_, err = ParseTimeframe("4h")
	assert.True(t, IsConfigError(err))
	assert.Equal(t, []Timeframe{Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h, Timeframe1d}, SupportedTimeframes())
}

func TestTTLPolicy(t *testing.T) {
	p := DefaultTTLPolicy()
	assert.Equal(t, time.Hour, p.TTL(Timeframe5m))
	assert.Equal(t, 24*time.Hour, p.TTL(Timeframe1d))
	assert.Equal(t, time.Hour, TTLPolicy{}.TTL(Timeframe1h))

	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	rec := CacheRecord{Candle: Candle{Timeframe: Timeframe1m}, FetchedAt: now.Add(-59 * time.Minute)}
	assert.True(t, rec.Fresh(p, now))
	rec.FetchedAt = now.Add(-time.Hour)
	assert.False(t, rec.Fresh(p, now))
}

func TestAlignRange(t *testing.T) {
	start := time.Date(2024, 1, 2, 10, 7, 31, 0, time.UTC)
	end := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	s, e := Timeframe5m.AlignRange(start, end)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), s)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 5, 0, 0, time.UTC), e)
	assert.EqualValues(t, 14, Timeframe5m.ExpectedBars(s, e))
}

func TestClassifier(t *testing.T) {
	c := NewClassifier(map[string]AssetClass{"COIN50": AssetCrypto})

	cases := []struct {
		in    string
		norm  string
		class AssetClass
	}{
		{"aapl", "AAPL", AssetEquity},
		{"BRK-B", "BRK-B", AssetEquity},
		{"ABNB", "ABNB", AssetEquity},
		{"btc-usd", "BTC/USD", AssetCrypto},
		{"ETHUSDT", "ETH/USDT", AssetCrypto},
		{"coin50", "COIN50", AssetCrypto},
	}
	for _, tc := range cases {
		norm, class, err := c.Normalize(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.norm, norm, tc.in)
		assert.Equal(t, tc.class, class, tc.in)
	}

	for _, bad := range []string{"", "AA PL", "$$$", "BTC/"} {
		_, _, err := c.Normalize(bad)
		assert.True(t, IsConfigError(err), bad)
	}
}

func TestToRecordsAndClip(t *testing.T) {
	bars := dailyBars("2024-01-01", "2024-01-05")
	fetched := time.Date(2024, 1, 6, 0, 0, 0, 0, time.FixedZone("X", 3600))
	recs := ToRecords(bars, fetched)
	require.Len(t, recs, 5)
	assert.Equal(t, time.UTC, recs[0].FetchedAt.Location())

	clipped := ClipRange(bars, day("2024-01-02"), day("2024-01-04"))
	assert.Len(t, clipped, 3)
}
