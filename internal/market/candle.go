package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar. Timestamp is the bar open in UTC.
type Candle struct {
	Ticker    string          `json:"ticker"`
	Timeframe Timeframe       `json:"timeframe"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// CacheRecord is a persisted candle together with the time it was fetched.
type CacheRecord struct {
	Candle
	FetchedAt time.Time `json:"fetched_at"`
}

// Fresh reports whether the record is still inside its TTL at now.
func (r CacheRecord) Fresh(policy TTLPolicy, now time.Time) bool {
	return now.Sub(r.FetchedAt) < policy.TTL(r.Timeframe)
}

// ToRecords stamps candles with fetchedAt for persistence.
func ToRecords(candles []Candle, fetchedAt time.Time) []CacheRecord {
	if len(candles) == 0 {
		return nil
	}
	fetchedAt = fetchedAt.UTC()
	out := make([]CacheRecord, 0, len(candles))
	for _, c := range candles {
		c.Timestamp = c.Timestamp.UTC()
		out = append(out, CacheRecord{Candle: c, FetchedAt: fetchedAt})
	}
	return out
}

// ClipRange keeps candles whose timestamp lies in the closed range [start, end].
func ClipRange(candles []Candle, start, end time.Time) []Candle {
	if len(candles) == 0 {
		return candles
	}
	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if c.Timestamp.Before(start) || c.Timestamp.After(end) {
			continue
		}
		out = append(out, c)
	}
	return out
}
