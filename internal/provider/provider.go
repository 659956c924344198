package provider

import (
	"context"
	"time"

	"candlecache/internal/market"
)

// Provider fetches OHLCV bars from one upstream. Implementations are not
// assumed to be safe for concurrent use; the ladder bounds concurrency.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, ticker string, tf market.Timeframe, start, end time.Time) ([]market.Candle, error)
}

// Descriptor is the static configuration of a provider rung.
type Descriptor struct {
	Name         string
	Priority     int
	AssetClasses []market.AssetClass
	MaxSpan      time.Duration
	// RatePerMinute <= 0 disables the local token bucket.
	RatePerMinute    float64
	Burst            int
	Concurrency      int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Serves reports whether the provider handles class.
func (d Descriptor) Serves(class market.AssetClass) bool {
	for _, c := range d.AssetClasses {
		if c == class {
			return true
		}
	}
	return false
}

// Entry binds a provider to its descriptor.
type Entry struct {
	Provider   Provider
	Descriptor Descriptor
}
