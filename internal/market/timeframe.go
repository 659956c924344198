package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeframe is the bar interval granularity of a series.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe1d  Timeframe = "1d"
)

const (
	defaultIntradayTTL = time.Hour
	defaultDailyTTL    = 24 * time.Hour
)

var supportedTimeframes = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// ParseTimeframe returns the normalized timeframe or a ConfigError.
func ParseTimeframe(input string) (Timeframe, error) {
	key := Timeframe(strings.ToLower(strings.TrimSpace(input)))
	if _, ok := supportedTimeframes[key]; !ok {
		return "", NewConfigError("timeframe", fmt.Sprintf("unsupported timeframe %q", input))
	}
	return key, nil
}

// SupportedTimeframes returns all supported keys ordered by interval.
func SupportedTimeframes() []Timeframe {
	keys := make([]Timeframe, 0, len(supportedTimeframes))
	for k := range supportedTimeframes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return supportedTimeframes[keys[i]] < supportedTimeframes[keys[j]]
	})
	return keys
}

func (tf Timeframe) String() string { return string(tf) }

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := supportedTimeframes[tf]
	return ok
}

// Interval is the bar width Δ.
func (tf Timeframe) Interval() time.Duration {
	return supportedTimeframes[tf]
}

// IsIntraday reports whether bars are shorter than a day.
func (tf Timeframe) IsIntraday() bool {
	d := tf.Interval()
	return d > 0 && d < 24*time.Hour
}

// TTL is the default freshness window of the timeframe class.
func (tf Timeframe) TTL() time.Duration {
	if tf.IsIntraday() {
		return defaultIntradayTTL
	}
	return defaultDailyTTL
}

// AlignDown snaps t (in UTC) to the bar grid.
func (tf Timeframe) AlignDown(t time.Time) time.Time {
	t = t.UTC()
	step := tf.Interval()
	if step <= 0 {
		return t
	}
	return t.Truncate(step)
}

// AlignRange aligns both ends to the bar grid, guaranteeing start <= end.
func (tf Timeframe) AlignRange(start, end time.Time) (time.Time, time.Time) {
	if end.Before(start) {
		start, end = end, start
	}
	alStart := tf.AlignDown(start)
	alEnd := tf.AlignDown(end)
	if alEnd.Before(alStart) {
		alEnd = alStart
	}
	return alStart, alEnd
}

// ExpectedBars counts bar opens in the closed range [start, end].
func (tf Timeframe) ExpectedBars(start, end time.Time) int64 {
	step := tf.Interval()
	if step <= 0 || end.Before(start) {
		return 0
	}
	return int64(end.Sub(start)/step) + 1
}

// TTLPolicy resolves the freshness window per timeframe class.
type TTLPolicy struct {
	Intraday time.Duration
	Daily    time.Duration
}

// DefaultTTLPolicy is 1h for intraday bars and 24h for daily bars.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{Intraday: defaultIntradayTTL, Daily: defaultDailyTTL}
}

// TTL returns the freshness window for tf, falling back to the defaults.
func (p TTLPolicy) TTL(tf Timeframe) time.Duration {
	if tf.IsIntraday() {
		if p.Intraday > 0 {
			return p.Intraday
		}
		return defaultIntradayTTL
	}
	if p.Daily > 0 {
		return p.Daily
	}
	return defaultDailyTTL
}
