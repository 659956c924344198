package provider

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"candlecache/internal/logger"
	"candlecache/internal/market"
)

const (
	// DefaultChunkLimit bounds a single upstream call regardless of provider.
	DefaultChunkLimit    = 90 * 24 * time.Hour
	defaultTimeoutBase   = 10 * time.Second
	defaultTimeoutPerDay = 200 * time.Millisecond
	defaultTimeoutMax    = 2 * time.Minute
)

// LadderConfig tunes chunking and per-call timeouts.
type LadderConfig struct {
	ChunkLimit    time.Duration
	TimeoutBase   time.Duration
	TimeoutPerDay time.Duration
	TimeoutMax    time.Duration
}

func (c LadderConfig) withDefaults() LadderConfig {
	out := c
	if out.ChunkLimit <= 0 {
		out.ChunkLimit = DefaultChunkLimit
	}
	if out.TimeoutBase <= 0 {
		out.TimeoutBase = defaultTimeoutBase
	}
	if out.TimeoutPerDay <= 0 {
		out.TimeoutPerDay = defaultTimeoutPerDay
	}
	if out.TimeoutMax <= 0 {
		out.TimeoutMax = defaultTimeoutMax
	}
	if out.TimeoutMax < out.TimeoutBase {
		out.TimeoutMax = out.TimeoutBase
	}
	return out
}

// Ladder is the immutable per-asset-class fallback chain of providers.
type Ladder struct {
	cfg     LadderConfig
	byClass map[market.AssetClass][]*guarded
}

// NewLadder orders entries by ascending priority within each asset class.
func NewLadder(cfg LadderConfig, entries ...Entry) (*Ladder, error) {
	l := &Ladder{
		cfg:     cfg.withDefaults(),
		byClass: make(map[market.AssetClass][]*guarded),
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("ladder: nil provider %q", e.Descriptor.Name)
		}
		g := newGuarded(e)
		if _, dup := seen[g.desc.Name]; dup {
			return nil, fmt.Errorf("ladder: duplicate provider %q", g.desc.Name)
		}
		seen[g.desc.Name] = struct{}{}
		if len(g.desc.AssetClasses) == 0 {
			return nil, fmt.Errorf("ladder: provider %q serves no asset class", g.desc.Name)
		}
		for _, class := range g.desc.AssetClasses {
			l.byClass[class] = append(l.byClass[class], g)
		}
	}
	for class := range l.byClass {
		rungs := l.byClass[class]
		sort.SliceStable(rungs, func(i, j int) bool {
			return rungs[i].desc.Priority < rungs[j].desc.Priority
		})
	}
	return l, nil
}

// Providers lists the descriptors serving class in ladder order.
func (l *Ladder) Providers(class market.AssetClass) []Descriptor {
	rungs := l.byClass[class]
	out := make([]Descriptor, 0, len(rungs))
	for _, g := range rungs {
		out = append(out, g.desc)
	}
	return out
}

// ChunkSpan is the widest span every provider of class accepts, capped by
// the general chunk limit.
func (l *Ladder) ChunkSpan(class market.AssetClass) time.Duration {
	span := l.cfg.ChunkLimit
	for _, g := range l.byClass[class] {
		if g.desc.MaxSpan > 0 && g.desc.MaxSpan < span {
			span = g.desc.MaxSpan
		}
	}
	return span
}

// CallTimeout grows with the chunk width and is capped.
func (l *Ladder) CallTimeout(chunk market.Gap) time.Duration {
	days := math.Ceil(chunk.Span().Hours() / 24)
	if days < 1 {
		days = 1
	}
	timeout := l.cfg.TimeoutBase + time.Duration(days)*l.cfg.TimeoutPerDay
	if timeout > l.cfg.TimeoutMax {
		timeout = l.cfg.TimeoutMax
	}
	return timeout
}

// ProviderHealth reports breaker state per provider.
type ProviderHealth struct {
	Name     string     `json:"name"`
	Priority int        `json:"priority"`
	Circuit  string     `json:"circuit"`
	Failures int        `json:"failures"`
	RetryAt  *time.Time `json:"retry_at,omitempty"`
}

// Health lists every provider once with its breaker state.
func (l *Ladder) Health() []ProviderHealth {
	seen := make(map[string]struct{})
	var out []ProviderHealth
	for _, rungs := range l.byClass {
		for _, g := range rungs {
			if _, ok := seen[g.desc.Name]; ok {
				continue
			}
			seen[g.desc.Name] = struct{}{}
			snap := g.snapshot()
			h := ProviderHealth{Name: g.desc.Name, Priority: g.desc.Priority, Circuit: snap.State.String(), Failures: snap.Failures}
			if !snap.RetryAt.IsZero() {
				retry := snap.RetryAt
				h.RetryAt = &retry
			}
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// FetchGap fills gap chunk by chunk. Each chunk walks the ladder until one
// provider returns rows; chunks nobody can fill come back as residual gaps.
// Provider failures never surface as an error.
func (l *Ladder) FetchGap(ctx context.Context, ticker string, tf market.Timeframe, gap market.Gap, class market.AssetClass) ([]market.Candle, []market.Gap) {
	rungs := l.byClass[class]
	if len(rungs) == 0 {
		logger.Warnf("[ladder] no provider for %s (%s), gap %s left open", class, ticker, gap)
		return nil, []market.Gap{gap}
	}
	chunks := market.SplitGap(gap, l.ChunkSpan(class), tf.Interval())
	var (
		candles  []market.Candle
		residual []market.Gap
	)
	for _, chunk := range chunks {
		got, ok := l.fetchChunk(ctx, rungs, ticker, tf, chunk)
		if !ok {
			residual = append(residual, chunk)
			continue
		}
		candles = append(candles, got...)
	}
	return candles, residual
}

func (l *Ladder) fetchChunk(ctx context.Context, rungs []*guarded, ticker string, tf market.Timeframe, chunk market.Gap) ([]market.Candle, bool) {
	timeout := l.CallTimeout(chunk)
	for _, g := range rungs {
		if ctx.Err() != nil {
			return nil, false
		}
		started := time.Now()
		got, err := g.fetch(ctx, timeout, ticker, tf, chunk.Start, chunk.End)
		if err == nil {
			got = normalize(got, ticker, tf, chunk)
			if len(got) == 0 {
				err = ErrEmptyResult
			}
		}
		if err != nil {
			logger.Warnf("[ladder] %s %s@%s %s failed (%s) after %s: %v",
				g.desc.Name, ticker, tf, chunk, failureReason(err), time.Since(started).Round(time.Millisecond), err)
			continue
		}
		logger.Debugf("[ladder] %s %s@%s %s -> %d candles", g.desc.Name, ticker, tf, chunk, len(got))
		return got, true
	}
	return nil, false
}

// normalize stamps the request key on provider rows, moves them to UTC and
// keeps only bar opens inside the chunk.
func normalize(in []market.Candle, ticker string, tf market.Timeframe, chunk market.Gap) []market.Candle {
	out := make([]market.Candle, 0, len(in))
	for _, c := range in {
		c.Ticker = ticker
		c.Timeframe = tf
		c.Timestamp = c.Timestamp.UTC()
		if c.Timestamp.Before(chunk.Start) || c.Timestamp.After(chunk.End) {
			continue
		}
		out = append(out, c)
	}
	return out
}
