package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"candlecache/internal/logger"
	"candlecache/internal/market"
	"candlecache/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	defaultParallelism  = 4
	defaultWriteTimeout = 10 * time.Second
)

// GapFetcher fills a gap from upstream providers. Unfilled spans come back
// as residual gaps instead of an error.
type GapFetcher interface {
	FetchGap(ctx context.Context, ticker string, tf market.Timeframe, gap market.Gap, class market.AssetClass) ([]market.Candle, []market.Gap)
}

// Config tunes the engine.
type Config struct {
	Parallelism  int
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Parallelism <= 0 {
		c.Parallelism = defaultParallelism
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

// Deps wires the collaborators of an Engine.
type Deps struct {
	Store      store.Store
	Fetcher    GapFetcher
	Classifier *market.Classifier
	Session    market.Session
}

// Result is the answer to a price data request. Gaps lists the spans no
// provider could fill; a non-empty list is not an error.
type Result struct {
	RequestID  string            `json:"request_id"`
	Ticker     string            `json:"ticker"`
	Timeframe  market.Timeframe  `json:"timeframe"`
	AssetClass market.AssetClass `json:"asset_class"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Series     []market.Candle   `json:"candles"`
	Gaps       []market.Gap      `json:"gaps"`
	Cached     int               `json:"cached"`
	Fetched    int               `json:"fetched"`
}

type Option func(*Engine)

// WithClock overrides the clock used to clamp request ranges and stamp writes.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine serves candle series from the cache, filling gaps through the
// provider ladder and writing fetched bars back.
type Engine struct {
	store      store.Store
	fetcher    GapFetcher
	classifier *market.Classifier
	session    market.Session
	cfg        Config
	now        func() time.Time

	flight singleflight.Group
}

// New builds an Engine. Store and Fetcher are required.
func New(deps Deps, cfg Config, opts ...Option) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("engine: fetcher is required")
	}
	classifier := deps.Classifier
	if classifier == nil {
		classifier = market.NewClassifier(nil)
	}
	e := &Engine{
		store:      deps.Store,
		fetcher:    deps.Fetcher,
		classifier: classifier,
		session:    deps.Session,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// GetPriceData returns the deduplicated ascending series for ticker over
// [start, end]. Only invalid input produces a ConfigError; provider and
// storage failures degrade to residual gaps.
//
// If ctx ends mid-request the partial Result is still returned, with unfilled
// spans in Gaps, alongside ctx.Err(). That error is not a failure of the
// request: callers should check market.IsConfigError and otherwise use the
// Result. In-flight fetches keep running and still populate the cache.
func (e *Engine) GetPriceData(ctx context.Context, ticker, timeframe string, start, end time.Time) (Result, error) {
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return Result{}, err
	}
	norm, class, err := e.classifier.Normalize(ticker)
	if err != nil {
		return Result{}, err
	}
	if start.IsZero() || end.IsZero() {
		return Result{}, market.NewConfigError("range", "start and end are required")
	}
	if end.Before(start) {
		return Result{}, market.NewConfigError("range", "start must not be after end")
	}

	res := Result{
		RequestID:  uuid.NewString(),
		Ticker:     norm,
		Timeframe:  tf,
		AssetClass: class,
		Series:     []market.Candle{},
		Gaps:       []market.Gap{},
	}
	log := logger.With("request_id", res.RequestID, "ticker", norm, "timeframe", string(tf))

	start, end = tf.AlignRange(start, end)
	if latest := tf.AlignDown(e.now()); end.After(latest) {
		end = latest
	}
	res.Start, res.End = start, end
	if start.After(end) {
		log.Debug("range lies in the future", "start", start)
		return res, nil
	}

	cached, err := e.store.ReadFresh(ctx, norm, tf, start, end)
	if err != nil {
		log.Warn("cache read failed, treating as miss", "error", err)
		cached = nil
	}
	res.Cached = len(cached)

	gaps := market.DetectGaps(start, end, cached, tf.Interval())
	if class == market.AssetEquity {
		gaps = e.tradingGaps(gaps, tf)
	}
	if len(gaps) == 0 {
		if cached != nil {
			res.Series = cached
		}
		log.Debug("served from cache", "rows", len(cached))
		return res, nil
	}

	log.Info("filling gaps", "gaps", len(gaps), "cached", len(cached))
	fetched, residual := e.fillGaps(ctx, log, norm, tf, class, gaps)
	fetched = market.ClipRange(fetched, start, end)
	res.Fetched = len(fetched)
	res.Series = market.Merge(cached, fetched)
	if len(residual) > 0 {
		res.Gaps = residual
		log.Warn("residual gaps remain", "gaps", len(residual))
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// Stats summarizes cached rows for ticker@timeframe.
func (e *Engine) Stats(ctx context.Context, ticker, timeframe string) (store.Manifest, error) {
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return store.Manifest{}, err
	}
	norm, _, err := e.classifier.Normalize(ticker)
	if err != nil {
		return store.Manifest{}, err
	}
	return e.store.Stats(ctx, norm, tf)
}

func (e *Engine) tradingGaps(gaps []market.Gap, tf market.Timeframe) []market.Gap {
	out := gaps[:0:0]
	for _, g := range gaps {
		if e.session.HasTradingTime(g, tf) {
			out = append(out, g)
		}
	}
	return out
}

type gapOutcome struct {
	candles  []market.Candle
	residual []market.Gap
}

func (e *Engine) fillGaps(ctx context.Context, log *slog.Logger, ticker string, tf market.Timeframe, class market.AssetClass, gaps []market.Gap) ([]market.Candle, []market.Gap) {
	outcomes := make([]gapOutcome, len(gaps))
	var group errgroup.Group
	group.SetLimit(e.cfg.Parallelism)
	for i, gap := range gaps {
		i, gap := i, gap
		group.Go(func() error {
			outcomes[i] = e.fetchShared(ctx, log, ticker, tf, class, gap)
			return nil
		})
	}
	_ = group.Wait()

	var (
		candles  []market.Candle
		residual []market.Gap
	)
	for _, o := range outcomes {
		candles = append(candles, o.candles...)
		residual = append(residual, o.residual...)
	}
	sort.Slice(residual, func(i, j int) bool { return residual[i].Start.Before(residual[j].Start) })
	return candles, residual
}

// fetchShared coalesces identical in-flight gap fetches. The shared call runs
// on a detached context and writes its bars back itself, so a caller that
// gives up still leaves the cache warm for the next one. It serves several
// requests, so its logs carry the gap key and no request id.
func (e *Engine) fetchShared(ctx context.Context, log *slog.Logger, ticker string, tf market.Timeframe, class market.AssetClass, gap market.Gap) gapOutcome {
	key := fmt.Sprintf("%s|%s|%d|%d", ticker, tf, gap.Start.UnixNano(), gap.End.UnixNano())
	detached := context.WithoutCancel(ctx)
	ch := e.flight.DoChan(key, func() (any, error) {
		shared := logger.With("ticker", ticker, "timeframe", string(tf), "gap", gap.String())
		return e.fetchGap(detached, shared, ticker, tf, class, gap), nil
	})
	select {
	case r := <-ch:
		if r.Shared {
			log.Debug("joined in-flight fetch", "gap", gap.String())
		}
		return r.Val.(gapOutcome)
	case <-ctx.Done():
		return gapOutcome{residual: []market.Gap{gap}}
	}
}

func (e *Engine) fetchGap(ctx context.Context, log *slog.Logger, ticker string, tf market.Timeframe, class market.AssetClass, gap market.Gap) gapOutcome {
	candles, residual := e.fetcher.FetchGap(ctx, ticker, tf, gap, class)
	candles = market.ClipRange(candles, gap.Start, gap.End)
	candles = market.FilterSession(candles, class, e.session)
	e.writeBack(ctx, log, candles)
	return gapOutcome{candles: candles, residual: residual}
}

func (e *Engine) writeBack(ctx context.Context, log *slog.Logger, candles []market.Candle) {
	if len(candles) == 0 {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, e.cfg.WriteTimeout)
	defer cancel()
	records := market.ToRecords(candles, e.now())
	if err := e.store.Upsert(wctx, records); err != nil {
		log.Warn("cache write failed", "rows", len(records), "error", err)
		return
	}
	log.Debug("cached rows", "rows", len(records))
}
