package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cccfg "candlecache/internal/config"
	cfgloader "candlecache/internal/config/loader"
	"candlecache/internal/engine"
	"candlecache/internal/logger"
	"candlecache/internal/market"
	"candlecache/internal/provider"
	"candlecache/internal/store"
	cachehttp "candlecache/internal/transport/http/cache"
)

type AppBuilder struct {
	cfg *cccfg.Config

	storeFn    func(context.Context, store.Config, ...store.Option) (store.Store, error)
	calendarFn func(string) (*cfgloader.CalendarLoader, error)
	ladderFn   func(provider.LadderConfig, []provider.Settings) (*provider.Ladder, error)
	httpFn     func(cachehttp.ServerConfig) (*cachehttp.Server, error)
	engineOpts []engine.Option
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *cccfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		storeFn:    store.Open,
		calendarFn: loadCalendar,
		ladderFn:   provider.BuildLadder,
		httpFn:     cachehttp.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithStore replaces the configured store backend.
func WithStore(st store.Store) AppBuilderOption {
	return func(b *AppBuilder) {
		if st == nil {
			return
		}
		b.storeFn = func(context.Context, store.Config, ...store.Option) (store.Store, error) { return st, nil }
	}
}

// WithEntries replaces the configured providers with prebuilt ones.
func WithEntries(entries ...provider.Entry) AppBuilderOption {
	return func(b *AppBuilder) {
		b.ladderFn = func(cfg provider.LadderConfig, _ []provider.Settings) (*provider.Ladder, error) {
			return provider.NewLadder(cfg, entries...)
		}
	}
}

// WithEngineOptions forwards options to the engine, e.g. a test clock.
func WithEngineOptions(opts ...engine.Option) AppBuilderOption {
	return func(b *AppBuilder) {
		b.engineOpts = append(b.engineOpts, opts...)
	}
}

func loadCalendar(path string) (*cfgloader.CalendarLoader, error) {
	if err := cfgloader.EnsureCalendar(path); err != nil {
		return nil, err
	}
	return cfgloader.NewCalendarLoader(path, true)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, errors.New("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFormat)

	session, calendar, err := b.buildSession(cfg.Session)
	if err != nil {
		return nil, err
	}

	policy := cfg.Cache.TTLPolicy()
	st, err := b.storeFn(ctx, cfg.Store.StoreConfig(), store.WithTTLPolicy(policy))
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	logger.Infof("✓ candle store ready (driver=%s)", cfg.Store.Driver)

	settings, err := providerSettings(cfg.Providers, session.Location)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	ladder, err := b.ladderFn(cfg.Engine.LadderConfig(), settings)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build provider ladder: %w", err)
	}
	for _, class := range []market.AssetClass{market.AssetEquity, market.AssetCrypto} {
		if len(ladder.Providers(class)) == 0 {
			logger.Warnf("no provider serves %s tickers; such requests will return gaps only", class)
		}
	}

	eng, err := engine.New(engine.Deps{
		Store:      st,
		Fetcher:    ladder,
		Classifier: market.NewClassifier(cfg.Tickers.Overrides()),
		Session:    session,
	}, engine.Config{
		Parallelism:  cfg.Engine.Parallelism,
		WriteTimeout: cfg.Engine.WriteTimeout,
	}, b.engineOpts...)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	srv, err := b.httpFn(cachehttp.ServerConfig{Addr: cfg.App.HTTPAddr, Candles: eng, Health: ladder})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build http server: %w", err)
	}

	return &App{
		cfg:      cfg,
		store:    st,
		ladder:   ladder,
		engine:   eng,
		http:     srv,
		calendar: calendar,
		Summary:  newStartupSummary(cfg, ladder, calendar),
	}, nil
}

// buildSession resolves the session and, when a calendar file is configured,
// swaps the inline holidays for the hot-reloaded file.
func (b *AppBuilder) buildSession(cfg cccfg.SessionConfig) (market.Session, *cfgloader.CalendarLoader, error) {
	session, err := cfg.Build()
	if err != nil {
		return market.Session{}, nil, err
	}
	path := strings.TrimSpace(cfg.CalendarPath)
	if path == "" {
		return session, nil, nil
	}
	calendar, err := b.calendarFn(path)
	if err != nil {
		return market.Session{}, nil, fmt.Errorf("load holiday calendar: %w", err)
	}
	calendar.Subscribe(func(snap cfgloader.CalendarSnapshot) {
		logger.Infof("[calendar] %s v%d: %d holidays", snap.Exchange, snap.Version, len(snap.Holidays))
	})
	session.Calendar = calendar
	return session, calendar, nil
}

// providerSettings drops disabled rungs and keyed providers lacking a key.
func providerSettings(list []cccfg.ProviderConfig, loc *time.Location) ([]provider.Settings, error) {
	out := make([]provider.Settings, 0, len(list))
	for _, p := range list {
		if p.Disabled {
			logger.Infof("[providers] %s disabled", p.Name)
			continue
		}
		if p.RequiresKey() && strings.TrimSpace(p.APIKey) == "" {
			logger.Warnf("[providers] %s skipped: api_key is empty", p.Name)
			continue
		}
		s, err := p.Settings(loc)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
