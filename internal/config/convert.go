package config

import (
	"fmt"
	"time"

	"candlecache/internal/market"
	"candlecache/internal/provider"
	"candlecache/internal/store"
)

// Build resolves the configured trading session. Holidays listed inline are
// used as a static calendar; the calendar file, when set, replaces them at
// wiring time.
func (s *SessionConfig) Build() (market.Session, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return market.Session{}, fmt.Errorf("session.timezone %q: %w", s.Timezone, err)
	}
	open, err := market.ParseClock(s.Open)
	if err != nil {
		return market.Session{}, fmt.Errorf("session.open: %w", err)
	}
	closeAt, err := market.ParseClock(s.Close)
	if err != nil {
		return market.Session{}, fmt.Errorf("session.close: %w", err)
	}
	if closeAt <= open {
		return market.Session{}, fmt.Errorf("session.close (%s) must be after session.open (%s)", s.Close, s.Open)
	}
	holidays, err := market.NewHolidays(s.Holidays...)
	if err != nil {
		return market.Session{}, err
	}
	return market.Session{Location: loc, Open: open, Close: closeAt, Calendar: holidays}, nil
}

func (c *CacheConfig) TTLPolicy() market.TTLPolicy {
	return market.TTLPolicy{Intraday: c.IntradayTTL, Daily: c.DailyTTL}
}

func (e *EngineConfig) LadderConfig() provider.LadderConfig {
	return provider.LadderConfig{
		ChunkLimit:    e.ChunkLimit,
		TimeoutBase:   e.TimeoutBase,
		TimeoutPerDay: e.TimeoutPerDay,
		TimeoutMax:    e.TimeoutMax,
	}
}

func (s *StoreConfig) StoreConfig() store.Config {
	return store.Config{
		Driver:       s.Driver,
		Path:         s.Path,
		DSN:          s.DSN,
		MaxOpenConns: s.MaxOpenConns,
		BatchSize:    s.BatchSize,
	}
}

// Overrides returns the parsed ticker asset class overrides.
func (t *TickerConfig) Overrides() map[string]market.AssetClass {
	out := make(map[string]market.AssetClass, len(t.AssetClasses))
	for ticker, raw := range t.AssetClasses {
		class, err := market.ParseAssetClass(raw)
		if err != nil {
			continue
		}
		out[ticker] = class
	}
	return out
}

// Settings converts a provider entry into registry settings.
func (p ProviderConfig) Settings(loc *time.Location) (provider.Settings, error) {
	classes := make([]market.AssetClass, 0, len(p.AssetClasses))
	for _, raw := range p.AssetClasses {
		class, err := market.ParseAssetClass(raw)
		if err != nil {
			return provider.Settings{}, fmt.Errorf("providers.%s: %w", p.Name, err)
		}
		classes = append(classes, class)
	}
	return provider.Settings{
		Name:        p.Name,
		Type:        p.Type,
		BaseURL:     p.BaseURL,
		APIKey:      p.APIKey,
		SecretKey:   p.SecretKey,
		HTTPTimeout: p.HTTPTimeout,
		Location:    loc,
		Descriptor: provider.Descriptor{
			Name:             p.Name,
			Priority:         p.Priority,
			AssetClasses:     classes,
			MaxSpan:          p.MaxSpan,
			RatePerMinute:    p.RatePerMinute,
			Burst:            p.Burst,
			Concurrency:      p.Concurrency,
			BreakerThreshold: p.BreakerThreshold,
			BreakerCooldown:  p.BreakerCooldown,
		},
	}, nil
}
