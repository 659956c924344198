package config

import (
	"fmt"
	"strings"
	"time"

	"candlecache/internal/market"
)

// validate checks the decoded configuration.
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Cache.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}
	if err := c.Tickers.validate(); err != nil {
		return err
	}
	return validateProviders(c.Providers)
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level must be debug|info|warn|error, got %q", a.LogLevel)
	}
	switch strings.ToLower(a.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text|json, got %q", a.LogFormat)
	}
	return nil
}

func (s *StoreConfig) validate() error {
	switch s.Driver {
	case "sqlite":
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("store.path is required for sqlite")
		}
	case "postgres":
		if s.DSN == "" {
			return fmt.Errorf("store.dsn is required for postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver must be sqlite|postgres|memory, got %q", s.Driver)
	}
	if s.MaxOpenConns < 0 || s.BatchSize < 0 {
		return fmt.Errorf("store.max_open_conns and store.batch_size must be >= 0")
	}
	return nil
}

func (c *CacheConfig) validate() error {
	if c.IntradayTTL <= 0 || c.DailyTTL <= 0 {
		return fmt.Errorf("cache.intraday_ttl and cache.daily_ttl must be positive")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.Parallelism <= 0 {
		return fmt.Errorf("engine.parallelism must be >= 1")
	}
	if e.ChunkLimit < 24*time.Hour {
		return fmt.Errorf("engine.chunk_limit must be at least 24h, got %s", e.ChunkLimit)
	}
	if e.TimeoutMax < e.TimeoutBase {
		return fmt.Errorf("engine.timeout_max (%s) must be >= engine.timeout_base (%s)", e.TimeoutMax, e.TimeoutBase)
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if _, err := s.Build(); err != nil {
		return err
	}
	return nil
}

func (t *TickerConfig) validate() error {
	for ticker, class := range t.AssetClasses {
		if _, err := market.ParseAssetClass(class); err != nil {
			return fmt.Errorf("tickers.asset_classes.%s: %w", ticker, err)
		}
	}
	return nil
}

var knownProviderTypes = map[string]struct{}{
	"polygon": {},
	"tiingo":  {},
	"binance": {},
}

func validateProviders(list []ProviderConfig) error {
	seen := make(map[string]struct{}, len(list))
	for _, p := range list {
		if _, ok := knownProviderTypes[p.Type]; !ok {
			return fmt.Errorf("providers.%s: unknown type %q", p.Name, p.Type)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("providers: duplicate name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Priority < 0 {
			return fmt.Errorf("providers.%s: priority must be >= 0", p.Name)
		}
		for _, c := range p.AssetClasses {
			if _, err := market.ParseAssetClass(c); err != nil {
				return fmt.Errorf("providers.%s: %w", p.Name, err)
			}
		}
		if p.RatePerMinute < 0 {
			return fmt.Errorf("providers.%s: rate_per_minute must be >= 0", p.Name)
		}
	}
	return nil
}
