package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogFormat    = "text"
	defaultAppHTTPAddr     = ":9991"
	defaultStoreDriver     = "sqlite"
	defaultStorePath       = "data/candles.db"
	defaultIntradayTTL     = time.Hour
	defaultDailyTTL        = 24 * time.Hour
	defaultParallelism     = 4
	defaultChunkLimit      = 90 * 24 * time.Hour
	defaultTimeoutBase     = 10 * time.Second
	defaultTimeoutPerDay   = 200 * time.Millisecond
	defaultTimeoutMax      = 2 * time.Minute
	defaultWriteTimeout    = 30 * time.Second
	defaultTimezone        = "America/New_York"
	defaultSessionOpen     = "09:30"
	defaultSessionClose    = "16:00"
	defaultProviderSpan    = 90 * 24 * time.Hour
	defaultBreakerCool     = time.Minute
	defaultProviderTimeout = 30 * time.Second
)

// applyDefaults fills every key the config files left unset.
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Cache.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Session.applyDefaults(keys)
	if !keys.isSet("providers") {
		c.Providers = defaultProviders()
	}
	for i := range c.Providers {
		c.Providers[i].applyDefaults(i)
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.driver", &s.Driver, defaultStoreDriver),
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	s.DSN = strings.TrimSpace(os.ExpandEnv(s.DSN))
}

func (c *CacheConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		durationFieldDefault("cache.intraday_ttl", &c.IntradayTTL, defaultIntradayTTL),
		durationFieldDefault("cache.daily_ttl", &c.DailyTTL, defaultDailyTTL),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "engine.parallelism",
			need:  func() bool { return e.Parallelism <= 0 },
			apply: func() { e.Parallelism = defaultParallelism },
		},
		durationFieldDefault("engine.chunk_limit", &e.ChunkLimit, defaultChunkLimit),
		durationFieldDefault("engine.timeout_base", &e.TimeoutBase, defaultTimeoutBase),
		durationFieldDefault("engine.timeout_per_day", &e.TimeoutPerDay, defaultTimeoutPerDay),
		durationFieldDefault("engine.timeout_max", &e.TimeoutMax, defaultTimeoutMax),
		durationFieldDefault("engine.write_timeout", &e.WriteTimeout, defaultWriteTimeout),
	)
}

func (s *SessionConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("session.timezone", &s.Timezone, defaultTimezone),
		stringFieldDefault("session.open", &s.Open, defaultSessionOpen),
		stringFieldDefault("session.close", &s.Close, defaultSessionClose),
	)
}

// applyDefaults normalizes one provider entry; list entries have no key paths.
func (p *ProviderConfig) applyDefaults(idx int) {
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		if p.Type != "" {
			p.Name = p.Type
		} else {
			p.Name = fmt.Sprintf("provider_%d", idx)
		}
	}
	if len(p.AssetClasses) == 0 {
		switch p.Type {
		case "binance":
			p.AssetClasses = []string{"crypto"}
		default:
			p.AssetClasses = []string{"equity"}
		}
	}
	for i, c := range p.AssetClasses {
		p.AssetClasses[i] = strings.ToLower(strings.TrimSpace(c))
	}
	if p.MaxSpan <= 0 {
		p.MaxSpan = defaultProviderSpan
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	if p.BreakerCooldown <= 0 {
		p.BreakerCooldown = defaultBreakerCool
	}
	if p.HTTPTimeout <= 0 {
		p.HTTPTimeout = defaultProviderTimeout
	}
	p.BaseURL = strings.TrimSpace(os.ExpandEnv(p.BaseURL))
	p.APIKey = strings.TrimSpace(os.ExpandEnv(p.APIKey))
	p.SecretKey = strings.TrimSpace(os.ExpandEnv(p.SecretKey))
}

// defaultProviders is the stock ladder: Polygon then Tiingo for equities,
// Binance for crypto. Keys come from the environment.
func defaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{Name: "polygon", Type: "polygon", Priority: 1, AssetClasses: []string{"equity"}, RatePerMinute: 5, Burst: 1, BreakerThreshold: 3, APIKey: "${POLYGON_API_KEY}"},
		{Name: "tiingo", Type: "tiingo", Priority: 2, AssetClasses: []string{"equity"}, RatePerMinute: 50, Burst: 5, BreakerThreshold: 3, APIKey: "${TIINGO_API_KEY}"},
		{Name: "binance", Type: "binance", Priority: 1, AssetClasses: []string{"crypto"}, RatePerMinute: 600, Burst: 10, Concurrency: 2, BreakerThreshold: 5},
	}
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func durationFieldDefault(key string, target *time.Duration, def time.Duration) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
