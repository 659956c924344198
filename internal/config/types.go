package config

import (
	"strings"
	"time"
)

// Config is the root configuration of the candle cache service.
type Config struct {
	App       AppConfig        `toml:"app"`
	Store     StoreConfig      `toml:"store"`
	Cache     CacheConfig      `toml:"cache"`
	Engine    EngineConfig     `toml:"engine"`
	Session   SessionConfig    `toml:"session"`
	Tickers   TickerConfig     `toml:"tickers"`
	Providers []ProviderConfig `toml:"providers"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogPath   string `toml:"log_path"`
	HTTPAddr  string `toml:"http_addr"`
}

type StoreConfig struct {
	// Driver is one of sqlite, postgres or memory.
	Driver       string `toml:"driver"`
	Path         string `toml:"path"`
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	BatchSize    int    `toml:"batch_size"`
}

// CacheConfig holds the freshness windows per timeframe class.
type CacheConfig struct {
	IntradayTTL time.Duration `toml:"intraday_ttl"`
	DailyTTL    time.Duration `toml:"daily_ttl"`
}

type EngineConfig struct {
	Parallelism   int           `toml:"parallelism"`
	ChunkLimit    time.Duration `toml:"chunk_limit"`
	TimeoutBase   time.Duration `toml:"timeout_base"`
	TimeoutPerDay time.Duration `toml:"timeout_per_day"`
	TimeoutMax    time.Duration `toml:"timeout_max"`
	WriteTimeout  time.Duration `toml:"write_timeout"`
}

type SessionConfig struct {
	Timezone     string   `toml:"timezone"`
	Open         string   `toml:"open"`
	Close        string   `toml:"close"`
	CalendarPath string   `toml:"calendar_path"`
	Holidays     []string `toml:"holidays"`
}

type TickerConfig struct {
	// AssetClasses pins tickers to equity or crypto, overriding detection.
	AssetClasses map[string]string `toml:"asset_classes"`
}

// ProviderConfig is one rung of the provider ladder.
type ProviderConfig struct {
	Name             string        `toml:"name"`
	Type             string        `toml:"type"`
	Disabled         bool          `toml:"disabled"`
	Priority         int           `toml:"priority"`
	AssetClasses     []string      `toml:"asset_classes"`
	MaxSpan          time.Duration `toml:"max_span"`
	RatePerMinute    float64       `toml:"rate_per_minute"`
	Burst            int           `toml:"burst"`
	Concurrency      int           `toml:"concurrency"`
	BreakerThreshold int           `toml:"breaker_threshold"`
	BreakerCooldown  time.Duration `toml:"breaker_cooldown"`
	BaseURL          string        `toml:"base_url"`
	APIKey           string        `toml:"api_key"`
	SecretKey        string        `toml:"secret_key"`
	HTTPTimeout      time.Duration `toml:"http_timeout"`
}

// RequiresKey reports whether the provider type cannot work without an API key.
func (p ProviderConfig) RequiresKey() bool {
	switch strings.ToLower(strings.TrimSpace(p.Type)) {
	case "polygon", "tiingo":
		return true
	default:
		return false
	}
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
