package app

import (
	"fmt"
	"strings"

	cccfg "candlecache/internal/config"
	cfgloader "candlecache/internal/config/loader"
	"candlecache/internal/logger"
	"candlecache/internal/market"
	"candlecache/internal/provider"
)

type StartupSummary struct {
	Env       string
	HTTPAddr  string
	Store     StoreSummary
	Cache     market.TTLPolicy
	Engine    cccfg.EngineConfig
	Session   string
	Holidays  int
	Providers map[market.AssetClass][]provider.Descriptor
}

type StoreSummary struct {
	Driver string
	Target string
}

func newStartupSummary(cfg *cccfg.Config, ladder *provider.Ladder, calendar *cfgloader.CalendarLoader) *StartupSummary {
	s := &StartupSummary{
		Env:       cfg.App.Env,
		HTTPAddr:  cfg.App.HTTPAddr,
		Store:     StoreSummary{Driver: cfg.Store.Driver, Target: storeTarget(cfg.Store)},
		Cache:     cfg.Cache.TTLPolicy(),
		Engine:    cfg.Engine,
		Session:   fmt.Sprintf("%s-%s %s", cfg.Session.Open, cfg.Session.Close, cfg.Session.Timezone),
		Holidays:  len(cfg.Session.Holidays),
		Providers: make(map[market.AssetClass][]provider.Descriptor),
	}
	if calendar != nil {
		s.Holidays = len(calendar.Snapshot().Holidays)
	}
	if ladder != nil {
		for _, class := range []market.AssetClass{market.AssetEquity, market.AssetCrypto} {
			s.Providers[class] = ladder.Providers(class)
		}
	}
	return s
}

// storeTarget hides postgres credentials.
func storeTarget(cfg cccfg.StoreConfig) string {
	switch cfg.Driver {
	case "postgres":
		if i := strings.LastIndex(cfg.DSN, "@"); i >= 0 {
			return cfg.DSN[i+1:]
		}
		return "(dsn)"
	case "memory":
		return "in-process"
	default:
		return cfg.Path
	}
}

// Lines renders the summary one item per line.
func (s *StartupSummary) Lines() []string {
	lines := []string{
		fmt.Sprintf("env: %s  http: %s", s.Env, s.HTTPAddr),
		fmt.Sprintf("store: %s (%s)", s.Store.Driver, s.Store.Target),
		fmt.Sprintf("ttl: intraday=%s daily=%s", s.Cache.Intraday, s.Cache.Daily),
		fmt.Sprintf("engine: parallelism=%d chunk_limit=%s timeout=%s+%s/day (max %s)",
			s.Engine.Parallelism, s.Engine.ChunkLimit, s.Engine.TimeoutBase, s.Engine.TimeoutPerDay, s.Engine.TimeoutMax),
		fmt.Sprintf("session: %s, %d holidays", s.Session, s.Holidays),
	}
	for _, class := range []market.AssetClass{market.AssetEquity, market.AssetCrypto} {
		descs := s.Providers[class]
		if len(descs) == 0 {
			lines = append(lines, fmt.Sprintf("%s ladder: -", class))
			continue
		}
		names := make([]string, 0, len(descs))
		for _, d := range descs {
			names = append(names, fmt.Sprintf("%s(p%d, %.0f/min, span %s)", d.Name, d.Priority, d.RatePerMinute, d.MaxSpan))
		}
		lines = append(lines, fmt.Sprintf("%s ladder: %s", class, strings.Join(names, " -> ")))
	}
	return lines
}

func (s *StartupSummary) Print() {
	logger.InfoBlock("STARTUP SUMMARY\n" + strings.Join(s.Lines(), "\n"))
}
