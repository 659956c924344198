package app

import (
	"context"
	"errors"
	"fmt"

	cccfg "candlecache/internal/config"
	cfgloader "candlecache/internal/config/loader"
	"candlecache/internal/engine"
	"candlecache/internal/logger"
	"candlecache/internal/provider"
	"candlecache/internal/store"
	cachehttp "candlecache/internal/transport/http/cache"

	"golang.org/x/sync/errgroup"
)

// App owns the wired service: store, provider ladder, engine and HTTP server.
type App struct {
	cfg      *cccfg.Config
	store    store.Store
	ladder   *provider.Ladder
	engine   *engine.Engine
	http     *cachehttp.Server
	calendar *cfgloader.CalendarLoader
	Summary  *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *cccfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run serves HTTP until ctx is cancelled, then closes the store.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		return nil
	})
	err := group.Wait()
	return errors.Join(err, a.Close())
}

// Close releases the store.
func (a *App) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// Engine exposes the cache engine for embedding callers and tests.
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

// HTTP returns the HTTP server.
func (a *App) HTTP() *cachehttp.Server {
	if a == nil {
		return nil
	}
	return a.http
}
