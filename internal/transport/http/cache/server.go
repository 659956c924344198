package cachehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"candlecache/internal/logger"

	"github.com/gin-gonic/gin"
)

const defaultAddr = ":9991"

// Server exposes the candle cache over HTTP.
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig lists the dependencies of the HTTP server.
type ServerConfig struct {
	Addr    string
	Candles CandleService
	Health  HealthReporter
}

// NewServer builds the gin router and registers all routes.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Candles == nil {
		return nil, errors.New("cache http server requires a candle service")
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if cfg.Health != nil {
			body["providers"] = cfg.Health.Health()
		}
		c.JSON(http.StatusOK, body)
	})
	NewRouter(cfg.Candles).Register(router.Group("/api/v1"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if query := c.Request.URL.RawQuery; query != "" {
			path += "?" + query
		}
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", c.Request.Method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("[http] listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
