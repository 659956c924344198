package cachehttp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"candlecache/internal/engine"
	"candlecache/internal/logger"
	"candlecache/internal/market"
	"candlecache/internal/provider"
	"candlecache/internal/store"

	"github.com/gin-gonic/gin"
)

// CandleService is implemented by engine.Engine.
type CandleService interface {
	GetPriceData(ctx context.Context, ticker, timeframe string, start, end time.Time) (engine.Result, error)
	Stats(ctx context.Context, ticker, timeframe string) (store.Manifest, error)
}

// HealthReporter is implemented by provider.Ladder.
type HealthReporter interface {
	Health() []provider.ProviderHealth
}

// Router serves the /api/v1 candle routes.
type Router struct {
	Candles CandleService
}

func NewRouter(candles CandleService) *Router {
	return &Router{Candles: candles}
}

// Register mounts the routes on group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/candles", r.handleCandles)
	group.GET("/cache/:ticker/:timeframe", r.handleCacheStats)
	group.GET("/timeframes", r.handleTimeframes)
}

func (r *Router) handleCandles(c *gin.Context) {
	ticker := c.Query("ticker")
	tf := c.Query("timeframe")
	if ticker == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker and timeframe are required"})
		return
	}
	start, err := parseInstant(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start: " + err.Error()})
		return
	}
	end, err := parseInstant(c.DefaultQuery("end", strconv.FormatInt(time.Now().UnixMilli(), 10)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end: " + err.Error()})
		return
	}
	res, err := r.Candles.GetPriceData(c.Request.Context(), ticker, tf, start, end)
	if err != nil {
		if market.IsConfigError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// The caller went away; whatever was assembled is still returned.
		logger.Warnf("[http] %s %s: %v", ticker, tf, err)
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) handleCacheStats(c *gin.Context) {
	manifest, err := r.Candles.Stats(c.Request.Context(), c.Param("ticker"), c.Param("timeframe"))
	if err != nil {
		if market.IsConfigError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": manifest})
}

func (r *Router) handleTimeframes(c *gin.Context) {
	tfs := market.SupportedTimeframes()
	out := make([]gin.H, 0, len(tfs))
	for _, tf := range tfs {
		out = append(out, gin.H{"timeframe": tf, "interval": tf.Interval().String(), "intraday": tf.IsIntraday()})
	}
	c.JSON(http.StatusOK, gin.H{"timeframes": out})
}

// parseInstant accepts RFC3339, a plain date or unix milliseconds.
func parseInstant(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("value is required")
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q", raw)
}
