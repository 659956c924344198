package cachehttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"candlecache/internal/engine"
	"candlecache/internal/market"
	"candlecache/internal/provider"
	"candlecache/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) GetPriceData(ctx context.Context, ticker, timeframe string, start, end time.Time) (engine.Result, error) {
	args := m.Called(ticker, timeframe, start, end)
	return args.Get(0).(engine.Result), args.Error(1)
}

func (m *mockService) Stats(ctx context.Context, ticker, timeframe string) (store.Manifest, error) {
	args := m.Called(ticker, timeframe)
	return args.Get(0).(store.Manifest), args.Error(1)
}

type staticHealth []provider.ProviderHealth

func (h staticHealth) Health() []provider.ProviderHealth { return h }

func newTestServer(t *testing.T, svc CandleService) http.Handler {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Candles: svc,
		Health:  staticHealth{{Name: "polygon", Priority: 1, Circuit: "CLOSED"}},
	})
	require.NoError(t, err)
	return srv.Handler()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestCandlesReturnsPartialSeriesWithGaps(t *testing.T) {
	start, _ := time.Parse(time.DateOnly, "2024-01-01")
	end, _ := time.Parse(time.DateOnly, "2024-01-10")
	px := decimal.RequireFromString("185.64")
	svc := &mockService{}
	svc.On("GetPriceData", "AAPL", "1d", start, end).Return(engine.Result{
		Ticker:    "AAPL",
		Timeframe: market.Timeframe1d,
		Series: []market.Candle{
			{Ticker: "AAPL", Timeframe: market.Timeframe1d, Timestamp: start.AddDate(0, 0, 1), Open: px, High: px, Low: px, Close: px, Volume: decimal.NewFromInt(100)},
		},
		Gaps: []market.Gap{{Start: start.AddDate(0, 0, 5), End: end}},
	}, nil)

	rec := get(t, newTestServer(t, svc), "/api/v1/candles?ticker=AAPL&timeframe=1d&start=2024-01-01&end=2024-01-10")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Candles []struct {
			Timestamp time.Time `json:"timestamp"`
			Close     string    `json:"close"`
		} `json:"candles"`
		Gaps []market.Gap `json:"gaps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Candles, 1)
	assert.Equal(t, "185.64", body.Candles[0].Close)
	require.Len(t, body.Gaps, 1)
	assert.True(t, body.Gaps[0].End.Equal(end))
	svc.AssertExpectations(t)
}

func TestCandlesMapsConfigErrorTo400(t *testing.T) {
	svc := &mockService{}
	svc.On("GetPriceData", "AAPL", "7m", mock.Anything, mock.Anything).
		Return(engine.Result{}, market.NewConfigError("timeframe", `unsupported timeframe "7m"`))

	rec := get(t, newTestServer(t, svc), "/api/v1/candles?ticker=AAPL&timeframe=7m&start=1704067200000&end=1704844800000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported timeframe")
}

func TestCandlesValidatesQuery(t *testing.T) {
	h := newTestServer(t, &mockService{})
	for _, target := range []string{
		"/api/v1/candles?timeframe=1d&start=2024-01-01",
		"/api/v1/candles?ticker=AAPL&timeframe=1d",
		"/api/v1/candles?ticker=AAPL&timeframe=1d&start=yesterday",
		"/api/v1/candles?ticker=AAPL&timeframe=1d&start=2024-01-01&end=soon",
	} {
		assert.Equal(t, http.StatusBadRequest, get(t, h, target).Code, target)
	}
}

func TestCandlesNeverFailsOnCancelledRequest(t *testing.T) {
	svc := &mockService{}
	svc.On("GetPriceData", "BTC/USDT", "1h", mock.Anything, mock.Anything).
		Return(engine.Result{Ticker: "BTC/USDT", Series: []market.Candle{}, Gaps: []market.Gap{}}, context.Canceled)

	rec := get(t, newTestServer(t, svc), "/api/v1/candles?ticker=BTC/USDT&timeframe=1h&start=2024-01-01T00:00:00Z&end=2024-01-02T00:00:00Z")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCacheStats(t *testing.T) {
	svc := &mockService{}
	svc.On("Stats", "AAPL", "1d").Return(store.Manifest{Ticker: "AAPL", Timeframe: "1d", Rows: 10}, nil)
	svc.On("Stats", "MSFT", "1d").Return(store.Manifest{}, &store.StorageError{Op: "stats", Err: errors.New("database is locked")})
	h := newTestServer(t, svc)

	rec := get(t, h, "/api/v1/cache/AAPL/1d")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rows":10`)

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/v1/cache/MSFT/1d").Code)
}

func TestHealthzListsProviders(t *testing.T) {
	rec := get(t, newTestServer(t, &mockService{}), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"circuit":"CLOSED"`)
}

func TestTimeframes(t *testing.T) {
	rec := get(t, newTestServer(t, &mockService{}), "/api/v1/timeframes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"timeframe":"1d"`)
}

func TestNewServerRequiresService(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestParseInstant(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2024-01-01", "2024-01-01T00:00:00Z", "1704067200000", "2024-01-01T01:00:00+01:00"} {
		got, err := parseInstant(raw)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), raw)
	}
	_, err := parseInstant("")
	assert.Error(t, err)
}
