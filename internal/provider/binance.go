package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"candlecache/internal/market"
	"candlecache/internal/pkg/symbol"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
)

const (
	binanceDefaultBase = "https://api.binance.com"
	binancePageLimit   = 1000
)

type BinanceConfig struct {
	RESTBaseURL string
	APIKey      string
	SecretKey   string
	HTTPTimeout time.Duration
}

func (c *BinanceConfig) withDefaults() BinanceConfig {
	out := *c
	out.RESTBaseURL = strings.TrimRight(strings.TrimSpace(out.RESTBaseURL), "/")
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = binanceDefaultBase
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	return out
}

// Binance reads spot klines through the go-binance SDK.
type Binance struct {
	cfg    BinanceConfig
	client *binance.Client
}

func NewBinance(cfg BinanceConfig) *Binance {
	final := cfg.withDefaults()
	client := binance.NewClient(final.APIKey, final.SecretKey)
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = &http.Client{
		Timeout:   final.HTTPTimeout,
		Transport: &statusTransport{provider: "binance", next: http.DefaultTransport},
	}
	return &Binance{cfg: final, client: client}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) Fetch(ctx context.Context, ticker string, tf market.Timeframe, start, end time.Time) ([]market.Candle, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("binance: unsupported timeframe %q", tf)
	}
	pair := symbol.Binance.ToExchange(ticker)
	if pair == "" {
		return nil, fmt.Errorf("binance: cannot map ticker %q", ticker)
	}
	step := tf.Interval()
	cursor := start.UTC()
	var out []market.Candle
	for !cursor.After(end) {
		kls, err := b.client.NewKlinesService().
			Symbol(pair).
			Interval(tf.String()).
			StartTime(cursor.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(binancePageLimit).
			Do(ctx)
		if err != nil {
			return nil, classifyBinanceErr(err)
		}
		for _, kl := range kls {
			if kl == nil {
				continue
			}
			c, err := klineCandle(kl, tf)
			if err != nil {
				return nil, fmt.Errorf("binance: %w", err)
			}
			out = append(out, c)
		}
		if len(kls) < binancePageLimit {
			break
		}
		last := kls[len(kls)-1]
		cursor = time.UnixMilli(last.OpenTime).UTC().Add(step)
	}
	return out, nil
}

func klineCandle(kl *binance.Kline, tf market.Timeframe) (market.Candle, error) {
	c := market.Candle{Timeframe: tf, Timestamp: time.UnixMilli(kl.OpenTime).UTC()}
	var err error
	if c.Open, err = decimal.NewFromString(kl.Open); err != nil {
		return c, err
	}
	if c.High, err = decimal.NewFromString(kl.High); err != nil {
		return c, err
	}
	if c.Low, err = decimal.NewFromString(kl.Low); err != nil {
		return c, err
	}
	if c.Close, err = decimal.NewFromString(kl.Close); err != nil {
		return c, err
	}
	if c.Volume, err = decimal.NewFromString(kl.Volume); err != nil {
		return c, err
	}
	return c, nil
}

// Binance weight errors: -1003 too many requests, -1015 too many orders.
func classifyBinanceErr(err error) error {
	if errors.Is(err, ErrRateLimited) || IsTransient(err) {
		return err
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && (apiErr.Code == -1003 || apiErr.Code == -1015) {
		return fmt.Errorf("binance: %w: %s", ErrRateLimited, apiErr.Message)
	}
	return fmt.Errorf("binance: %w", err)
}

// statusTransport turns 429/418 and 5xx answers into ladder errors before
// the SDK tries to decode them.
type statusTransport struct {
	provider string
	next     http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, transient(t.provider, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
		drain(resp)
		return nil, fmt.Errorf("%s: %w (status %d)", t.provider, ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		drain(resp)
		return nil, transient(t.provider, fmt.Errorf("status %d", resp.StatusCode))
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}
