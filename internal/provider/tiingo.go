package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"candlecache/internal/market"
	"candlecache/internal/pkg/symbol"

	"github.com/tidwall/gjson"
)

const tiingoDefaultBase = "https://api.tiingo.com"

type TiingoConfig struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
	Location    *time.Location
}

func (c *TiingoConfig) withDefaults() TiingoConfig {
	out := *c
	out.BaseURL = strings.TrimRight(strings.TrimSpace(out.BaseURL), "/")
	if out.BaseURL == "" {
		out.BaseURL = tiingoDefaultBase
	}
	if out.Location == nil {
		out.Location = market.DefaultSession().Location
	}
	return out
}

// Tiingo reads end-of-day prices for daily bars and IEX prices for intraday.
type Tiingo struct {
	cfg    TiingoConfig
	client *http.Client
}

func NewTiingo(cfg TiingoConfig) (*Tiingo, error) {
	final := cfg.withDefaults()
	if strings.TrimSpace(final.APIKey) == "" {
		return nil, fmt.Errorf("tiingo: api key is required")
	}
	return &Tiingo{cfg: final, client: newHTTPClient(final.HTTPTimeout)}, nil
}

func (t *Tiingo) Name() string { return "tiingo" }

func tiingoResample(tf market.Timeframe) (string, error) {
	switch tf {
	case market.Timeframe1m:
		return "1min", nil
	case market.Timeframe5m:
		return "5min", nil
	case market.Timeframe15m:
		return "15min", nil
	case market.Timeframe1h:
		return "1hour", nil
	default:
		return "", fmt.Errorf("tiingo: unsupported intraday timeframe %q", tf)
	}
}

func (t *Tiingo) pricesURL(ticker string, tf market.Timeframe, start, end time.Time) (string, error) {
	sym := url.PathEscape(symbol.Tiingo.ToExchange(ticker))
	var u *url.URL
	var err error
	q := url.Values{}
	if tf.IsIntraday() {
		freq, ferr := tiingoResample(tf)
		if ferr != nil {
			return "", ferr
		}
		u, err = url.Parse(fmt.Sprintf("%s/iex/%s/prices", t.cfg.BaseURL, sym))
		q.Set("resampleFreq", freq)
		q.Set("columns", "open,high,low,close,volume")
		q.Set("startDate", start.In(t.cfg.Location).Format(time.DateOnly))
		q.Set("endDate", end.In(t.cfg.Location).Format(time.DateOnly))
	} else {
		u, err = url.Parse(fmt.Sprintf("%s/tiingo/daily/%s/prices", t.cfg.BaseURL, sym))
		q.Set("startDate", start.UTC().Format(time.DateOnly))
		q.Set("endDate", end.UTC().Format(time.DateOnly))
	}
	if err != nil {
		return "", fmt.Errorf("tiingo: parse url: %w", err)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *Tiingo) Fetch(ctx context.Context, ticker string, tf market.Timeframe, start, end time.Time) ([]market.Candle, error) {
	rawURL, err := t.pricesURL(ticker, tf, start, end)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Token "+t.cfg.APIKey)
	body, err := getJSON(ctx, t.client, t.Name(), rawURL, header)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		return nil, fmt.Errorf("tiingo: %s", doc.Get("detail").String())
	}
	rows := doc.Array()
	out := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		c, err := t.parseBar(row, tf)
		if err != nil {
			return nil, fmt.Errorf("tiingo: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (t *Tiingo) parseBar(row gjson.Result, tf market.Timeframe) (market.Candle, error) {
	ts, err := time.Parse(time.RFC3339Nano, row.Get("date").String())
	if err != nil {
		return market.Candle{}, fmt.Errorf("bad date %q: %w", row.Get("date").String(), err)
	}
	if tf.IsIntraday() {
		ts = tf.AlignDown(ts)
	} else {
		// EOD rows are stamped at midnight UTC of the trading date.
		ts = dailyOpen(ts, time.UTC)
	}
	c := market.Candle{Timeframe: tf, Timestamp: ts}
	if c.Open, err = decimalField(row, "open"); err != nil {
		return c, err
	}
	if c.High, err = decimalField(row, "high"); err != nil {
		return c, err
	}
	if c.Low, err = decimalField(row, "low"); err != nil {
		return c, err
	}
	if c.Close, err = decimalField(row, "close"); err != nil {
		return c, err
	}
	if c.Volume, err = decimalField(row, "volume"); err != nil {
		return c, err
	}
	return c, nil
}
