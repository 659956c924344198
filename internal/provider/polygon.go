package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"candlecache/internal/market"
	"candlecache/internal/pkg/symbol"

	"github.com/tidwall/gjson"
)

const (
	polygonDefaultBase = "https://api.polygon.io"
	polygonPageLimit   = 50000
	polygonMaxPages    = 50
)

type PolygonConfig struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
	// Location is the exchange zone used to date daily aggregates.
	Location *time.Location
}

func (c *PolygonConfig) withDefaults() PolygonConfig {
	out := *c
	out.BaseURL = strings.TrimRight(strings.TrimSpace(out.BaseURL), "/")
	if out.BaseURL == "" {
		out.BaseURL = polygonDefaultBase
	}
	if out.Location == nil {
		out.Location = market.DefaultSession().Location
	}
	return out
}

// Polygon reads the v2 aggregates endpoint.
type Polygon struct {
	cfg    PolygonConfig
	client *http.Client
}

func NewPolygon(cfg PolygonConfig) (*Polygon, error) {
	final := cfg.withDefaults()
	if strings.TrimSpace(final.APIKey) == "" {
		return nil, fmt.Errorf("polygon: api key is required")
	}
	return &Polygon{cfg: final, client: newHTTPClient(final.HTTPTimeout)}, nil
}

func (p *Polygon) Name() string { return "polygon" }

func polygonTimespan(tf market.Timeframe) (int, string, error) {
	switch tf {
	case market.Timeframe1m:
		return 1, "minute", nil
	case market.Timeframe5m:
		return 5, "minute", nil
	case market.Timeframe15m:
		return 15, "minute", nil
	case market.Timeframe1h:
		return 1, "hour", nil
	case market.Timeframe1d:
		return 1, "day", nil
	default:
		return 0, "", fmt.Errorf("polygon: unsupported timeframe %q", tf)
	}
}

func (p *Polygon) aggregatesURL(ticker string, tf market.Timeframe, start, end time.Time) (string, error) {
	mult, span, err := polygonTimespan(tf)
	if err != nil {
		return "", err
	}
	from, to := strconv.FormatInt(start.UnixMilli(), 10), strconv.FormatInt(end.UnixMilli(), 10)
	if !tf.IsIntraday() {
		from, to = start.UTC().Format(time.DateOnly), end.UTC().Format(time.DateOnly)
	}
	rawURL := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
		p.cfg.BaseURL, url.PathEscape(symbol.Polygon.ToExchange(ticker)), mult, span, from, to)
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("polygon: parse url: %w", err)
	}
	q := u.Query()
	q.Set("adjusted", "true")
	q.Set("sort", "asc")
	q.Set("limit", strconv.Itoa(polygonPageLimit))
	q.Set("apiKey", p.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *Polygon) Fetch(ctx context.Context, ticker string, tf market.Timeframe, start, end time.Time) ([]market.Candle, error) {
	next, err := p.aggregatesURL(ticker, tf, start, end)
	if err != nil {
		return nil, err
	}
	var out []market.Candle
	for page := 0; next != "" && page < polygonMaxPages; page++ {
		body, err := getJSON(ctx, p.client, p.Name(), next, nil)
		if err != nil {
			return nil, err
		}
		doc := gjson.ParseBytes(body)
		switch status := doc.Get("status").String(); status {
		case "OK", "DELAYED":
		default:
			return nil, fmt.Errorf("polygon: status %q: %s", status, doc.Get("error").String())
		}
		for _, row := range doc.Get("results").Array() {
			c, err := p.parseBar(row, tf)
			if err != nil {
				return nil, fmt.Errorf("polygon: %w", err)
			}
			out = append(out, c)
		}
		next = p.withKey(doc.Get("next_url").String())
	}
	return out, nil
}

func (p *Polygon) withKey(nextURL string) string {
	if nextURL == "" {
		return ""
	}
	u, err := url.Parse(nextURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("apiKey", p.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *Polygon) parseBar(row gjson.Result, tf market.Timeframe) (market.Candle, error) {
	ts := time.UnixMilli(row.Get("t").Int()).UTC()
	if tf.IsIntraday() {
		ts = tf.AlignDown(ts)
	} else {
		ts = dailyOpen(ts, p.cfg.Location)
	}
	c := market.Candle{Timeframe: tf, Timestamp: ts}
	var err error
	if c.Open, err = decimalField(row, "o"); err != nil {
		return c, err
	}
	if c.High, err = decimalField(row, "h"); err != nil {
		return c, err
	}
	if c.Low, err = decimalField(row, "l"); err != nil {
		return c, err
	}
	if c.Close, err = decimalField(row, "c"); err != nil {
		return c, err
	}
	if c.Volume, err = decimalField(row, "v"); err != nil {
		return c, err
	}
	return c, nil
}
