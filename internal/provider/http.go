package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"candlecache/internal/pkg/text"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const maxBodyBytes = 64 << 20

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// getJSON performs a GET and maps upstream status codes onto the ladder's
// error classes: 429 is rate limiting, 5xx and transport errors are transient.
func getJSON(ctx context.Context, client *http.Client, provider, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", provider, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, transient(provider, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transient(provider, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", provider, ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, transient(provider, fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body)))
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%s: status %d: %s", provider, resp.StatusCode, snippet(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, transient(provider, fmt.Errorf("invalid json: %s", snippet(body)))
	}
	return body, nil
}

func snippet(body []byte) string {
	return text.Truncate(strings.TrimSpace(string(body)), 200)
}

// decimalField reads a JSON number from its raw text so no float rounding
// happens on the way in.
func decimalField(r gjson.Result, path string) (decimal.Decimal, error) {
	v := r.Get(path)
	if !v.Exists() {
		return decimal.Zero, fmt.Errorf("missing field %q", path)
	}
	raw := v.Raw
	if v.Type == gjson.String {
		raw = v.Str
	}
	return decimal.NewFromString(raw)
}

// dailyOpen maps an exchange-local daily bar to midnight UTC of its date.
func dailyOpen(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
