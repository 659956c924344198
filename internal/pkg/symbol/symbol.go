package symbol

import (
	"strings"
)

type Format string

const (
	FormatInternal Format = "internal"
	FormatBinance  Format = "binance"
	FormatPolygon  Format = "polygon"
	FormatTiingo   Format = "tiingo"
)

type Converter interface {
	ToExchange(internal string) string

	FromExchange(raw string) string

	Format() Format
}

// Symbol is a crypto pair split into base and quote assets.
type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

func (s Symbol) Binance() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	quote := s.Quote
	if quote == "USD" {
		quote = "USDT"
	}
	return s.Base + quote
}

// Quotes accepted after an explicit "-" separator (BTC-USD).
var dashQuotes = map[string]struct{}{
	"USD": {}, "USDT": {}, "USDC": {}, "BUSD": {}, "EUR": {}, "BTC": {}, "ETH": {},
}

// Quotes accepted as a bare suffix (BTCUSDT). Plain fiat/coin suffixes are
// excluded because they collide with equity tickers such as ABNB.
var suffixQuotes = []string{"FDUSD", "USDT", "BUSD", "USDC", "TUSD"}

// Parse splits a crypto pair. Equity tickers yield an empty Symbol.
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	s = strings.TrimPrefix(s, "X:")

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		base, quote := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if base == "" || quote == "" {
			return Symbol{}
		}
		return Symbol{Base: base, Quote: quote}
	}

	if parts := strings.SplitN(s, "-", 2); len(parts) == 2 {
		if _, ok := dashQuotes[parts[1]]; ok && parts[0] != "" {
			return Symbol{Base: parts[0], Quote: parts[1]}
		}
		return Symbol{}
	}

	for _, quote := range suffixQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}

	return Symbol{}
}

func Normalize(s string) string {
	return Parse(s).Internal()
}

// IsPair reports whether s names a crypto pair.
func IsPair(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}

// NormalizeTicker upper-cases and trims an equity or crypto ticker; pairs are
// rewritten to BASE/QUOTE.
func NormalizeTicker(s string) string {
	if norm := Normalize(s); norm != "" {
		return norm
	}
	return strings.ToUpper(strings.TrimSpace(s))
}
