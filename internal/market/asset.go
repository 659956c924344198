package market

import (
	"fmt"
	"regexp"
	"strings"

	"candlecache/internal/pkg/symbol"
)

// AssetClass selects the provider ladder and session rules for a ticker.
type AssetClass string

const (
	AssetEquity AssetClass = "equity"
	AssetCrypto AssetClass = "crypto"
)

func (c AssetClass) String() string { return string(c) }

// Valid reports whether c is a known asset class.
func (c AssetClass) Valid() bool {
	return c == AssetEquity || c == AssetCrypto
}

// ParseAssetClass normalizes a configured asset class name.
func ParseAssetClass(input string) (AssetClass, error) {
	c := AssetClass(strings.ToLower(strings.TrimSpace(input)))
	if !c.Valid() {
		return "", NewConfigError("asset_class", fmt.Sprintf("unknown asset class %q", input))
	}
	return c, nil
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-/:]{0,23}$`)

// Classifier maps tickers to asset classes. Overrides win over the pair heuristic.
type Classifier struct {
	overrides map[string]AssetClass
}

// NewClassifier builds a classifier with explicit per-ticker overrides.
func NewClassifier(overrides map[string]AssetClass) *Classifier {
	c := &Classifier{overrides: make(map[string]AssetClass, len(overrides))}
	for k, v := range overrides {
		c.overrides[symbol.NormalizeTicker(k)] = v
	}
	return c
}

// Normalize validates ticker and returns its canonical form and asset class.
func (c *Classifier) Normalize(ticker string) (string, AssetClass, error) {
	raw := strings.ToUpper(strings.TrimSpace(ticker))
	if raw == "" {
		return "", "", NewConfigError("ticker", "ticker is required")
	}
	if !tickerPattern.MatchString(raw) {
		return "", "", NewConfigError("ticker", fmt.Sprintf("invalid ticker format %q", ticker))
	}
	norm := symbol.NormalizeTicker(raw)
	if c != nil {
		if class, ok := c.overrides[norm]; ok {
			return norm, class, nil
		}
	}
	if symbol.IsPair(raw) {
		return norm, AssetCrypto, nil
	}
	if strings.Contains(raw, "/") {
		return "", "", NewConfigError("ticker", fmt.Sprintf("invalid pair %q", ticker))
	}
	return norm, AssetEquity, nil
}

// Classify returns the asset class of a ticker, defaulting to equity.
func (c *Classifier) Classify(ticker string) AssetClass {
	_, class, err := c.Normalize(ticker)
	if err != nil {
		return AssetEquity
	}
	return class
}
