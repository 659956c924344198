package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Symbol
	}{
		{"BTC/USDT", Symbol{Base: "BTC", Quote: "USDT"}},
		{"btcusdt", Symbol{Base: "BTC", Quote: "USDT"}},
		{"ETH-USD", Symbol{Base: "ETH", Quote: "USD"}},
		{"X:SOL/USD", Symbol{Base: "SOL", Quote: "USD"}},
		{"AAPL", Symbol{}},
		{"ABNB", Symbol{}},
		{"BRK-B", Symbol{}},
		{"", Symbol{}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Parse(tc.in), tc.in)
	}
}

func TestConverters(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Binance.ToExchange("BTC/USD"))
	assert.Equal(t, "ETHUSDT", Binance.ToExchange("eth-usdt"))
	assert.Equal(t, "ETH/USDT", Binance.FromExchange("ETHUSDT"))
	assert.Equal(t, "BRK.B", Polygon.ToExchange("brk-b"))
	assert.Equal(t, "BRK-B", Polygon.FromExchange("BRK.B"))
	assert.Equal(t, "brk-b", Tiingo.ToExchange("BRK.B"))
}

func TestNormalizeTicker(t *testing.T) {
	assert.Equal(t, "BTC/USDT", NormalizeTicker(" btcusdt "))
	assert.Equal(t, "AAPL", NormalizeTicker("aapl"))
	assert.True(t, IsPair("SOL-USD"))
	assert.False(t, IsPair("MSFT"))
}
