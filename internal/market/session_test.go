package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minuteBar(ts time.Time) Candle {
	return Candle{Ticker: "AAPL", Timeframe: Timeframe1m, Timestamp: ts.UTC()}
}

func TestFilterSessionDropsEquityBarsOutsideHours(t *testing.T) {
	s := DefaultSession()
	// 2024-03-04 is a Monday; New York is on EST (UTC-5).
	in := []Candle{
		minuteBar(time.Date(2024, 3, 4, 14, 29, 0, 0, time.UTC)), // 09:29 pre-market
		minuteBar(time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)), // 09:30 open
		minuteBar(time.Date(2024, 3, 4, 20, 59, 0, 0, time.UTC)), // 15:59
		minuteBar(time.Date(2024, 3, 4, 21, 0, 0, 0, time.UTC)),  // 16:00 close
		minuteBar(time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC)),  // Saturday
	}
	out := FilterSession(in, AssetEquity, s)
	require.Len(t, out, 2)
	assert.Equal(t, in[1].Timestamp, out[0].Timestamp)
	assert.Equal(t, in[2].Timestamp, out[1].Timestamp)

	assert.Equal(t, out, FilterSession(out, AssetEquity, s))
}

func TestFilterSessionPassesCrypto(t *testing.T) {
	in := []Candle{minuteBar(time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC))}
	assert.Equal(t, in, FilterSession(in, AssetCrypto, DefaultSession()))
}

func TestFilterSessionHourlyBarOverlappingOpen(t *testing.T) {
	bar := Candle{Timeframe: Timeframe1h, Timestamp: time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)} // 09:00-10:00 EST
	out := FilterSession([]Candle{bar}, AssetEquity, DefaultSession())
	assert.Len(t, out, 1)
}

func TestFilterSessionHolidays(t *testing.T) {
	h, err := NewHolidays("2024-07-04")
	require.NoError(t, err)
	s := DefaultSession()
	s.Calendar = h
	bar := minuteBar(time.Date(2024, 7, 4, 15, 0, 0, 0, time.UTC))
	assert.Empty(t, FilterSession([]Candle{bar}, AssetEquity, s))

	_, err = NewHolidays("07/04/2024")
	assert.True(t, IsConfigError(err))
}

func TestHasTradingTime(t *testing.T) {
	s := DefaultSession()
	overnight := Gap{
		Start: time.Date(2024, 3, 4, 21, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 5, 14, 29, 0, 0, time.UTC),
	}
	assert.False(t, s.HasTradingTime(overnight, Timeframe1m))

	weekend := Gap{Start: day("2024-03-09"), End: day("2024-03-10")}
	assert.False(t, s.HasTradingTime(weekend, Timeframe1d))
	assert.False(t, s.HasTradingTime(Gap{
		Start: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC),
	}, Timeframe1h))

	session := Gap{
		Start: time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 5, 2, 0, 0, 0, time.UTC),
	}
	assert.True(t, s.HasTradingTime(session, Timeframe5m))
	assert.True(t, s.HasTradingTime(Gap{Start: day("2024-01-06"), End: day("2024-01-10")}, Timeframe1d))
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour+30*time.Minute, d)
	_, err = ParseClock("9h30")
	assert.Error(t, err)
}
