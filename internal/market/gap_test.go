package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func dailyBars(from, to string) []Candle {
	var out []Candle
	for d := day(from); !d.After(day(to)); d = d.AddDate(0, 0, 1) {
		out = append(out, Candle{Ticker: "AAPL", Timeframe: Timeframe1d, Timestamp: d})
	}
	return out
}

func TestDetectGapsEmptyCacheReturnsFullRange(t *testing.T) {
	gaps := DetectGaps(day("2024-01-01"), day("2024-01-10"), nil, 24*time.Hour)
	require.Len(t, gaps, 1)
	assert.Equal(t, Gap{Start: day("2024-01-01"), End: day("2024-01-10")}, gaps[0])
}

func TestDetectGapsFullyCovered(t *testing.T) {
	gaps := DetectGaps(day("2024-01-01"), day("2024-01-10"), dailyBars("2024-01-01", "2024-01-10"), 24*time.Hour)
	assert.Empty(t, gaps)
}

func TestDetectGapsLeadingAndTrailing(t *testing.T) {
	gaps := DetectGaps(day("2024-01-01"), day("2024-01-10"), dailyBars("2024-01-03", "2024-01-05"), 24*time.Hour)
	require.Len(t, gaps, 2)
	assert.Equal(t, Gap{Start: day("2024-01-01"), End: day("2024-01-02")}, gaps[0])
	assert.Equal(t, Gap{Start: day("2024-01-06"), End: day("2024-01-10")}, gaps[1])
}

func TestDetectGapsInterior(t *testing.T) {
	fresh := append(dailyBars("2024-01-01", "2024-01-03"), dailyBars("2024-01-07", "2024-01-10")...)
	gaps := DetectGaps(day("2024-01-01"), day("2024-01-10"), fresh, 24*time.Hour)
	require.Len(t, gaps, 1)
	assert.Equal(t, Gap{Start: day("2024-01-04"), End: day("2024-01-06")}, gaps[0])
	assert.EqualValues(t, 3, gaps[0].Bars(24*time.Hour))
}

func TestDetectGapsIgnoresShortfallWithinOneInterval(t *testing.T) {
	start := day("2024-01-01")
	fresh := dailyBars("2024-01-02", "2024-01-09")
	gaps := DetectGaps(start, day("2024-01-10"), fresh, 24*time.Hour)
	assert.Empty(t, gaps)
}

func TestSplitGapChunksBySpan(t *testing.T) {
	step := 24 * time.Hour
	gap := Gap{Start: day("2023-01-01"), End: day("2023-01-01").AddDate(0, 0, 249)}
	chunks := SplitGap(gap, 90*step, step)
	require.Len(t, chunks, 3)
	assert.EqualValues(t, 90, chunks[0].Bars(step))
	assert.EqualValues(t, 90, chunks[1].Bars(step))
	assert.EqualValues(t, 70, chunks[2].Bars(step))
	assert.Equal(t, gap.Start, chunks[0].Start)
	assert.Equal(t, gap.End, chunks[2].End)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].End.Add(step), chunks[i].Start)
	}
}

func TestSplitGapSmallerThanSpan(t *testing.T) {
	gap := Gap{Start: day("2024-01-01"), End: day("2024-01-05")}
	chunks := SplitGap(gap, 90*24*time.Hour, 24*time.Hour)
	assert.Equal(t, []Gap{gap}, chunks)
	assert.Nil(t, SplitGap(Gap{Start: gap.End, End: gap.Start}, time.Hour, time.Minute))
}
