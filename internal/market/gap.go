package market

import (
	"fmt"
	"time"
)

// Gap is a closed range of bar open times lacking fresh coverage.
type Gap struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Span is the wall-clock width of the gap.
func (g Gap) Span() time.Duration {
	return g.End.Sub(g.Start)
}

// Bars counts bar opens of width step inside the gap.
func (g Gap) Bars(step time.Duration) int64 {
	if step <= 0 || g.End.Before(g.Start) {
		return 0
	}
	return int64(g.End.Sub(g.Start)/step) + 1
}

func (g Gap) String() string {
	return fmt.Sprintf("[%s, %s]", g.Start.UTC().Format(time.RFC3339), g.End.UTC().Format(time.RFC3339))
}

// DetectGaps returns the sub-ranges of [start, end] not covered by fresh.
// fresh must be sorted ascending. A leading or trailing shortfall of at most
// one interval counts as covered.
func DetectGaps(start, end time.Time, fresh []Candle, step time.Duration) []Gap {
	if len(fresh) == 0 {
		return []Gap{{Start: start, End: end}}
	}
	var gaps []Gap
	first := fresh[0].Timestamp
	if first.Add(-step).After(start) {
		gaps = append(gaps, Gap{Start: start, End: first.Add(-step)})
	}
	for i := 0; i+1 < len(fresh); i++ {
		cur, next := fresh[i].Timestamp, fresh[i+1].Timestamp
		if next.Sub(cur) > step {
			gaps = append(gaps, Gap{Start: cur.Add(step), End: next.Add(-step)})
		}
	}
	last := fresh[len(fresh)-1].Timestamp
	if end.Sub(last) > step {
		gaps = append(gaps, Gap{Start: last.Add(step), End: end})
	}
	return gaps
}

// SplitGap cuts gap into chunks covering at most span of wall time each.
// Chunks are contiguous on the bar grid: the next chunk starts one step after
// the previous one ends.
func SplitGap(gap Gap, span, step time.Duration) []Gap {
	if gap.End.Before(gap.Start) {
		return nil
	}
	if span <= 0 || step <= 0 {
		return []Gap{gap}
	}
	if span < step {
		span = step
	}
	var chunks []Gap
	cursor := gap.Start
	for !cursor.After(gap.End) {
		chunkEnd := cursor.Add(span - step)
		if chunkEnd.After(gap.End) {
			chunkEnd = gap.End
		}
		chunks = append(chunks, Gap{Start: cursor, End: chunkEnd})
		cursor = chunkEnd.Add(step)
	}
	return chunks
}
