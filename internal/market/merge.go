package market

import "sort"

// Merge combines cached and fetched bars into one series keyed by timestamp.
// Fetched bars overwrite cached ones so a re-fetched forming bar wins.
func Merge(cached, fetched []Candle) []Candle {
	byTime := make(map[int64]Candle, len(cached)+len(fetched))
	for _, c := range cached {
		byTime[c.Timestamp.UnixNano()] = c
	}
	for _, c := range fetched {
		byTime[c.Timestamp.UnixNano()] = c
	}
	out := make([]Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
