package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"candlecache/internal/market"
)

// MemoryStore keeps cached candles in process, sharded by series key.
type MemoryStore struct {
	opts   options
	shards []candleShard
}

type candleShard struct {
	mu   sync.RWMutex
	data map[string]map[int64]market.CacheRecord
}

const defaultShardCount = 32

func NewMemoryStore(opts ...Option) *MemoryStore {
	return newMemoryStore(defaultShardCount, opts...)
}

func newMemoryStore(shards int, opts ...Option) *MemoryStore {
	if shards <= 0 {
		shards = 1
	}
	out := &MemoryStore{
		opts:   buildOptions(opts),
		shards: make([]candleShard, shards),
	}
	for i := range out.shards {
		out.shards[i] = candleShard{data: make(map[string]map[int64]market.CacheRecord)}
	}
	return out
}

func (s *MemoryStore) shardFor(key string) *candleShard {
	idx := hashKey(key) % uint32(len(s.shards))
	return &s.shards[idx]
}

func key(ticker string, tf market.Timeframe) string { return ticker + "@" + string(tf) }

func (s *MemoryStore) ReadFresh(ctx context.Context, ticker string, tf market.Timeframe, start, end time.Time) ([]market.Candle, error) {
	if err := validateKey(ticker, tf); err != nil {
		return nil, storageErr("read", err)
	}
	since := s.opts.freshSince(tf)
	k := key(ticker, tf)
	sh := s.shardFor(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	var out []market.Candle
	for _, rec := range sh.data[k] {
		if rec.Timestamp.Before(start) || rec.Timestamp.After(end) {
			continue
		}
		if !rec.FetchedAt.After(since) {
			continue
		}
		out = append(out, rec.Candle)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, records []market.CacheRecord) error {
	for _, rec := range records {
		if err := validateKey(rec.Ticker, rec.Timeframe); err != nil {
			return storageErr("upsert", err)
		}
	}
	for _, rec := range records {
		rec.Timestamp = rec.Timestamp.UTC()
		rec.FetchedAt = rec.FetchedAt.UTC()
		k := key(rec.Ticker, rec.Timeframe)
		sh := s.shardFor(k)
		sh.mu.Lock()
		series := sh.data[k]
		if series == nil {
			series = make(map[int64]market.CacheRecord)
			sh.data[k] = series
		}
		series[rec.Timestamp.UnixMilli()] = rec
		sh.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context, ticker string, tf market.Timeframe) (Manifest, error) {
	m := Manifest{Ticker: ticker, Timeframe: tf.String()}
	k := key(ticker, tf)
	sh := s.shardFor(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	for _, rec := range sh.data[k] {
		m.Rows++
		if m.MinTime.IsZero() || rec.Timestamp.Before(m.MinTime) {
			m.MinTime = rec.Timestamp
		}
		if rec.Timestamp.After(m.MaxTime) {
			m.MaxTime = rec.Timestamp
		}
		if rec.FetchedAt.After(m.LastFetchedAt) {
			m.LastFetchedAt = rec.FetchedAt
		}
	}
	return m, nil
}

func (s *MemoryStore) Close() error { return nil }

func hashKey(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	var h uint32 = offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
