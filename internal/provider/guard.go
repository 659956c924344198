package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"candlecache/internal/market"
	"candlecache/internal/pkg/circuit"

	"golang.org/x/time/rate"
)

// guarded enforces a provider's concurrency, rate and breaker limits.
type guarded struct {
	desc     Descriptor
	provider Provider
	sem      chan struct{}
	limiter  *rate.Limiter
	breaker  *circuit.Breaker
}

func newGuarded(e Entry) *guarded {
	d := e.Descriptor
	if d.Name == "" {
		d.Name = e.Provider.Name()
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 1
	}
	g := &guarded{
		desc:     d,
		provider: e.Provider,
		sem:      make(chan struct{}, d.Concurrency),
	}
	if d.RatePerMinute > 0 {
		burst := d.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(d.RatePerMinute/60.0), burst)
	}
	if d.BreakerThreshold > 0 {
		cooldown := d.BreakerCooldown
		if cooldown <= 0 {
			cooldown = time.Minute
		}
		g.breaker = circuit.New(d.Name, d.BreakerThreshold, cooldown)
	}
	return g
}

// fetch waits for a local slot under the caller's context, then runs one
// upstream call bounded by timeout. Only the upstream call feeds the breaker.
func (g *guarded) fetch(ctx context.Context, timeout time.Duration, ticker string, tf market.Timeframe, start, end time.Time) ([]market.Candle, error) {
	if g.limiter != nil && !g.limiter.Allow() {
		return nil, ErrRateLimited
	}
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w: %w", g.desc.Name, ErrSlotUnavailable, ctx.Err())
	}
	defer func() { <-g.sem }()

	if g.breaker != nil && !g.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	candles, err := g.provider.Fetch(callCtx, ticker, tf, start, end)
	if err != nil {
		if ctxErr := callCtx.Err(); ctxErr != nil && !IsTransient(err) {
			err = transient(g.desc.Name, errors.Join(ctxErr, err))
		}
		if IsTransient(err) {
			g.recordFailure()
		} else {
			// The upstream answered; a bad request says nothing about its health.
			g.recordSuccess()
		}
		return nil, err
	}
	g.recordSuccess()
	return candles, nil
}

func (g *guarded) recordSuccess() {
	if g.breaker != nil {
		g.breaker.RecordSuccess()
	}
}

func (g *guarded) recordFailure() {
	if g.breaker != nil {
		g.breaker.RecordFailure()
	}
}

func (g *guarded) snapshot() circuit.Snapshot {
	if g.breaker == nil {
		return circuit.Snapshot{State: circuit.StateClosed}
	}
	return g.breaker.Snapshot()
}
