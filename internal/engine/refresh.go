package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"RatePulse/internal/domain/models"
	"RatePulse/internal/domain/repository"
	"RatePulse/internal/ratestore"
	applogger "RatePulse/pkg/logger"
)

func (e *Engine) refreshLoop(ctx context.Context) {
	defer e.wg.Done()

	// First refresh immediately so clients see data before the first tick.
	e.RefreshFromSources(ctx)

	ticker := time.NewTicker(e.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RefreshFromSources(ctx)
		}
	}
}

// RefreshFromSources runs one merge cycle over every configured pair.
// Failures are isolated per pair/provider: a cycle never aborts, and a
// cycle that produces nothing simply waits for the next tick.
func (e *Engine) RefreshFromSources(ctx context.Context) {
	start := time.Now()
	stats := cycleStats{}

	for _, pc := range e.cfg.Pairs {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		stats.ops++
		if err := e.refreshPair(ctx, pc); err != nil {
			stats.errs++
		}
	}

	elapsed := time.Since(start)
	e.metrics.RecordRefresh(elapsed, len(e.cfg.Pairs))

	e.mu.Lock()
	if stats.errs < stats.ops {
		// lastRefresh means "last cycle that produced data", so a
		// fully failed cycle leaves it alone.
		e.lastRefresh = time.Now()
	}
	e.durations = append(e.durations, elapsed)
	if len(e.durations) > statsWindow {
		e.durations = e.durations[1:]
	}
	e.cycles = append(e.cycles, stats)
	if len(e.cycles) > statsWindow {
		e.cycles = e.cycles[1:]
	}
	e.mu.Unlock()

	e.log.Debug("refresh cycle complete",
		applogger.Int("pairs", stats.ops),
		applogger.Int("failed", stats.errs),
		applogger.Duration("elapsed", elapsed),
	)
}

// refreshPair merges one pair: first healthy provider in priority order
// wins; overrides fully replace computed values while active.
func (e *Engine) refreshPair(ctx context.Context, pc PairConfig) error {
	quote, err := e.fetchQuote(ctx, pc)

	// Global rate: override wins even when every provider is down.
	if ov := e.activeOverride(pc.Symbol, ""); ov != nil {
		e.applyOverride(ov)
	} else if err == nil {
		e.applyQuote(pc.Symbol, quote)
	}

	// Store-scoped overrides produce shadow rates on the same cycle.
	for _, ov := range e.scopedOverrides(pc.Symbol) {
		e.applyOverride(ov)
	}

	return err
}

// fetchQuote walks the category's provider priority list, taking the
// first finite positive value and tallying failures per provider.
func (e *Engine) fetchQuote(ctx context.Context, pc PairConfig) (*repository.Quote, error) {
	providers := e.ordered[pc.Category]
	if len(providers) == 0 {
		return nil, errors.New("no provider for category " + pc.Category)
	}

	var lastErr error
	for _, src := range providers {
		fctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
		quote, err := src.Fetch(fctx, pc.Symbol)
		cancel()
		if err != nil {
			lastErr = err
			e.metrics.RecordProviderError(src.Name())
			e.recordFailure(src.Name())
			continue
		}
		e.recordSuccess(src.Name())
		return quote, nil
	}
	return nil, lastErr
}

func (e *Engine) recordFailure(provider string) {
	e.mu.Lock()
	e.failures[provider]++
	n := e.failures[provider]
	fire := n >= e.cfg.FailureAlertAfter && !e.alerted[provider]
	if fire {
		e.alerted[provider] = true
	}
	e.mu.Unlock()

	if fire {
		alert := e.mon.SourceFailure(provider, n)
		e.publish(&models.ChangeEvent{
			Category:  models.CategoryAlerts,
			Alert:     alert,
			Timestamp: time.Now(),
		})
		e.log.Warn("provider failing",
			applogger.String("provider", provider),
			applogger.Int("consecutive", n),
		)
	}
}

func (e *Engine) recordSuccess(provider string) {
	e.mu.Lock()
	e.failures[provider] = 0
	e.alerted[provider] = false
	e.mu.Unlock()
}

// applyQuote derives buy/sell from the mid using the default spread
// clamped to the configured band, writes the rate, and emits a change
// event if the value moved beyond epsilon.
func (e *Engine) applyQuote(symbol string, q *repository.Quote) {
	spread := clamp(e.cfg.DefaultSpread, e.cfg.MinSpread, e.cfg.MaxSpread)
	half := q.Value * spread / 2

	base, target := symbol, ""
	if len(symbol) == 6 {
		base, target = symbol[:3], symbol[3:]
	}

	rate := &models.ExchangeRate{
		Pair:      symbol,
		Base:      base,
		Target:    target,
		MidRate:   q.Value,
		BuyRate:   q.Value + half,
		SellRate:  q.Value - half,
		Spread:    spread,
		Source:    models.SourceMarket,
		Timestamp: time.Now(),
	}
	e.writeAndPublish(rate)
}

// applyOverride materializes an operator override as the active rate.
func (e *Engine) applyOverride(ov *models.RateOverride) {
	mid := (ov.BuyRate + ov.SellRate) / 2
	base, target := ov.Pair, ""
	if len(ov.Pair) == 6 {
		base, target = ov.Pair[:3], ov.Pair[3:]
	}

	rate := &models.ExchangeRate{
		Pair:      ov.Pair,
		Base:      base,
		Target:    target,
		MidRate:   mid,
		BuyRate:   ov.BuyRate,
		SellRate:  ov.SellRate,
		Spread:    models.SpreadOf(ov.BuyRate, ov.SellRate),
		Source:    models.SourceManual,
		StoreID:   ov.StoreID,
		Timestamp: time.Now(),
	}
	e.writeAndPublish(rate)
}

// writeAndPublish puts the rate into the store and, when it actually
// changed, pushes it through the event path and the spread check.
func (e *Engine) writeAndPublish(rate *models.ExchangeRate) {
	prev, _ := e.store.Get(rate.Pair, rate.StoreID)

	if err := e.store.Put(rate); err != nil {
		if errors.Is(err, ratestore.ErrStaleWrite) {
			e.metrics.RecordError("stale_write")
			e.log.Debug("stale write dropped", applogger.String("pair", rate.Pair))
			return
		}
		e.metrics.RecordError("store_put")
		e.log.Error("rate store put", applogger.Error(err), applogger.String("pair", rate.Pair))
		return
	}
	e.metrics.RecordRate(rate.Pair, rate.MidRate)

	if alert := e.mon.CheckSpread(rate); alert != nil {
		e.publish(&models.ChangeEvent{
			Category:  models.CategoryAlerts,
			Pair:      rate.Pair,
			StoreID:   rate.StoreID,
			Alert:     alert,
			Timestamp: time.Now(),
		})
	}

	// Suppress only when nothing the client can see moved. Mid alone is
	// not enough: a manual update may shift buy/sell around an unchanged
	// mid, and terminals display all three.
	if prev != nil && prev.Source == rate.Source && prev.StoreID == rate.StoreID &&
		math.Abs(prev.MidRate-rate.MidRate) <= e.cfg.ChangeEpsilon &&
		math.Abs(prev.BuyRate-rate.BuyRate) <= e.cfg.ChangeEpsilon &&
		math.Abs(prev.SellRate-rate.SellRate) <= e.cfg.ChangeEpsilon {
		return // negligible move, no event
	}

	c := *rate
	e.publish(&models.ChangeEvent{
		Category:  models.CategoryRates,
		Pair:      rate.Pair,
		StoreID:   rate.StoreID,
		Rate:      &c,
		Timestamp: time.Now(),
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
