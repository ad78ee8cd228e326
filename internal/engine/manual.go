package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"RatePulse/internal/domain/models"
	applogger "RatePulse/pkg/logger"
)

// ManualRateRequest is an operator-submitted rate replacement. Spread is
// optional; when present it must agree with the spread implied by
// buy/sell within the configured tolerance.
type ManualRateRequest struct {
	Pair      string     `json:"pair" validate:"required,min=3"`
	BuyRate   float64    `json:"buyRate" validate:"required,gt=0"`
	SellRate  float64    `json:"sellRate" validate:"required,gt=0"`
	Spread    *float64   `json:"spread,omitempty"`
	StoreID   string     `json:"storeId,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	CreatedBy string     `json:"createdBy,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// UpdateRateManually validates and applies an operator rate. On success
// the manual rate becomes the active override for the pair and the store
// reflects it immediately; rejection leaves the prior rate untouched.
func (e *Engine) UpdateRateManually(ctx context.Context, req *ManualRateRequest) (*models.ExchangeRate, error) {
	if req.BuyRate <= req.SellRate {
		return nil, fmt.Errorf("%w: buyRate %v must exceed sellRate %v", ErrValidation, req.BuyRate, req.SellRate)
	}

	implied := models.SpreadOf(req.BuyRate, req.SellRate)
	if req.Spread != nil && math.Abs(*req.Spread-implied) > e.cfg.SpreadTolerance {
		return nil, fmt.Errorf("%w: supplied spread %v inconsistent with implied %v", ErrValidation, *req.Spread, implied)
	}

	ov := &models.RateOverride{
		Pair:      req.Pair,
		StoreID:   req.StoreID,
		BuyRate:   req.BuyRate,
		SellRate:  req.SellRate,
		Spread:    implied,
		Reason:    req.Reason,
		CreatedBy: req.CreatedBy,
		CreatedAt: time.Now(),
		ExpiresAt: req.ExpiresAt,
	}

	// Two sequential atomic steps: override table first, rate store second.
	// A reader racing between them sees the old rate, which is acceptable.
	e.mu.Lock()
	e.overrides[models.RateKey{Pair: ov.Pair, StoreID: ov.StoreID}] = ov
	e.mu.Unlock()

	if e.cfgStore != nil {
		if err := e.cfgStore.SaveOverride(ctx, ov); err != nil {
			e.log.Warn("persist override", applogger.Error(err), applogger.String("pair", ov.Pair))
		}
	}

	e.applyOverride(ov)
	e.log.Info("manual rate applied",
		applogger.String("pair", ov.Pair),
		applogger.String("store", ov.StoreID),
		applogger.Any("buy", ov.BuyRate),
		applogger.Any("sell", ov.SellRate),
	)

	return e.store.Get(ov.Pair, ov.StoreID)
}

// RemoveOverride drops the active override for (pair, store); market data
// takes back over on the next refresh cycle.
func (e *Engine) RemoveOverride(ctx context.Context, pair, storeID string) {
	e.mu.Lock()
	delete(e.overrides, models.RateKey{Pair: pair, StoreID: storeID})
	e.mu.Unlock()

	if e.cfgStore != nil {
		if err := e.cfgStore.DeleteOverride(ctx, pair, storeID); err != nil {
			e.log.Warn("delete persisted override", applogger.Error(err), applogger.String("pair", pair))
		}
	}
}

// activeOverride returns the unexpired override for (pair, store), if
// any, pruning an expired one on the way.
func (e *Engine) activeOverride(pair, storeID string) *models.RateOverride {
	now := time.Now()
	key := models.RateKey{Pair: pair, StoreID: storeID}

	e.mu.Lock()
	defer e.mu.Unlock()

	ov, ok := e.overrides[key]
	if !ok {
		return nil
	}
	if ov.Expired(now) {
		delete(e.overrides, key)
		return nil
	}
	return ov
}

// scopedOverrides returns all unexpired store-scoped overrides for pair.
func (e *Engine) scopedOverrides(pair string) []*models.RateOverride {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*models.RateOverride
	for key, ov := range e.overrides {
		if key.Pair != pair || key.StoreID == "" {
			continue
		}
		if ov.Expired(now) {
			delete(e.overrides, key)
			continue
		}
		out = append(out, ov)
	}
	return out
}
