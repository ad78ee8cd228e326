package models

import (
	"math"
	"time"
)

// RateSource tags where a rate value came from.
type RateSource string

const (
	SourceMarket     RateSource = "market"
	SourceManual     RateSource = "manual"
	SourceCalculated RateSource = "calculated"
)

// ExchangeRate is the current quoted rate for a currency pair, optionally
// scoped to a single store. BuyRate is what the store sells at, so
// BuyRate > SellRate always holds for an active rate.
type ExchangeRate struct {
	Pair        string     `json:"pair"`
	Base        string     `json:"base"`
	Target      string     `json:"target"`
	MidRate     float64    `json:"midRate"`
	BuyRate     float64    `json:"buyRate"`
	SellRate    float64    `json:"sellRate"`
	Spread      float64    `json:"spread"`
	Source      RateSource `json:"source"`
	StoreID     string     `json:"storeId,omitempty"`
	IsActive    bool       `json:"isActive"`
	Version     uint64     `json:"version"`
	Timestamp   time.Time  `json:"timestamp"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

// SpreadOf computes the relative spread implied by buy/sell rates.
func SpreadOf(buy, sell float64) float64 {
	mid := (buy + sell) / 2
	if mid == 0 {
		return 0
	}
	return (buy - sell) / mid
}

// Valid reports whether the rate satisfies the core invariants:
// finite positive rates and buy strictly above sell.
func (r *ExchangeRate) Valid() bool {
	for _, v := range []float64{r.MidRate, r.BuyRate, r.SellRate} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return false
		}
	}
	return r.BuyRate > r.SellRate
}

// Key returns the store-scoped identity of the rate.
func (r *ExchangeRate) Key() RateKey {
	return RateKey{Pair: r.Pair, StoreID: r.StoreID}
}

// RateKey identifies one active rate slot: (pair, store).
type RateKey struct {
	Pair    string
	StoreID string
}

// RateOverride is an operator-supplied replacement for a pair's computed
// rate. While active it wins over market data on every merge cycle.
type RateOverride struct {
	Pair      string     `json:"pair"`
	StoreID   string     `json:"storeId,omitempty"`
	BuyRate   float64    `json:"buyRate"`
	SellRate  float64    `json:"sellRate"`
	Spread    float64    `json:"spread"`
	Reason    string     `json:"reason,omitempty"`
	CreatedBy string     `json:"createdBy,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the override has an expiry in the past.
func (o *RateOverride) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && now.After(*o.ExpiresAt)
}

// RateThreshold configures acceptable spread bounds for one pair.
// Pure configuration; the alert monitor consults it after each write.
type RateThreshold struct {
	Pair           string  `json:"pair"`
	MinSpread      float64 `json:"minSpread"`
	MaxSpread      float64 `json:"maxSpread"`
	AlertThreshold float64 `json:"alertThreshold"`
}
