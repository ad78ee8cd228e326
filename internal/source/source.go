package source

import (
	"errors"
	"fmt"
	"math"
	"time"

	"RatePulse/internal/domain/repository"
)

// Provider categories the engine schedules by.
const (
	CategoryForex       = "forex"
	CategoryCrypto      = "crypto"
	CategoryCommodities = "commodities"
	CategoryYields      = "yields"
)

var (
	ErrBadValue          = errors.New("provider returned non-finite or non-positive value")
	ErrUnsupportedSymbol = errors.New("symbol not supported by provider")
)

// newQuote validates the raw provider value and wraps it. Every adapter
// funnels through here so the engine only ever sees finite positive quotes
// or a typed error.
func newQuote(provider, symbol string, value float64, ts time.Time) (*repository.Quote, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return nil, fmt.Errorf("%w: %s %s = %v", ErrBadValue, provider, symbol, value)
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	return &repository.Quote{Symbol: symbol, Value: value, Timestamp: ts, Provider: provider}, nil
}

// splitPair splits a 6-letter pair like USDCAD into base and target.
func splitPair(symbol string) (string, string, error) {
	if len(symbol) != 6 {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedSymbol, symbol)
	}
	return symbol[:3], symbol[3:], nil
}
