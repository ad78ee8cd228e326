package models

import "time"

// SubscriptionCategory is the class of events a client wants.
type SubscriptionCategory string

const (
	CategoryRates      SubscriptionCategory = "rates"
	CategoryMarketData SubscriptionCategory = "market_data"
	CategoryAlerts     SubscriptionCategory = "alerts"
	CategoryAll        SubscriptionCategory = "all"
)

// ValidCategory reports whether c is a known subscription category.
func ValidCategory(c SubscriptionCategory) bool {
	switch c {
	case CategoryRates, CategoryMarketData, CategoryAlerts, CategoryAll:
		return true
	}
	return false
}

// Subscription is one client's declared interest. An empty Symbols set
// means "all symbols"; an empty StoreID means global scope.
type Subscription struct {
	ClientID     string               `json:"clientId"`
	Symbols      map[string]struct{}  `json:"-"`
	Category     SubscriptionCategory `json:"category"`
	StoreID      string               `json:"storeId,omitempty"`
	LastActivity time.Time            `json:"lastActivity"`
}

// WantsSymbol reports whether the subscription covers the given pair.
func (s *Subscription) WantsSymbol(pair string) bool {
	if len(s.Symbols) == 0 {
		return true
	}
	_, ok := s.Symbols[pair]
	return ok
}
