package models

import "time"

// ChangeEvent is what the engine emits whenever a rate actually changes
// or an alert fires. The hub fans these out to matching subscribers.
type ChangeEvent struct {
	Category  SubscriptionCategory `json:"category"`
	Pair      string               `json:"pair"`
	StoreID   string               `json:"storeId,omitempty"`
	Rate      *ExchangeRate        `json:"rate,omitempty"`
	Alert     *RateAlert           `json:"alert,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}
