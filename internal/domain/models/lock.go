package models

import "time"

// RateLock freezes a rate snapshot for a bounded window so an in-flight
// transaction is protected from drift. The snapshot never changes after
// creation; only IsActive transitions true -> false.
type RateLock struct {
	ID        string       `json:"id"`
	Pair      string       `json:"pair"`
	StoreID   string       `json:"storeId,omitempty"`
	Rate      ExchangeRate `json:"rate"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	Duration  time.Duration `json:"-"`
	ExpiresAt time.Time    `json:"expiresAt"`
	IsActive  bool         `json:"isActive"`
}

// Expired reports whether the lock's window has passed.
func (l *RateLock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
