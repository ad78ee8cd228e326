package repository

import (
	"context"
	"time"

	"RatePulse/internal/domain/models"
)

// Quote is a normalized upstream market-data point.
type Quote struct {
	Symbol    string
	Value     float64
	Timestamp time.Time
	Provider  string
}

// RateSource is one upstream market-data provider. Implementations must
// return a finite positive value or a typed error; the engine never looks
// past this contract.
type RateSource interface {
	Fetch(ctx context.Context, symbol string) (*Quote, error)
	Name() string
	Category() string
}

// ConfigStore persists engine configuration (thresholds, overrides,
// provider priorities) across restarts. The core runs correctly with a
// nil/no-op store; durability is the only concern here.
type ConfigStore interface {
	LoadThresholds(ctx context.Context) ([]*models.RateThreshold, error)
	SaveThreshold(ctx context.Context, t *models.RateThreshold) error
	LoadOverrides(ctx context.Context) ([]*models.RateOverride, error)
	SaveOverride(ctx context.Context, o *models.RateOverride) error
	DeleteOverride(ctx context.Context, pair, storeID string) error
	Close() error
}

// HistorySink appends applied rates to durable history and serves range
// queries for the history endpoint.
type HistorySink interface {
	Append(ctx context.Context, r *models.ExchangeRate) error
	Query(ctx context.Context, pair string, from, to time.Time, limit int) ([]*models.ExchangeRate, error)
	Health(ctx context.Context) error
	Close() error
}

// EventPublisher streams applied changes and alerts to an external audit
// topic. Best-effort; publish failures never block the rate path.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *models.ChangeEvent) error
	Close() error
}

// Metrics records operational measurements.
type Metrics interface {
	RecordRefresh(duration time.Duration, pairs int)
	RecordProviderError(provider string)
	RecordRate(pair string, mid float64)
	RecordBroadcast(batches, events int)
	RecordQueueDrop(clientID string)
	SetConnections(n int)
	SetSubscriptions(n int)
	RecordError(kind string)
}
