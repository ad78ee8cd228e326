package monitor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"RatePulse/internal/domain/models"
)

// Severity banding for spread breaches, proportional to how far the
// spread sits above the configured bound.
const (
	bandHigh     = 0.10
	bandCritical = 0.50
)

// maxRetained bounds the in-memory alert log. Alerts are never deleted by
// the core; retention beyond this window is an external concern.
const maxRetained = 1000

var ErrAlertNotFound = errors.New("alert not found")

// Monitor watches rate updates against per-pair thresholds and tracks
// staleness. It owns the alert log; alerts are mutated only by
// acknowledgement.
type Monitor struct {
	mu         sync.RWMutex
	thresholds map[string]*models.RateThreshold
	alerts     []*models.RateAlert
	byID       map[string]*models.RateAlert
	staleFlag  map[models.RateKey]bool
	maxAge     time.Duration
}

func New(maxAge time.Duration) *Monitor {
	return &Monitor{
		thresholds: make(map[string]*models.RateThreshold),
		byID:       make(map[string]*models.RateAlert),
		staleFlag:  make(map[models.RateKey]bool),
		maxAge:     maxAge,
	}
}

// SetThreshold installs or replaces the threshold for a pair.
func (m *Monitor) SetThreshold(t *models.RateThreshold) {
	m.mu.Lock()
	m.thresholds[t.Pair] = t
	m.mu.Unlock()
}

// Threshold returns the configured threshold for pair, if any.
func (m *Monitor) Threshold(pair string) (*models.RateThreshold, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.thresholds[pair]
	return t, ok
}

// CheckSpread evaluates a freshly written rate against its pair threshold.
// Returns the created alert on breach, nil otherwise.
func (m *Monitor) CheckSpread(r *models.ExchangeRate) *models.RateAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.thresholds[r.Pair]
	if !ok {
		return nil
	}
	bound := t.AlertThreshold
	if bound <= 0 {
		bound = t.MaxSpread
	}
	if bound <= 0 || r.Spread <= bound {
		return nil
	}

	over := (r.Spread - bound) / bound
	sev := models.SeverityMedium
	switch {
	case over >= bandCritical:
		sev = models.SeverityCritical
	case over >= bandHigh:
		sev = models.SeverityHigh
	}

	return m.record(&models.RateAlert{
		Pair:     r.Pair,
		Type:     models.AlertSpreadBreach,
		Severity: sev,
		Message:  fmt.Sprintf("spread %.4f exceeds bound %.4f for %s", r.Spread, bound, r.Pair),
	})
}

// CheckStale flags every active rate whose LastUpdated is older than the
// configured max age. Called from the periodic sweep.
func (m *Monitor) CheckStale(rates []*models.ExchangeRate, now time.Time) []*models.RateAlert {
	if m.maxAge <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.RateAlert
	for _, r := range rates {
		key := r.Key()
		if !r.IsActive || now.Sub(r.LastUpdated) <= m.maxAge {
			delete(m.staleFlag, key)
			continue
		}
		if m.staleFlag[key] {
			continue // already flagged; fires again only after a refresh
		}
		m.staleFlag[key] = true
		out = append(out, m.record(&models.RateAlert{
			Pair:     r.Pair,
			Type:     models.AlertRateStale,
			Severity: models.SeverityMedium,
			Message:  fmt.Sprintf("rate for %s not updated since %s", r.Pair, r.LastUpdated.Format(time.RFC3339)),
		}))
	}
	return out
}

// SourceFailure records a sustained provider failure.
func (m *Monitor) SourceFailure(provider string, consecutive int) *models.RateAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.record(&models.RateAlert{
		Type:     models.AlertSourceFailure,
		Severity: models.SeverityHigh,
		Message:  fmt.Sprintf("provider %s failed %d consecutive fetches", provider, consecutive),
	})
}

// Acknowledge marks an alert acknowledged. The only mutation an alert
// ever sees.
func (m *Monitor) Acknowledge(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	a.Acknowledged = true
	return nil
}

// Alerts returns a snapshot of the alert log, newest last.
func (m *Monitor) Alerts(includeAcked bool) []*models.RateAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.RateAlert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if !includeAcked && a.Acknowledged {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	return out
}

// Count reports the number of retained alerts.
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.alerts)
}

// record assumes m.mu is held.
func (m *Monitor) record(a *models.RateAlert) *models.RateAlert {
	a.ID = uuid.NewString()
	a.Timestamp = time.Now()
	m.alerts = append(m.alerts, a)
	m.byID[a.ID] = a
	if len(m.alerts) > maxRetained {
		drop := m.alerts[0]
		delete(m.byID, drop.ID)
		m.alerts = m.alerts[1:]
	}
	c := *a
	return &c
}
