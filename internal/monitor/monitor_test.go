package monitor

import (
	"errors"
	"testing"
	"time"

	"RatePulse/internal/domain/models"
)

func rateWithSpread(pair string, spread float64) *models.ExchangeRate {
	return &models.ExchangeRate{Pair: pair, Spread: spread, IsActive: true, LastUpdated: time.Now()}
}

func TestSpreadBanding(t *testing.T) {
	m := New(0)
	m.SetThreshold(&models.RateThreshold{Pair: "USDCAD", AlertThreshold: 0.02})

	cases := []struct {
		spread float64
		want   models.AlertSeverity
	}{
		{0.021, models.SeverityMedium},   // ~5% over
		{0.023, models.SeverityHigh},     // 15% over
		{0.035, models.SeverityCritical}, // 75% over
	}
	for _, tc := range cases {
		a := m.CheckSpread(rateWithSpread("USDCAD", tc.spread))
		if a == nil {
			t.Fatalf("spread %v should breach", tc.spread)
		}
		if a.Severity != tc.want {
			t.Fatalf("spread %v severity = %s, want %s", tc.spread, a.Severity, tc.want)
		}
		if a.Type != models.AlertSpreadBreach {
			t.Fatalf("type = %s", a.Type)
		}
	}
}

func TestSpreadWithinBoundNoAlert(t *testing.T) {
	m := New(0)
	m.SetThreshold(&models.RateThreshold{Pair: "USDCAD", AlertThreshold: 0.02})
	if a := m.CheckSpread(rateWithSpread("USDCAD", 0.015)); a != nil {
		t.Fatalf("unexpected alert: %+v", a)
	}
	// No threshold configured for the pair at all.
	if a := m.CheckSpread(rateWithSpread("EURCAD", 0.9)); a != nil {
		t.Fatalf("unexpected alert without threshold: %+v", a)
	}
}

func TestStaleSweep(t *testing.T) {
	m := New(time.Minute)
	fresh := rateWithSpread("USDCAD", 0.01)
	stale := rateWithSpread("EURCAD", 0.01)
	stale.LastUpdated = time.Now().Add(-2 * time.Minute)

	alerts := m.CheckStale([]*models.ExchangeRate{fresh, stale}, time.Now())
	if len(alerts) != 1 {
		t.Fatalf("expected 1 stale alert, got %d", len(alerts))
	}
	if alerts[0].Pair != "EURCAD" || alerts[0].Type != models.AlertRateStale {
		t.Fatalf("unexpected alert %+v", alerts[0])
	}
	if alerts[0].Severity != models.SeverityMedium {
		t.Fatalf("stale severity = %s", alerts[0].Severity)
	}
}

func TestStaleFiresOncePerEpisode(t *testing.T) {
	m := New(time.Minute)
	stale := rateWithSpread("USDCAD", 0.01)
	stale.LastUpdated = time.Now().Add(-2 * time.Minute)

	if got := m.CheckStale([]*models.ExchangeRate{stale}, time.Now()); len(got) != 1 {
		t.Fatalf("first sweep should flag, got %d", len(got))
	}
	if got := m.CheckStale([]*models.ExchangeRate{stale}, time.Now()); len(got) != 0 {
		t.Fatalf("second sweep should not re-flag, got %d", len(got))
	}

	// Refresh clears the episode; going stale again re-fires.
	fresh := rateWithSpread("USDCAD", 0.01)
	_ = m.CheckStale([]*models.ExchangeRate{fresh}, time.Now())
	stale.LastUpdated = time.Now().Add(-2 * time.Minute)
	if got := m.CheckStale([]*models.ExchangeRate{stale}, time.Now()); len(got) != 1 {
		t.Fatalf("new episode should flag, got %d", len(got))
	}
}

func TestAcknowledge(t *testing.T) {
	m := New(0)
	m.SetThreshold(&models.RateThreshold{Pair: "USDCAD", AlertThreshold: 0.01})
	a := m.CheckSpread(rateWithSpread("USDCAD", 0.05))
	if a == nil {
		t.Fatalf("expected alert")
	}

	if err := m.Acknowledge(a.ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if got := m.Alerts(false); len(got) != 0 {
		t.Fatalf("acked alert still listed: %v", got)
	}
	if got := m.Alerts(true); len(got) != 1 || !got[0].Acknowledged {
		t.Fatalf("alert should remain in full log")
	}

	if err := m.Acknowledge("nope"); !errors.Is(err, ErrAlertNotFound) {
		t.Fatalf("expected ErrAlertNotFound, got %v", err)
	}
}
