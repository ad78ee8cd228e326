package registry

import (
	"testing"
	"time"

	"RatePulse/internal/domain/models"
)

func rateEvent(pair, storeID string) *models.ChangeEvent {
	return &models.ChangeEvent{
		Category:  models.CategoryRates,
		Pair:      pair,
		StoreID:   storeID,
		Timestamp: time.Now(),
	}
}

func TestMatchesSymbolFilter(t *testing.T) {
	r := New()
	r.Subscribe("c1", []string{"USDCAD"}, models.CategoryRates, "")

	if got := r.Matches(rateEvent("EURCAD", "")); len(got) != 0 {
		t.Fatalf("EURCAD should not match, got %v", got)
	}
	got := r.Matches(rateEvent("USDCAD", ""))
	if len(got) != 1 || got[0] != "c1" {
		t.Fatalf("USDCAD should match c1, got %v", got)
	}
}

func TestMatchesAllSymbols(t *testing.T) {
	r := New()
	r.Subscribe("c1", nil, models.CategoryRates, "")
	r.Subscribe("c2", []string{"all"}, models.CategoryRates, "")

	got := r.Matches(rateEvent("GBPCAD", ""))
	if len(got) != 2 {
		t.Fatalf("empty/all symbol sets should match everything, got %v", got)
	}
}

func TestMatchesCategory(t *testing.T) {
	r := New()
	r.Subscribe("rates-only", []string{"USDCAD"}, models.CategoryRates, "")
	r.Subscribe("alerts-only", nil, models.CategoryAlerts, "")
	r.Subscribe("everything", nil, models.CategoryAll, "")

	ev := &models.ChangeEvent{Category: models.CategoryAlerts, Pair: "USDCAD"}
	got := r.Matches(ev)
	if len(got) != 2 {
		t.Fatalf("alert event should reach alerts-only and everything, got %v", got)
	}
}

func TestMatchesStoreScope(t *testing.T) {
	r := New()
	r.Subscribe("global", []string{"USDCAD"}, models.CategoryRates, "")
	r.Subscribe("store7", []string{"USDCAD"}, models.CategoryRates, "store-7")
	r.Subscribe("store9", []string{"USDCAD"}, models.CategoryRates, "store-9")

	// Global event reaches scoped subscribers in addition to global ones.
	if got := r.Matches(rateEvent("USDCAD", "")); len(got) != 3 {
		t.Fatalf("global event should reach all, got %v", got)
	}
	// Scoped event reaches the matching scope and global subscribers only.
	got := r.Matches(rateEvent("USDCAD", "store-7"))
	if len(got) != 2 {
		t.Fatalf("scoped event matches = %v", got)
	}
	for _, id := range got {
		if id == "store9" {
			t.Fatalf("store-9 subscriber must not see store-7 event")
		}
	}
}

func TestUnsubscribeAll(t *testing.T) {
	r := New()
	r.Subscribe("c1", []string{"USDCAD"}, models.CategoryRates, "")
	r.Subscribe("c1", nil, models.CategoryAlerts, "")

	r.Unsubscribe("c1", nil, "", true)
	if r.HasClient("c1") {
		t.Fatalf("unsubscribe all should remove every subscription")
	}
	if got := r.Matches(rateEvent("USDCAD", "")); len(got) != 0 {
		t.Fatalf("no deliveries expected after unsubscribe all, got %v", got)
	}
}

func TestUnsubscribeSymbols(t *testing.T) {
	r := New()
	r.Subscribe("c1", []string{"USDCAD", "EURCAD"}, models.CategoryRates, "")

	r.Unsubscribe("c1", []string{"USDCAD"}, models.CategoryRates, false)
	if got := r.Matches(rateEvent("USDCAD", "")); len(got) != 0 {
		t.Fatalf("USDCAD should be gone, got %v", got)
	}
	if got := r.Matches(rateEvent("EURCAD", "")); len(got) != 1 {
		t.Fatalf("EURCAD should survive, got %v", got)
	}
}

func TestResubscribeReplaces(t *testing.T) {
	r := New()
	r.Subscribe("c1", []string{"USDCAD"}, models.CategoryRates, "")
	r.Subscribe("c1", []string{"EURCAD"}, models.CategoryRates, "")

	if got := r.Matches(rateEvent("USDCAD", "")); len(got) != 0 {
		t.Fatalf("re-subscribe should replace symbol set, got %v", got)
	}
	if r.Count() != 1 {
		t.Fatalf("expected a single subscription, got %d", r.Count())
	}
}
