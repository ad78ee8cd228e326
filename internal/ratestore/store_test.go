package ratestore

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"RatePulse/internal/domain/models"
)

func newRate(pair string, buy, sell float64, ts time.Time) *models.ExchangeRate {
	return &models.ExchangeRate{
		Pair:      pair,
		Base:      pair[:3],
		Target:    pair[3:],
		MidRate:   (buy + sell) / 2,
		BuyRate:   buy,
		SellRate:  sell,
		Spread:    models.SpreadOf(buy, sell),
		Source:    models.SourceMarket,
		Timestamp: ts,
	}
}

func TestPutRecomputesSpread(t *testing.T) {
	s := New()
	r := newRate("USDCAD", 1.37, 1.33, time.Now())
	r.Spread = 0.5 // inconsistent on purpose
	if err := s.Put(r); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get("USDCAD", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := (1.37 - 1.33) / 1.35
	if math.Abs(got.Spread-want) > SpreadTolerance {
		t.Fatalf("spread = %v, want ~%v", got.Spread, want)
	}
	if got.BuyRate <= got.SellRate {
		t.Fatalf("buy %v must exceed sell %v", got.BuyRate, got.SellRate)
	}
}

func TestPutRejectsInvalidRate(t *testing.T) {
	s := New()
	if err := s.Put(newRate("USDCAD", 1.30, 1.35, time.Now())); err == nil {
		t.Fatalf("expected rejection for buy <= sell")
	}
	bad := newRate("USDCAD", 1.35, 1.30, time.Now())
	bad.MidRate = math.NaN()
	if err := s.Put(bad); err == nil {
		t.Fatalf("expected rejection for NaN mid")
	}
}

func TestStaleWriteRejected(t *testing.T) {
	s := New()
	now := time.Now()
	if err := s.Put(newRate("USDCAD", 1.37, 1.33, now)); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := s.Put(newRate("USDCAD", 1.40, 1.36, now.Add(-time.Minute)))
	if !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite, got %v", err)
	}
	got, err := s.Get("USDCAD", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BuyRate != 1.37 {
		t.Fatalf("stale write overwrote newer rate: buy=%v", got.BuyRate)
	}
	if s.StaleWrites() != 1 {
		t.Fatalf("stale counter = %d", s.StaleWrites())
	}
}

func TestStoreScopeFallback(t *testing.T) {
	s := New()
	now := time.Now()
	if err := s.Put(newRate("USDCAD", 1.37, 1.33, now)); err != nil {
		t.Fatalf("put global: %v", err)
	}
	scoped := newRate("USDCAD", 1.40, 1.36, now)
	scoped.StoreID = "store-7"
	if err := s.Put(scoped); err != nil {
		t.Fatalf("put scoped: %v", err)
	}

	got, _ := s.Get("USDCAD", "store-7")
	if got.BuyRate != 1.40 {
		t.Fatalf("scoped read should see scoped rate, got buy=%v", got.BuyRate)
	}
	got, _ = s.Get("USDCAD", "store-9")
	if got.BuyRate != 1.37 {
		t.Fatalf("unknown store should fall back to global, got buy=%v", got.BuyRate)
	}
	got, _ = s.Get("USDCAD", "")
	if got.BuyRate != 1.37 {
		t.Fatalf("global read got buy=%v", got.BuyRate)
	}
}

func TestGetAllShadowing(t *testing.T) {
	s := New()
	now := time.Now()
	_ = s.Put(newRate("USDCAD", 1.37, 1.33, now))
	_ = s.Put(newRate("EURCAD", 1.48, 1.44, now))
	scoped := newRate("USDCAD", 1.40, 1.36, now)
	scoped.StoreID = "store-7"
	_ = s.Put(scoped)

	all := s.GetAll("store-7")
	if len(all) != 2 {
		t.Fatalf("expected 2 visible rates, got %d", len(all))
	}
	for _, r := range all {
		if r.Pair == "USDCAD" && r.BuyRate != 1.40 {
			t.Fatalf("scoped rate should shadow global, got buy=%v", r.BuyRate)
		}
	}
}

func TestVersionMonotonic(t *testing.T) {
	s := New()
	base := time.Now()
	var last uint64
	for i := 0; i < 10; i++ {
		r := newRate("USDCAD", 1.37+float64(i)/100, 1.33, base.Add(time.Duration(i)*time.Second))
		if err := s.Put(r); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
		if r.Version <= last {
			t.Fatalf("version not monotonic: %d after %d", r.Version, last)
		}
		last = r.Version
	}
}

func TestConcurrentPutsConsistent(t *testing.T) {
	s := New()
	now := time.Now()
	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buy := 1.30 + float64(i)*0.01
			_ = s.Put(newRate("USDCAD", buy, buy-0.04, now))
		}(i)
	}
	wg.Wait()

	got, err := s.Get("USDCAD", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// Result must be exactly one of the submitted updates, not a composite.
	if math.Abs(got.BuyRate-got.SellRate-0.04) > 1e-9 {
		t.Fatalf("interleaved write detected: buy=%v sell=%v", got.BuyRate, got.SellRate)
	}
}
