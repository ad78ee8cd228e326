package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"RatePulse/internal/domain/repository"
	"RatePulse/internal/source"
)

func TestLockSnapshotImmutable(t *testing.T) {
	src := source.NewMockSource("mock-crypto", source.CategoryCrypto, map[string]float64{"BTCCAD": 92000})
	src.SetJitter(0)
	e := testEngine(t, []repository.RateSource{src}, PairConfig{Symbol: "BTCCAD", Category: source.CategoryCrypto})

	e.RefreshFromSources(context.Background())
	lock, err := e.LockRate("BTCCAD", time.Minute, "", "settlement")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Market moves; the lock must not.
	src.SetValue("BTCCAD", 95000)
	e.RefreshFromSources(context.Background())

	current, _ := e.Rate("BTCCAD", "")
	if current.MidRate != 95000 {
		t.Fatalf("market rate should have moved, got %v", current.MidRate)
	}
	got, err := e.Lock(lock.ID)
	if err != nil {
		t.Fatalf("lock lookup: %v", err)
	}
	if got.Rate.MidRate != 92000 {
		t.Fatalf("lock snapshot drifted: %v", got.Rate.MidRate)
	}
	if !got.IsActive {
		t.Fatalf("lock should still be active")
	}
}

func TestLockRequiresActiveRate(t *testing.T) {
	e := testEngine(t, nil)
	if _, err := e.LockRate("USDCAD", time.Minute, "", ""); !errors.Is(err, ErrRateNotFound) {
		t.Fatalf("expected ErrRateNotFound, got %v", err)
	}
}

func TestLockExpirySweep(t *testing.T) {
	e := testEngine(t, nil)
	if _, err := e.UpdateRateManually(context.Background(), &ManualRateRequest{
		Pair: "USDCAD", BuyRate: 1.37, SellRate: 1.33,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	lock, err := e.LockRate("USDCAD", time.Second, "", "")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Time-driven expiry: no release call, the sweep alone deactivates.
	e.sweepLocks(time.Now().Add(2 * time.Second))

	got, _ := e.Lock(lock.ID)
	if got.IsActive {
		t.Fatalf("expired lock still active")
	}
	if got.Rate.BuyRate != 1.37 {
		t.Fatalf("expiry must not touch the snapshot: %v", got.Rate.BuyRate)
	}
}

func TestReleaseLockIdempotent(t *testing.T) {
	e := testEngine(t, nil)
	if _, err := e.UpdateRateManually(context.Background(), &ManualRateRequest{
		Pair: "USDCAD", BuyRate: 1.37, SellRate: 1.33,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	lock, _ := e.LockRate("USDCAD", time.Minute, "", "")

	if err := e.ReleaseLock(lock.ID); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := e.ReleaseLock(lock.ID); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}
	if err := e.ReleaseLock("missing"); !errors.Is(err, ErrLockNotFound) {
		t.Fatalf("expected ErrLockNotFound, got %v", err)
	}
}

func TestConcurrentLocksSamePair(t *testing.T) {
	e := testEngine(t, nil)
	if _, err := e.UpdateRateManually(context.Background(), &ManualRateRequest{
		Pair: "USDCAD", BuyRate: 1.37, SellRate: 1.33,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ids := make(map[string]bool)
	for i := 0; i < 5; i++ {
		l, err := e.LockRate("USDCAD", time.Minute, "", "txn")
		if err != nil {
			t.Fatalf("lock %d: %v", i, err)
		}
		ids[l.ID] = true
	}
	if len(ids) != 5 {
		t.Fatalf("expected 5 distinct locks, got %d", len(ids))
	}
	if e.ActiveLocks() != 5 {
		t.Fatalf("active locks = %d", e.ActiveLocks())
	}
}
