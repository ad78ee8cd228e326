package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"RatePulse/internal/domain/models"
	applogger "RatePulse/pkg/logger"
)

// LockRate snapshots the pair's current active rate for duration. The
// snapshot never changes afterwards; many locks may exist per pair, one
// per in-flight transaction.
func (e *Engine) LockRate(pair string, duration time.Duration, storeID, reason string) (*models.RateLock, error) {
	rate, err := e.store.Get(pair, storeID)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", pair, err)
	}

	now := time.Now()
	lock := &models.RateLock{
		ID:        uuid.NewString(),
		Pair:      pair,
		StoreID:   storeID,
		Rate:      *rate,
		Reason:    reason,
		CreatedAt: now,
		Duration:  duration,
		ExpiresAt: now.Add(duration),
		IsActive:  true,
	}

	e.mu.Lock()
	e.locks[lock.ID] = lock
	e.mu.Unlock()

	e.log.Info("rate locked",
		applogger.String("pair", pair),
		applogger.String("lock_id", lock.ID),
		applogger.Duration("duration", duration),
	)
	c := *lock
	return &c, nil
}

// ReleaseLock deactivates a lock. Releasing an already-inactive lock is a
// no-op; an unknown id is a not-found condition.
func (e *Engine) ReleaseLock(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockNotFound, id)
	}
	lock.IsActive = false
	return nil
}

// Lock returns a copy of the lock with the given id.
func (e *Engine) Lock(id string) (*models.RateLock, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockNotFound, id)
	}
	c := *lock
	return &c, nil
}

// ActiveLocks reports how many locks are currently active.
func (e *Engine) ActiveLocks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, l := range e.locks {
		if l.IsActive {
			n++
		}
	}
	return n
}

// sweepLoop drives lock expiry and the staleness check. A lock is
// authoritatively inactive as soon as the sweep observes its expiry, even
// if no one ever calls ReleaseLock.
func (e *Engine) sweepLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.sweepLocks(now)
			e.sweepStale(now)
		}
	}
}

func (e *Engine) sweepLocks(now time.Time) {
	e.mu.Lock()
	expired := 0
	for _, l := range e.locks {
		if l.IsActive && l.Expired(now) {
			l.IsActive = false
			expired++
		}
	}
	e.mu.Unlock()

	if expired > 0 {
		e.log.Debug("locks expired", applogger.Int("count", expired))
	}
}

func (e *Engine) sweepStale(now time.Time) {
	alerts := e.mon.CheckStale(e.store.Snapshot(), now)
	for _, a := range alerts {
		e.publish(&models.ChangeEvent{
			Category:  models.CategoryAlerts,
			Pair:      a.Pair,
			Alert:     a,
			Timestamp: now,
		})
	}
}
