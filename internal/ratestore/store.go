package ratestore

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"RatePulse/internal/domain/models"
)

// SpreadTolerance bounds the allowed drift between a stored spread and the
// spread implied by buy/sell. Writes outside the tolerance get the spread
// recomputed; the invariant |spread - (buy-sell)/mid| < tolerance holds
// after every Put.
const SpreadTolerance = 1e-6

var (
	ErrNotFound   = errors.New("rate not found")
	ErrStaleWrite = errors.New("stale write rejected")
)

// Store is the in-memory map of (pair, store) -> current rate. Reads fall
// back from store scope to global scope; that fallback is the only
// implicit precedence rule in the system.
type Store struct {
	mu      sync.RWMutex
	rates   map[models.RateKey]*models.ExchangeRate
	version uint64
	stale   uint64
}

func New() *Store {
	return &Store{rates: make(map[models.RateKey]*models.ExchangeRate)}
}

// Get returns the active rate for pair, preferring the store-scoped entry
// and falling back to the global one.
func (s *Store) Get(pair, storeID string) (*models.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if storeID != "" {
		if r, ok := s.rates[models.RateKey{Pair: pair, StoreID: storeID}]; ok && r.IsActive {
			return cloneRate(r), nil
		}
	}
	if r, ok := s.rates[models.RateKey{Pair: pair}]; ok && r.IsActive {
		return cloneRate(r), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, pair)
}

// GetAll returns every active rate visible to storeID: store-scoped rates
// shadow the global rate for the same pair.
func (s *Store) GetAll(storeID string) []*models.ExchangeRate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byPair := make(map[string]*models.ExchangeRate)
	for k, r := range s.rates {
		if !r.IsActive {
			continue
		}
		switch k.StoreID {
		case "":
			if _, shadowed := byPair[k.Pair]; !shadowed {
				byPair[k.Pair] = r
			}
		case storeID:
			byPair[k.Pair] = r
		}
	}

	out := make([]*models.ExchangeRate, 0, len(byPair))
	for _, r := range byPair {
		out = append(out, cloneRate(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// Put upserts a rate, bumping the monotonic version counter. A write whose
// timestamp is older than the stored one for the same key is rejected with
// ErrStaleWrite; callers log and count it, nothing more.
func (s *Store) Put(r *models.ExchangeRate) error {
	if r == nil {
		return fmt.Errorf("rate is nil")
	}
	if !r.Valid() {
		return fmt.Errorf("invalid rate %s: buy=%v sell=%v mid=%v", r.Pair, r.BuyRate, r.SellRate, r.MidRate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Key()
	if prev, ok := s.rates[key]; ok && r.Timestamp.Before(prev.Timestamp) {
		s.stale++
		return fmt.Errorf("%w: %s at %s behind %s", ErrStaleWrite, r.Pair,
			r.Timestamp.Format(time.RFC3339Nano), prev.Timestamp.Format(time.RFC3339Nano))
	}

	stored := cloneRate(r)
	if implied := models.SpreadOf(stored.BuyRate, stored.SellRate); math.Abs(stored.Spread-implied) > SpreadTolerance {
		stored.Spread = implied
	}
	s.version++
	stored.Version = s.version
	stored.IsActive = true
	stored.LastUpdated = time.Now()
	s.rates[key] = stored
	r.Version = stored.Version
	return nil
}

// Deactivate marks the rate for key inactive, if present.
func (s *Store) Deactivate(pair, storeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rates[models.RateKey{Pair: pair, StoreID: storeID}]; ok {
		r.IsActive = false
	}
}

// Snapshot returns copies of every active rate across all scopes.
func (s *Store) Snapshot() []*models.ExchangeRate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ExchangeRate, 0, len(s.rates))
	for _, r := range s.rates {
		if r.IsActive {
			out = append(out, cloneRate(r))
		}
	}
	return out
}

// ActiveCount reports the number of active rates across all scopes.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.rates {
		if r.IsActive {
			n++
		}
	}
	return n
}

// StaleWrites reports how many writes were rejected as stale.
func (s *Store) StaleWrites() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

func cloneRate(r *models.ExchangeRate) *models.ExchangeRate {
	c := *r
	return &c
}
