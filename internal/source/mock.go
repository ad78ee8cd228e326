package source

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"RatePulse/internal/domain/repository"
)

// MockSource serves configured values with a small random walk. Used in
// tests and when no real provider is configured for a category.
type MockSource struct {
	name     string
	category string
	mu       sync.Mutex
	values   map[string]float64
	jitter   float64
	err      error
	fetches  int
}

func NewMockSource(name, category string, values map[string]float64) *MockSource {
	return &MockSource{name: name, category: category, values: values, jitter: 0.001}
}

func (s *MockSource) Name() string     { return s.name }
func (s *MockSource) Category() string { return s.category }

// Fail makes every subsequent Fetch return err (nil restores normal
// operation).
func (s *MockSource) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// SetJitter adjusts the random-walk amplitude; zero pins values exactly.
func (s *MockSource) SetJitter(j float64) {
	s.mu.Lock()
	s.jitter = j
	s.mu.Unlock()
}

// SetValue pins the mid value for a symbol.
func (s *MockSource) SetValue(symbol string, v float64) {
	s.mu.Lock()
	s.values[symbol] = v
	s.mu.Unlock()
}

// Fetches reports how many times Fetch was called.
func (s *MockSource) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *MockSource) Fetch(_ context.Context, symbol string) (*repository.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.values[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, symbol)
	}
	if s.jitter > 0 {
		v *= 1 + (rand.Float64()*2-1)*s.jitter
	}
	return newQuote(s.name, symbol, v, time.Now())
}

var _ repository.RateSource = (*MockSource)(nil)
