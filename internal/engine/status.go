package engine

import "time"

// Status is the engine's health snapshot, served by the status endpoint
// and asserted on in tests.
type Status struct {
	Running     bool      `json:"running"`
	LastRefresh time.Time `json:"lastRefresh"`
	ActiveRates int       `json:"activeRates"`
	ActiveLocks int       `json:"activeLocks"`
	AlertCount  int       `json:"alertCount"`
	StaleWrites uint64    `json:"staleWrites"`
	Pairs       int       `json:"pairs"`

	RefreshAvgMs float64 `json:"refreshAvgMs"`
	RefreshMaxMs float64 `json:"refreshMaxMs"`
	ErrorRate    float64 `json:"errorRate"` // failed pair merges / attempts, rolling window
}

// Status reports the current engine state.
func (e *Engine) Status() Status {
	activeLocks := e.ActiveLocks()

	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		Running:     e.running,
		LastRefresh: e.lastRefresh,
		ActiveRates: e.store.ActiveCount(),
		ActiveLocks: activeLocks,
		AlertCount:  e.mon.Count(),
		StaleWrites: e.store.StaleWrites(),
		Pairs:       len(e.cfg.Pairs),
	}

	var sum, max time.Duration
	for _, d := range e.durations {
		sum += d
		if d > max {
			max = d
		}
	}
	if n := len(e.durations); n > 0 {
		st.RefreshAvgMs = float64(sum.Microseconds()) / float64(n) / 1000
		st.RefreshMaxMs = float64(max.Microseconds()) / 1000
	}

	var ops, errs int
	for _, c := range e.cycles {
		ops += c.ops
		errs += c.errs
	}
	if ops > 0 {
		st.ErrorRate = float64(errs) / float64(ops)
	}
	return st
}
