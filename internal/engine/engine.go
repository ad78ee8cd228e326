package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"RatePulse/internal/domain/models"
	"RatePulse/internal/domain/repository"
	"RatePulse/internal/monitor"
	"RatePulse/internal/ratestore"
	applogger "RatePulse/pkg/logger"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrLockNotFound = errors.New("lock not found")
	ErrRateNotFound = ratestore.ErrNotFound
)

// PairConfig names one pair the engine keeps current and the provider
// category that serves it.
type PairConfig struct {
	Symbol   string `yaml:"symbol"`
	Category string `yaml:"category"`
}

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	RefreshInterval   time.Duration
	SweepInterval     time.Duration
	RequestTimeout    time.Duration
	DefaultSpread     float64
	MinSpread         float64
	MaxSpread         float64
	SpreadTolerance   float64
	ChangeEpsilon     float64
	FailureAlertAfter int
	EventBuffer       int
	Pairs             []PairConfig
	Priority          map[string][]string // category -> ordered provider names
}

func (c *Config) withDefaults() {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 30 * time.Second
	}
	if c.SweepInterval <= 0 || c.SweepInterval > time.Second {
		c.SweepInterval = time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.DefaultSpread <= 0 {
		c.DefaultSpread = 0.02
	}
	if c.MaxSpread <= 0 {
		c.MaxSpread = 0.10
	}
	if c.SpreadTolerance <= 0 {
		c.SpreadTolerance = 0.001
	}
	if c.ChangeEpsilon <= 0 {
		c.ChangeEpsilon = 1e-9
	}
	if c.FailureAlertAfter <= 0 {
		c.FailureAlertAfter = 3
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
}

// cycleStats is one refresh cycle's attempt/failure tally, kept in a small
// ring for the rolling error rate.
type cycleStats struct {
	ops  int
	errs int
}

const statsWindow = 50

// Engine orchestrates source adapters on a schedule, merges results into
// the rate store under business rules, and owns overrides and locks. It is
// built once at process start and passed by handle; lifecycle is explicit
// via Start/Stop.
type Engine struct {
	cfg     Config
	store   *ratestore.Store
	mon     *monitor.Monitor
	metrics repository.Metrics
	log     *applogger.Logger

	sources  map[string]repository.RateSource
	ordered  map[string][]repository.RateSource // category -> priority order
	cfgStore repository.ConfigStore             // optional
	history  repository.HistorySink             // optional
	audit    repository.EventPublisher          // optional

	mu        sync.Mutex
	overrides map[models.RateKey]*models.RateOverride
	locks     map[string]*models.RateLock
	failures  map[string]int // provider -> consecutive failures
	alerted   map[string]bool

	running     bool
	lastRefresh time.Time
	durations   []time.Duration
	cycles      []cycleStats

	subsMu sync.Mutex
	subs   map[string]chan *models.ChangeEvent

	sinkCh chan *models.ChangeEvent
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option wires optional collaborators into the engine.
type Option func(*Engine)

// WithConfigStore persists thresholds and overrides across restarts.
func WithConfigStore(cs repository.ConfigStore) Option {
	return func(e *Engine) { e.cfgStore = cs }
}

// WithHistory appends applied rates to a durable history sink.
func WithHistory(h repository.HistorySink) Option {
	return func(e *Engine) { e.history = h }
}

// WithAuditPublisher streams change events to an external topic.
func WithAuditPublisher(p repository.EventPublisher) Option {
	return func(e *Engine) { e.audit = p }
}

func New(cfg Config, store *ratestore.Store, mon *monitor.Monitor, sources []repository.RateSource,
	metrics repository.Metrics, log *applogger.Logger, opts ...Option) *Engine {
	cfg.withDefaults()

	e := &Engine{
		cfg:       cfg,
		store:     store,
		mon:       mon,
		metrics:   metrics,
		log:       log,
		sources:   make(map[string]repository.RateSource, len(sources)),
		ordered:   make(map[string][]repository.RateSource),
		overrides: make(map[models.RateKey]*models.RateOverride),
		locks:     make(map[string]*models.RateLock),
		failures:  make(map[string]int),
		alerted:   make(map[string]bool),
		subs:      make(map[string]chan *models.ChangeEvent),
		sinkCh:    make(chan *models.ChangeEvent, cfg.EventBuffer),
		stopCh:    make(chan struct{}),
	}
	for _, s := range sources {
		e.sources[s.Name()] = s
	}
	e.orderSources(sources)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// orderSources resolves the per-category provider priority lists. Names
// missing from the priority config keep registration order at the tail.
func (e *Engine) orderSources(sources []repository.RateSource) {
	for cat, names := range e.cfg.Priority {
		for _, name := range names {
			if s, ok := e.sources[name]; ok && s.Category() == cat {
				e.ordered[cat] = append(e.ordered[cat], s)
			}
		}
	}
	for _, s := range sources {
		cat := s.Category()
		found := false
		for _, o := range e.ordered[cat] {
			if o.Name() == s.Name() {
				found = true
				break
			}
		}
		if !found {
			e.ordered[cat] = append(e.ordered[cat], s)
		}
	}
}

// Start loads persisted configuration and launches the refresh and sweep
// loops plus the sink worker.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.mu.Unlock()

	e.loadPersisted(ctx)

	e.wg.Add(3)
	go e.refreshLoop(ctx)
	go e.sweepLoop(ctx)
	go e.sinkLoop(ctx)

	e.log.Info("engine started",
		applogger.Int("pairs", len(e.cfg.Pairs)),
		applogger.Int("sources", len(e.sources)),
		applogger.Duration("refresh_interval", e.cfg.RefreshInterval),
	)
	return nil
}

// Stop halts the loops, closes event channels, and releases optional
// sinks. Safe to call once.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()

	e.subsMu.Lock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.subsMu.Unlock()

	if e.audit != nil {
		if err := e.audit.Close(); err != nil {
			e.log.Warn("audit publisher close", applogger.Error(err))
		}
	}
	if e.history != nil {
		if err := e.history.Close(); err != nil {
			e.log.Warn("history sink close", applogger.Error(err))
		}
	}
	e.log.Info("engine stopped")
	return nil
}

// Events registers an event channel under id. The caller must drain it;
// the engine drops events for slow consumers rather than blocking.
func (e *Engine) Events(id string) <-chan *models.ChangeEvent {
	ch := make(chan *models.ChangeEvent, e.cfg.EventBuffer)
	e.subsMu.Lock()
	e.subs[id] = ch
	e.subsMu.Unlock()
	return ch
}

// Unsubscribe deregisters and closes the channel registered under id.
func (e *Engine) Unsubscribe(id string) {
	e.subsMu.Lock()
	if ch, ok := e.subs[id]; ok {
		close(ch)
		delete(e.subs, id)
	}
	e.subsMu.Unlock()
}

// publish fans an event out to registered channels and the sink worker.
// Non-blocking everywhere: a full subscriber buffer drops the event for
// that subscriber only.
func (e *Engine) publish(ev *models.ChangeEvent) {
	e.subsMu.Lock()
	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.metrics.RecordError("event_drop_" + id)
		}
	}
	e.subsMu.Unlock()

	if e.history != nil || e.audit != nil {
		select {
		case e.sinkCh <- ev:
		default:
			e.metrics.RecordError("sink_drop")
		}
	}
}

// sinkLoop forwards events to the optional history and audit sinks so
// slow external systems never touch the hot path.
func (e *Engine) sinkLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case ev := <-e.sinkCh:
			if ev == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if e.history != nil && ev.Rate != nil {
				if err := e.history.Append(sctx, ev.Rate); err != nil {
					e.metrics.RecordError("history_append")
					e.log.Warn("history append", applogger.Error(err))
				}
			}
			if e.audit != nil {
				if err := e.audit.PublishEvent(sctx, ev); err != nil {
					e.metrics.RecordError("audit_publish")
					e.log.Warn("audit publish", applogger.Error(err))
				}
			}
			cancel()
		}
	}
}

// loadPersisted restores thresholds and overrides from the config store.
func (e *Engine) loadPersisted(ctx context.Context) {
	if e.cfgStore == nil {
		return
	}
	lctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	thresholds, err := e.cfgStore.LoadThresholds(lctx)
	if err != nil {
		e.log.Warn("load thresholds", applogger.Error(err))
	}
	for _, t := range thresholds {
		e.mon.SetThreshold(t)
	}

	overrides, err := e.cfgStore.LoadOverrides(lctx)
	if err != nil {
		e.log.Warn("load overrides", applogger.Error(err))
	}
	now := time.Now()
	e.mu.Lock()
	for _, o := range overrides {
		if !o.Expired(now) {
			e.overrides[models.RateKey{Pair: o.Pair, StoreID: o.StoreID}] = o
		}
	}
	e.mu.Unlock()

	if len(thresholds) > 0 || len(overrides) > 0 {
		e.log.Info("persisted config restored",
			applogger.Int("thresholds", len(thresholds)),
			applogger.Int("overrides", len(overrides)),
		)
	}
}

// SetThreshold installs a pair threshold and persists it when a config
// store is wired.
func (e *Engine) SetThreshold(ctx context.Context, t *models.RateThreshold) error {
	e.mon.SetThreshold(t)
	if e.cfgStore != nil {
		if err := e.cfgStore.SaveThreshold(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Alerts exposes the monitor's alert log.
func (e *Engine) Alerts(includeAcked bool) []*models.RateAlert {
	return e.mon.Alerts(includeAcked)
}

// AcknowledgeAlert marks an alert acknowledged.
func (e *Engine) AcknowledgeAlert(id string) error {
	return e.mon.Acknowledge(id)
}

// Rate returns the active rate for pair, store-scoped with global
// fallback.
func (e *Engine) Rate(pair, storeID string) (*models.ExchangeRate, error) {
	return e.store.Get(pair, storeID)
}

// Rates returns all active rates visible to storeID.
func (e *Engine) Rates(storeID string) []*models.ExchangeRate {
	return e.store.GetAll(storeID)
}

// History queries the durable rate history, when a sink is wired.
func (e *Engine) History(ctx context.Context, pair string, from, to time.Time, limit int) ([]*models.ExchangeRate, error) {
	if e.history == nil {
		return nil, nil
	}
	return e.history.Query(ctx, pair, from, to, limit)
}
