package hub

import (
	"context"
	"sort"
	"sync"
	"time"

	"RatePulse/internal/domain/models"
	"RatePulse/internal/domain/repository"
	"RatePulse/internal/registry"
	applogger "RatePulse/pkg/logger"
	"RatePulse/pkg/ratelimit"
)

// eventSourceID is the hub's registration handle with the engine.
const eventSourceID = "broadcast-hub"

// Config tunes the hub. Zero values fall back to defaults.
type Config struct {
	HeartbeatInterval time.Duration
	BatchWindow       time.Duration
	QueueSize         int
	MaxOverflow       int // queue drops tolerated before force close
	WriteTimeout      time.Duration
	InboundRate       float64 // inbound messages/sec per client
	InboundBurst      float64
}

func (c *Config) withDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = 50 * time.Millisecond
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.MaxOverflow <= 0 {
		c.MaxOverflow = 32
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.InboundRate <= 0 {
		c.InboundRate = 20
	}
	if c.InboundBurst <= 0 {
		c.InboundBurst = 40
	}
}

// EventSource is where change events come from; the engine satisfies it.
// Registration is explicit channel-based with an id-keyed deregister.
type EventSource interface {
	Events(id string) <-chan *models.ChangeEvent
	Unsubscribe(id string)
}

// Hub owns all live client connections, batches change events per the
// subscription registry, and keeps heartbeats flowing. A slow client is
// isolated behind its own bounded queue and can never stall the hub.
type Hub struct {
	cfg     Config
	reg     *registry.Registry
	src     EventSource
	metrics repository.Metrics
	log     *applogger.Logger
	limiter *ratelimit.Limiter

	mu      sync.RWMutex
	clients map[string]*client
	started bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config, reg *registry.Registry, src EventSource, metrics repository.Metrics, log *applogger.Logger) *Hub {
	cfg.withDefaults()
	return &Hub{
		cfg:     cfg,
		reg:     reg,
		src:     src,
		metrics: metrics,
		log:     log,
		limiter: ratelimit.New(),
		clients: make(map[string]*client),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the broadcast loop. Idempotent.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	h.wg.Add(1)
	go h.run(ctx)
	h.log.Info("broadcast hub started",
		applogger.Duration("batch_window", h.cfg.BatchWindow),
		applogger.Duration("heartbeat", h.cfg.HeartbeatInterval),
	)
}

// Shutdown stops the broadcast loop and closes every connection, draining
// nothing further. Registered subscriptions die with their clients.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	h.mu.Unlock()

	close(h.stopCh)
	h.src.Unsubscribe(eventSourceID)
	h.wg.Wait()

	h.mu.Lock()
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
	h.mu.Unlock()
	_ = ctx
	h.log.Info("broadcast hub stopped")
}

// Connections reports the number of live clients.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscriptions reports the number of live subscriptions.
func (h *Hub) Subscriptions() int {
	return h.reg.Count()
}

// run is the broadcast loop: stage events per matching client, flush
// once per batch window. Within a batch the latest rate per pair wins;
// only the newest state per pair is meaningful to a display client.
func (h *Hub) run(ctx context.Context) {
	defer h.wg.Done()

	events := h.src.Events(eventSourceID)

	pendingRates := make(map[string]map[string]models.ExchangeRate) // clientID -> pair -> latest
	pendingAlerts := make(map[string][]*models.RateAlert)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		batches, delivered := 0, 0
		for clientID, rates := range pendingRates {
			msg := models.NewRateUpdate(sortedRates(rates))
			if h.deliver(clientID, msg) {
				batches++
				delivered += len(rates)
			}
			delete(pendingRates, clientID)
		}
		for clientID, alerts := range pendingAlerts {
			for _, a := range alerts {
				if h.deliver(clientID, models.NewAlertMessage(a)) {
					delivered++
				}
			}
			delete(pendingAlerts, clientID)
		}
		if batches > 0 || delivered > 0 {
			h.metrics.RecordBroadcast(batches, delivered)
		}
	}

	for {
		select {
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			for _, clientID := range h.reg.Matches(ev) {
				switch {
				case ev.Rate != nil:
					if pendingRates[clientID] == nil {
						pendingRates[clientID] = make(map[string]models.ExchangeRate)
					}
					pendingRates[clientID][ev.Pair] = *ev.Rate
				case ev.Alert != nil:
					pendingAlerts[clientID] = append(pendingAlerts[clientID], ev.Alert)
				}
			}
			if timerC == nil {
				timer = time.NewTimer(h.cfg.BatchWindow)
				timerC = timer.C
			}
		case <-timerC:
			flush()
			timerC = nil
		}
	}
}

// deliver enqueues one outbound frame for a client. Reports false when
// the client is gone.
func (h *Hub) deliver(clientID string, msg *models.OutboundMessage) bool {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	c.enqueue(msg)
	return true
}

// remove tears down a client and all of its subscriptions. Runs for
// graceful closes and for failures detected mid-write alike.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, present := h.clients[c.id]
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()

	if !present {
		return
	}
	h.reg.Drop(c.id)
	c.close()
	h.metrics.SetConnections(n)
	h.metrics.SetSubscriptions(h.reg.Count())
	h.log.Info("client disconnected", applogger.String("client_id", c.id))
}

func sortedRates(m map[string]models.ExchangeRate) []models.ExchangeRate {
	out := make([]models.ExchangeRate, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}
