package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"RatePulse/internal/domain/models"
	"RatePulse/internal/registry"
	applogger "RatePulse/pkg/logger"
)

type fakeSource struct {
	ch chan *models.ChangeEvent

	mu           sync.Mutex
	unsubscribed []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan *models.ChangeEvent, 64)}
}

func (s *fakeSource) Events(string) <-chan *models.ChangeEvent { return s.ch }

func (s *fakeSource) Unsubscribe(id string) {
	s.mu.Lock()
	s.unsubscribed = append(s.unsubscribed, id)
	s.mu.Unlock()
}

// fakeConn is an in-memory connection. Reads block until a frame is fed
// in; writes land on writeCh unless the gate is held.
type fakeConn struct {
	readCh  chan []byte
	writeCh chan []byte
	gate    chan struct{} // nil means writes pass through

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		readCh:  make(chan []byte, 16),
		writeCh: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.readCh:
		return 1, b, nil
	case <-c.closed:
		return 0, nil, context.Canceled
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-c.closed:
			return context.Canceled
		}
	}
	select {
	case c.writeCh <- data:
		return nil
	case <-c.closed:
		return context.Canceled
	}
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type countMetrics struct {
	mu    sync.Mutex
	drops int
}

func (m *countMetrics) RecordRefresh(time.Duration, int) {}
func (m *countMetrics) RecordProviderError(string)       {}
func (m *countMetrics) RecordRate(string, float64)       {}
func (m *countMetrics) RecordBroadcast(int, int)         {}
func (m *countMetrics) SetConnections(int)               {}
func (m *countMetrics) SetSubscriptions(int)             {}
func (m *countMetrics) RecordError(string)               {}
func (m *countMetrics) RecordQueueDrop(string) {
	m.mu.Lock()
	m.drops++
	m.mu.Unlock()
}

func (m *countMetrics) dropCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

func testHub(t *testing.T, cfg Config) (*Hub, *fakeSource, *countMetrics) {
	t.Helper()
	log, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	src := newFakeSource()
	metrics := &countMetrics{}
	h := New(cfg, registry.New(), src, metrics, log)
	h.Start(context.Background())
	t.Cleanup(func() { h.Shutdown(context.Background()) })
	return h, src, metrics
}

// readFrame pulls outbound frames until one of the wanted type shows up.
func readFrame(t *testing.T, conn *fakeConn, wantType string) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case b := <-conn.writeCh:
			var frame map[string]any
			if err := json.Unmarshal(b, &frame); err != nil {
				t.Fatalf("unmarshal frame: %v", err)
			}
			if frame["type"] == wantType {
				return frame
			}
		case <-deadline:
			t.Fatalf("no %q frame within deadline", wantType)
		}
	}
}

func rateEvent(pair string, mid float64) *models.ChangeEvent {
	return &models.ChangeEvent{
		Category: models.CategoryRates,
		Pair:     pair,
		Rate: &models.ExchangeRate{
			Pair:    pair,
			MidRate: mid,
			BuyRate: mid * 1.01,
			SellRate: mid * 0.99,
		},
		Timestamp: time.Now(),
	}
}

func TestBatchCoalescesLatestPerPair(t *testing.T) {
	h, src, _ := testHub(t, Config{BatchWindow: 30 * time.Millisecond})
	conn := newFakeConn()
	id := h.Register(conn)
	h.reg.Subscribe(id, []string{"USDCAD"}, models.CategoryRates, "")

	src.ch <- rateEvent("USDCAD", 1.35)
	src.ch <- rateEvent("USDCAD", 1.36)
	src.ch <- rateEvent("USDCAD", 1.37)

	frame := readFrame(t, conn, models.MsgData)
	data := frame["data"].(map[string]any)
	rates := data["rates"].([]any)
	if len(rates) != 1 {
		t.Fatalf("expected 1 coalesced rate, got %d", len(rates))
	}
	mid := rates[0].(map[string]any)["midRate"].(float64)
	if mid != 1.37 {
		t.Fatalf("expected latest mid 1.37, got %v", mid)
	}
}

func TestBatchMultiplePairsSorted(t *testing.T) {
	h, src, _ := testHub(t, Config{BatchWindow: 30 * time.Millisecond})
	conn := newFakeConn()
	id := h.Register(conn)
	h.reg.Subscribe(id, nil, models.CategoryRates, "")

	src.ch <- rateEvent("USDCAD", 1.35)
	src.ch <- rateEvent("EURCAD", 1.48)

	frame := readFrame(t, conn, models.MsgData)
	rates := frame["data"].(map[string]any)["rates"].([]any)
	if len(rates) != 2 {
		t.Fatalf("expected 2 rates in batch, got %d", len(rates))
	}
	first := rates[0].(map[string]any)["pair"].(string)
	second := rates[1].(map[string]any)["pair"].(string)
	if first != "EURCAD" || second != "USDCAD" {
		t.Fatalf("expected pair order EURCAD,USDCAD, got %s,%s", first, second)
	}
}

func TestDeliveryFollowsSubscriptions(t *testing.T) {
	h, src, _ := testHub(t, Config{BatchWindow: 20 * time.Millisecond})
	usd := newFakeConn()
	eur := newFakeConn()
	usdID := h.Register(usd)
	eurID := h.Register(eur)
	h.reg.Subscribe(usdID, []string{"USDCAD"}, models.CategoryRates, "")
	h.reg.Subscribe(eurID, []string{"EURCAD"}, models.CategoryRates, "")

	src.ch <- rateEvent("USDCAD", 1.35)

	frame := readFrame(t, usd, models.MsgData)
	pair := frame["data"].(map[string]any)["rates"].([]any)[0].(map[string]any)["pair"].(string)
	if pair != "USDCAD" {
		t.Fatalf("expected USDCAD, got %s", pair)
	}

	select {
	case b := <-eur.writeCh:
		t.Fatalf("unsubscribed client received frame: %s", b)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestAlertDelivery(t *testing.T) {
	h, src, _ := testHub(t, Config{BatchWindow: 20 * time.Millisecond})
	conn := newFakeConn()
	id := h.Register(conn)
	h.reg.Subscribe(id, nil, models.CategoryAlerts, "")

	src.ch <- &models.ChangeEvent{
		Category: models.CategoryAlerts,
		Pair:     "USDCAD",
		Alert: &models.RateAlert{
			ID:       "a1",
			Type:     models.AlertSpreadBreach,
			Severity: models.SeverityHigh,
			Pair:     "USDCAD",
		},
		Timestamp: time.Now(),
	}

	frame := readFrame(t, conn, models.MsgData)
	alert := frame["data"].(map[string]any)["alert"].(map[string]any)
	if alert["severity"] != "high" {
		t.Fatalf("expected high severity alert, got %v", alert["severity"])
	}
}

func TestPingPong(t *testing.T) {
	h, _, _ := testHub(t, Config{})
	conn := newFakeConn()
	h.Register(conn)

	conn.readCh <- []byte(`{"type":"ping","timestamp":12345}`)

	frame := readFrame(t, conn, models.MsgPong)
	if frame["timestamp"].(float64) != 12345 {
		t.Fatalf("pong should echo client timestamp, got %v", frame["timestamp"])
	}
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	h, _, _ := testHub(t, Config{})
	conn := newFakeConn()
	h.Register(conn)

	conn.readCh <- []byte(`{not json`)
	frame := readFrame(t, conn, models.MsgError)
	if frame["code"] != "ERR_MALFORMED_JSON" {
		t.Fatalf("expected ERR_MALFORMED_JSON, got %v", frame["code"])
	}

	// connection must survive a bad frame
	conn.readCh <- []byte(`{"type":"ping","timestamp":1}`)
	readFrame(t, conn, models.MsgPong)
}

func TestUnknownCategoryRejected(t *testing.T) {
	h, _, _ := testHub(t, Config{})
	conn := newFakeConn()
	h.Register(conn)

	conn.readCh <- []byte(`{"type":"subscribe","data":{"symbols":["USDCAD"],"subscriptionType":"weather"}}`)
	frame := readFrame(t, conn, models.MsgError)
	if frame["code"] != "ERR_UNKNOWN_CATEGORY" {
		t.Fatalf("expected ERR_UNKNOWN_CATEGORY, got %v", frame["code"])
	}
	if h.reg.Count() != 0 {
		t.Fatalf("rejected subscribe must not register, count=%d", h.reg.Count())
	}
}

func TestSubscribeOverWire(t *testing.T) {
	h, src, _ := testHub(t, Config{BatchWindow: 20 * time.Millisecond})
	conn := newFakeConn()
	h.Register(conn)

	conn.readCh <- []byte(`{"type":"subscribe","data":{"symbols":["USDCAD"],"subscriptionType":"rates"}}`)
	waitFor(t, func() bool { return h.reg.Count() == 1 })

	src.ch <- rateEvent("USDCAD", 1.35)
	readFrame(t, conn, models.MsgData)

	conn.readCh <- []byte(`{"type":"unsubscribe","data":{"all":true}}`)
	waitFor(t, func() bool { return h.reg.Count() == 0 })
}

func TestBackpressureDropsOldest(t *testing.T) {
	h, _, metrics := testHub(t, Config{QueueSize: 2, MaxOverflow: 100})
	conn := newFakeConn()
	conn.gate = make(chan struct{}) // stall the write pump
	id := h.Register(conn)

	h.mu.RLock()
	c := h.clients[id]
	h.mu.RUnlock()

	// first frame occupies the write pump, the rest the queue
	c.enqueue(models.NewPong(1))
	waitFor(t, func() bool { return len(c.send) == 0 })
	c.enqueue(models.NewPong(2))
	c.enqueue(models.NewPong(3))
	c.enqueue(models.NewPong(4)) // queue full: 2 is evicted

	if metrics.dropCount() != 1 {
		t.Fatalf("expected 1 queue drop, got %d", metrics.dropCount())
	}

	close(conn.gate)
	got := []float64{
		readFrame(t, conn, models.MsgPong)["timestamp"].(float64),
		readFrame(t, conn, models.MsgPong)["timestamp"].(float64),
		readFrame(t, conn, models.MsgPong)["timestamp"].(float64),
	}
	want := []float64{1, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected frames %v, got %v", want, got)
		}
	}
}

func TestDisconnectDropsSubscriptions(t *testing.T) {
	h, _, _ := testHub(t, Config{})
	conn := newFakeConn()
	id := h.Register(conn)
	h.reg.Subscribe(id, []string{"USDCAD"}, models.CategoryRates, "")

	conn.Close()
	waitFor(t, func() bool { return h.Connections() == 0 })
	if h.reg.HasClient(id) {
		t.Fatal("disconnect must drop the client's subscriptions")
	}
}

func TestHeartbeat(t *testing.T) {
	h, _, _ := testHub(t, Config{HeartbeatInterval: 30 * time.Millisecond})
	conn := newFakeConn()
	h.Register(conn)

	frame := readFrame(t, conn, models.MsgHeartbeat)
	data := frame["data"].(map[string]any)
	if data["activeConnections"].(float64) != 1 {
		t.Fatalf("heartbeat should report 1 connection, got %v", data["activeConnections"])
	}
}

func TestShutdownClosesClients(t *testing.T) {
	log, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	src := newFakeSource()
	h := New(Config{}, registry.New(), src, &countMetrics{}, log)
	h.Start(context.Background())

	conn := newFakeConn()
	h.Register(conn)

	h.Shutdown(context.Background())
	select {
	case <-conn.closed:
	default:
		t.Fatal("shutdown must close client connections")
	}
	if len(src.unsubscribed) != 1 {
		t.Fatalf("shutdown must deregister from the event source, got %v", src.unsubscribed)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
