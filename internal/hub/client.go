package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"RatePulse/internal/domain/models"
	applogger "RatePulse/pkg/logger"
)

// wsConn is the slice of *websocket.Conn the hub actually uses. Tests
// substitute an in-memory pipe.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// client is one live connection. All writes go through the send queue so
// a stalled peer backs up only its own buffer; when the buffer is full the
// oldest frame is dropped, and a peer that keeps overflowing is cut off.
type client struct {
	id   string
	hub  *Hub
	conn wsConn

	send chan *models.OutboundMessage
	done chan struct{}

	closeOnce sync.Once

	mu          sync.Mutex
	overflow    int // consecutive drops since the last successful enqueue
	connectedAt time.Time
}

// Register adopts an upgraded connection and starts its pumps. The
// returned id identifies the client in the registry until disconnect.
func (h *Hub) Register(conn wsConn) string {
	c := &client{
		id:          uuid.NewString(),
		hub:         h,
		conn:        conn,
		send:        make(chan *models.OutboundMessage, h.cfg.QueueSize),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetConnections(n)
	h.log.Info("client connected", applogger.String("client_id", c.id))

	go c.writePump()
	go c.readPump()
	return c.id
}

// enqueue appends a frame to the client's queue, evicting the oldest
// queued frame when full. A client that stays saturated past MaxOverflow
// consecutive drops is disconnected rather than served an ever-older view.
func (c *client) enqueue(msg *models.OutboundMessage) {
	select {
	case c.send <- msg:
		c.mu.Lock()
		c.overflow = 0
		c.mu.Unlock()
		return
	default:
	}

	// full: evict the oldest frame and retry once
	select {
	case <-c.send:
	default:
	}
	c.hub.metrics.RecordQueueDrop(c.id)

	c.mu.Lock()
	c.overflow++
	over := c.overflow
	c.mu.Unlock()

	if over > c.hub.cfg.MaxOverflow {
		c.hub.log.Warn("client queue saturated, disconnecting",
			applogger.String("client_id", c.id),
			applogger.Int("dropped", over),
		)
		c.hub.remove(c)
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// writePump serializes all writes to the connection: queued frames plus
// the periodic heartbeat. Any write failure ends the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if !c.write(msg) {
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			hb := models.NewHeartbeat(time.Now(), c.hub.Connections(), c.hub.Subscriptions())
			if !c.write(hb) {
				c.hub.remove(c)
				return
			}
		}
	}
}

func (c *client) write(msg *models.OutboundMessage) bool {
	b, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.Error("marshal outbound frame", applogger.Error(err), applogger.String("client_id", c.id))
		return true
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		c.hub.log.Debug("write failed", applogger.Error(err), applogger.String("client_id", c.id))
		return false
	}
	return true
}

// readPump consumes client frames until the peer goes away, rate-limited
// per client so a chatty peer cannot monopolize the registry lock.
func (c *client) readPump() {
	defer c.hub.remove(c)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if !c.hub.limiter.Allow(c.id, c.hub.cfg.InboundBurst, c.hub.cfg.InboundRate) {
			c.enqueue(models.NewErrorMessage("ERR_RATE_LIMITED", "too many messages"))
			continue
		}
		c.handleInbound(raw)
	}
}

// handleInbound dispatches one parsed frame. Parse failures answer with a
// typed error frame; the connection stays up.
func (c *client) handleInbound(raw []byte) {
	msg, err := models.ParseInbound(raw)
	if err != nil {
		code := "ERR_INTERNAL"
		if pe, ok := err.(*models.ParseError); ok {
			code = pe.Code
		}
		c.enqueue(models.NewErrorMessage(code, err.Error()))
		return
	}

	switch msg.Type {
	case models.MsgSubscribe:
		req := msg.Subscribe
		c.hub.reg.Subscribe(c.id, req.Symbols, req.SubscriptionType, req.StoreID)
		c.hub.metrics.SetSubscriptions(c.hub.reg.Count())
	case models.MsgUnsubscribe:
		req := msg.Unsubscribe
		c.hub.reg.Unsubscribe(c.id, req.Symbols, req.SubscriptionType, req.All)
		c.hub.metrics.SetSubscriptions(c.hub.reg.Count())
	case models.MsgPing:
		c.enqueue(models.NewPong(msg.Ping.Timestamp))
	}
}

// close ends the pumps and the underlying connection. Safe to call more
// than once.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.limiter.Forget(c.id)
		_ = c.conn.Close()
	})
}
