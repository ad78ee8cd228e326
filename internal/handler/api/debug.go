package api

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	xhttp "RatePulse/pkg/http"
	applogger "RatePulse/pkg/logger"
)

// LogBuffer retains the most recent aggregated log batches in memory so
// operators can inspect them without log-pipeline access. It plugs into
// the logger's collector as its publisher.
type LogBuffer struct {
	mu      sync.Mutex
	max     int
	entries []applogger.AggregatedLogEntry
}

func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = 500
	}
	return &LogBuffer{max: max}
}

// PublishMessage implements the collector's Publisher contract.
func (b *LogBuffer) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	batch, ok := payload.([]applogger.AggregatedLogEntry)
	if !ok {
		return nil
	}
	b.mu.Lock()
	b.entries = append(b.entries, batch...)
	if n := len(b.entries); n > b.max {
		b.entries = b.entries[n-b.max:]
	}
	b.mu.Unlock()
	return nil
}

func (b *LogBuffer) Recent(limit int) []applogger.AggregatedLogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]applogger.AggregatedLogEntry, limit)
	copy(out, b.entries[n-limit:])
	return out
}

// DebugHandler exposes liveness and recent aggregated logs.
type DebugHandler struct {
	buf     *LogBuffer
	started time.Time
}

func NewDebugHandler(buf *LogBuffer) *DebugHandler {
	return &DebugHandler{buf: buf, started: time.Now()}
}

func (h *DebugHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	if h.buf != nil {
		e.GET("/api/debug/logs", h.RecentLogs)
	}
}

func (h *DebugHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	})
}

func (h *DebugHandler) RecentLogs(c echo.Context) error {
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)
	rows := h.buf.Recent(limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}
