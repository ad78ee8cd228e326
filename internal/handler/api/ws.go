package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"RatePulse/internal/hub"
	applogger "RatePulse/pkg/logger"
)

// WSHandler upgrades HTTP connections and hands them to the broadcast hub.
type WSHandler struct {
	logger   *applogger.Logger
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *applogger.Logger, h *hub.Hub) *WSHandler {
	return &WSHandler{
		logger: logger,
		hub:    h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Connect)
}

func (h *WSHandler) Connect(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", applogger.Error(err))
		return nil // Upgrade already wrote the error response
	}
	id := h.hub.Register(conn)
	h.logger.Debug("websocket session opened", applogger.String("client_id", id))
	return nil
}
