package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"RatePulse/internal/domain/models"
	"RatePulse/internal/engine"
	"RatePulse/internal/monitor"
	xhttp "RatePulse/pkg/http"
	applogger "RatePulse/pkg/logger"
)

// RatesHandler exposes the engine's read and control surface over HTTP.
type RatesHandler struct {
	logger *applogger.Logger
	eng    *engine.Engine
}

func NewRatesHandler(logger *applogger.Logger, eng *engine.Engine) *RatesHandler {
	return &RatesHandler{logger: logger, eng: eng}
}

func (h *RatesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/rates", h.ListRates)
	g.GET("/rates/:pair", h.GetRate)
	g.GET("/rates/:pair/history", h.RateHistory)
	g.POST("/rates/manual", h.ManualUpdate)
	g.DELETE("/rates/manual/:pair", h.RemoveOverride)
	g.POST("/locks", h.CreateLock)
	g.GET("/locks/:id", h.GetLock)
	g.DELETE("/locks/:id", h.ReleaseLock)
	g.GET("/alerts", h.ListAlerts)
	g.POST("/alerts/:id/ack", h.AcknowledgeAlert)
	g.POST("/thresholds", h.SetThreshold)
	g.GET("/status", h.EngineStatus)
}

// ListRates returns all active rates, resolved for the optional storeId.
func (h *RatesHandler) ListRates(c echo.Context) error {
	storeID := c.QueryParam("storeId")
	rates := h.eng.Rates(storeID)
	return xhttp.ListResponse(c, rates, int64(len(rates)))
}

func (h *RatesHandler) GetRate(c echo.Context) error {
	pair := c.Param("pair")
	rate, err := h.eng.Rate(pair, c.QueryParam("storeId"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, rate)
}

// RateHistory serves a time-bounded slice of applied rates for one pair.
func (h *RatesHandler) RateHistory(c echo.Context) error {
	pair := c.Param("pair")
	now := time.Now()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 500)

	rows, err := h.eng.History(c.Request().Context(), pair, from, to, limit)
	if err != nil {
		h.logger.Error("rate history query", applogger.Error(err), applogger.String("pair", pair))
		return h.errorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *RatesHandler) ManualUpdate(c echo.Context) error {
	req := &engine.ManualRateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rate, err := h.eng.UpdateRateManually(c.Request().Context(), req)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, rate)
}

func (h *RatesHandler) RemoveOverride(c echo.Context) error {
	h.eng.RemoveOverride(c.Request().Context(), c.Param("pair"), c.QueryParam("storeId"))
	return xhttp.NoContentResponse(c)
}

// LockRequest freezes the current rate of a pair for a bounded time.
type LockRequest struct {
	Pair            string `json:"pair" validate:"required,min=3"`
	DurationSeconds int    `json:"durationSeconds" validate:"gt=0" default:"300"`
	StoreID         string `json:"storeId,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

func (h *RatesHandler) CreateLock(c echo.Context) error {
	req := &LockRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	lock, err := h.eng.LockRate(req.Pair, time.Duration(req.DurationSeconds)*time.Second, req.StoreID, req.Reason)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, lock)
}

func (h *RatesHandler) GetLock(c echo.Context) error {
	lock, err := h.eng.Lock(c.Param("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, lock)
}

func (h *RatesHandler) ReleaseLock(c echo.Context) error {
	if err := h.eng.ReleaseLock(c.Param("id")); err != nil {
		return h.errorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *RatesHandler) ListAlerts(c echo.Context) error {
	includeAcked := c.QueryParam("includeAcked") == "true"
	alerts := h.eng.Alerts(includeAcked)
	return xhttp.ListResponse(c, alerts, int64(len(alerts)))
}

func (h *RatesHandler) AcknowledgeAlert(c echo.Context) error {
	if err := h.eng.AcknowledgeAlert(c.Param("id")); err != nil {
		return h.errorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}

// ThresholdRequest configures spread alerting for one pair.
type ThresholdRequest struct {
	Pair           string  `json:"pair" validate:"required,min=3"`
	MinSpread      float64 `json:"minSpread" validate:"gte=0"`
	MaxSpread      float64 `json:"maxSpread" validate:"gte=0"`
	AlertThreshold float64 `json:"alertThreshold" validate:"gte=0"`
}

func (r *ThresholdRequest) toModel() *models.RateThreshold {
	return &models.RateThreshold{
		Pair:           r.Pair,
		MinSpread:      r.MinSpread,
		MaxSpread:      r.MaxSpread,
		AlertThreshold: r.AlertThreshold,
	}
}

func (h *RatesHandler) SetThreshold(c echo.Context) error {
	req := &ThresholdRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	t := req.toModel()
	if err := h.eng.SetThreshold(c.Request().Context(), t); err != nil {
		h.logger.Error("set threshold", applogger.Error(err), applogger.String("pair", req.Pair))
		return h.errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, t)
}

func (h *RatesHandler) EngineStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.eng.Status())
}

func (h *RatesHandler) errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	case errors.Is(err, engine.ErrRateNotFound),
		errors.Is(err, engine.ErrLockNotFound),
		errors.Is(err, monitor.ErrAlertNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()).WithError(err))
	default:
		return xhttp.AppErrorResponse(c, xhttp.InternalError(err.Error()).WithError(err))
	}
}
