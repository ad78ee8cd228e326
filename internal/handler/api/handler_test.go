package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"RatePulse/internal/engine"
	"RatePulse/internal/monitor"
	"RatePulse/internal/ratestore"
	applogger "RatePulse/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordRefresh(time.Duration, int) {}
func (nopMetrics) RecordProviderError(string)       {}
func (nopMetrics) RecordRate(string, float64)       {}
func (nopMetrics) RecordBroadcast(int, int)         {}
func (nopMetrics) RecordQueueDrop(string)           {}
func (nopMetrics) SetConnections(int)               {}
func (nopMetrics) SetSubscriptions(int)             {}
func (nopMetrics) RecordError(string)               {}

func testServer(t *testing.T) (*echo.Echo, *engine.Engine) {
	t.Helper()
	log, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	eng := engine.New(engine.Config{MaxSpread: 0.05}, ratestore.New(), monitor.New(0), nil, nopMetrics{}, log)

	e := echo.New()
	NewRatesHandler(log, eng).RegisterRoutes(e)
	NewDebugHandler(nil).RegisterRoutes(e)
	return e, eng
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestManualUpdateEndpoint(t *testing.T) {
	e, _ := testServer(t)

	rec := doJSON(t, e, http.MethodPost, "/api/rates/manual",
		`{"pair":"USDCAD","buyRate":1.37,"sellRate":1.33,"reason":"desk"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := envelope(t, rec)
	rate := body["data"].(map[string]any)
	if rate["pair"] != "USDCAD" || rate["source"] != "manual" {
		t.Fatalf("unexpected applied rate: %v", rate)
	}

	rec = doJSON(t, e, http.MethodGet, "/api/rates/USDCAD", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after manual set, got %d", rec.Code)
	}
}

func TestManualUpdateValidation(t *testing.T) {
	e, _ := testServer(t)

	// missing required fields
	rec := doJSON(t, e, http.MethodPost, "/api/rates/manual", `{"pair":"USDCAD"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing rates, got %d", rec.Code)
	}

	// business rule: buy must exceed sell
	rec = doJSON(t, e, http.MethodPost, "/api/rates/manual",
		`{"pair":"USDCAD","buyRate":1.30,"sellRate":1.35}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("envelope status expected 200, got %d", rec.Code)
	}
	if envelope(t, rec)["status"].(float64) != http.StatusBadRequest {
		t.Fatalf("expected embedded 400, got %s", rec.Body.String())
	}
}

func TestGetRateNotFound(t *testing.T) {
	e, _ := testServer(t)

	rec := doJSON(t, e, http.MethodGet, "/api/rates/XXXYYY", "")
	if envelope(t, rec)["status"].(float64) != http.StatusNotFound {
		t.Fatalf("expected embedded 404, got %s", rec.Body.String())
	}
}

func TestLockLifecycleEndpoints(t *testing.T) {
	e, _ := testServer(t)

	doJSON(t, e, http.MethodPost, "/api/rates/manual",
		`{"pair":"BTCCAD","buyRate":92100,"sellRate":91900}`)

	rec := doJSON(t, e, http.MethodPost, "/api/locks",
		`{"pair":"BTCCAD","durationSeconds":60,"reason":"quote"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := envelope(t, rec)
	if body["status"].(float64) != http.StatusCreated {
		t.Fatalf("expected embedded 201, got %s", rec.Body.String())
	}
	lockID := body["data"].(map[string]any)["id"].(string)

	rec = doJSON(t, e, http.MethodGet, "/api/locks/"+lockID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching lock, got %d", rec.Code)
	}

	rec = doJSON(t, e, http.MethodDelete, "/api/locks/"+lockID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on release, got %d", rec.Code)
	}

	rec = doJSON(t, e, http.MethodDelete, "/api/locks/does-not-exist", "")
	if envelope(t, rec)["status"].(float64) != http.StatusNotFound {
		t.Fatalf("expected embedded 404 for unknown lock, got %s", rec.Body.String())
	}
}

func TestLockRequiresActiveRate(t *testing.T) {
	e, _ := testServer(t)

	rec := doJSON(t, e, http.MethodPost, "/api/locks",
		`{"pair":"NOPAIR","durationSeconds":60}`)
	if envelope(t, rec)["status"].(float64) != http.StatusNotFound {
		t.Fatalf("expected embedded 404, got %s", rec.Body.String())
	}
}

func TestThresholdAndAlertEndpoints(t *testing.T) {
	e, eng := testServer(t)

	rec := doJSON(t, e, http.MethodPost, "/api/thresholds",
		`{"pair":"USDCAD","maxSpread":0.02,"alertThreshold":0.02}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// spread 0.04 against a 0.02 bound raises an alert
	doJSON(t, e, http.MethodPost, "/api/rates/manual",
		`{"pair":"USDCAD","buyRate":1.377,"sellRate":1.323}`)

	rec = doJSON(t, e, http.MethodGet, "/api/alerts", "")
	body := envelope(t, rec)
	rows := body["data"].(map[string]any)["rows"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected 1 alert, got %d: %s", len(rows), rec.Body.String())
	}
	alertID := rows[0].(map[string]any)["id"].(string)

	rec = doJSON(t, e, http.MethodPost, "/api/alerts/"+alertID+"/ack", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on ack, got %d", rec.Code)
	}
	if got := len(eng.Alerts(false)); got != 0 {
		t.Fatalf("expected no unacked alerts, got %d", got)
	}
}

func TestStatusAndHealthEndpoints(t *testing.T) {
	e, _ := testServer(t)

	doJSON(t, e, http.MethodPost, "/api/rates/manual",
		`{"pair":"USDCAD","buyRate":1.37,"sellRate":1.33}`)

	rec := doJSON(t, e, http.MethodGet, "/api/status", "")
	status := envelope(t, rec)["data"].(map[string]any)
	if status["activeRates"].(float64) != 1 {
		t.Fatalf("expected 1 active rate, got %v", status["activeRates"])
	}

	rec = doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rec.Code)
	}
}
