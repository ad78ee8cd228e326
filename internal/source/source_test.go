package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestForexFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("from") != "USD" || r.URL.Query().Get("to") != "CAD" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"date":"2026-08-27","rates":{"CAD":1.372}}`))
	}))
	defer srv.Close()

	s := NewForexSource("test-forex", srv.URL, 2*time.Second)
	q, err := s.Fetch(context.Background(), "USDCAD")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if q.Value != 1.372 {
		t.Fatalf("value = %v", q.Value)
	}
	if q.Provider != "test-forex" {
		t.Fatalf("provider = %q", q.Provider)
	}
}

func TestForexRejectsNonPositive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rates":{"CAD":0}}`))
	}))
	defer srv.Close()

	s := NewForexSource("test-forex", srv.URL, 2*time.Second)
	if _, err := s.Fetch(context.Background(), "USDCAD"); !errors.Is(err, ErrBadValue) {
		t.Fatalf("expected ErrBadValue, got %v", err)
	}
}

func TestCryptoFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") != "bitcoin" {
			http.Error(w, "unknown id", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"bitcoin":{"cad":92000}}`))
	}))
	defer srv.Close()

	s := NewCryptoSource("test-crypto", srv.URL, "", nil, 2*time.Second)
	q, err := s.Fetch(context.Background(), "BTCCAD")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if q.Value != 92000 {
		t.Fatalf("value = %v", q.Value)
	}
}

func TestCryptoUnknownAsset(t *testing.T) {
	s := NewCryptoSource("test-crypto", "http://unused", "", nil, time.Second)
	if _, err := s.Fetch(context.Background(), "ZZZCAD"); !errors.Is(err, ErrUnsupportedSymbol) {
		t.Fatalf("expected ErrUnsupportedSymbol, got %v", err)
	}
}

func TestYieldFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("series_id") != "DGS10" {
			http.Error(w, "unknown series", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"observations":[{"date":"2026-08-26","value":"4.12"}]}`))
	}))
	defer srv.Close()

	s := NewYieldSource("test-yields", srv.URL, "k", nil, 2*time.Second)
	q, err := s.Fetch(context.Background(), "UST10Y")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if q.Value != 4.12 {
		t.Fatalf("value = %v", q.Value)
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"rates":{"CAD":1.37}}`))
	}))
	defer srv.Close()

	s := NewForexSource("slow-forex", srv.URL, 20*time.Millisecond)
	if _, err := s.Fetch(context.Background(), "USDCAD"); err == nil {
		t.Fatalf("expected timeout error")
	}
}
