package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/decred/slog"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cimillas/ordswap/internal/observability"
)

func TestInstrument_LogsAndCounts(t *testing.T) {
	buf := &bytes.Buffer{}
	backend := slog.NewBackend(buf)
	logger := backend.Logger("HTTP")
	logger.SetLevel(slog.LevelDebug)

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/collections/runes-of-old/reserve", nil)
	rec := httptest.NewRecorder()

	Instrument(handler, logger, metrics).ServeHTTP(rec, req)

	out := buf.String()
	if !strings.Contains(out, "method=POST") {
		t.Fatalf("expected method in log, got %q", out)
	}
	if !strings.Contains(out, "status=201") {
		t.Fatalf("expected status in log, got %q", out)
	}

	count := promtest.ToFloat64(metrics.HTTPRequests.WithLabelValues("POST", "/collections/{slug}/reserve", "201"))
	if count != 1 {
		t.Fatalf("expected request counter 1, got %v", count)
	}
}

func TestInstrument_DefaultsTo200(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	Instrument(handler, slog.Disabled, metrics).ServeHTTP(rec, req)

	count := promtest.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/health", "200"))
	if count != 1 {
		t.Fatalf("expected request counter 1, got %v", count)
	}
}
