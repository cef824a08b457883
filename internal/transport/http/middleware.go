package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/decred/slog"

	"github.com/cimillas/ordswap/internal/observability"
)

// Instrument logs basic request details and records request metrics.
func Instrument(next http.Handler, logger slog.Logger, metrics *observability.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := routeLabel(r.URL.Path)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		logger.Debugf("request method=%s path=%s status=%d duration=%s",
			r.Method, observability.SanitizeMessage(r.URL.Path), rec.status, elapsed)
	})
}

// routeLabel collapses request paths onto a fixed set of labels so the
// metric cardinality stays bounded.
func routeLabel(path string) string {
	if slug, action, ok := parseCollectionPath(path); ok && slug != "" {
		switch action {
		case "reserve", "mint", "sell":
			return "/collections/{slug}/" + action
		}
		return "/collections/{slug}/other"
	}
	switch path {
	case "/health", "/metrics", "/sell/address":
		return path
	}
	return "other"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
