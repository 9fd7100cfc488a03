package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Surface labels for request metrics.
const (
	SurfaceSettings = "settings"
	SurfaceAdmin    = "admin"
	SurfaceSystem   = "system" // probes, metrics and unrouted paths
)

// Surface maps a request path to the API surface it belongs to. Raw paths
// are never used as labels so that settings keys cannot inflate series
// cardinality.
func Surface(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/"):
		return SurfaceSettings
	case strings.HasPrefix(path, "/admin/v1/"):
		return SurfaceAdmin
	default:
		return SurfaceSystem
	}
}

// MetricsMiddleware records tenantgate_requests_total and
// tenantgate_request_duration_seconds.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		surface := Surface(r.URL.Path)
		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(surface, r.Method, class).Inc()
		RequestDuration.WithLabelValues(surface).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
