package transport

import (
	"log/slog"
	"net/http"
	"time"
)

// HeaderOrganization names the organization a settings request targets.
const HeaderOrganization = "X-Organization-Id"

// Logging emits one access log record per request. Server errors are
// logged at error level. Query strings and credential headers are never
// logged.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			}
			if org := r.Header.Get(HeaderOrganization); org != "" {
				attrs = append(attrs, slog.String("organization", org))
			}
			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "request completed", attrs...)
		})
	}
}
