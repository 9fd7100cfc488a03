package transport

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/tenantgate/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to server error responses. The server continues to
// accept new requests after a panic is recovered. The panic value is
// logged, never returned to the client.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					slog.Error("handler panic",
						"request_id", RequestIDFromContext(r.Context()),
						"path", r.URL.Path,
						"panic", fmt.Sprint(p),
					)
					if !rec.wroteHeader {
						WriteAPIError(rec, api.NewServerError("internal server error"))
					}
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
