package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/storage"
)

// Middleware authenticates every request of one API surface ("settings",
// "admin") with chain. Accepted requests carry the identity and, when the
// identity belongs to an organization, the organization scope.
func Middleware(chain *AuthChain, surface string) func(http.Handler) http.Handler {
	logger := slog.Default().With("surface", surface)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := chain.Authenticate(r.Context(), r)
			id := result.Identity

			switch {
			case result.Decision == No:
				apiErr := rejection(result.Err)
				level := slog.LevelWarn
				if apiErr.Type == api.ErrorTypeServerError {
					level = slog.LevelError
				}
				logger.Log(r.Context(), level, "request rejected",
					"path", r.URL.Path, "remote_addr", r.RemoteAddr, "error", result.Err)
				writeError(w, apiErr)
				return

			case result.Decision != Yes || id == nil:
				writeError(w, api.NewUnauthorizedError("authentication required", ""))
				return

			case id.Subject == "":
				logger.Error("authenticator accepted a caller without subject", "path", r.URL.Path)
				writeError(w, api.NewServerError("internal authentication error"))
				return
			}

			logger.Debug("request authenticated",
				"subject", id.Subject, "tenant", id.Tenant, "path", r.URL.Path)

			ctx := SetIdentity(r.Context(), id)
			if id.Tenant != "" {
				ctx = storage.WithTenant(ctx, id.Tenant)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rejection picks the error returned to the client. Errors that are not
// *api.APIError never leak their text.
func rejection(err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return api.NewUnauthorizedError("authentication required", "")
}

func writeError(w http.ResponseWriter, apiErr *api.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus())
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}
