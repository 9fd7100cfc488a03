package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
	"github.com/rhuss/tenantgate/pkg/dynauth"
	"github.com/rhuss/tenantgate/pkg/observability"
	"github.com/rhuss/tenantgate/pkg/permission"
	"github.com/rhuss/tenantgate/pkg/transport"
)

// tryPath is the request path reported to authenticators run from the
// admin API.
const tryPath = "/test"

// AuthenticatorLister lists every authenticator of a tenant, disabled
// ones included.
type AuthenticatorLister interface {
	ListAuthenticators(ctx context.Context, tenantID string) ([]*api.AuthenticatorConfig, error)
}

// Dispatcher is the part of dynauth.Dispatcher the admin API drives.
type Dispatcher interface {
	Try(ctx context.Context, cfg *api.AuthenticatorConfig, rc *dynauth.RequestContext) (*api.AuthResult, error)
	InvalidateCache(ctx context.Context) error
}

// AdminHandler serves operator endpoints. Every route expects an operator
// identity injected by the admin authentication middleware.
type AdminHandler struct {
	dispatcher  Dispatcher
	configs     AuthenticatorLister
	maxBodySize int64
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(d Dispatcher, configs AuthenticatorLister, maxBodySize int64) *AdminHandler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &AdminHandler{dispatcher: d, configs: configs, maxBodySize: maxBodySize}
}

// Register adds the admin routes to mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/v1/organizations/{orgId}/authenticators", h.handleList)
	mux.HandleFunc("POST /admin/v1/organizations/{orgId}/authenticators/{name}/try", h.handleTry)
	mux.HandleFunc("POST /admin/v1/cache/invalidate", h.handleInvalidate)
}

// operator returns the caller's operator scope, writing a 403 when the
// caller is not an operator or lacks the feature in orgID. An empty orgID
// skips the organization check.
func operator(w http.ResponseWriter, r *http.Request, orgID string, action api.Action) (*auth.Identity, bool) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		transport.WriteAPIError(w, api.NewUnauthorizedError("authentication required", ""))
		return nil, false
	}
	if !id.IsOperator() {
		denyFeature(w)
		return nil, false
	}
	op := *id.Operator

	if orgID == "" {
		if !permission.HasAction(op.Features, api.ResourceDynamicAuth, action) {
			denyFeature(w)
			return nil, false
		}
		return id, true
	}

	res := permission.Resource{permission.FieldOrganizationID: orgID}
	if !permission.IsOrgAllowed(op, orgID) ||
		!permission.CheckResourceAccess(res, op.Features, api.ResourceDynamicAuth, action) {
		denyFeature(w)
		return nil, false
	}
	return id, true
}

func denyFeature(w http.ResponseWriter) {
	observability.PermissionDeniedTotal.WithLabelValues(api.ResourceDynamicAuth).Inc()
	transport.WriteAPIError(w, api.NewForbiddenError("permission denied"))
}

// authenticatorList is the body of the list response.
type authenticatorList struct {
	Object string                     `json:"object"`
	Data   []*api.AuthenticatorConfig `json:"data"`
}

// handleList handles GET /admin/v1/organizations/{orgId}/authenticators.
func (h *AdminHandler) handleList(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("orgId")
	if _, ok := operator(w, r, orgID, api.ActionRead); !ok {
		return
	}

	configs, err := h.configs.ListAuthenticators(r.Context(), orgID)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	if configs == nil {
		configs = []*api.AuthenticatorConfig{}
	}
	transport.WriteJSON(w, http.StatusOK, authenticatorList{Object: "list", Data: configs})
}

// tryRequest is the sample request an authenticator is tried against.
type tryRequest struct {
	Headers map[string]string `json:"headers"`
	Query   map[string]string `json:"query"`
	Body    any               `json:"body"`
}

// tryResponse reports the outcome of a try. Result holds the normalized
// authenticator result on success and the failure reason otherwise.
type tryResponse struct {
	Success bool            `json:"success"`
	Result  *api.AuthResult `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// handleTry handles POST /admin/v1/organizations/{orgId}/authenticators/{name}/try.
// Disabled authenticators can be tried; the registry and cache are bypassed.
func (h *AdminHandler) handleTry(w http.ResponseWriter, r *http.Request) {
	orgID, name := r.PathValue("orgId"), r.PathValue("name")
	id, ok := operator(w, r, orgID, api.ActionWrite)
	if !ok {
		return
	}

	var req tryRequest
	if r.ContentLength != 0 {
		if apiErr := decodeBody(w, r, h.maxBodySize, &req); apiErr != nil {
			transport.WriteAPIError(w, apiErr)
			return
		}
	}

	configs, err := h.configs.ListAuthenticators(r.Context(), orgID)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	var cfg *api.AuthenticatorConfig
	for _, c := range configs {
		if c.Name == name {
			cfg = c
			break
		}
	}
	if cfg == nil {
		transport.WriteAPIError(w, api.NewNotFoundError("authenticator "+name+" not found"))
		return
	}

	rc := dynauth.NewRequestContext(orgID, req.Headers, req.Query, req.Body)
	rc.IP = clientIP(r)
	rc.Path = tryPath

	result, err := h.dispatcher.Try(r.Context(), cfg, rc)
	slog.Info("authenticator tried",
		"tenant", orgID, "authenticator", name, "operator", id.Subject,
		"ok", err == nil && result.OK)
	if err != nil {
		transport.WriteJSON(w, http.StatusOK, tryResponse{Success: false, Error: err.Error()})
		return
	}
	transport.WriteJSON(w, http.StatusOK, tryResponse{Success: result.OK, Result: result})
}

// handleInvalidate handles POST /admin/v1/cache/invalidate.
func (h *AdminHandler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	id, ok := operator(w, r, "", api.ActionWrite)
	if !ok {
		return
	}
	if err := h.dispatcher.InvalidateCache(r.Context()); err != nil {
		slog.Error("cache invalidation failed", "operator", id.Subject, "error", err)
		transport.WriteAPIError(w, api.NewServerError("cache invalidation failed"))
		return
	}
	slog.Info("cache invalidated", "operator", id.Subject)
	transport.WriteJSON(w, http.StatusOK, map[string]string{"message": "cache invalidated"})
}
