package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
	"github.com/rhuss/tenantgate/pkg/observability"
	"github.com/rhuss/tenantgate/pkg/permission"
	"github.com/rhuss/tenantgate/pkg/settings"
	"github.com/rhuss/tenantgate/pkg/storage"
	"github.com/rhuss/tenantgate/pkg/transport"
)

// SettingsHandler serves the tenant settings API. Every route expects an
// identity injected by the dynamic authentication middleware.
type SettingsHandler struct {
	store       settings.Store
	resolver    *settings.Resolver
	maxBodySize int64
}

// NewSettingsHandler creates a settings handler reading from store.
func NewSettingsHandler(store settings.Store, maxBodySize int64) *SettingsHandler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &SettingsHandler{
		store:       store,
		resolver:    settings.NewResolver(store),
		maxBodySize: maxBodySize,
	}
}

// Register adds the settings routes to mux.
func (h *SettingsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/global-settings/{key}", h.handleResolve)
	mux.HandleFunc("POST /api/v1/global-settings", h.handleUpsertGlobal)
	mux.HandleFunc("GET /api/v1/client-settings/{subject}/{key}", h.direct(api.ScopeClient))
	mux.HandleFunc("GET /api/v1/user-settings/{subject}/{key}", h.direct(api.ScopeUser))
	mux.HandleFunc("GET /api/v1/dynamic-settings/{subject}/{key}", h.direct(api.ScopeDynamic))
	mux.HandleFunc("GET /api/v1/settings/{scope}", h.handleList)
	mux.HandleFunc("GET /api/v1/whoami", h.handleWhoAmI)
}

// caller returns the authenticated identity, its tenant and the principal
// used for permission checks.
func caller(r *http.Request) (*auth.Identity, string, settings.Principal) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		return nil, "", settings.Principal{}
	}
	tenantID, ok := storage.Tenant(r.Context())
	if !ok {
		tenantID = id.TenantID()
	}
	return id, tenantID, settings.Principal{
		SubjectID:   id.Subject,
		Permissions: id.Permissions,
		Constraints: id.Constraints,
	}
}

// handleResolve handles GET /api/v1/global-settings/{key}?clientId=&userId=.
func (h *SettingsHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, tenantID, p := caller(r)
	if id == nil || tenantID == "" {
		transport.WriteAPIError(w, api.NewUnauthorizedError("authentication required", ""))
		return
	}

	key := r.PathValue("key")
	if apiErr := api.ValidateSettingKey(key); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	q := settings.Query{
		Key:      key,
		ClientID: r.URL.Query().Get("clientId"),
		UserID:   r.URL.Query().Get("userId"),
	}
	res, err := h.resolver.Resolve(r.Context(), tenantID, q, p)
	if err != nil {
		writeStoreError(w, err, fmt.Sprintf("setting %q not found", key))
		return
	}
	transport.WriteJSON(w, http.StatusOK, res)
}

// upsertRequest is the body of POST /api/v1/global-settings.
type upsertRequest struct {
	Key         string `json:"settingKey"`
	Value       any    `json:"settingValue"`
	Description string `json:"description"`
}

// handleUpsertGlobal handles POST /api/v1/global-settings. The write grant
// is checked against the setting as it will exist after the write.
func (h *SettingsHandler) handleUpsertGlobal(w http.ResponseWriter, r *http.Request) {
	id, tenantID, p := caller(r)
	if id == nil || tenantID == "" {
		transport.WriteAPIError(w, api.NewUnauthorizedError("authentication required", ""))
		return
	}

	var req upsertRequest
	if apiErr := decodeBody(w, r, h.maxBodySize, &req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	if apiErr := api.ValidateSettingKey(req.Key); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	if req.Value == nil {
		transport.WriteAPIError(w, api.NewInvalidRequestError("settingValue", "settingValue is required"))
		return
	}

	candidate := &api.Setting{
		TenantID:    tenantID,
		Scope:       api.ScopeGlobal,
		Key:         req.Key,
		Value:       req.Value,
		Description: req.Description,
		CreatedBy:   id.Subject,
		UpdatedBy:   id.Subject,
	}
	existing, err := h.store.FindGlobal(r.Context(), tenantID, req.Key)
	switch {
	case err == nil:
		candidate.ID = existing.ID
		candidate.CreatedBy = existing.CreatedBy
	case !errors.Is(err, storage.ErrNotFound):
		writeStoreError(w, err, "")
		return
	}

	if !settings.CanWrite(candidate, p) {
		deny(w, candidate.Scope)
		return
	}

	saved, created, err := h.store.Upsert(r.Context(), candidate)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	slog.Info("global setting saved", "tenant", tenantID, "key", saved.Key, "subject", id.Subject, "created", created)
	transport.WriteJSON(w, status, saved)
}

// direct returns the handler for a single-scope lookup by subject and key.
func (h *SettingsHandler) direct(scope api.Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, tenantID, p := caller(r)
		if id == nil || tenantID == "" {
			transport.WriteAPIError(w, api.NewUnauthorizedError("authentication required", ""))
			return
		}

		subject, key := r.PathValue("subject"), r.PathValue("key")
		if apiErr := api.ValidateSettingKey(key); apiErr != nil {
			transport.WriteAPIError(w, apiErr)
			return
		}

		// Constraints are checked before the lookup so a denied caller
		// cannot probe which subjects have settings.
		probe := &api.Setting{Scope: scope}
		switch scope {
		case api.ScopeClient:
			probe.ClientID = subject
		case api.ScopeUser:
			probe.UserID = subject
		}
		if !settings.SubjectAllowed(probe, p) {
			deny(w, scope)
			return
		}

		var (
			s   *api.Setting
			err error
		)
		switch scope {
		case api.ScopeClient:
			s, err = h.store.FindClient(r.Context(), tenantID, subject, key)
		case api.ScopeUser:
			s, err = h.store.FindUser(r.Context(), tenantID, subject, key)
		default:
			s, err = h.store.FindDynamic(r.Context(), tenantID, subject, key)
		}
		if err != nil {
			writeStoreError(w, err, fmt.Sprintf("setting %q not found", key))
			return
		}
		if !settings.CanRead(s, p) {
			deny(w, scope)
			return
		}
		transport.WriteJSON(w, http.StatusOK, s)
	}
}

// settingList is the body of list responses.
type settingList struct {
	Object string         `json:"object"`
	Scope  api.Scope      `json:"scope"`
	Data   []*api.Setting `json:"data"`
}

// handleList handles GET /api/v1/settings/{scope}.
func (h *SettingsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	id, tenantID, p := caller(r)
	if id == nil || tenantID == "" {
		transport.WriteAPIError(w, api.NewUnauthorizedError("authentication required", ""))
		return
	}

	scope, ok := api.ParseScope(r.PathValue("scope"))
	if !ok {
		transport.WriteAPIError(w, api.NewInvalidRequestError("scope",
			"scope must be one of global, client, user, dynamic"))
		return
	}

	filter, err := settings.ListFilter(scope, p)
	if errors.Is(err, permission.ErrDenied) {
		deny(w, scope)
		return
	}
	if err != nil {
		writeStoreError(w, err, "")
		return
	}

	items, err := h.store.List(r.Context(), tenantID, scope, filter)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}
	if items == nil {
		items = []*api.Setting{}
	}
	transport.WriteJSON(w, http.StatusOK, settingList{Object: "list", Scope: scope, Data: items})
}

// whoami is the body of GET /api/v1/whoami.
type whoami struct {
	Subject        string                  `json:"subject"`
	SubjectType    string                  `json:"subjectType,omitempty"`
	OrganizationID string                  `json:"organizationId"`
	Authenticator  string                  `json:"authenticator,omitempty"`
	Permissions    api.Grant               `json:"permissions"`
	Constraints    api.ResourceConstraints `json:"constraints"`
}

// handleWhoAmI reports the identity the authenticator produced.
func (h *SettingsHandler) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	id, tenantID, _ := caller(r)
	if id == nil {
		transport.WriteAPIError(w, api.NewUnauthorizedError("authentication required", ""))
		return
	}
	perms := id.Permissions
	if perms == nil {
		perms = api.Grant{}
	}
	transport.WriteJSON(w, http.StatusOK, whoami{
		Subject:        id.Subject,
		SubjectType:    id.SubjectType,
		OrganizationID: tenantID,
		Authenticator:  id.Authenticator,
		Permissions:    perms,
		Constraints:    id.Constraints,
	})
}

// deny writes a 403 and counts the denial.
func deny(w http.ResponseWriter, scope api.Scope) {
	observability.PermissionDeniedTotal.WithLabelValues(scope.ResourceType()).Inc()
	transport.WriteAPIError(w, api.NewForbiddenError("permission denied"))
}

// decodeBody decodes a size-limited JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) *api.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", limit))
		}
		return api.NewInvalidRequestError("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// writeStoreError maps storage and API errors to responses. Unknown errors
// are logged and reported without detail.
func writeStoreError(w http.ResponseWriter, err error, notFound string) {
	var apiErr *api.APIError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if notFound == "" {
			notFound = "not found"
		}
		transport.WriteAPIError(w, api.NewNotFoundError(notFound))
	case errors.Is(err, storage.ErrConflict):
		transport.WriteAPIError(w, api.NewInvalidRequestError("", "conflicting write"))
	case errors.As(err, &apiErr):
		transport.WriteAPIError(w, apiErr)
	default:
		slog.Error("storage error", "error", err)
		transport.WriteAPIError(w, api.NewServerError("internal storage error"))
	}
}
