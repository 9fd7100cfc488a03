package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
	"github.com/rhuss/tenantgate/pkg/storage/memory"
)

// staticAuth authenticates every request as id.
type staticAuth struct {
	id *auth.Identity
}

func (a staticAuth) Authenticate(context.Context, *http.Request) auth.AuthResult {
	if a.id == nil {
		return auth.AuthResult{Decision: auth.No, Err: api.NewUnauthorizedError("authentication failed", "no identity")}
	}
	id := *a.id
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}

func userIdentity(tenant string, grant api.Grant, c api.ResourceConstraints) *auth.Identity {
	return &auth.Identity{
		Subject:       "u1",
		SubjectType:   "user",
		Tenant:        tenant,
		Authenticator: "default",
		Permissions:   grant,
		Constraints:   c,
	}
}

func seedSettings(t *testing.T, store *memory.Store) {
	t.Helper()
	for _, s := range []*api.Setting{
		{TenantID: "T1", Scope: api.ScopeGlobal, Key: "theme", Value: "dark"},
		{TenantID: "T1", Scope: api.ScopeGlobal, Key: "lang", Value: "en"},
		{TenantID: "T1", Scope: api.ScopeClient, ClientID: "web", Key: "theme", Value: "blue"},
		{TenantID: "T1", Scope: api.ScopeClient, ClientID: "ios", Key: "theme", Value: "green"},
		{TenantID: "T1", Scope: api.ScopeUser, UserID: "u1", Key: "theme", Value: "light"},
		{TenantID: "T1", Scope: api.ScopeUser, UserID: "u2", Key: "theme", Value: "solar"},
		{TenantID: "T1", Scope: api.ScopeDynamic, UniqueID: "dev-9", Key: "theme", Value: "mono"},
		{TenantID: "T2", Scope: api.ScopeGlobal, Key: "theme", Value: "other-tenant"},
	} {
		if _, _, err := store.Upsert(context.Background(), s); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
}

func newSettingsServer(t *testing.T, id *auth.Identity) (*memory.Store, http.Handler) {
	t.Helper()
	store := memory.New()
	seedSettings(t, store)
	srv := NewServer(Routes{
		Settings:     NewSettingsHandler(store, 0),
		SettingsAuth: &auth.AuthChain{Authenticators: []auth.Authenticator{staticAuth{id: id}}},
	}, WithMetricsPath(""))
	return store, srv.Handler()
}

func readAll() api.Grant {
	g := api.Grant{}
	for _, rt := range []string{api.ResourceGlobalSettings, api.ResourceClientSettings, api.ResourceUserSettings, api.ResourceDynamicSettings} {
		g[rt] = api.ResourcePermissions{api.ActionRead: api.Allow()}
	}
	return g
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestResolveCascade(t *testing.T) {
	tests := []struct {
		name       string
		grant      api.Grant
		c          api.ResourceConstraints
		query      string
		wantStatus int
		wantSource api.Scope
		wantValue  any
	}{
		{
			name:       "user level wins",
			grant:      readAll(),
			query:      "?userId=u1&clientId=web",
			wantStatus: http.StatusOK,
			wantSource: api.ScopeUser,
			wantValue:  "light",
		},
		{
			name:       "client level when user has none",
			grant:      readAll(),
			query:      "?userId=u3&clientId=web",
			wantStatus: http.StatusOK,
			wantSource: api.ScopeClient,
			wantValue:  "blue",
		},
		{
			name:       "global fallback",
			grant:      readAll(),
			wantStatus: http.StatusOK,
			wantSource: api.ScopeGlobal,
			wantValue:  "dark",
		},
		{
			// a denied level ends the lookup instead of falling through
			name:       "user constraint denies user level",
			grant:      readAll(),
			c:          api.ResourceConstraints{UserIDs: []string{"u2"}},
			query:      "?userId=u1",
			wantStatus: http.StatusNotFound,
		},
		{
			name: "filtered client grant denies other client",
			grant: api.Grant{
				api.ResourceClientSettings: {api.ActionRead: api.AllowWhere(map[string]any{"clientId": "ios"})},
				api.ResourceGlobalSettings: {api.ActionRead: api.Allow()},
			},
			query:      "?clientId=web",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "no grant",
			grant:      nil,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newSettingsServer(t, userIdentity("T1", tt.grant, tt.c))
			rec := do(t, h, "GET", "/api/v1/global-settings/theme"+tt.query, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			got := decode[struct {
				Source api.Scope `json:"source"`
				Value  any       `json:"value"`
			}](t, rec)
			if got.Source != tt.wantSource || got.Value != tt.wantValue {
				t.Errorf("resolution = %+v, want source %s value %v", got, tt.wantSource, tt.wantValue)
			}
		})
	}
}

func TestResolveIsTenantScoped(t *testing.T) {
	_, h := newSettingsServer(t, userIdentity("T2", readAll(), api.ResourceConstraints{}))
	rec := do(t, h, "GET", "/api/v1/global-settings/theme", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[map[string]any](t, rec)
	if got["value"] != "other-tenant" {
		t.Errorf("value = %v, want other-tenant", got["value"])
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	_, h := newSettingsServer(t, nil)
	rec := do(t, h, "GET", "/api/v1/global-settings/theme", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	got := decode[api.ErrorResponse](t, rec)
	if got.Error.Details != "no identity" {
		t.Errorf("details = %q, want %q", got.Error.Details, "no identity")
	}
}

func TestUpsertGlobal(t *testing.T) {
	writer := api.Grant{api.ResourceGlobalSettings: {api.ActionRead: api.Allow(), api.ActionWrite: api.Allow()}}

	t.Run("create", func(t *testing.T) {
		store, h := newSettingsServer(t, userIdentity("T1", writer, api.ResourceConstraints{}))
		rec := do(t, h, "POST", "/api/v1/global-settings", `{"settingKey":"banner","settingValue":{"text":"hi"}}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body.String())
		}
		saved, err := store.FindGlobal(context.Background(), "T1", "banner")
		if err != nil {
			t.Fatalf("FindGlobal: %v", err)
		}
		if saved.CreatedBy != "u1" || saved.UpdatedBy != "u1" {
			t.Errorf("createdBy/updatedBy = %q/%q, want u1", saved.CreatedBy, saved.UpdatedBy)
		}
		if diff := cmp.Diff(map[string]any{"text": "hi"}, saved.Value); diff != "" {
			t.Errorf("value mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("update", func(t *testing.T) {
		store, h := newSettingsServer(t, userIdentity("T1", writer, api.ResourceConstraints{}))
		rec := do(t, h, "POST", "/api/v1/global-settings", `{"settingKey":"theme","settingValue":"contrast"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
		}
		saved, _ := store.FindGlobal(context.Background(), "T1", "theme")
		if saved.Value != "contrast" || saved.UpdatedBy != "u1" {
			t.Errorf("saved = %+v", saved)
		}
	})

	t.Run("filtered write grant", func(t *testing.T) {
		g := api.Grant{api.ResourceGlobalSettings: {api.ActionWrite: api.AllowWhere(map[string]any{"settingKey": "lang"})}}
		_, h := newSettingsServer(t, userIdentity("T1", g, api.ResourceConstraints{}))

		if rec := do(t, h, "POST", "/api/v1/global-settings", `{"settingKey":"theme","settingValue":"x"}`); rec.Code != http.StatusForbidden {
			t.Errorf("theme write status = %d, want 403", rec.Code)
		}
		if rec := do(t, h, "POST", "/api/v1/global-settings", `{"settingKey":"lang","settingValue":"de"}`); rec.Code != http.StatusOK {
			t.Errorf("lang write status = %d, want 200", rec.Code)
		}
	})

	t.Run("read only", func(t *testing.T) {
		_, h := newSettingsServer(t, userIdentity("T1", readAll(), api.ResourceConstraints{}))
		rec := do(t, h, "POST", "/api/v1/global-settings", `{"settingKey":"theme","settingValue":"x"}`)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		_, h := newSettingsServer(t, userIdentity("T1", writer, api.ResourceConstraints{}))
		for _, body := range []string{`{`, `{"settingValue":1}`, `{"settingKey":"k"}`} {
			if rec := do(t, h, "POST", "/api/v1/global-settings", body); rec.Code != http.StatusBadRequest {
				t.Errorf("body %s: status = %d, want 400", body, rec.Code)
			}
		}
	})
}

func TestDirectLookups(t *testing.T) {
	tests := []struct {
		name       string
		grant      api.Grant
		c          api.ResourceConstraints
		path       string
		wantStatus int
		wantValue  any
	}{
		{"client", readAll(), api.ResourceConstraints{}, "/api/v1/client-settings/web/theme", http.StatusOK, "blue"},
		{"user", readAll(), api.ResourceConstraints{}, "/api/v1/user-settings/u2/theme", http.StatusOK, "solar"},
		{"dynamic", readAll(), api.ResourceConstraints{}, "/api/v1/dynamic-settings/dev-9/theme", http.StatusOK, "mono"},
		{"missing key", readAll(), api.ResourceConstraints{}, "/api/v1/client-settings/web/nope", http.StatusNotFound, nil},
		{"client constraint", readAll(), api.ResourceConstraints{ClientIDs: []string{"ios"}}, "/api/v1/client-settings/web/theme", http.StatusForbidden, nil},
		{
			"user pattern constraint allows",
			readAll(),
			api.ResourceConstraints{UserIDPatterns: []api.PatternRule{{Pattern: "u", MatchType: api.MatchPrefix}}},
			"/api/v1/user-settings/u2/theme", http.StatusOK, "solar",
		},
		{
			"user pattern constraint denies",
			readAll(),
			api.ResourceConstraints{UserIDPatterns: []api.PatternRule{{Pattern: "^admin-", MatchType: api.MatchRegex}}},
			"/api/v1/user-settings/u2/theme", http.StatusForbidden, nil,
		},
		{
			"filtered user grant",
			api.Grant{api.ResourceUserSettings: {api.ActionRead: api.AllowWhere(map[string]any{"userId": "u1"})}},
			api.ResourceConstraints{},
			"/api/v1/user-settings/u2/theme", http.StatusForbidden, nil,
		},
		{"no grant", api.Grant{}, api.ResourceConstraints{}, "/api/v1/dynamic-settings/dev-9/theme", http.StatusForbidden, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newSettingsServer(t, userIdentity("T1", tt.grant, tt.c))
			rec := do(t, h, "GET", tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantValue == nil {
				return
			}
			got := decode[api.Setting](t, rec)
			if got.Value != tt.wantValue {
				t.Errorf("value = %v, want %v", got.Value, tt.wantValue)
			}
		})
	}
}

func TestListSettings(t *testing.T) {
	tests := []struct {
		name       string
		grant      api.Grant
		c          api.ResourceConstraints
		scope      string
		wantStatus int
		wantKeys   []string
	}{
		{"global", readAll(), api.ResourceConstraints{}, "global", http.StatusOK, []string{"lang", "theme"}},
		{"client all", readAll(), api.ResourceConstraints{}, "client", http.StatusOK, []string{"theme:ios", "theme:web"}},
		{"client constrained", readAll(), api.ResourceConstraints{ClientIDs: []string{"web"}}, "client", http.StatusOK, []string{"theme:web"}},
		{
			"user filtered",
			api.Grant{api.ResourceUserSettings: {api.ActionRead: api.AllowWhere(map[string]any{"userId": "u2"})}},
			api.ResourceConstraints{},
			"user", http.StatusOK, []string{"theme:u2"},
		},
		{"denied", api.Grant{}, api.ResourceConstraints{}, "dynamic", http.StatusForbidden, nil},
		{"unknown scope", readAll(), api.ResourceConstraints{}, "team", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newSettingsServer(t, userIdentity("T1", tt.grant, tt.c))
			rec := do(t, h, "GET", "/api/v1/settings/"+tt.scope, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			list := decode[settingList](t, rec)
			keys := []string{}
			for _, s := range list.Data {
				k := s.Key
				if sub := s.SubjectID(); sub != "" {
					k += ":" + sub
				}
				keys = append(keys, k)
			}
			if diff := cmp.Diff(tt.wantKeys, keys); diff != "" {
				t.Errorf("keys mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWhoAmI(t *testing.T) {
	grant := api.Grant{api.ResourceUserSettings: {api.ActionRead: api.Allow()}}
	_, h := newSettingsServer(t, userIdentity("T1", grant, api.ResourceConstraints{ClientIDs: []string{"web"}}))

	rec := do(t, h, "GET", "/api/v1/whoami", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[whoami](t, rec)
	want := whoami{
		Subject:        "u1",
		SubjectType:    "user",
		OrganizationID: "T1",
		Authenticator:  "default",
		Permissions:    grant,
		Constraints:    api.ResourceConstraints{ClientIDs: []string{"web"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("whoami mismatch (-want +got):\n%s", diff)
	}
}
