package settings_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/permission"
	"github.com/rhuss/tenantgate/pkg/settings"
	"github.com/rhuss/tenantgate/pkg/storage"
	"github.com/rhuss/tenantgate/pkg/storage/memory"
)

func readAll() api.Grant {
	return api.Grant{
		api.ResourceGlobalSettings: {api.ActionRead: api.Allow()},
		api.ResourceClientSettings: {api.ActionRead: api.Allow()},
		api.ResourceUserSettings:   {api.ActionRead: api.Allow()},
	}
}

func seed(t *testing.T, store *memory.Store, settings ...*api.Setting) {
	t.Helper()
	for _, s := range settings {
		if _, _, err := store.Upsert(context.Background(), s); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
}

func TestResolveCascade(t *testing.T) {
	store := memory.New()
	seed(t, store,
		&api.Setting{TenantID: "T1", Scope: api.ScopeClient, ClientID: "c1", Key: "theme", Value: "blue"},
		&api.Setting{TenantID: "T1", Scope: api.ScopeGlobal, Key: "theme", Value: "grey"},
		&api.Setting{TenantID: "T1", Scope: api.ScopeUser, UserID: "u1", Key: "font", Value: "mono"},
	)
	r := settings.NewResolver(store)
	p := settings.Principal{SubjectID: "svc", Permissions: readAll()}

	tests := []struct {
		name       string
		q          settings.Query
		wantSource api.Scope
		wantValue  any
	}{
		{"user absent falls to client", settings.Query{Key: "theme", UserID: "u1", ClientID: "c1"}, api.ScopeClient, "blue"},
		{"no ids uses global", settings.Query{Key: "theme"}, api.ScopeGlobal, "grey"},
		{"unknown client uses global", settings.Query{Key: "theme", ClientID: "c9"}, api.ScopeGlobal, "grey"},
		{"user wins", settings.Query{Key: "font", UserID: "u1", ClientID: "c1"}, api.ScopeUser, "mono"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), "T1", tt.q, p)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", got.Source, tt.wantSource)
			}
			if got.Value != tt.wantValue {
				t.Errorf("Value = %v, want %v", got.Value, tt.wantValue)
			}
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	r := settings.NewResolver(memory.New())
	_, err := r.Resolve(context.Background(), "T1", settings.Query{Key: "missing"}, settings.Principal{Permissions: readAll()})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Resolve() error = %v, want ErrNotFound", err)
	}
}

func TestResolveDeniedLevelDoesNotFallThrough(t *testing.T) {
	store := memory.New()
	seed(t, store,
		&api.Setting{TenantID: "T1", Scope: api.ScopeUser, UserID: "u2", Key: "theme", Value: "red"},
		&api.Setting{TenantID: "T1", Scope: api.ScopeGlobal, Key: "theme", Value: "grey"},
	)
	r := settings.NewResolver(store)

	// May only read its own user settings.
	p := settings.Principal{
		SubjectID: "u1",
		Permissions: api.Grant{
			api.ResourceGlobalSettings: {api.ActionRead: api.Allow()},
			api.ResourceUserSettings:   {api.ActionRead: api.AllowWhere(map[string]any{"userId": "u1"})},
		},
	}

	_, err := r.Resolve(context.Background(), "T1", settings.Query{Key: "theme", UserID: "u2"}, p)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Resolve() error = %v, want ErrNotFound for denied user level", err)
	}
}

func TestResolveConstraintDenied(t *testing.T) {
	store := memory.New()
	seed(t, store,
		&api.Setting{TenantID: "T1", Scope: api.ScopeClient, ClientID: "c2", Key: "theme", Value: "blue"},
	)
	r := settings.NewResolver(store)
	p := settings.Principal{
		Permissions: readAll(),
		Constraints: api.ResourceConstraints{ClientIDs: []string{"c1"}},
	}

	_, err := r.Resolve(context.Background(), "T1", settings.Query{Key: "theme", ClientID: "c2"}, p)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Resolve() error = %v, want ErrNotFound for constrained client", err)
	}
}

func TestResolveGlobalRequiresGrant(t *testing.T) {
	store := memory.New()
	seed(t, store, &api.Setting{TenantID: "T1", Scope: api.ScopeGlobal, Key: "theme", Value: "grey"})
	r := settings.NewResolver(store)

	_, err := r.Resolve(context.Background(), "T1", settings.Query{Key: "theme"}, settings.Principal{})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Resolve() without grant error = %v, want ErrNotFound", err)
	}
}

func TestListFilter(t *testing.T) {
	p := settings.Principal{
		Permissions: api.Grant{
			api.ResourceUserSettings: {api.ActionRead: api.AllowWhere(map[string]any{"userId": "u1"})},
		},
		Constraints: api.ResourceConstraints{UserIDs: []string{"u1", "u2"}},
	}

	f, err := settings.ListFilter(api.ScopeUser, p)
	if err != nil {
		t.Fatalf("ListFilter() error = %v", err)
	}
	if !f.Matches(permission.Resource{"userId": "u1"}) {
		t.Error("filter should match own settings")
	}
	if f.Matches(permission.Resource{"userId": "u2"}) {
		t.Error("filter should reject other users even when constraints allow them")
	}

	if _, err := settings.ListFilter(api.ScopeGlobal, p); !errors.Is(err, permission.ErrDenied) {
		t.Errorf("ListFilter(global) error = %v, want ErrDenied", err)
	}
}

func TestCanWriteAndSubjectAllowed(t *testing.T) {
	p := settings.Principal{
		Permissions: api.Grant{api.ResourceGlobalSettings: {api.ActionWrite: api.Allow()}},
		Constraints: api.ResourceConstraints{ClientIDs: []string{"c1"}},
	}
	global := &api.Setting{Scope: api.ScopeGlobal, Key: "k"}
	client := &api.Setting{Scope: api.ScopeClient, ClientID: "c2", Key: "k"}

	if !settings.CanWrite(global, p) {
		t.Error("CanWrite(global) = false, want true")
	}
	if settings.CanRead(global, p) {
		t.Error("CanRead(global) = true, want false without read grant")
	}
	if settings.SubjectAllowed(client, p) {
		t.Error("SubjectAllowed(c2) = true, want false")
	}
	if !settings.SubjectAllowed(global, p) {
		t.Error("global settings should always pass subject constraints")
	}
}
