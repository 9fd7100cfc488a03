package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/dynauth"
	"github.com/rhuss/tenantgate/pkg/permission"
	"github.com/rhuss/tenantgate/pkg/storage"
)

func TestUpsertAndFind(t *testing.T) {
	s := New()
	ctx := context.Background()

	got, created, err := s.Upsert(ctx, &api.Setting{
		TenantID: "T1", Scope: api.ScopeClient, ClientID: "c1",
		Key: "theme", Value: "dark", CreatedBy: "u1",
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !created {
		t.Error("first Upsert should create")
	}
	if !api.ValidateSettingID(got.ID) {
		t.Errorf("ID = %q, want generated setting ID", got.ID)
	}

	found, err := s.FindClient(ctx, "T1", "c1", "theme")
	if err != nil {
		t.Fatalf("FindClient failed: %v", err)
	}
	if found.Value != "dark" {
		t.Errorf("Value = %v, want dark", found.Value)
	}

	if _, err := s.FindClient(ctx, "T2", "c1", "theme"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindClient other tenant err = %v, want ErrNotFound", err)
	}
	if _, err := s.FindUser(ctx, "T1", "c1", "theme"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindUser with client id err = %v, want ErrNotFound", err)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, _, _ := s.Upsert(ctx, &api.Setting{
		TenantID: "T1", Scope: api.ScopeGlobal, Key: "limit", Value: 1.0,
		Description: "rate", CreatedBy: "u1",
	})
	second, created, err := s.Upsert(ctx, &api.Setting{
		TenantID: "T1", Scope: api.ScopeGlobal, Key: "limit", Value: 2.0, UpdatedBy: "u2",
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if created {
		t.Error("second Upsert should update")
	}
	if second.ID != first.ID {
		t.Errorf("ID changed from %q to %q", first.ID, second.ID)
	}
	if second.Value != 2.0 || second.UpdatedBy != "u2" || second.CreatedBy != "u1" {
		t.Errorf("updated setting = %+v", second)
	}
	if second.Description != "rate" {
		t.Errorf("Description = %q, empty update should keep it", second.Description)
	}
}

func TestFindReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Upsert(ctx, &api.Setting{TenantID: "T1", Scope: api.ScopeGlobal, Key: "k", Value: "v"})

	got, _ := s.FindGlobal(ctx, "T1", "k")
	got.Value = "mutated"

	again, _ := s.FindGlobal(ctx, "T1", "k")
	if again.Value != "v" {
		t.Errorf("stored value = %v, mutation leaked into store", again.Value)
	}
}

func TestListWithFilter(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, u := range []string{"u2", "u1", "acct_1"} {
		s.Upsert(ctx, &api.Setting{TenantID: "T1", Scope: api.ScopeUser, UserID: u, Key: "theme", Value: u})
	}
	s.Upsert(ctx, &api.Setting{TenantID: "T2", Scope: api.ScopeUser, UserID: "u1", Key: "theme"})
	s.Upsert(ctx, &api.Setting{TenantID: "T1", Scope: api.ScopeClient, ClientID: "u1", Key: "theme"})

	all, err := s.List(ctx, "T1", api.ScopeUser, permission.Unrestricted)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var ids []string
	for _, set := range all {
		ids = append(ids, set.UserID)
	}
	if len(ids) != 3 || ids[0] != "acct_1" || ids[1] != "u1" || ids[2] != "u2" {
		t.Errorf("List ids = %v, want [acct_1 u1 u2]", ids)
	}

	f := permission.UserIDFilter(api.ResourceConstraints{
		UserIDPatterns: []api.PatternRule{{Pattern: "acct_", MatchType: api.MatchPrefix}},
	})
	filtered, _ := s.List(ctx, "T1", api.ScopeUser, f)
	if len(filtered) != 1 || filtered[0].UserID != "acct_1" {
		t.Errorf("filtered List = %v, want only acct_1", filtered)
	}
}

func TestResolveAuthenticator(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.PutAuthenticator(ctx, &api.AuthenticatorConfig{
		TenantID: "T1", Kind: api.KindScript, Enabled: true, JSCode: "return {ok:true}",
	})
	if err != nil {
		t.Fatalf("PutAuthenticator failed: %v", err)
	}

	got, err := s.Resolve(ctx, "T1", "default")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.CacheTTLSeconds != api.DefaultCacheTTLSeconds {
		t.Errorf("CacheTTLSeconds = %d, want default %d", got.CacheTTLSeconds, api.DefaultCacheTTLSeconds)
	}
	if !api.ValidateAuthenticatorID(got.ID) {
		t.Errorf("ID = %q, want generated authenticator ID", got.ID)
	}

	if _, err := s.Resolve(ctx, "T2", "default"); !errors.Is(err, dynauth.ErrConfigNotFound) {
		t.Errorf("Resolve other tenant err = %v, want ErrConfigNotFound", err)
	}
}

func TestResolveDisabledIsNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.PutAuthenticator(ctx, &api.AuthenticatorConfig{
		TenantID: "T1", Name: "legacy", Kind: api.KindHTTP, Enabled: false,
		HTTP: &api.HTTPSpec{URL: "http://auth"},
	})

	if _, err := s.Resolve(ctx, "T1", "legacy"); !errors.Is(err, dynauth.ErrConfigNotFound) {
		t.Errorf("Resolve disabled err = %v, want ErrConfigNotFound", err)
	}

	list, _ := s.ListAuthenticators(ctx, "T1")
	if len(list) != 1 {
		t.Errorf("ListAuthenticators = %d configs, want disabled config listed", len(list))
	}
}

func TestPutAuthenticatorKeepsIdentity(t *testing.T) {
	s := New()
	ctx := context.Background()

	cfg := &api.AuthenticatorConfig{TenantID: "T1", Name: "a", Kind: api.KindScript, Enabled: true, JSCode: "1", CreatedBy: "admin"}
	s.PutAuthenticator(ctx, cfg)
	first, _ := s.Resolve(ctx, "T1", "a")

	cfg.JSCode = "2"
	cfg.CreatedBy = "other"
	s.PutAuthenticator(ctx, cfg)
	second, _ := s.Resolve(ctx, "T1", "a")

	if second.ID != first.ID || second.CreatedBy != "admin" {
		t.Errorf("replaced config lost identity: %+v", second)
	}
	if second.JSCode != "2" {
		t.Errorf("JSCode = %q, want 2", second.JSCode)
	}
}

func TestDeleteAuthenticator(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.PutAuthenticator(ctx, &api.AuthenticatorConfig{TenantID: "T1", Name: "a", Kind: api.KindScript, Enabled: true})
	if err := s.DeleteAuthenticator(ctx, "T1", "a"); err != nil {
		t.Fatalf("DeleteAuthenticator failed: %v", err)
	}
	if err := s.DeleteAuthenticator(ctx, "T1", "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
