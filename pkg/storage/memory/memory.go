// Package memory provides an in-memory implementation of settings.Store and
// dynauth.Registry for tests, development and YAML-seeded deployments. Data
// is lost when the process restarts.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/dynauth"
	"github.com/rhuss/tenantgate/pkg/permission"
	"github.com/rhuss/tenantgate/pkg/settings"
	"github.com/rhuss/tenantgate/pkg/storage"
)

// Store holds settings and authenticator configs in maps guarded by a
// single RWMutex.
type Store struct {
	mu             sync.RWMutex
	settings       map[string]*api.Setting
	authenticators map[string]*api.AuthenticatorConfig
	now            func() time.Time
}

// Ensure Store implements the storage contracts at compile time.
var (
	_ settings.Store   = (*Store)(nil)
	_ dynauth.Registry = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		settings:       make(map[string]*api.Setting),
		authenticators: make(map[string]*api.AuthenticatorConfig),
		now:            time.Now,
	}
}

func settingKey(tenantID string, scope api.Scope, subjectID, key string) string {
	return strings.Join([]string{tenantID, string(scope), subjectID, key}, "\x00")
}

func authenticatorKey(tenantID, name string) string {
	return tenantID + "\x00" + name
}

// FindGlobal returns the tenant-wide setting for key.
func (s *Store) FindGlobal(_ context.Context, tenantID, key string) (*api.Setting, error) {
	return s.find(tenantID, api.ScopeGlobal, "", key)
}

// FindClient returns the client's setting for key.
func (s *Store) FindClient(_ context.Context, tenantID, clientID, key string) (*api.Setting, error) {
	return s.find(tenantID, api.ScopeClient, clientID, key)
}

// FindUser returns the user's setting for key.
func (s *Store) FindUser(_ context.Context, tenantID, userID, key string) (*api.Setting, error) {
	return s.find(tenantID, api.ScopeUser, userID, key)
}

// FindDynamic returns the setting stored under an arbitrary identifier.
func (s *Store) FindDynamic(_ context.Context, tenantID, uniqueID, key string) (*api.Setting, error) {
	return s.find(tenantID, api.ScopeDynamic, uniqueID, key)
}

func (s *Store) find(tenantID string, scope api.Scope, subjectID, key string) (*api.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.settings[settingKey(tenantID, scope, subjectID, key)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *set
	return &cp, nil
}

// List returns matching settings ordered by key, then subject.
func (s *Store) List(_ context.Context, tenantID string, scope api.Scope, filter permission.Filter) ([]*api.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.Setting
	for _, set := range s.settings {
		if set.TenantID != tenantID || set.Scope != scope {
			continue
		}
		if !filter.Matches(set.Fields()) {
			continue
		}
		cp := *set
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].SubjectID() < out[j].SubjectID()
	})
	return out, nil
}

// Upsert creates or updates a setting.
func (s *Store) Upsert(_ context.Context, in *api.Setting) (*api.Setting, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := settingKey(in.TenantID, in.Scope, in.SubjectID(), in.Key)
	now := s.now()

	if existing, ok := s.settings[k]; ok {
		existing.Value = in.Value
		if in.Description != "" {
			existing.Description = in.Description
		}
		existing.UpdatedBy = in.UpdatedBy
		existing.UpdatedAt = now
		cp := *existing
		return &cp, false, nil
	}

	created := *in
	if created.ID == "" {
		created.ID = api.NewSettingID()
	}
	created.CreatedAt = now
	created.UpdatedAt = now
	s.settings[k] = &created

	cp := created
	return &cp, true, nil
}

// Resolve returns the enabled authenticator registered under name.
// Disabled and absent configs are both reported as ErrConfigNotFound.
func (s *Store) Resolve(_ context.Context, tenantID, name string) (*api.AuthenticatorConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.authenticators[authenticatorKey(tenantID, name)]
	if !ok || !cfg.Enabled {
		return nil, dynauth.ErrConfigNotFound
	}
	cp := *cfg
	return &cp, nil
}

// PutAuthenticator creates or replaces the config with the same tenant and
// name. Defaults are applied before storing.
func (s *Store) PutAuthenticator(_ context.Context, cfg *api.AuthenticatorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := *cfg
	in.ApplyDefaults()
	now := s.now()

	k := authenticatorKey(in.TenantID, in.Name)
	if existing, ok := s.authenticators[k]; ok {
		in.ID = existing.ID
		in.CreatedAt = existing.CreatedAt
		in.CreatedBy = existing.CreatedBy
	} else {
		if in.ID == "" {
			in.ID = api.NewAuthenticatorID()
		}
		in.CreatedAt = now
	}
	in.UpdatedAt = now

	s.authenticators[k] = &in
	return nil
}

// DeleteAuthenticator removes a config.
func (s *Store) DeleteAuthenticator(_ context.Context, tenantID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := authenticatorKey(tenantID, name)
	if _, ok := s.authenticators[k]; !ok {
		return storage.ErrNotFound
	}
	delete(s.authenticators, k)
	return nil
}

// ListAuthenticators returns the tenant's configs, enabled or not, ordered by name.
func (s *Store) ListAuthenticators(_ context.Context, tenantID string) ([]*api.AuthenticatorConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.AuthenticatorConfig
	for _, cfg := range s.authenticators {
		if cfg.TenantID != tenantID {
			continue
		}
		cp := *cfg
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
