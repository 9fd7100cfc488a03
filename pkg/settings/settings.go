// Package settings resolves setting values across the global, client and
// user scopes of a tenant and defines the store contract the resolver reads
// from.
package settings

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/debug"
	"github.com/rhuss/tenantgate/pkg/permission"
	"github.com/rhuss/tenantgate/pkg/storage"
)

// Store is the persistence contract for the four settings collections.
// Find methods return storage.ErrNotFound when no setting matches.
type Store interface {
	FindGlobal(ctx context.Context, tenantID, key string) (*api.Setting, error)
	FindClient(ctx context.Context, tenantID, clientID, key string) (*api.Setting, error)
	FindUser(ctx context.Context, tenantID, userID, key string) (*api.Setting, error)
	FindDynamic(ctx context.Context, tenantID, uniqueID, key string) (*api.Setting, error)

	// List returns the tenant's settings of one scope that satisfy filter,
	// ordered by key and subject.
	List(ctx context.Context, tenantID string, scope api.Scope, filter permission.Filter) ([]*api.Setting, error)

	// Upsert creates the setting or updates the value, description and
	// updatedBy of the existing one with the same identity. The boolean
	// reports whether a new setting was created.
	Upsert(ctx context.Context, s *api.Setting) (*api.Setting, bool, error)
}

// Principal is the authenticated caller a lookup is performed for.
type Principal struct {
	SubjectID   string
	Permissions api.Grant
	Constraints api.ResourceConstraints
}

// Query selects a setting key and the optional user and client whose
// overrides take precedence over the global value.
type Query struct {
	Key      string
	UserID   string
	ClientID string
}

// Resolution is the outcome of a cascade lookup.
type Resolution struct {
	Source  api.Scope    `json:"source"`
	Value   any          `json:"value"`
	Setting *api.Setting `json:"setting"`
}

// Resolver performs cascade lookups against a Store.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver reading from store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve looks the key up at user scope, then client scope, then global
// scope and returns the first setting found. A setting the principal may
// not read ends the lookup with storage.ErrNotFound; it never falls
// through to a broader scope.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, q Query, p Principal) (*Resolution, error) {
	type level struct {
		scope   api.Scope
		enabled bool
		allowed func() bool
		find    func() (*api.Setting, error)
	}

	levels := []level{
		{
			scope:   api.ScopeUser,
			enabled: q.UserID != "",
			allowed: func() bool { return permission.IsUserIDAllowed(p.Constraints, q.UserID) },
			find:    func() (*api.Setting, error) { return r.store.FindUser(ctx, tenantID, q.UserID, q.Key) },
		},
		{
			scope:   api.ScopeClient,
			enabled: q.ClientID != "",
			allowed: func() bool { return permission.IsClientAllowed(p.Constraints, q.ClientID) },
			find:    func() (*api.Setting, error) { return r.store.FindClient(ctx, tenantID, q.ClientID, q.Key) },
		},
		{
			scope:   api.ScopeGlobal,
			enabled: true,
			allowed: func() bool { return true },
			find:    func() (*api.Setting, error) { return r.store.FindGlobal(ctx, tenantID, q.Key) },
		},
	}

	for _, l := range levels {
		if !l.enabled {
			continue
		}
		s, err := l.find()
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if !l.allowed() || !CanRead(s, p) {
			debug.Log(debug.Auth, "setting lookup denied",
				"tenant", tenantID, "scope", l.scope, "key", q.Key, "subject", p.SubjectID)
			return nil, storage.ErrNotFound
		}
		return &Resolution{Source: l.scope, Value: s.Value, Setting: s}, nil
	}

	slog.Debug("setting not found", "tenant", tenantID, "key", q.Key)
	return nil, storage.ErrNotFound
}

// CanRead reports whether p may read s under its scope's grant.
func CanRead(s *api.Setting, p Principal) bool {
	return permission.CheckResourceAccess(s.Fields(), p.Permissions, s.Scope.ResourceType(), api.ActionRead)
}

// CanWrite reports whether p may write s under its scope's grant.
func CanWrite(s *api.Setting, p Principal) bool {
	return permission.CheckResourceAccess(s.Fields(), p.Permissions, s.Scope.ResourceType(), api.ActionWrite)
}

// SubjectAllowed checks the principal's client and user constraints
// against the owner of s. Global settings always pass.
func SubjectAllowed(s *api.Setting, p Principal) bool {
	switch s.Scope {
	case api.ScopeClient:
		return permission.IsClientAllowed(p.Constraints, s.ClientID)
	case api.ScopeUser:
		return permission.IsUserIDAllowed(p.Constraints, s.UserID)
	default:
		return true
	}
}

// ListFilter combines the grant's list filter for scope with the
// principal's client and user constraints. It returns permission.ErrDenied
// when the grant does not allow reading the scope.
func ListFilter(scope api.Scope, p Principal) (permission.Filter, error) {
	f, err := permission.BuildListFilter(p.Permissions, scope.ResourceType(), api.ActionRead)
	if err != nil {
		return permission.Filter{}, err
	}
	switch scope {
	case api.ScopeClient:
		f = f.And(permission.ClientFilter(p.Constraints))
	case api.ScopeUser:
		f = f.And(permission.UserIDFilter(p.Constraints))
	}
	return f, nil
}
