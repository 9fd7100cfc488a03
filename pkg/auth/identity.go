package auth

import (
	"context"

	"github.com/rhuss/tenantgate/pkg/api"
)

// Identity is an authenticated caller together with what it may do.
type Identity struct {
	Subject     string // required
	SubjectType string // "user", "service", "operator", ...

	// Tenant is the organization the identity was authenticated for.
	Tenant string

	// Authenticator names the tenant authenticator that accepted the
	// caller. Empty for operators.
	Authenticator string

	// Permissions is the grant settings handlers check.
	Permissions api.Grant

	// Constraints narrows the clients and users the caller may act upon.
	Constraints api.ResourceConstraints

	// Operator is set for admin API callers only.
	Operator *api.OperatorScope
}

// TenantID returns the identity's tenant. It is safe on a nil identity.
func (id *Identity) TenantID() string {
	if id == nil {
		return ""
	}
	return id.Tenant
}

// IsOperator reports whether the identity carries an operator scope.
func (id *Identity) IsOperator() bool {
	return id != nil && id.Operator != nil
}

type identityKey struct{}

// SetIdentity returns a copy of ctx carrying id.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity set by Middleware, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
