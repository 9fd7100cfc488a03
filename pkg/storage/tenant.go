package storage

import "context"

type tenantKey struct{}

// WithTenant scopes ctx to an organization. Stores take the organization
// as an explicit argument; the context value carries it from the auth
// middleware to the handlers.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// Tenant returns the organization ctx is scoped to.
func Tenant(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantKey{}).(string)
	return id, ok && id != ""
}

// RequireTenant is Tenant for callers that cannot proceed unscoped.
func RequireTenant(ctx context.Context) (string, error) {
	id, ok := Tenant(ctx)
	if !ok {
		return "", ErrNoTenant
	}
	return id, nil
}
