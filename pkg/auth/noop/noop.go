// Package noop provides a no-op authenticator that accepts all requests.
// Used for development setups of the admin API, where every caller acts as
// an unrestricted operator.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
)

// Authenticator always returns Yes with an anonymous, unrestricted operator.
type Authenticator struct{}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	op := FullAccess()
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:       "anonymous",
			SubjectType:   "operator",
			Authenticator: "noop",
			Operator:      op,
			Permissions:   op.Features,
		},
	}
}

// FullAccess returns an operator scope allowing every feature in every
// organization.
func FullAccess() *api.OperatorScope {
	features := api.Grant{}
	for _, rt := range []string{
		api.ResourceGlobalSettings,
		api.ResourceClientSettings,
		api.ResourceUserSettings,
		api.ResourceDynamicSettings,
		api.ResourceDynamicAuth,
		api.ResourceOrganizations,
	} {
		features[rt] = api.ResourcePermissions{api.ActionRead: api.Allow(), api.ActionWrite: api.Allow()}
	}
	return &api.OperatorScope{Organizations: api.OrganizationsAll, Features: features}
}
