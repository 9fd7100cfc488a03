// Package jwt authenticates admin API operators with bearer JWTs verified
// against a JWKS endpoint.
//
// The operator scope travels in a single claim (default "tenantgate")
// holding {organizations, organizationIds, features, resourceConstraints}.
// A token without that claim is an operator of its own tenant with no
// features.
package jwt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
)

// Config configures the operator authenticator. Issuer and Audience are
// checked only when set.
type Config struct {
	Issuer   string
	Audience string
	JWKSURL  string

	SubjectClaim  string // default: "sub"
	TenantClaim   string // default: "tenant_id"
	OperatorClaim string // default: "tenantgate"

	// Leeway tolerates clock skew on exp/nbf/iat (default: 30s).
	Leeway time.Duration

	// KeyTTL is how long fetched keys are trusted (default: 1h).
	KeyTTL time.Duration

	// MinRefresh throttles reloads triggered by unknown key ids
	// (default: 1m).
	MinRefresh time.Duration

	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.OperatorClaim == "" {
		c.OperatorClaim = "tenantgate"
	}
	if c.Leeway == 0 {
		c.Leeway = 30 * time.Second
	}
	if c.KeyTTL == 0 {
		c.KeyTTL = time.Hour
	}
	if c.MinRefresh == 0 {
		c.MinRefresh = time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

// Authenticator verifies operator tokens.
type Authenticator struct {
	cfg    Config
	keys   *keySet
	parser *jwtlib.Parser
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New returns an authenticator for cfg.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384"}),
		jwtlib.WithLeeway(cfg.Leeway),
		jwtlib.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		cfg: cfg,
		keys: &keySet{
			url:        cfg.JWKSURL,
			client:     cfg.HTTPClient,
			ttl:        cfg.KeyTTL,
			minRefresh: cfg.MinRefresh,
			now:        time.Now,
		},
		parser: jwtlib.NewParser(opts...),
	}
}

// Authenticate abstains without a bearer token, so an API key
// authenticator later in the chain can still claim the request.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return reject("empty bearer token")
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return a.keys.key(ctx, kid)
	})
	if err != nil {
		return reject("invalid token: " + err.Error())
	}

	subject, _ := claims[a.cfg.SubjectClaim].(string)
	if subject == "" {
		return reject(fmt.Sprintf("token has no %q claim", a.cfg.SubjectClaim))
	}
	tenant, _ := claims[a.cfg.TenantClaim].(string)

	op, err := operatorScope(claims[a.cfg.OperatorClaim], tenant)
	if err != nil {
		return reject(fmt.Sprintf("invalid %q claim: %v", a.cfg.OperatorClaim, err))
	}

	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:     subject,
			SubjectType: "operator",
			Tenant:      tenant,
			Permissions: op.Features,
			Constraints: op.Constraints,
			Operator:    op,
		},
	}
}

// operatorScope decodes the operator claim. A missing claim limits the
// operator to its own tenant.
func operatorScope(claim any, tenant string) (*api.OperatorScope, error) {
	if claim == nil {
		op := &api.OperatorScope{Organizations: api.OrganizationsSpecific}
		if tenant != "" {
			op.OrganizationIDs = []string{tenant}
		}
		return op, nil
	}

	raw, err := json.Marshal(claim)
	if err != nil {
		return nil, err
	}
	var op api.OperatorScope
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, err
	}
	if op.Organizations == "" {
		op.Organizations = api.OrganizationsSpecific
	}
	return &op, nil
}

func reject(msg string) auth.AuthResult {
	return auth.AuthResult{Decision: auth.No, Err: api.NewUnauthorizedError(msg, "")}
}
