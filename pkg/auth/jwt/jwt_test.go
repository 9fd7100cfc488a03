package jwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
)

const (
	testIssuer   = "https://idp.example.com"
	testAudience = "tenantgate-admin"
)

var (
	rsaKey = mustRSA()
	ecKey  = mustEC()
)

func mustRSA() *rsa.PrivateKey {
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return k
}

func mustEC() *ecdsa.PrivateKey {
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	return k
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

// idp serves a JWKS document whose keys can be swapped or broken.
type idp struct {
	mu      sync.Mutex
	keys    []map[string]string
	failing bool
	fetches atomic.Int32
}

func newIDP(t *testing.T) (*idp, *httptest.Server) {
	t.Helper()
	p := &idp{keys: []map[string]string{
		{"kty": "RSA", "kid": "rsa-1", "use": "sig",
			"n": b64(rsaKey.N.Bytes()), "e": b64(big.NewInt(int64(rsaKey.E)).Bytes())},
		{"kty": "EC", "kid": "ec-1", "crv": "P-256",
			"x": b64(ecKey.X.Bytes()), "y": b64(ecKey.Y.Bytes())},
		{"kty": "RSA", "kid": "enc-1", "use": "enc", "n": "AQAB", "e": "AQAB"},
		{"kty": "oct", "kid": "hmac-1", "k": "c2VjcmV0"},
	}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.fetches.Add(1)
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.failing {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"keys": p.keys})
	}))
	t.Cleanup(srv.Close)
	return p, srv
}

func newAuthenticator(t *testing.T, modify func(*Config)) (*Authenticator, *idp) {
	t.Helper()
	p, srv := newIDP(t)
	cfg := Config{Issuer: testIssuer, Audience: testAudience, JWKSURL: srv.URL}
	if modify != nil {
		modify(&cfg)
	}
	return New(cfg), p
}

func claims(extra jwtlib.MapClaims) jwtlib.MapClaims {
	c := jwtlib.MapClaims{
		"sub": "ops-1",
		"iss": testIssuer,
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	for k, v := range extra {
		if v == nil {
			delete(c, k)
			continue
		}
		c[k] = v
	}
	return c
}

func sign(t *testing.T, method jwtlib.SigningMethod, kid string, key crypto.Signer, c jwtlib.MapClaims) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(method, c)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

func rsaToken(t *testing.T, c jwtlib.MapClaims) string {
	return sign(t, jwtlib.SigningMethodRS256, "rsa-1", rsaKey, c)
}

func authenticate(a *Authenticator, header string) auth.AuthResult {
	r := httptest.NewRequest("GET", "/admin/v1/authenticators", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return a.Authenticate(context.Background(), r)
}

func TestAuthenticate(t *testing.T) {
	a, _ := newAuthenticator(t, nil)
	otherRSA := mustRSA()

	tests := []struct {
		name   string
		header string
		want   auth.AuthDecision
	}{
		{"rsa token", "Bearer " + rsaToken(t, claims(nil)), auth.Yes},
		{"ec token", "Bearer " + sign(t, jwtlib.SigningMethodES256, "ec-1", ecKey, claims(nil)), auth.Yes},
		{"within leeway", "Bearer " + rsaToken(t, claims(jwtlib.MapClaims{"exp": time.Now().Add(-10 * time.Second).Unix()})), auth.Yes},
		{"no header", "", auth.Abstain},
		{"basic auth", "Basic dXNlcjpwYXNz", auth.Abstain},
		{"empty bearer", "Bearer ", auth.No},
		{"garbage", "Bearer not-a-jwt", auth.No},
		{"expired", "Bearer " + rsaToken(t, claims(jwtlib.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})), auth.No},
		{"no exp", "Bearer " + rsaToken(t, claims(jwtlib.MapClaims{"exp": nil})), auth.No},
		{"wrong issuer", "Bearer " + rsaToken(t, claims(jwtlib.MapClaims{"iss": "https://evil.example.com"})), auth.No},
		{"wrong audience", "Bearer " + rsaToken(t, claims(jwtlib.MapClaims{"aud": "other-api"})), auth.No},
		{"no subject", "Bearer " + rsaToken(t, claims(jwtlib.MapClaims{"sub": nil})), auth.No},
		{"no kid", "Bearer " + sign(t, jwtlib.SigningMethodRS256, "", rsaKey, claims(nil)), auth.No},
		{"wrong signer", "Bearer " + sign(t, jwtlib.SigningMethodRS256, "rsa-1", otherRSA, claims(nil)), auth.No},
		{"encryption key", "Bearer " + sign(t, jwtlib.SigningMethodRS256, "enc-1", rsaKey, claims(nil)), auth.No},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := authenticate(a, tt.header)
			if got.Decision != tt.want {
				t.Fatalf("Decision = %v, want %v (err %v)", got.Decision, tt.want, got.Err)
			}
			if tt.want == auth.No {
				if _, ok := got.Err.(*api.APIError); !ok {
					t.Errorf("Err = %T, want *api.APIError", got.Err)
				}
			}
		})
	}
}

func TestUnverifiedIssuerAndAudience(t *testing.T) {
	a, _ := newAuthenticator(t, func(c *Config) { c.Issuer, c.Audience = "", "" })
	tok := rsaToken(t, claims(jwtlib.MapClaims{"iss": "https://any.example.com", "aud": "any"}))
	if got := authenticate(a, "Bearer "+tok); got.Decision != auth.Yes {
		t.Errorf("Decision = %v, want Yes (err %v)", got.Decision, got.Err)
	}
}

func TestKeySetCaching(t *testing.T) {
	a, p := newAuthenticator(t, nil)
	tok := rsaToken(t, claims(nil))

	for i := 0; i < 5; i++ {
		if got := authenticate(a, "Bearer "+tok); got.Decision != auth.Yes {
			t.Fatalf("request %d: Decision = %v, want Yes (err %v)", i, got.Decision, got.Err)
		}
	}
	if n := p.fetches.Load(); n != 1 {
		t.Errorf("JWKS fetches = %d, want 1", n)
	}
}

func TestUnknownKidRefreshIsThrottled(t *testing.T) {
	a, p := newAuthenticator(t, nil)
	now := time.Now()
	a.keys.now = func() time.Time { return now }

	authenticate(a, "Bearer "+rsaToken(t, claims(nil)))

	rotated := mustRSA()
	unknown := sign(t, jwtlib.SigningMethodRS256, "rsa-2", rotated, claims(nil))
	for i := 0; i < 3; i++ {
		if got := authenticate(a, "Bearer "+unknown); got.Decision != auth.No {
			t.Fatalf("Decision = %v, want No", got.Decision)
		}
	}
	if n := p.fetches.Load(); n != 1 {
		t.Errorf("JWKS fetches = %d, want 1 (unknown kid right after a load)", n)
	}

	// The IdP publishes the rotated key; after MinRefresh it is picked up.
	p.mu.Lock()
	p.keys = append(p.keys, map[string]string{"kty": "RSA", "kid": "rsa-2",
		"n": b64(rotated.N.Bytes()), "e": b64(big.NewInt(int64(rotated.E)).Bytes())})
	p.mu.Unlock()

	if got := authenticate(a, "Bearer "+unknown); got.Decision != auth.No {
		t.Errorf("Decision before MinRefresh = %v, want No", got.Decision)
	}
	now = now.Add(2 * time.Minute)
	if got := authenticate(a, "Bearer "+unknown); got.Decision != auth.Yes {
		t.Errorf("Decision after MinRefresh = %v, want Yes (err %v)", got.Decision, got.Err)
	}
}

func TestStaleKeyUsedWhileEndpointDown(t *testing.T) {
	a, p := newAuthenticator(t, nil)
	now := time.Now()
	a.keys.now = func() time.Time { return now }
	tok := rsaToken(t, claims(nil))

	authenticate(a, "Bearer "+tok)

	p.mu.Lock()
	p.failing = true
	p.mu.Unlock()
	now = now.Add(2 * time.Hour)

	if got := authenticate(a, "Bearer "+tok); got.Decision != auth.Yes {
		t.Errorf("Decision = %v, want Yes with stale key (err %v)", got.Decision, got.Err)
	}
}

func TestOperatorClaim(t *testing.T) {
	a, _ := newAuthenticator(t, nil)
	tok := rsaToken(t, claims(jwtlib.MapClaims{
		"tenant_id": "org-1",
		"tenantgate": map[string]any{
			"organizations":   "specific",
			"organizationIds": []string{"org-1", "org-2"},
			"features": map[string]any{
				"dynamicAuth":  map[string]any{"read": true, "write": false},
				"userSettings": map[string]any{"read": map[string]any{"filter": map[string]any{"userId": "ops-1"}}},
			},
			"resourceConstraints": map[string]any{"clientIds": []string{"c1"}},
		},
	}))

	got := authenticate(a, "Bearer "+tok)
	if got.Decision != auth.Yes {
		t.Fatalf("Decision = %v, want Yes (err %v)", got.Decision, got.Err)
	}

	id := got.Identity
	if id.Subject != "ops-1" || id.SubjectType != "operator" || id.TenantID() != "org-1" {
		t.Errorf("identity = %+v, want operator ops-1 of org-1", id)
	}
	op := id.Operator
	if diff := cmp.Diff([]string{"org-1", "org-2"}, op.OrganizationIDs); diff != "" {
		t.Errorf("organizationIds mismatch (-want +got):\n%s", diff)
	}
	rules := []struct {
		resource string
		action   api.Action
		want     api.RuleKind
	}{
		{api.ResourceDynamicAuth, api.ActionRead, api.RuleAllowed},
		{api.ResourceDynamicAuth, api.ActionWrite, api.RuleDenied},
		{api.ResourceUserSettings, api.ActionRead, api.RuleFiltered},
		{api.ResourceGlobalSettings, api.ActionRead, api.RuleDenied},
	}
	for _, r := range rules {
		if got := op.Features.Rule(r.resource, r.action).Kind; got != r.want {
			t.Errorf("%s.%s = %v, want %v", r.resource, r.action, got, r.want)
		}
	}
	if diff := cmp.Diff(api.ResourceConstraints{ClientIDs: []string{"c1"}}, id.Constraints); diff != "" {
		t.Errorf("constraints mismatch (-want +got):\n%s", diff)
	}
}

func TestOperatorClaimDefaults(t *testing.T) {
	tests := []struct {
		name     string
		extra    jwtlib.MapClaims
		want     api.OperatorScope
		wantAuth auth.AuthDecision
	}{
		{
			name:     "missing claim limits to own tenant",
			extra:    jwtlib.MapClaims{"tenant_id": "org-9"},
			want:     api.OperatorScope{Organizations: api.OrganizationsSpecific, OrganizationIDs: []string{"org-9"}},
			wantAuth: auth.Yes,
		},
		{
			name:     "missing claim and tenant grants nothing",
			want:     api.OperatorScope{Organizations: api.OrganizationsSpecific},
			wantAuth: auth.Yes,
		},
		{
			name:     "organizations defaults to specific",
			extra:    jwtlib.MapClaims{"tenantgate": map[string]any{"organizationIds": []string{"org-3"}}},
			want:     api.OperatorScope{Organizations: api.OrganizationsSpecific, OrganizationIDs: []string{"org-3"}},
			wantAuth: auth.Yes,
		},
		{
			name:     "malformed feature flag",
			extra:    jwtlib.MapClaims{"tenantgate": map[string]any{"features": map[string]any{"dynamicAuth": map[string]any{"read": "yes"}}}},
			wantAuth: auth.No,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newAuthenticator(t, nil)
			got := authenticate(a, "Bearer "+rsaToken(t, claims(tt.extra)))
			if got.Decision != tt.wantAuth {
				t.Fatalf("Decision = %v, want %v (err %v)", got.Decision, tt.wantAuth, got.Err)
			}
			if tt.wantAuth != auth.Yes {
				return
			}
			if diff := cmp.Diff(tt.want, *got.Identity.Operator); diff != "" {
				t.Errorf("operator scope mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCustomClaimNames(t *testing.T) {
	a, _ := newAuthenticator(t, func(c *Config) {
		c.SubjectClaim = "email"
		c.TenantClaim = "org_id"
		c.OperatorClaim = "ops"
	})
	tok := rsaToken(t, claims(jwtlib.MapClaims{
		"sub":    nil,
		"email":  "alice@example.com",
		"org_id": "org-custom",
		"ops":    map[string]any{"organizations": "all"},
	}))

	got := authenticate(a, "Bearer "+tok)
	if got.Decision != auth.Yes {
		t.Fatalf("Decision = %v, want Yes (err %v)", got.Decision, got.Err)
	}
	if got.Identity.Subject != "alice@example.com" || got.Identity.TenantID() != "org-custom" {
		t.Errorf("identity = %+v", got.Identity)
	}
	if got.Identity.Operator.Organizations != api.OrganizationsAll {
		t.Errorf("organizations = %q, want all", got.Identity.Operator.Organizations)
	}
}
