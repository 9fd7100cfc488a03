// Package apikey authenticates admin API operators with static keys.
//
// A key is presented either in X-API-Key or as a Bearer token. Only the
// SHA-256 digest of each configured key is kept in memory, and the
// presented key is compared against every entry in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
)

// HeaderAPIKey carries a raw operator key.
const HeaderAPIKey = "X-API-Key"

// Key configures one operator key.
type Key struct {
	Secret  string
	Subject string
	Scope   api.OperatorScope
}

type entry struct {
	digest  [sha256.Size]byte
	subject string
	scope   api.OperatorScope
}

// Authenticator checks operator keys.
type Authenticator struct {
	entries []entry
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New hashes keys and returns the authenticator. Empty and duplicate
// secrets are rejected.
func New(keys []Key) (*Authenticator, error) {
	a := &Authenticator{entries: make([]entry, 0, len(keys))}
	seen := make(map[[sha256.Size]byte]bool, len(keys))
	for i, k := range keys {
		if k.Secret == "" {
			return nil, fmt.Errorf("key %d: empty secret", i)
		}
		if k.Subject == "" {
			return nil, fmt.Errorf("key %d: empty subject", i)
		}
		d := sha256.Sum256([]byte(k.Secret))
		if seen[d] {
			return nil, fmt.Errorf("key %d (%s): duplicate secret", i, k.Subject)
		}
		seen[d] = true
		a.entries = append(a.entries, entry{digest: d, subject: k.Subject, scope: k.Scope})
	}
	return a, nil
}

var errUnknownKey = errors.New("unknown API key")

// Authenticate abstains when no key is presented.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	key, present := presentedKey(r)
	if !present {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if key == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	d := sha256.Sum256([]byte(key))
	match := -1
	for i := range a.entries {
		if subtle.ConstantTimeCompare(d[:], a.entries[i].digest[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return auth.AuthResult{Decision: auth.No, Err: errUnknownKey}
	}

	e := a.entries[match]
	scope := e.scope
	scope.OrganizationIDs = append([]string(nil), e.scope.OrganizationIDs...)
	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:     e.subject,
			SubjectType: "operator",
			Permissions: scope.Features,
			Constraints: scope.Constraints,
			Operator:    &scope,
		},
	}
}

func presentedKey(r *http.Request) (string, bool) {
	if v := r.Header.Values(HeaderAPIKey); len(v) > 0 {
		return strings.TrimSpace(v[0]), true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(token), true
}
