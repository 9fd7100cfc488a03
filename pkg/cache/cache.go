// Package cache defines the result cache used by dynamic authentication.
//
// A cache maps a key derived from tenant, authenticator name and credential
// material to a previously computed authentication result. Entries expire
// after their TTL. Implementations must be safe for concurrent use.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/zeebo/blake3"

	"github.com/rhuss/tenantgate/pkg/api"
)

// ErrUnavailable is returned when the cache backend cannot be reached.
// Callers treat it as a miss.
var ErrUnavailable = errors.New("cache unavailable")

// Cache stores authentication results.
type Cache interface {
	// Get returns the cached result for key. The boolean is false on a
	// miss or when the entry has expired.
	Get(ctx context.Context, key string) (*api.AuthResult, bool, error)

	// Put stores result under key for ttl.
	Put(ctx context.Context, key string, result *api.AuthResult, ttl time.Duration) error

	// InvalidateAll removes every entry.
	InvalidateAll(ctx context.Context) error
}

// KeyPrefix starts every cache key.
const KeyPrefix = "auth:"

// Key derives the cache key for credential material presented to the named
// authenticator of a tenant. Tenant and name are length-prefixed so that no
// two (tenant, name) pairs share a key, and the credential is hashed so raw
// secrets are never held as keys. A missing credential hashes the literal
// "none".
//
//	auth:<len(tenant)>:<tenant>:<len(name)>:<name>:<blake3 hex>
func Key(tenantID, name, credential string) string {
	if credential == "" {
		credential = "none"
	}
	sum := blake3.Sum256([]byte(credential))
	return KeyPrefix +
		strconv.Itoa(len(tenantID)) + ":" + tenantID + ":" +
		strconv.Itoa(len(name)) + ":" + name + ":" +
		hex.EncodeToString(sum[:])
}

// Noop is a Cache that never stores anything.
type Noop struct{}

var _ Cache = Noop{}

func (Noop) Get(context.Context, string) (*api.AuthResult, bool, error) { return nil, false, nil }

func (Noop) Put(context.Context, string, *api.AuthResult, time.Duration) error { return nil }

func (Noop) InvalidateAll(context.Context) error { return nil }
