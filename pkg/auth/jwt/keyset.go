package jwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// maxJWKSBytes caps the key set document.
const maxJWKSBytes = 1 << 20

var errUnknownKey = errors.New("signing key not in key set")

// keySet holds the verification keys published at a JWKS URL. Keys are
// reloaded when they age past ttl, or when a token names an unknown kid and
// the last reload is older than minRefresh.
type keySet struct {
	url        string
	client     *http.Client
	ttl        time.Duration
	minRefresh time.Duration
	now        func() time.Time

	mu       sync.RWMutex
	keys     map[string]crypto.PublicKey
	loadedAt time.Time

	group singleflight.Group
}

func (ks *keySet) lookup(kid string) (crypto.PublicKey, time.Time, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.keys[kid]
	return key, ks.loadedAt, ok
}

// key returns the public key for kid, reloading the set if needed.
func (ks *keySet) key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	key, loadedAt, ok := ks.lookup(kid)
	age := ks.now().Sub(loadedAt)
	if ok && age < ks.ttl {
		return key, nil
	}
	if !ok && !loadedAt.IsZero() && age < ks.minRefresh {
		return nil, fmt.Errorf("%w: kid %q", errUnknownKey, kid)
	}

	// Concurrent misses share one fetch.
	_, err, _ := ks.group.Do("refresh", func() (any, error) {
		return nil, ks.refresh(ctx)
	})
	if err != nil {
		if ok {
			// Keep verifying with the stale key while the endpoint is down.
			slog.Warn("JWKS refresh failed, using cached key", "url", ks.url, "error", err)
			return key, nil
		}
		return nil, err
	}

	if key, _, ok = ks.lookup(kid); !ok {
		return nil, fmt.Errorf("%w: kid %q", errUnknownKey, kid)
	}
	return key, nil
}

func (ks *keySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return fmt.Errorf("building JWKS request: %w", err)
	}
	resp, err := ks.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBytes)).Decode(&doc); err != nil {
		return fmt.Errorf("parsing JWKS: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			slog.Warn("skipping JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}

	ks.mu.Lock()
	ks.keys = keys
	ks.loadedAt = ks.now()
	ks.mu.Unlock()

	slog.Debug("JWKS loaded", "url", ks.url, "keys", len(keys))
	return nil
}

// jwk is one entry of a key set. Only RSA and P-256/P-384 EC keys are
// understood.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Crv string `json:"crv"`
	N   string `json:"n"`
	E   string `json:"e"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (k jwk) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		n, err := decodeInt(k.N)
		if err != nil {
			return nil, fmt.Errorf("modulus: %w", err)
		}
		e, err := decodeInt(k.E)
		if err != nil {
			return nil, fmt.Errorf("exponent: %w", err)
		}
		if !e.IsInt64() || e.Int64() > 1<<31-1 {
			return nil, errors.New("exponent out of range")
		}
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil

	case "EC":
		var curve elliptic.Curve
		switch k.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		default:
			return nil, fmt.Errorf("unsupported curve %q", k.Crv)
		}
		x, err := decodeInt(k.X)
		if err != nil {
			return nil, fmt.Errorf("x: %w", err)
		}
		y, err := decodeInt(k.Y)
		if err != nil {
			return nil, fmt.Errorf("y: %w", err)
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil

	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}

func decodeInt(s string) (*big.Int, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New("empty value")
	}
	return new(big.Int).SetBytes(b), nil
}
