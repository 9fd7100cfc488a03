package auth

import (
	"context"
	"errors"
	"net/http"
)

// AuthDecision is an authenticator's vote on a request.
type AuthDecision int

const (
	// Yes accepts the request; the chain stops and Identity is used.
	Yes AuthDecision = iota

	// No rejects the request; the chain stops.
	No

	// Abstain passes the request to the next authenticator.
	Abstain
)

func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Abstain:
		return "abstain"
	default:
		return "unknown"
	}
}

// AuthResult is the outcome of one authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // set when Decision is Yes

	// Err explains a No. An *api.APIError selects the status code of the
	// rejection; any other error is answered with 401.
	Err error
}

// Authenticator votes on the credentials of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// ErrUnauthenticated rejects requests no authenticator accepted.
var ErrUnauthenticated = errors.New("authentication required")

// AuthChain asks its authenticators in order until one votes Yes or No.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision applies when every authenticator abstains. Yes admits
	// the caller as "anonymous" and is only meant for local development.
	DefaultDecision AuthDecision
}

// Authenticate runs the chain.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		if result := authn.Authenticate(ctx, r); result.Decision != Abstain {
			return result
		}
	}

	if c.DefaultDecision == Yes {
		return AuthResult{Decision: Yes, Identity: &Identity{Subject: "anonymous"}}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}
