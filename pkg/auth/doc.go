// Package auth decides who is calling.
//
// Authenticators vote Yes, No or Abstain on a request and an AuthChain
// asks them in order. The settings API is guarded by a chain holding the
// tenant-configured dispatcher; the admin API by a chain of operator
// authenticators (apikey, jwt, noop). Middleware turns the vote into an
// identity in the request context.
package auth
