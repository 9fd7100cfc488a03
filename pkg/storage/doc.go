// Package storage holds what the memory and postgres adapters share: the
// sentinel errors they return and the organization scope carried through
// request contexts. The store contracts live with their consumers
// (settings.Store, dynauth.Registry).
package storage
