package storage

import "errors"

var (
	// ErrNotFound reports a missing setting or authenticator.
	ErrNotFound = errors.New("not found")

	// ErrConflict reports a write that collided with an existing record.
	ErrConflict = errors.New("already exists")

	// ErrNoTenant reports a context that was never scoped to an organization.
	ErrNoTenant = errors.New("no organization in context")
)
