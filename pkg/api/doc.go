// Package api defines the core data types of the tenantgate service.
//
// The package covers authenticator configurations and the results they
// produce, the permission grant model, scoped settings, structured API
// errors, and ID generation. It performs no I/O.
//
// Core types:
//   - [AuthenticatorConfig]: a named, tenant-owned authentication strategy
//   - [AuthResult]: the {ok, subject, permissions, ttl, error} result every authenticator produces
//   - [Grant]: per-resource-type read/write rules, each denied, allowed, or filtered
//   - [Setting]: a key/value pair stored at global, client, user, or dynamic scope
//   - [APIError]: structured error with type, code, param, and message
package api
