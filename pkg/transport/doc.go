// Package transport provides the HTTP middleware chain and error writing
// shared by the settings and admin APIs.
//
// # Middleware
//
// Middleware wraps an http.Handler. Built-in middleware provides panic
// recovery, request ID assignment (X-Request-ID) and structured access
// logging via log/slog. Chain composes them so that the first middleware
// is the outermost wrapper.
//
// # Errors
//
// Client-facing failures are *api.APIError values written as
// {"error": {...}} with the status derived from the error type.
package transport
