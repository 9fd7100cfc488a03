// Package dynauth authenticates requests against tenant-defined
// authenticators.
//
// Each tenant registers named authenticator configurations. A request
// selects one with the X-Auth-Name header (default "default") within the
// tenant named by X-Organization-Id. The Dispatcher resolves the config
// through a Registry, runs it with the Executor registered for its kind
// (an outbound HTTP call or a sandboxed script), caches successful results
// and hands the resulting subject and permission grant to the auth
// middleware as an Identity.
//
// Failures inside an executor never escape as panics. They are normalized
// to authentication failures (401), except for faults in the executor
// itself, which are reported as server errors (500).
package dynauth
