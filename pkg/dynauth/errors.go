package dynauth

import "errors"

// Sentinel errors returned by registries and executors.
var (
	// ErrMissingTenant means the request did not name a tenant.
	ErrMissingTenant = errors.New("missing organization id")

	// ErrConfigNotFound means no enabled authenticator exists for the
	// tenant and name. Absent and disabled configs are indistinguishable.
	ErrConfigNotFound = errors.New("authenticator not found")

	// ErrExecutionTimeout means a script exceeded its wall-clock budget.
	ErrExecutionTimeout = errors.New("authenticator execution timed out")

	// ErrTransport means the outbound call could not be completed.
	ErrTransport = errors.New("authenticator endpoint unreachable")

	// ErrMalformedResult means the executor produced a value that is not
	// an {ok, subject, permissions, ttl, error} object.
	ErrMalformedResult = errors.New("malformed authenticator result")

	// ErrAuthenticationFailed covers every other failure inside an
	// executor, such as a thrown script error.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUnknownKind means no executor is registered for a config's kind.
	ErrUnknownKind = errors.New("no executor for authenticator kind")

	// errExecutorFault marks a recovered executor panic.
	errExecutorFault = errors.New("unexpected executor fault")
)
