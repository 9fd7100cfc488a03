package dynauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/auth"
	"github.com/rhuss/tenantgate/pkg/cache"
	"github.com/rhuss/tenantgate/pkg/debug"
	"github.com/rhuss/tenantgate/pkg/observability"
)

// Header defaults.
const (
	DefaultTenantHeader = "X-Organization-Id"
	DefaultNameHeader   = "X-Auth-Name"
)

// DefaultCredentialHeaders carry credential material. Every one present
// on a request contributes to its cache key.
var DefaultCredentialHeaders = []string{"Authorization", "X-Authorization", "Proxy-Authorization", "X-Api-Key"}

// authorizationAliases are copied, first present wins, into the
// authorization header seen by authenticators.
var authorizationAliases = []string{"Authorization", "X-Authorization", "Proxy-Authorization"}

// Config holds dispatcher settings. Zero values select the defaults.
type Config struct {
	// DefaultName is the authenticator used when the name header is absent.
	DefaultName string

	TenantHeader string
	NameHeader   string

	// CredentialHeaders lists the headers whose values key the result
	// cache. Requests carrying none of them are never served from or
	// stored in the cache.
	CredentialHeaders []string

	// MaxBodyBytes bounds the body captured for templates and scripts.
	MaxBodyBytes int64

	// Executors run authenticators, one per kind.
	Executors []Executor
}

func (c *Config) defaults() {
	if c.DefaultName == "" {
		c.DefaultName = api.DefaultAuthenticatorName
	}
	if c.TenantHeader == "" {
		c.TenantHeader = DefaultTenantHeader
	}
	if c.NameHeader == "" {
		c.NameHeader = DefaultNameHeader
	}
	if len(c.CredentialHeaders) == 0 {
		c.CredentialHeaders = DefaultCredentialHeaders
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// Dispatcher authenticates requests with tenant-defined authenticators.
// It implements auth.Authenticator and is safe for concurrent use.
type Dispatcher struct {
	registry  Registry
	cache     cache.Cache
	executors map[api.Kind]Executor
	cfg       Config

	// group collapses concurrent cold-cache executions of the same key.
	group singleflight.Group
}

// Ensure Dispatcher implements auth.Authenticator at compile time.
var _ auth.Authenticator = (*Dispatcher)(nil)

// New creates a Dispatcher. The registry must not be nil; a nil cache
// disables caching.
func New(registry Registry, c cache.Cache, cfg Config) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("dynauth: registry must not be nil")
	}
	if c == nil {
		c = cache.Noop{}
	}
	cfg.defaults()

	executors := make(map[api.Kind]Executor, len(cfg.Executors))
	for _, e := range cfg.Executors {
		if _, dup := executors[e.Kind()]; dup {
			return nil, fmt.Errorf("dynauth: duplicate executor for kind %q", e.Kind())
		}
		executors[e.Kind()] = e
	}

	return &Dispatcher{
		registry:  registry,
		cache:     c,
		executors: executors,
		cfg:       cfg,
	}, nil
}

// Authenticate resolves, executes and caches the authenticator selected by
// the request headers. It never abstains: a request without a tenant is
// rejected as a client error and every other failure as unauthorized.
func (d *Dispatcher) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	tenantID := strings.TrimSpace(r.Header.Get(d.cfg.TenantHeader))
	name := strings.TrimSpace(r.Header.Get(d.cfg.NameHeader))
	if name == "" {
		name = d.cfg.DefaultName
	}
	if tenantID == "" {
		return d.failure(tenantID, name, ErrMissingTenant)
	}

	// Requests without credential material bypass the cache.
	var key string
	if material := d.credentialMaterial(r); material != "" {
		key = cache.Key(tenantID, name, material)
		if result, ok := d.lookup(ctx, key); ok {
			debug.Log(debug.Auth, "cache hit", "tenant", tenantID, "authenticator", name)
			return d.accept(tenantID, name, result)
		}
	}

	rc, err := FromRequest(r, tenantID, d.cfg.MaxBodyBytes)
	if err != nil {
		return reject(api.NewInvalidRequestError("body", err.Error()))
	}
	normalizeAuthorization(rc)

	result, err := d.execute(ctx, tenantID, name, key, rc)
	if err != nil {
		return d.failure(tenantID, name, err)
	}

	if !result.OK {
		slog.Warn("authentication rejected", "tenant", tenantID, "authenticator", name, "reason", result.Error)
		return reject(api.NewUnauthorizedError("authentication failed", result.Error))
	}
	return d.accept(tenantID, name, result)
}

// Try executes cfg directly against rc, bypassing the registry and the
// cache. Disabled configs are executed too.
func (d *Dispatcher) Try(ctx context.Context, cfg *api.AuthenticatorConfig, rc *RequestContext) (*api.AuthResult, error) {
	if cfg.TenantID != "" && rc.TenantID == "" {
		rc.TenantID = cfg.TenantID
	}
	normalizeAuthorization(rc)
	return d.run(ctx, cfg, rc)
}

// InvalidateCache drops every cached result.
func (d *Dispatcher) InvalidateCache(ctx context.Context) error {
	if err := d.cache.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("invalidating result cache: %w", err)
	}
	slog.Info("result cache invalidated")
	return nil
}

// credentialMaterial joins every value of every configured credential
// header present on r. It is empty when the request carries none.
func (d *Dispatcher) credentialMaterial(r *http.Request) string {
	var b strings.Builder
	for _, h := range d.cfg.CredentialHeaders {
		for _, v := range r.Header.Values(h) {
			if v == "" {
				continue
			}
			b.WriteString(strings.ToLower(h))
			b.WriteByte('=')
			b.WriteString(v)
			b.WriteByte(0)
		}
	}
	return b.String()
}

// normalizeAuthorization fills a missing authorization header from its
// aliases.
func normalizeAuthorization(rc *RequestContext) {
	if rc.Headers["authorization"] != "" {
		return
	}
	for _, h := range authorizationAliases {
		if v := rc.Headers[strings.ToLower(h)]; v != "" {
			rc.Headers["authorization"] = v
			return
		}
	}
}

// lookup probes the cache. Cache errors are logged and treated as a miss.
func (d *Dispatcher) lookup(ctx context.Context, key string) (*api.AuthResult, bool) {
	result, ok, err := d.cache.Get(ctx, key)
	switch {
	case err != nil:
		observability.CacheLookupsTotal.WithLabelValues(observability.CacheError).Inc()
		slog.Warn("result cache lookup failed, bypassing cache", "error", err)
		return nil, false
	case !ok:
		observability.CacheLookupsTotal.WithLabelValues(observability.CacheMiss).Inc()
		return nil, false
	default:
		observability.CacheLookupsTotal.WithLabelValues(observability.CacheHit).Inc()
		return result, true
	}
}

// execute collapses concurrent executions of the same key. An empty key
// runs uncached and unshared.
func (d *Dispatcher) execute(ctx context.Context, tenantID, name, key string, rc *RequestContext) (*api.AuthResult, error) {
	if key == "" {
		debug.Log(debug.Auth, "no credential material, bypassing cache", "tenant", tenantID, "authenticator", name)
		return d.resolveAndRun(ctx, tenantID, name, key, rc)
	}
	v, err, shared := d.group.Do(key, func() (any, error) {
		return d.resolveAndRun(ctx, tenantID, name, key, rc)
	})
	if shared {
		debug.Log(debug.Auth, "shared execution", "tenant", tenantID, "authenticator", name)
	}
	if err != nil {
		return nil, err
	}
	return v.(*api.AuthResult), nil
}

// resolveAndRun resolves the config, executes it and caches a successful
// result under key. Failed results are never cached and an empty key
// disables the store.
func (d *Dispatcher) resolveAndRun(ctx context.Context, tenantID, name, key string, rc *RequestContext) (*api.AuthResult, error) {
	cfg, err := d.registry.Resolve(ctx, tenantID, name)
	if err != nil {
		return nil, err
	}

	result, err := d.run(ctx, cfg, rc)
	if err != nil {
		return nil, err
	}

	if result.OK && key != "" {
		ttl := result.CacheTTL(cfg.CacheTTL())
		if err := d.cache.Put(ctx, key, result, ttl); err != nil {
			slog.Warn("result cache store failed", "tenant", tenantID, "authenticator", name, "error", err)
		} else {
			debug.Log(debug.Cache, "stored result", "tenant", tenantID, "authenticator", name, "ttl", ttl)
		}
	}
	return result, nil
}

// run executes cfg with the executor for its kind. Executor panics are
// recovered and reported as errExecutorFault.
func (d *Dispatcher) run(ctx context.Context, cfg *api.AuthenticatorConfig, rc *RequestContext) (result *api.AuthResult, err error) {
	exec, ok := d.executors[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}

	kind := string(cfg.Kind)
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			slog.Error("authenticator panicked", "tenant", cfg.TenantID, "authenticator", cfg.Name, "panic", p)
			result, err = nil, fmt.Errorf("%w: %v", errExecutorFault, p)
		}
		observability.AuthExecutionSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		observability.AuthAttemptsTotal.WithLabelValues(kind, outcome(result, err)).Inc()
	}()

	debug.Log(debug.Auth, "executing authenticator", "tenant", cfg.TenantID, "authenticator", cfg.Name, "kind", kind)
	return exec.Execute(ctx, cfg, rc)
}

func outcome(result *api.AuthResult, err error) string {
	switch {
	case errors.Is(err, ErrExecutionTimeout):
		return observability.OutcomeTimeout
	case err != nil:
		return observability.OutcomeError
	case result.OK:
		return observability.OutcomeSuccess
	default:
		return observability.OutcomeDenied
	}
}

// failure maps an execution error to a rejection. Details of transport and
// script failures stay in the log.
func (d *Dispatcher) failure(tenantID, name string, err error) auth.AuthResult {
	switch {
	case errors.Is(err, ErrMissingTenant):
		debug.Log(debug.Auth, "request without tenant", "authenticator", name)
		return reject(api.NewInvalidRequestError(d.cfg.TenantHeader, d.cfg.TenantHeader+" header required"))
	case errors.Is(err, ErrConfigNotFound):
		slog.Warn("authenticator not found", "tenant", tenantID, "authenticator", name)
		return reject(api.NewUnauthorizedError("authenticator not found", ""))
	case errors.Is(err, ErrExecutionTimeout),
		errors.Is(err, ErrTransport),
		errors.Is(err, ErrMalformedResult),
		errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		slog.Warn("authentication failed", "tenant", tenantID, "authenticator", name, "error", err)
		return reject(api.NewUnauthorizedError("authentication failed", ""))
	default:
		slog.Error("authentication error", "tenant", tenantID, "authenticator", name, "error", err)
		return reject(api.NewServerError("authentication error"))
	}
}

// accept converts a successful result into an identity.
func (d *Dispatcher) accept(tenantID, name string, result *api.AuthResult) auth.AuthResult {
	id := &auth.Identity{
		Subject:       result.Subject.ID,
		SubjectType:   result.Subject.Type,
		Tenant:        tenantID,
		Authenticator: name,
		Permissions:   result.Permissions,
	}
	if result.Constraints != nil {
		id.Constraints = *result.Constraints
	}
	return auth.AuthResult{Decision: auth.Yes, Identity: id}
}

func reject(err *api.APIError) auth.AuthResult {
	return auth.AuthResult{Decision: auth.No, Err: err}
}
