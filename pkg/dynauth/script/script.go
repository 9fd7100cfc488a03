// Package script runs script-kind authenticators inside an embedded
// JavaScript interpreter.
//
// Every attempt gets a fresh runtime whose only bindings are the request
// view, the tenant id, a few decoding helpers, a logger and fetch. There is
// no module loader and no access to the file system, the process or its
// environment. The tenant source is the body of an async function; its
// completion value is the authentication result.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/zeebo/blake3"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/debug"
	"github.com/rhuss/tenantgate/pkg/dynauth"
	"github.com/rhuss/tenantgate/pkg/dynauth/httpauth"
	"github.com/rhuss/tenantgate/pkg/observability"
)

// Defaults for script execution.
const (
	DefaultTimeout        = 5 * time.Second
	DefaultMaxSourceBytes = 64 << 10
	maxCachedPrograms     = 256
	maxCallStackSize      = 1024
)

// Fetcher performs the outbound calls made through fetch.
type Fetcher interface {
	Call(ctx context.Context, c httpauth.Call) (*httpauth.Response, error)
}

// Config configures the executor.
type Config struct {
	// Timeout is the wall-clock budget of one attempt, including any
	// outbound calls. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxSourceBytes rejects larger scripts. Zero means DefaultMaxSourceBytes.
	MaxSourceBytes int

	// MaxStringBytes caps strings and arrays built by one builtin call and
	// strings accepted by the helpers. Zero means DefaultMaxStringBytes.
	MaxStringBytes int

	// Fetcher backs fetch. Nil disables outbound calls.
	Fetcher Fetcher

	// Now overrides the clock used by validateToken.
	Now func() time.Time
}

// Executor runs tenant scripts. It is safe for concurrent use; compiled
// programs are shared, runtimes are not.
type Executor struct {
	timeout   time.Duration
	maxSource int
	maxString int
	fetcher   Fetcher
	now       func() time.Time

	mu       sync.Mutex
	programs map[[32]byte]*goja.Program
}

// Ensure Executor implements dynauth.Executor at compile time.
var _ dynauth.Executor = (*Executor)(nil)

// New creates an Executor.
func New(cfg Config) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = DefaultMaxSourceBytes
	}
	if cfg.MaxStringBytes <= 0 {
		cfg.MaxStringBytes = DefaultMaxStringBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Executor{
		timeout:   cfg.Timeout,
		maxSource: cfg.MaxSourceBytes,
		maxString: cfg.MaxStringBytes,
		fetcher:   cfg.Fetcher,
		now:       cfg.Now,
		programs:  make(map[[32]byte]*goja.Program),
	}
}

// Kind reports api.KindScript.
func (e *Executor) Kind() api.Kind { return api.KindScript }

// Execute runs cfg.JSCode against rc. The attempt ends as a result, a
// failure, or ErrExecutionTimeout once the budget is spent.
func (e *Executor) Execute(ctx context.Context, cfg *api.AuthenticatorConfig, rc *dynauth.RequestContext) (*api.AuthResult, error) {
	if len(cfg.JSCode) > e.maxSource {
		return nil, fmt.Errorf("%w: script exceeds %d bytes", dynauth.ErrAuthenticationFailed, e.maxSource)
	}
	prog, err := e.compile(cfg.JSCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dynauth.ErrAuthenticationFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)

	logger := slog.Default().With("tenant", rc.TenantID, "authenticator", cfg.Name, "source", "script")
	s := &sandbox{vm: vm, ctx: ctx, fetcher: e.fetcher, now: e.now, logger: logger, maxString: e.maxString}
	if err := s.install(rc); err != nil {
		return nil, fmt.Errorf("%w: preparing sandbox: %v", dynauth.ErrAuthenticationFailed, err)
	}

	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	debug.Trace(debug.Script, "running script", cfg.JSCode, "tenant", rc.TenantID, "authenticator", cfg.Name)
	start := time.Now()
	value, err := vm.RunProgram(prog)
	debug.Log(debug.Script, "script finished", "tenant", rc.TenantID, "authenticator", cfg.Name, "elapsed", time.Since(start))

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			observability.ScriptTimeoutsTotal.Inc()
			logger.Warn("script exceeded its budget", "timeout", e.timeout)
			return nil, dynauth.ErrExecutionTimeout
		}
		return nil, fmt.Errorf("%w: %w", dynauth.ErrAuthenticationFailed, ctxErr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", dynauth.ErrAuthenticationFailed, describe(err))
	}

	value, err = settle(value)
	if err != nil {
		return nil, err
	}
	return decode(value)
}

// compile wraps src as the body of an async function and caches the
// program by the hash of the source.
func (e *Executor) compile(src string) (*goja.Program, error) {
	sum := blake3.Sum256([]byte(src))

	e.mu.Lock()
	prog, ok := e.programs[sum]
	e.mu.Unlock()
	if ok {
		return prog, nil
	}

	prog, err := goja.Compile("authenticator.js", "(async function() {\n"+src+"\n})()", false)
	if err != nil {
		return nil, fmt.Errorf("compiling script: %s", describe(err))
	}

	e.mu.Lock()
	if len(e.programs) >= maxCachedPrograms {
		clear(e.programs)
	}
	e.programs[sum] = prog
	e.mu.Unlock()
	return prog, nil
}

// settle unwraps the promise returned by the async wrapper. Jobs queued by
// awaits have already run when RunProgram returns, so a promise still
// pending at this point can never resolve.
func settle(v goja.Value) (goja.Value, error) {
	if v == nil {
		return v, nil
	}
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), nil
	case goja.PromiseStateRejected:
		reason := "script rejected"
		if r := p.Result(); r != nil && !goja.IsUndefined(r) {
			reason = r.String()
		}
		return nil, fmt.Errorf("%w: %s", dynauth.ErrAuthenticationFailed, reason)
	default:
		return nil, fmt.Errorf("%w: script never settled", dynauth.ErrAuthenticationFailed)
	}
}

// decode converts the completion value into a result through its JSON form.
func decode(v goja.Value) (*api.AuthResult, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fmt.Errorf("%w: script returned no value", dynauth.ErrMalformedResult)
	}
	data, err := json.Marshal(v.Export())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dynauth.ErrMalformedResult, err)
	}
	return dynauth.DecodeResult(data)
}

func describe(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value().String()
	}
	return err.Error()
}
