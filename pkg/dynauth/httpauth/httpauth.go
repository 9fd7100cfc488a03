// Package httpauth runs HTTP-kind authenticators: one templated outbound
// call per attempt whose JSON response is the authentication result.
package httpauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/debug"
	"github.com/rhuss/tenantgate/pkg/dynauth"
	"github.com/rhuss/tenantgate/pkg/transport"
)

// Defaults for outbound calls.
const (
	DefaultTimeout          = 10 * time.Second
	DefaultMaxResponseBytes = 1 << 20
)

// Config configures the executor.
type Config struct {
	// Timeout bounds each outbound call. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxResponseBytes caps the response body read. Zero means
	// DefaultMaxResponseBytes.
	MaxResponseBytes int64

	// Client overrides the HTTP client. Its Timeout is left untouched.
	Client *http.Client
}

// Executor issues outbound authentication calls. It is safe for
// concurrent use.
type Executor struct {
	client  *http.Client
	maxBody int64
}

// Ensure Executor implements dynauth.Executor at compile time.
var _ dynauth.Executor = (*Executor)(nil)

// New creates an Executor.
func New(cfg Config) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Executor{client: client, maxBody: cfg.MaxResponseBytes}
}

// Kind reports api.KindHTTP.
func (e *Executor) Kind() api.Kind { return api.KindHTTP }

// Execute renders the config's templates against rc, issues the call and
// decodes the response body regardless of its status code.
func (e *Executor) Execute(ctx context.Context, cfg *api.AuthenticatorConfig, rc *dynauth.RequestContext) (*api.AuthResult, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("%w: http authenticator without http settings", dynauth.ErrAuthenticationFailed)
	}
	spec := cfg.HTTP

	method := strings.ToUpper(spec.Method)
	if method == "" {
		method = api.DefaultHTTPMethod
	}

	call := Call{
		Method:  method,
		URL:     dynauth.Render(spec.URL, rc),
		Headers: dynauth.RenderMap(spec.Headers, rc),
		Query:   dynauth.RenderMap(spec.QueryParams, rc),
	}
	// The body is sent verbatim, never rendered.
	if spec.BodyParams != nil && carriesBody(method) {
		call.Body = spec.BodyParams
	}

	resp, err := e.Call(ctx, call)
	if err != nil {
		return nil, err
	}
	debug.Log(debug.HTTP, "authenticator responded", "tenant", cfg.TenantID, "authenticator", cfg.Name, "status", resp.Status)
	debug.Trace(debug.HTTP, "authenticator response body", string(resp.Body), "authenticator", cfg.Name)

	return dynauth.DecodeResult(resp.Body)
}

// Call is one outbound request.
type Call struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string

	// Body is sent as-is when it is a string or []byte and JSON-encoded
	// otherwise. Nil sends no body.
	Body any
}

// Response is the captured outcome of a Call.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Call issues c and reads at most the configured number of body bytes.
// Failures to reach the target wrap dynauth.ErrTransport and never carry
// the target URL.
func (e *Executor) Call(ctx context.Context, c Call) (*Response, error) {
	method := strings.ToUpper(c.Method)
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid target url", dynauth.ErrTransport)
	}
	if len(c.Query) > 0 {
		q := u.Query()
		for k, v := range c.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	body, contentType, err := encodeBody(c.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding body: %v", dynauth.ErrAuthenticationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", dynauth.ErrTransport, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	if id := transport.RequestIDFromContext(ctx); id != "" && req.Header.Get(transport.HeaderRequestID) == "" {
		req.Header.Set(transport.HeaderRequestID, id)
	}

	debug.Log(debug.HTTP, "outbound call", "method", method, "url", u.Redacted())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dynauth.ErrTransport, withoutURL(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", dynauth.ErrTransport, withoutURL(err))
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	return &Response{Status: resp.StatusCode, Headers: headers, Body: data}, nil
}

func carriesBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut
}

func encodeBody(v any) (io.Reader, string, error) {
	switch b := v.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// withoutURL strips the request URL that net/http adds to client errors.
func withoutURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
