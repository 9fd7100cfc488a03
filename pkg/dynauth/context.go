package dynauth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
)

// DefaultMaxBodyBytes bounds the request body read into a RequestContext.
const DefaultMaxBodyBytes = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

// RequestContext is the read-only view of an inbound request exposed to
// templates and scripts. Header names are lowercased and multi-valued
// headers and query parameters are reduced to their first value.
type RequestContext struct {
	Headers  map[string]string
	Query    map[string]string
	Body     any
	IP       string
	Path     string
	TenantID string

	docOnce sync.Once
	doc     []byte
}

// NewRequestContext builds a context from already extracted parts. Header
// names are lowercased.
func NewRequestContext(tenantID string, headers, query map[string]string, body any) *RequestContext {
	rc := &RequestContext{
		Headers:  make(map[string]string, len(headers)),
		Query:    make(map[string]string, len(query)),
		Body:     body,
		TenantID: tenantID,
	}
	for k, v := range headers {
		rc.Headers[strings.ToLower(k)] = v
	}
	for k, v := range query {
		rc.Query[k] = v
	}
	return rc
}

// FromRequest captures r for the tenant. A JSON body is decoded and r.Body
// is replaced so downstream handlers can read it again. Bodies that are
// not JSON are exposed as nil.
func FromRequest(r *http.Request, tenantID string, maxBody int64) (*RequestContext, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	rc := &RequestContext{
		Headers:  make(map[string]string, len(r.Header)),
		Query:    make(map[string]string),
		IP:       clientIP(r.RemoteAddr),
		Path:     r.URL.Path,
		TenantID: tenantID,
	}
	for name, values := range r.Header {
		if len(values) > 0 {
			rc.Headers[strings.ToLower(name)] = values[0]
		}
	}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			rc.Query[name] = values[0]
		}
	}

	if r.Body == nil || r.Body == http.NoBody {
		return rc, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if int64(len(data)) > maxBody {
		return nil, errBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(data))

	if len(bytes.TrimSpace(data)) > 0 {
		var body any
		if json.Unmarshal(data, &body) == nil {
			rc.Body = body
		}
	}
	return rc, nil
}

// Document returns the context as the JSON object templates are rendered
// against: {headers, query, body, ip, path, organizationId}.
func (rc *RequestContext) Document() []byte {
	rc.docOnce.Do(func() {
		rc.doc, _ = json.Marshal(map[string]any{
			"headers":        rc.Headers,
			"query":          rc.Query,
			"body":           rc.Body,
			"ip":             rc.IP,
			"path":           rc.Path,
			"organizationId": rc.TenantID,
		})
	})
	return rc.doc
}

// Request returns the script-facing view, which omits the tenant.
func (rc *RequestContext) Request() map[string]any {
	headers := make(map[string]any, len(rc.Headers))
	for k, v := range rc.Headers {
		headers[k] = v
	}
	query := make(map[string]any, len(rc.Query))
	for k, v := range rc.Query {
		query[k] = v
	}
	return map[string]any{
		"headers": headers,
		"query":   query,
		"body":    rc.Body,
		"ip":      rc.IP,
		"path":    rc.Path,
	}
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
