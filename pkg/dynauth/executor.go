package dynauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rhuss/tenantgate/pkg/api"
)

// Registry resolves authenticator configurations.
type Registry interface {
	// Resolve returns the enabled config named name for the tenant, or
	// ErrConfigNotFound when it is absent or disabled.
	Resolve(ctx context.Context, tenantID, name string) (*api.AuthenticatorConfig, error)
}

// Executor runs one kind of authenticator.
type Executor interface {
	// Kind returns the authenticator kind this executor handles.
	Kind() api.Kind

	// Execute runs cfg against the request context. A returned result may
	// have OK false; errors are reserved for failures to obtain a result
	// and wrap one of the package's sentinel errors.
	Execute(ctx context.Context, cfg *api.AuthenticatorConfig, rc *RequestContext) (*api.AuthResult, error)
}

// DecodeResult parses the wire form of an authentication result. The
// payload must be a JSON object; a successful result must name a subject.
func DecodeResult(data []byte) (*api.AuthResult, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedResult)
	}

	var result api.AuthResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	if result.OK && (result.Subject == nil || result.Subject.ID == "") {
		return nil, fmt.Errorf("%w: ok result without subject id", ErrMalformedResult)
	}
	if result.TTL < 0 {
		result.TTL = 0
	}
	return &result, nil
}
