package api

import (
	"strings"
	"time"
)

// Kind selects the execution strategy of an authenticator.
type Kind string

const (
	KindHTTP   Kind = "http"
	KindScript Kind = "script"
)

// ParseKind normalizes a kind name. "js" is accepted as an alias for script.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "http":
		return KindHTTP, true
	case "script", "js":
		return KindScript, true
	default:
		return "", false
	}
}

// Defaults applied to authenticator configs.
const (
	DefaultAuthenticatorName = "default"
	DefaultCacheTTLSeconds   = 60
	DefaultHTTPMethod        = "POST"
)

// HTTPSpec describes the outbound call of an HTTP-kind authenticator.
// URL, header and query values are templates; BodyParams is sent verbatim.
type HTTPSpec struct {
	URL         string            `json:"url"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"queryParams,omitempty"`
	BodyParams  map[string]any    `json:"bodyParams,omitempty"`
}

// AuthenticatorConfig is a named, tenant-owned authentication strategy.
// (TenantID, Name) is unique.
type AuthenticatorConfig struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"organizationId"`
	Name            string    `json:"name"`
	Kind            Kind      `json:"type"`
	Enabled         bool      `json:"enabled"`
	CacheTTLSeconds int       `json:"cacheTTLSeconds"`
	HTTP            *HTTPSpec `json:"http,omitempty"`
	JSCode          string    `json:"jsCode,omitempty"`
	Description     string    `json:"description,omitempty"`
	CreatedBy       string    `json:"createdBy,omitempty"`
	UpdatedBy       string    `json:"updatedBy,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *AuthenticatorConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultAuthenticatorName
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = DefaultCacheTTLSeconds
	}
	if c.HTTP != nil {
		c.HTTP.Method = strings.ToUpper(c.HTTP.Method)
		if c.HTTP.Method == "" {
			c.HTTP.Method = DefaultHTTPMethod
		}
	}
}

// CacheTTL returns the config's cache lifetime.
func (c *AuthenticatorConfig) CacheTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return DefaultCacheTTLSeconds * time.Second
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Subject is the identity produced by a successful authentication.
type Subject struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

// AuthResult is the wire shape every authenticator must produce:
// {ok, subject?, permissions?, ttl?, error?}. Constraints is an optional
// extension that narrows client and user identifiers further.
type AuthResult struct {
	OK          bool                 `json:"ok"`
	Subject     *Subject             `json:"subject,omitempty"`
	Permissions Grant                `json:"permissions,omitempty"`
	Constraints *ResourceConstraints `json:"constraints,omitempty"`
	TTL         int                  `json:"ttl,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// CacheTTL returns the result's TTL override if set, otherwise fallback.
func (r *AuthResult) CacheTTL(fallback time.Duration) time.Duration {
	if r.TTL > 0 {
		return time.Duration(r.TTL) * time.Second
	}
	return fallback
}

// MatchType selects how a PatternRule is compared with a user identifier.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchPrefix   MatchType = "prefix"
	MatchSuffix   MatchType = "suffix"
	MatchContains MatchType = "contains"
	MatchRegex    MatchType = "regex"
)

// PatternRule allows user identifiers matching Pattern.
type PatternRule struct {
	Pattern   string    `json:"pattern" yaml:"pattern"`
	MatchType MatchType `json:"matchType" yaml:"match_type"`
}

// ResourceConstraints restricts which clients and users a principal may act
// upon. Empty lists mean unrestricted.
type ResourceConstraints struct {
	ClientIDs      []string      `json:"clientIds,omitempty" yaml:"client_ids"`
	UserIDs        []string      `json:"userIds,omitempty" yaml:"user_ids"`
	UserIDPatterns []PatternRule `json:"userIdPatterns,omitempty" yaml:"user_id_patterns"`
}

// Organization access modes of an operator.
const (
	OrganizationsAll      = "all"
	OrganizationsSpecific = "specific"
)

// OperatorScope describes what an administrative principal may do: which
// organizations it may act within, which features it may use, and which
// clients and users it may act upon.
type OperatorScope struct {
	Organizations   string              `json:"organizations"`
	OrganizationIDs []string            `json:"organizationIds,omitempty"`
	Features        Grant               `json:"features,omitempty"`
	Constraints     ResourceConstraints `json:"resourceConstraints"`
}
