// Package config provides unified configuration for the tenantgate service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TENANTGATE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"fmt"
	"time"

	"github.com/rhuss/tenantgate/pkg/api"
)

// Config holds all configuration for the tenantgate service.
type Config struct {
	Server         ServerConfig        `yaml:"server"`
	Storage        StorageConfig       `yaml:"storage"`
	Cache          CacheConfig         `yaml:"cache"`
	DynAuth        DynAuthConfig       `yaml:"dynauth"`
	Admin          AdminConfig         `yaml:"admin"`
	Authenticators []AuthenticatorSeed `yaml:"authenticators"`
	Settings       []SettingSeed       `yaml:"settings"`
	Observability  ObservabilityConfig `yaml:"observability"`
	Logging        LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`           // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`   // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`  // default: 30s
	MaxBodyBytes int64         `yaml:"max_body_bytes"` // default: 1 MiB
}

// StorageConfig holds settings and registry storage.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN              string        `yaml:"dsn"`
	DSNFile          string        `yaml:"dsn_file"`          // _file variant for dsn
	MaxConns         int32         `yaml:"max_conns"`         // default: 10
	StatementTimeout time.Duration `yaml:"statement_timeout"` // default: 5s
	MigrateOnStart   bool          `yaml:"migrate_on_start"`  // default: false
}

// CacheConfig selects and sizes the authentication result cache.
type CacheConfig struct {
	Type       string        `yaml:"type"`        // "memory", "redis" or "none", default: "memory"
	MaxEntries int           `yaml:"max_entries"` // memory only, default: 500
	DefaultTTL time.Duration `yaml:"default_ttl"` // default: 60s
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds the shared cache connection.
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"` // _file variant for password
	DB           int    `yaml:"db"`
	Prefix       string `yaml:"prefix"` // default: "tenantgate:"
}

// DynAuthConfig tunes the per-tenant authentication dispatcher.
type DynAuthConfig struct {
	DefaultName       string        `yaml:"default_name"`       // default: "default"
	ScriptTimeout     time.Duration `yaml:"script_timeout"`     // default: 5s
	HTTPTimeout       time.Duration `yaml:"http_timeout"`       // default: 10s
	CredentialHeaders []string      `yaml:"credential_headers"` // default: authorization, x-authorization, proxy-authorization, x-api-key
	TenantHeader      string        `yaml:"tenant_header"`      // default: X-Organization-Id
	NameHeader        string        `yaml:"name_header"`        // default: X-Auth-Name
}

// AdminConfig holds operator authentication for the admin API.
type AdminConfig struct {
	Auth    string           `yaml:"auth"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys []AdminKeyConfig `yaml:"api_keys"` // entries for auth=apikey
	JWT     JWTConfig        `yaml:"jwt"`
}

// AdminKeyConfig describes one operator API key and its permissions.
type AdminKeyConfig struct {
	Key             string                     `yaml:"key" json:"key"`
	KeyFile         string                     `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject         string                     `yaml:"subject" json:"subject"`
	Organizations   string                     `yaml:"organizations" json:"organizations"` // "all" or "specific"
	OrganizationIDs []string                   `yaml:"organization_ids" json:"organization_ids"`
	Features        map[string]map[string]bool `yaml:"features" json:"features"`
	Constraints     api.ResourceConstraints    `yaml:"resource_constraints" json:"resource_constraints"`
}

// Operator converts the key entry into the operator scope it grants.
func (k AdminKeyConfig) Operator() api.OperatorScope {
	orgs := k.Organizations
	if orgs == "" {
		orgs = api.OrganizationsSpecific
	}
	return api.OperatorScope{
		Organizations:   orgs,
		OrganizationIDs: k.OrganizationIDs,
		Features:        api.GrantFromFlags(k.Features),
		Constraints:     k.Constraints,
	}
}

// JWTConfig holds operator JWT validation settings.
type JWTConfig struct {
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
	JWKSURL       string `yaml:"jwks_url"`
	SubjectClaim  string `yaml:"subject_claim"`  // default: "sub"
	TenantClaim   string `yaml:"tenant_claim"`   // default: "tenant_id"
	OperatorClaim string `yaml:"operator_claim"` // default: "tenantgate"
}

// AuthenticatorSeed is the YAML form of an authenticator definition. Seeds
// are loaded into the memory registry, or upserted into postgres at startup.
type AuthenticatorSeed struct {
	OrganizationID  string    `yaml:"organization_id"`
	Name            string    `yaml:"name"`
	Type            string    `yaml:"type"`    // "http" or "script" ("js" accepted)
	Enabled         *bool     `yaml:"enabled"` // default: true
	CacheTTLSeconds int       `yaml:"cache_ttl_seconds"`
	Description     string    `yaml:"description"`
	HTTP            *HTTPSeed `yaml:"http"`
	JSCode          string    `yaml:"js_code"`
	JSCodeFile      string    `yaml:"js_code_file"` // read when js_code is empty
}

// HTTPSeed is the YAML form of api.HTTPSpec.
type HTTPSeed struct {
	URL         string            `yaml:"url"`
	Method      string            `yaml:"method"`
	Headers     map[string]string `yaml:"headers"`
	QueryParams map[string]string `yaml:"query_params"`
	BodyParams  map[string]any    `yaml:"body_params"`
}

// ToAPI converts the seed into an authenticator config with defaults applied.
func (s AuthenticatorSeed) ToAPI() (*api.AuthenticatorConfig, error) {
	kind, ok := api.ParseKind(s.Type)
	if !ok {
		return nil, fmt.Errorf("unknown authenticator type %q", s.Type)
	}
	cfg := &api.AuthenticatorConfig{
		TenantID:        s.OrganizationID,
		Name:            s.Name,
		Kind:            kind,
		Enabled:         s.Enabled == nil || *s.Enabled,
		CacheTTLSeconds: s.CacheTTLSeconds,
		JSCode:          s.JSCode,
		Description:     s.Description,
		CreatedBy:       "config",
		UpdatedBy:       "config",
	}
	if s.HTTP != nil {
		cfg.HTTP = &api.HTTPSpec{
			URL:         s.HTTP.URL,
			Method:      s.HTTP.Method,
			Headers:     s.HTTP.Headers,
			QueryParams: s.HTTP.QueryParams,
			BodyParams:  s.HTTP.BodyParams,
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// SettingSeed is the YAML form of a stored setting.
type SettingSeed struct {
	OrganizationID string `yaml:"organization_id"`
	Scope          string `yaml:"scope"`      // default: "global"
	SubjectID      string `yaml:"subject_id"` // client, user or unique id for non-global scopes
	Key            string `yaml:"key"`
	Value          any    `yaml:"value"`
	Description    string `yaml:"description"`
}

// ToAPI converts the seed into a setting.
func (s SettingSeed) ToAPI() (*api.Setting, error) {
	name := s.Scope
	if name == "" {
		name = string(api.ScopeGlobal)
	}
	scope, ok := api.ParseScope(name)
	if !ok {
		return nil, fmt.Errorf("unknown setting scope %q", s.Scope)
	}
	if scope != api.ScopeGlobal && s.SubjectID == "" {
		return nil, fmt.Errorf("subject_id is required for %s settings", scope)
	}
	set := &api.Setting{
		TenantID:    s.OrganizationID,
		Scope:       scope,
		Key:         s.Key,
		Value:       s.Value,
		Description: s.Description,
		CreatedBy:   "config",
		UpdatedBy:   "config",
	}
	switch scope {
	case api.ScopeClient:
		set.ClientID = s.SubjectID
	case api.ScopeUser:
		set.UserID = s.SubjectID
	case api.ScopeDynamic:
		set.UniqueID = s.SubjectID
	}
	return set, nil
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig holds slog and debug category settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // TRACE, DEBUG, INFO, WARN, ERROR; default: INFO
	Debug  string `yaml:"debug"`  // comma-separated debug categories
	Format string `yaml:"format"` // "text" or "json", default: "text"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns:         10,
				StatementTimeout: 5 * time.Second,
			},
		},
		Cache: CacheConfig{
			Type:       "memory",
			MaxEntries: 500,
			DefaultTTL: 60 * time.Second,
			Redis: RedisConfig{
				Prefix: "tenantgate:",
			},
		},
		DynAuth: DynAuthConfig{
			DefaultName:       api.DefaultAuthenticatorName,
			ScriptTimeout:     5 * time.Second,
			HTTPTimeout:       10 * time.Second,
			CredentialHeaders: []string{"authorization", "x-authorization", "proxy-authorization", "x-api-key"},
			TenantHeader:      "X-Organization-Id",
			NameHeader:        "X-Auth-Name",
		},
		Admin: AdminConfig{
			Auth: "none",
			JWT: JWTConfig{
				OperatorClaim: "tenantgate",
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// SeedAuthenticators converts every authenticator seed. Seeds without a
// cache TTL inherit cache.default_ttl.
func (c *Config) SeedAuthenticators() ([]*api.AuthenticatorConfig, error) {
	out := make([]*api.AuthenticatorConfig, 0, len(c.Authenticators))
	for i, s := range c.Authenticators {
		if s.CacheTTLSeconds == 0 && c.Cache.DefaultTTL > 0 {
			s.CacheTTLSeconds = int(c.Cache.DefaultTTL / time.Second)
		}
		cfg, err := s.ToAPI()
		if err != nil {
			return nil, fmt.Errorf("authenticators[%d]: %w", i, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// SeedSettings converts every settings seed.
func (c *Config) SeedSettings() ([]*api.Setting, error) {
	out := make([]*api.Setting, 0, len(c.Settings))
	for i, s := range c.Settings {
		set, err := s.ToAPI()
		if err != nil {
			return nil, fmt.Errorf("settings[%d]: %w", i, err)
		}
		out = append(out, set)
	}
	return out, nil
}
