package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rhuss/tenantgate/pkg/api"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be > 0, got %d", c.Server.MaxBodyBytes))
	}

	// storage.type must be a known value.
	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	// If storage.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	switch c.Cache.Type {
	case "memory", "none":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("cache.redis.addr is required when cache.type is \"redis\""))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.type must be \"memory\", \"redis\", or \"none\", got %q", c.Cache.Type))
	}
	if c.Cache.DefaultTTL < 0 {
		errs = append(errs, fmt.Errorf("cache.default_ttl must not be negative, got %v", c.Cache.DefaultTTL))
	}

	if c.DynAuth.ScriptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dynauth.script_timeout must be > 0, got %v", c.DynAuth.ScriptTimeout))
	}
	if c.DynAuth.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dynauth.http_timeout must be > 0, got %v", c.DynAuth.HTTPTimeout))
	}

	// admin.auth must be a known value.
	switch c.Admin.Auth {
	case "none":
	case "apikey":
		if len(c.Admin.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("admin.api_keys must not be empty when admin.auth is \"apikey\""))
		}
		for i, k := range c.Admin.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("admin.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("admin.api_keys[%d].subject is required", i))
			}
			switch k.Organizations {
			case "", api.OrganizationsAll, api.OrganizationsSpecific:
			default:
				errs = append(errs, fmt.Errorf("admin.api_keys[%d].organizations must be \"all\" or \"specific\", got %q", i, k.Organizations))
			}
		}
	case "jwt":
		if c.Admin.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("admin.jwt.jwks_url is required when admin.auth is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("admin.auth must be \"none\", \"apikey\", or \"jwt\", got %q", c.Admin.Auth))
	}

	vcfg := api.DefaultValidationConfig()
	seen := make(map[string]bool, len(c.Authenticators))
	for i, s := range c.Authenticators {
		cfg, err := s.ToAPI()
		if err != nil {
			errs = append(errs, fmt.Errorf("authenticators[%d]: %w", i, err))
			continue
		}
		if apiErr := api.ValidateAuthenticator(cfg, vcfg); apiErr != nil {
			errs = append(errs, fmt.Errorf("authenticators[%d]: %s", i, apiErr.Message))
			continue
		}
		id := cfg.TenantID + "/" + cfg.Name
		if seen[id] {
			errs = append(errs, fmt.Errorf("authenticators[%d]: duplicate authenticator %q", i, id))
		}
		seen[id] = true
	}

	for i, s := range c.Settings {
		set, err := s.ToAPI()
		if err != nil {
			errs = append(errs, fmt.Errorf("settings[%d]: %w", i, err))
			continue
		}
		if strings.TrimSpace(set.TenantID) == "" {
			errs = append(errs, fmt.Errorf("settings[%d].organization_id is required", i))
		}
		if apiErr := api.ValidateSettingKey(set.Key); apiErr != nil {
			errs = append(errs, fmt.Errorf("settings[%d]: %s", i, apiErr.Message))
		}
	}

	return errors.Join(errs...)
}
