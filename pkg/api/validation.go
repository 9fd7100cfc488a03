package api

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationConfig holds configurable limits for authenticator validation.
type ValidationConfig struct {
	MaxScriptSize int
	MaxNameLength int
	MaxTTLSeconds int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxScriptSize: 64 * 1024,
		MaxNameLength: 128,
		MaxTTLSeconds: 24 * 60 * 60,
	}
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
}

// ValidateAuthenticator checks an authenticator config for validity. It
// returns an *APIError describing the first failure, or nil.
func ValidateAuthenticator(c *AuthenticatorConfig, cfg ValidationConfig) *APIError {
	if strings.TrimSpace(c.TenantID) == "" {
		return NewInvalidRequestError("organizationId", "organizationId is required")
	}

	if c.Name == "" {
		return NewInvalidRequestError("name", "name is required")
	}
	if cfg.MaxNameLength > 0 && len(c.Name) > cfg.MaxNameLength {
		return NewInvalidRequestError("name",
			fmt.Sprintf("name exceeds maximum length of %d", cfg.MaxNameLength))
	}
	if !namePattern.MatchString(c.Name) {
		return NewInvalidRequestError("name", "name may contain only letters, digits, '.', '_' and '-'")
	}

	if c.CacheTTLSeconds < 0 {
		return NewInvalidRequestError("cacheTTLSeconds", "cacheTTLSeconds must not be negative")
	}
	if cfg.MaxTTLSeconds > 0 && c.CacheTTLSeconds > cfg.MaxTTLSeconds {
		return NewInvalidRequestError("cacheTTLSeconds",
			fmt.Sprintf("cacheTTLSeconds exceeds maximum of %d", cfg.MaxTTLSeconds))
	}

	switch c.Kind {
	case KindHTTP:
		return validateHTTPSpec(c.HTTP)
	case KindScript:
		if strings.TrimSpace(c.JSCode) == "" {
			return NewInvalidRequestError("jsCode", "jsCode is required for script authenticators")
		}
		if cfg.MaxScriptSize > 0 && len(c.JSCode) > cfg.MaxScriptSize {
			return NewInvalidRequestError("jsCode",
				fmt.Sprintf("jsCode exceeds maximum of %d bytes", cfg.MaxScriptSize))
		}
	case "":
		return NewInvalidRequestError("type", "type is required")
	default:
		return NewInvalidRequestError("type",
			fmt.Sprintf("invalid type %q: must be %q or %q", c.Kind, KindHTTP, KindScript))
	}

	return nil
}

func validateHTTPSpec(h *HTTPSpec) *APIError {
	if h == nil || strings.TrimSpace(h.URL) == "" {
		return NewInvalidRequestError("http.url", "url is required for http authenticators")
	}

	// Placeholders may appear anywhere, including the host, so only the
	// scheme is checked here.
	lower := strings.ToLower(strings.TrimSpace(h.URL))
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return NewInvalidRequestError("http.url", "url must be an absolute http or https URL")
	}

	if h.Method != "" && !allowedMethods[strings.ToUpper(h.Method)] {
		return NewInvalidRequestError("http.method",
			fmt.Sprintf("unsupported method %q", h.Method))
	}

	return nil
}

// ValidateSettingKey checks a setting key taken from a request.
func ValidateSettingKey(key string) *APIError {
	if strings.TrimSpace(key) == "" {
		return NewInvalidRequestError("settingKey", "settingKey is required")
	}
	if len(key) > 256 {
		return NewInvalidRequestError("settingKey", "settingKey exceeds maximum length of 256")
	}
	return nil
}
