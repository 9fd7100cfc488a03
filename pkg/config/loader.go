package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/debug"
)

// searchPaths are tried in order when neither --config nor
// TENANTGATE_CONFIG names a file.
var searchPaths = []string{"config.yaml", "/etc/tenantgate/config.yaml"}

// Load builds the effective configuration: defaults, then the YAML file,
// then TENANTGATE_* variables, then *_file secrets. The result is
// validated before it is returned.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	path := findConfigFile(configPath)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		resolveScriptPaths(cfg.Authenticators, filepath.Dir(path))
		debug.Log(debug.Config, "config file loaded", "path", path)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := readSecrets(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("TENANTGATE_CONFIG"); p != "" {
		return p
	}
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// resolveScriptPaths makes relative js_code_file entries relative to dir.
func resolveScriptPaths(seeds []AuthenticatorSeed, dir string) {
	for i := range seeds {
		if f := seeds[i].JSCodeFile; f != "" && !filepath.IsAbs(f) {
			seeds[i].JSCodeFile = filepath.Join(dir, f)
		}
	}
}

// envString lists the plain string overrides.
func envString(cfg *Config) map[string]*string {
	return map[string]*string{
		"TENANTGATE_STORAGE":      &cfg.Storage.Type,
		"TENANTGATE_POSTGRES_DSN": &cfg.Storage.Postgres.DSN,
		"TENANTGATE_CACHE":        &cfg.Cache.Type,
		"TENANTGATE_REDIS_ADDR":   &cfg.Cache.Redis.Addr,
		"TENANTGATE_ADMIN_AUTH":   &cfg.Admin.Auth,
		"TENANTGATE_LOG_FORMAT":   &cfg.Logging.Format,
	}
}

func applyEnv(cfg *Config) error {
	for name, dst := range envString(cfg) {
		if v := os.Getenv(name); v != "" {
			*dst = v
			debug.Log(debug.Config, "environment override", "variable", name)
		}
	}

	if v := os.Getenv("TENANTGATE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TENANTGATE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	// A JSON array replaces the configured operator keys.
	if v := os.Getenv("TENANTGATE_ADMIN_KEYS"); v != "" {
		var keys []AdminKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("TENANTGATE_ADMIN_KEYS: %w", err)
		}
		if len(keys) > 0 {
			cfg.Admin.APIKeys = keys
		}
	}
	return nil
}

// secretRef pairs a *_file field with the value it fills.
type secretRef struct {
	name  string
	file  string
	value *string
	raw   bool // keep whitespace (script sources)
}

func secretRefs(cfg *Config) []secretRef {
	refs := []secretRef{
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN, false},
		{"cache.redis.password_file", cfg.Cache.Redis.PasswordFile, &cfg.Cache.Redis.Password, false},
	}
	for i := range cfg.Admin.APIKeys {
		k := &cfg.Admin.APIKeys[i]
		refs = append(refs, secretRef{fmt.Sprintf("admin.api_keys[%d].key_file", i), k.KeyFile, &k.Key, false})
	}
	for i := range cfg.Authenticators {
		a := &cfg.Authenticators[i]
		refs = append(refs, secretRef{fmt.Sprintf("authenticators[%d].js_code_file", i), a.JSCodeFile, &a.JSCode, true})
	}
	return refs
}

// readSecrets fills empty values from their *_file counterparts. An
// explicit value always wins.
func readSecrets(cfg *Config) error {
	for _, ref := range secretRefs(cfg) {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		data, err := os.ReadFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		if ref.raw {
			*ref.value = string(data)
		} else {
			*ref.value = strings.TrimSpace(string(data))
		}
	}
	return nil
}

// LoadAuthenticatorSeed reads a single authenticator definition from a
// YAML file. A non-empty tenantID replaces the file's organization_id and
// a relative js_code_file is resolved against the file's directory. The
// seed is validated like a configured one.
func LoadAuthenticatorSeed(path, tenantID string) (*api.AuthenticatorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed AuthenticatorSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if tenantID != "" {
		seed.OrganizationID = tenantID
	}

	seeds := []AuthenticatorSeed{seed}
	resolveScriptPaths(seeds, filepath.Dir(path))
	seed = seeds[0]
	if seed.JSCodeFile != "" && seed.JSCode == "" {
		code, err := os.ReadFile(seed.JSCodeFile)
		if err != nil {
			return nil, fmt.Errorf("js_code_file: %w", err)
		}
		seed.JSCode = string(code)
	}

	cfg, err := seed.ToAPI()
	if err != nil {
		return nil, err
	}
	if apiErr := api.ValidateAuthenticator(cfg, api.DefaultValidationConfig()); apiErr != nil {
		return nil, apiErr
	}
	return cfg, nil
}
