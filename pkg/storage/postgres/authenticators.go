package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/dynauth"
	"github.com/rhuss/tenantgate/pkg/storage"
)

const authenticatorColumns = `id, tenant_id, name, kind, enabled, cache_ttl_seconds, http,
	js_code, description, created_by, updated_by, created_at, updated_at`

// Resolve returns the enabled authenticator registered under name.
// Disabled and absent configs are both reported as ErrConfigNotFound.
func (s *Store) Resolve(ctx context.Context, tenantID, name string) (*api.AuthenticatorConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+authenticatorColumns+`
		FROM authenticators
		WHERE tenant_id = $1 AND name = $2 AND enabled
	`, tenantID, name)

	cfg, err := scanAuthenticator(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dynauth.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving authenticator: %w", err)
	}
	return cfg, nil
}

// PutAuthenticator creates or replaces the config with the same tenant and
// name. The id, creator and creation time of an existing row are kept.
func (s *Store) PutAuthenticator(ctx context.Context, cfg *api.AuthenticatorConfig) error {
	in := *cfg
	in.ApplyDefaults()
	if in.ID == "" {
		in.ID = api.NewAuthenticatorID()
	}

	var httpJSON []byte
	if in.HTTP != nil {
		var err error
		if httpJSON, err = json.Marshal(in.HTTP); err != nil {
			return fmt.Errorf("marshaling http spec: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO authenticators (
			id, tenant_id, name, kind, enabled, cache_ttl_seconds, http,
			js_code, description, created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (tenant_id, name) DO UPDATE SET
			kind              = EXCLUDED.kind,
			enabled           = EXCLUDED.enabled,
			cache_ttl_seconds = EXCLUDED.cache_ttl_seconds,
			http              = EXCLUDED.http,
			js_code           = EXCLUDED.js_code,
			description       = EXCLUDED.description,
			updated_by        = EXCLUDED.updated_by,
			updated_at        = now()
	`, in.ID, in.TenantID, in.Name, string(in.Kind), in.Enabled, in.CacheTTLSeconds, nullJSON(httpJSON),
		in.JSCode, in.Description, in.CreatedBy, in.UpdatedBy)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("storing authenticator: %w", err)
	}
	return nil
}

// DeleteAuthenticator removes a config.
func (s *Store) DeleteAuthenticator(ctx context.Context, tenantID, name string) error {
	result, err := s.pool.Exec(ctx,
		"DELETE FROM authenticators WHERE tenant_id = $1 AND name = $2", tenantID, name)
	if err != nil {
		return fmt.Errorf("deleting authenticator: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListAuthenticators returns the tenant's configs, enabled or not, ordered by name.
func (s *Store) ListAuthenticators(ctx context.Context, tenantID string) ([]*api.AuthenticatorConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+authenticatorColumns+`
		FROM authenticators
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing authenticators: %w", err)
	}
	defer rows.Close()

	var out []*api.AuthenticatorConfig
	for rows.Next() {
		cfg, err := scanAuthenticator(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning authenticator: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func scanAuthenticator(row pgx.Row) (*api.AuthenticatorConfig, error) {
	var cfg api.AuthenticatorConfig
	var kind string
	var httpJSON *[]byte
	err := row.Scan(&cfg.ID, &cfg.TenantID, &cfg.Name, &kind, &cfg.Enabled, &cfg.CacheTTLSeconds, &httpJSON,
		&cfg.JSCode, &cfg.Description, &cfg.CreatedBy, &cfg.UpdatedBy, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cfg.Kind = api.Kind(kind)
	if httpJSON != nil {
		cfg.HTTP = &api.HTTPSpec{}
		if err := json.Unmarshal(*httpJSON, cfg.HTTP); err != nil {
			return nil, fmt.Errorf("unmarshaling http spec: %w", err)
		}
	}
	return &cfg, nil
}
