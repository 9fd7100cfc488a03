package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rhuss/tenantgate/pkg/api"
	"github.com/rhuss/tenantgate/pkg/permission"
	"github.com/rhuss/tenantgate/pkg/storage"
)

const settingColumns = `id, tenant_id, scope, subject_id, setting_key, setting_value,
	description, created_by, updated_by, created_at, updated_at`

// FindGlobal returns the tenant-wide setting for key.
func (s *Store) FindGlobal(ctx context.Context, tenantID, key string) (*api.Setting, error) {
	return s.find(ctx, tenantID, api.ScopeGlobal, "", key)
}

// FindClient returns the client's setting for key.
func (s *Store) FindClient(ctx context.Context, tenantID, clientID, key string) (*api.Setting, error) {
	return s.find(ctx, tenantID, api.ScopeClient, clientID, key)
}

// FindUser returns the user's setting for key.
func (s *Store) FindUser(ctx context.Context, tenantID, userID, key string) (*api.Setting, error) {
	return s.find(ctx, tenantID, api.ScopeUser, userID, key)
}

// FindDynamic returns the setting stored under an arbitrary identifier.
func (s *Store) FindDynamic(ctx context.Context, tenantID, uniqueID, key string) (*api.Setting, error) {
	return s.find(ctx, tenantID, api.ScopeDynamic, uniqueID, key)
}

func (s *Store) find(ctx context.Context, tenantID string, scope api.Scope, subjectID, key string) (*api.Setting, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+settingColumns+`
		FROM settings
		WHERE tenant_id = $1 AND scope = $2 AND subject_id = $3 AND setting_key = $4
	`, tenantID, string(scope), subjectID, key)

	set, err := scanSetting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying setting: %w", err)
	}
	return set, nil
}

// List returns the scope's settings matching filter, ordered by key, then
// subject.
func (s *Store) List(ctx context.Context, tenantID string, scope api.Scope, filter permission.Filter) ([]*api.Setting, error) {
	w := &whereBuilder{scope: scope}
	w.add("tenant_id = " + w.arg(tenantID))
	w.add("scope = " + w.arg(string(scope)))
	if err := w.filter(filter); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+settingColumns+`
		FROM settings
		WHERE `+w.String()+`
		ORDER BY setting_key, subject_id
	`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	defer rows.Close()

	var out []*api.Setting
	for rows.Next() {
		set, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		out = append(out, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	return out, nil
}

// Upsert creates or updates a setting. An empty description keeps the
// stored one.
func (s *Store) Upsert(ctx context.Context, in *api.Setting) (*api.Setting, bool, error) {
	value, err := json.Marshal(in.Value)
	if err != nil {
		return nil, false, fmt.Errorf("marshaling setting value: %w", err)
	}

	id := in.ID
	if id == "" {
		id = api.NewSettingID()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO settings (
			id, tenant_id, scope, subject_id, setting_key, setting_value,
			description, created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (tenant_id, scope, subject_id, setting_key) DO UPDATE SET
			setting_value = EXCLUDED.setting_value,
			description   = CASE WHEN EXCLUDED.description = '' THEN settings.description ELSE EXCLUDED.description END,
			updated_by    = EXCLUDED.updated_by,
			updated_at    = now()
		RETURNING `+settingColumns+`, (xmax = 0) AS inserted
	`, id, in.TenantID, string(in.Scope), in.SubjectID(), in.Key, value,
		in.Description, in.CreatedBy, in.UpdatedBy)

	set, created, err := scanUpserted(row)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, false, storage.ErrConflict
		}
		return nil, false, fmt.Errorf("upserting setting: %w", err)
	}
	return set, created, nil
}

func scanSetting(row pgx.Row) (*api.Setting, error) {
	var set api.Setting
	var scope, subjectID string
	var value []byte
	err := row.Scan(&set.ID, &set.TenantID, &scope, &subjectID, &set.Key, &value,
		&set.Description, &set.CreatedBy, &set.UpdatedBy, &set.CreatedAt, &set.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return finishSetting(&set, scope, subjectID, value)
}

func scanUpserted(row pgx.Row) (*api.Setting, bool, error) {
	var set api.Setting
	var scope, subjectID string
	var value []byte
	var inserted bool
	err := row.Scan(&set.ID, &set.TenantID, &scope, &subjectID, &set.Key, &value,
		&set.Description, &set.CreatedBy, &set.UpdatedBy, &set.CreatedAt, &set.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, err
	}
	out, err := finishSetting(&set, scope, subjectID, value)
	return out, inserted, err
}

func finishSetting(set *api.Setting, scope, subjectID string, value []byte) (*api.Setting, error) {
	set.Scope = api.Scope(scope)
	switch set.Scope {
	case api.ScopeClient:
		set.ClientID = subjectID
	case api.ScopeUser:
		set.UserID = subjectID
	case api.ScopeDynamic:
		set.UniqueID = subjectID
	}
	if len(value) > 0 {
		if err := json.Unmarshal(value, &set.Value); err != nil {
			return nil, fmt.Errorf("unmarshaling setting value: %w", err)
		}
	}
	return set, nil
}
