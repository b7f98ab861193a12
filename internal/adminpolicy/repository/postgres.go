package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"exam-announce-admin/backend/internal/adminpolicy/domain"
)

// configKey is the single row key; the admin guard policy is global.
const configKey = "global"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an admin policy config repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the stored config, or nil if none was ever saved.
func (r *PostgresRepository) Get(ctx context.Context) (*domain.AdminPolicyConfig, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT config_json FROM admin_policy_config WHERE config_key = $1`, configKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var config domain.AdminPolicyConfig
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Upsert saves or replaces the config.
func (r *PostgresRepository) Upsert(ctx context.Context, config *domain.AdminPolicyConfig) error {
	if config == nil {
		config = &domain.AdminPolicyConfig{}
	}
	merged := domain.MergeWithDefaults(config)
	raw, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO admin_policy_config (config_key, config_json, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (config_key) DO UPDATE SET config_json = EXCLUDED.config_json, updated_at = EXCLUDED.updated_at`,
		configKey, string(raw), time.Now().UTC())
	return err
}
