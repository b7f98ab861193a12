package repository

import (
	"context"

	"exam-announce-admin/backend/internal/adminpolicy/domain"
)

// Repository persists the admin policy config.
type Repository interface {
	// Get returns the stored config, or nil if none was ever saved (caller applies defaults).
	Get(ctx context.Context) (*domain.AdminPolicyConfig, error)
	// Upsert saves or replaces the config.
	Upsert(ctx context.Context, config *domain.AdminPolicyConfig) error
}
