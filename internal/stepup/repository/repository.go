package repository

import (
	"context"

	"exam-announce-admin/backend/internal/stepup/domain"
)

// Repository defines persistence for step-up grants.
type Repository interface {
	Create(ctx context.Context, g *domain.Grant) error
	GetByJTI(ctx context.Context, jti string) (*domain.Grant, error)
	// ConsumeSingleUse marks the grant used. Returns false if it was already
	// consumed by a concurrent request.
	ConsumeSingleUse(ctx context.Context, jti string) (bool, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}
