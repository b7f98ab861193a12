package repository

import (
	"context"
	"time"

	"exam-announce-admin/backend/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	Revoke(ctx context.Context, id string) error
	RevokeOthersByUser(ctx context.Context, userID, keepSessionID string) (int64, error)
	UpdateLastActivity(ctx context.Context, id string, at time.Time) error
}
