package repository

import (
	"context"

	"exam-announce-admin/backend/internal/mfa/domain"
)

// Repository defines persistence for MFA challenges.
type Repository interface {
	Create(ctx context.Context, c *domain.Challenge) error
	// GetLatestByUser returns the most recently created challenge for the user,
	// consumed or not, or nil if none exists.
	GetLatestByUser(ctx context.Context, userID string) (*domain.Challenge, error)
	// Consume marks the challenge consumed. Returns false if it was already
	// consumed (exactly one caller wins a concurrent race).
	Consume(ctx context.Context, id string) (bool, error)
}
