package repository

import (
	"context"

	"exam-announce-admin/backend/internal/user/domain"
)

// Repository defines persistence for users and their backup codes.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// ListBackupCodeHashes returns hashes of the user's unused backup codes, keyed by code id.
	ListBackupCodeHashes(ctx context.Context, userID string) (map[string]string, error)
	// ConsumeBackupCode marks the backup code used. Returns false if it was already used.
	ConsumeBackupCode(ctx context.Context, codeID string) (bool, error)
	// CreateBackupCodes stores hashed backup codes for the user (at 2FA enrollment).
	CreateBackupCodes(ctx context.Context, userID string, ids, hashes []string) error
}
