package repository

import (
	"context"

	"exam-announce-admin/backend/internal/announcement/domain"
)

// Repository defines persistence for announcements and their revisions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Announcement, error)
	List(ctx context.Context, status domain.Status, limit, offset int32) ([]*domain.Announcement, error)
	Create(ctx context.Context, a *domain.Announcement) error
	// UpdateWithRevision persists the announcement and its new revision in one
	// transaction, guarded by the version the caller read. Returns
	// domain.ErrVersionConflict when another writer got there first.
	UpdateWithRevision(ctx context.Context, a *domain.Announcement, expectedVersion int32, rev *domain.Revision) error
	CreateRevision(ctx context.Context, r *domain.Revision) error
	ListRevisions(ctx context.Context, announcementID string) ([]*domain.Revision, error)
	GetRevision(ctx context.Context, announcementID string, version int32) (*domain.Revision, error)
}
