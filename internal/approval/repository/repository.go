package repository

import (
	"context"
	"time"

	"exam-announce-admin/backend/internal/approval/domain"
)

// Repository defines persistence for approval requests. The status-changing
// methods are compare-and-swap operations: they report false when the row was
// not in the required prior status, so concurrent callers get exactly one
// winner.
type Repository interface {
	// Create inserts a pending request. Returns domain.ErrDuplicatePending when
	// another pending request already exists for the same (target, action class).
	Create(ctx context.Context, r *domain.Request) error
	GetByID(ctx context.Context, id string) (*domain.Request, error)
	// List returns requests newest first, optionally filtered by status ("" for all).
	List(ctx context.Context, status domain.Status, limit, offset int32) ([]*domain.Request, error)
	// Decide moves the request from pending to outcome (approved or rejected).
	Decide(ctx context.Context, id, reviewerID string, outcome domain.Status, note string, at time.Time) (bool, error)
	// MarkExecuted moves the request from approved to executed.
	MarkExecuted(ctx context.Context, id string, at time.Time) (bool, error)
	// Expire moves the request from pending to expired.
	Expire(ctx context.Context, id string, at time.Time) (bool, error)
	// ExpireOlderThan expires every pending request created before cutoff and
	// returns the number of rows affected.
	ExpireOlderThan(ctx context.Context, cutoff, at time.Time) (int64, error)
}
