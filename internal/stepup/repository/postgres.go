package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"exam-announce-admin/backend/internal/stepup/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a step-up grant repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the grant to the database.
func (r *PostgresRepository) Create(ctx context.Context, g *domain.Grant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO step_up_grants (jti, user_id, session_id, single_use, issued_at, expires_at, used_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.JTI, g.UserID, g.SessionID, g.SingleUse, g.IssuedAt, g.ExpiresAt, timeToNullTime(g.UsedAt),
	)
	return err
}

// GetByJTI returns the grant for jti, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByJTI(ctx context.Context, jti string) (*domain.Grant, error) {
	var g domain.Grant
	var used sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT jti, user_id, session_id, single_use, issued_at, expires_at, used_at
		 FROM step_up_grants WHERE jti = $1`, jti).
		Scan(&g.JTI, &g.UserID, &g.SessionID, &g.SingleUse, &g.IssuedAt, &g.ExpiresAt, &used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	g.UsedAt = nullTimeToPtr(used)
	return &g, nil
}

// ConsumeSingleUse marks the grant used with a compare-and-swap on used_at,
// so exactly one of two racing requests wins.
func (r *PostgresRepository) ConsumeSingleUse(ctx context.Context, jti string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE step_up_grants SET used_at = $2 WHERE jti = $1 AND used_at IS NULL`,
		jti, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteBySession removes all grants issued against the session. Called on logout
// so step-up tokens die with the session that minted them.
func (r *PostgresRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM step_up_grants WHERE session_id = $1`, sessionID)
	return err
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
