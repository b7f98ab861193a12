package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"exam-announce-admin/backend/internal/mfa/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an MFA challenge repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the challenge. The challenge must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mfa_challenges (id, user_id, phone, code_hash, expires_at, consumed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.UserID, c.Phone, c.CodeHash, c.ExpiresAt, timeToNullTime(c.ConsumedAt), c.CreatedAt,
	)
	return err
}

// GetLatestByUser returns the most recent challenge for userID, or nil if none.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetLatestByUser(ctx context.Context, userID string) (*domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, phone, code_hash, expires_at, consumed_at, created_at
		 FROM mfa_challenges WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`,
		userID,
	)
	var c domain.Challenge
	var consumed sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &c.Phone, &c.CodeHash, &c.ExpiresAt, &consumed, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.ConsumedAt = nullTimeToPtr(consumed)
	return &c, nil
}

// Consume marks the challenge consumed with a compare-and-swap on consumed_at.
func (r *PostgresRepository) Consume(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE mfa_challenges SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
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
