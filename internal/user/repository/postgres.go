package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"exam-announce-admin/backend/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, name, role, password_hash, phone, two_factor_enabled, status, created_at, updated_at`

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user for email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// Create persists the user to the database. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, role, password_hash, phone, two_factor_enabled, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Email, nullStr(u.Name), string(u.Role), u.PasswordHash, nullStr(u.Phone),
		u.TwoFactorEnabled, string(u.Status), u.CreatedAt, u.UpdatedAt,
	)
	return err
}

// ListBackupCodeHashes returns hashes of the user's unused backup codes, keyed by code id.
func (r *PostgresRepository) ListBackupCodeHashes(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, code_hash FROM backup_codes WHERE user_id = $1 AND used_at IS NULL`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, err
		}
		out[id] = hash
	}
	return out, rows.Err()
}

// ConsumeBackupCode marks the backup code used with a compare-and-swap on used_at.
func (r *PostgresRepository) ConsumeBackupCode(ctx context.Context, codeID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE backup_codes SET used_at = $2 WHERE id = $1 AND used_at IS NULL`,
		codeID, time.Now().UTC(),
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

// CreateBackupCodes stores hashed backup codes for the user. ids and hashes must be the same length.
func (r *PostgresRepository) CreateBackupCodes(ctx context.Context, userID string, ids, hashes []string) error {
	if len(ids) != len(hashes) {
		return fmt.Errorf("backup codes: %d ids for %d hashes", len(ids), len(hashes))
	}
	now := time.Now().UTC()
	for i := range ids {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO backup_codes (id, user_id, code_hash, created_at) VALUES ($1, $2, $3, $4)`,
			ids[i], userID, hashes[i], now,
		); err != nil {
			return err
		}
	}
	return nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var name, phone sql.NullString
	var role, status string
	err := row.Scan(&u.ID, &u.Email, &name, &role, &u.PasswordHash, &phone,
		&u.TwoFactorEnabled, &status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Name = name.String
	u.Phone = phone.String
	u.Role = domain.Role(role)
	u.Status = domain.UserStatus(status)
	return &u, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
