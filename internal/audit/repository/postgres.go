package repository

import (
	"context"
	"database/sql"
	"errors"

	"exam-announce-admin/backend/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const auditColumns = `id, user_id, action, announcement_id, note, ip, metadata, created_at`

// GetByID returns the audit log for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_logs WHERE id = $1`, id)
	a, err := scanAuditLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// List returns audit logs newest first, paginated by limit and offset.
func (r *PostgresRepository) List(ctx context.Context, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_logs ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAuditLogs(rows)
}

// ListByAnnouncement returns audit logs for one announcement, newest first.
func (r *PostgresRepository) ListByAnnouncement(ctx context.Context, announcementID string, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE announcement_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		announcementID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAuditLogs(rows)
}

// Create persists the audit log to the database. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, action, announcement_id, note, ip, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, nullStr(a.UserID), a.Action, nullStr(a.AnnouncementID), nullStr(a.Note), a.IP, nullStr(a.Metadata), a.CreatedAt,
	)
	return err
}

func collectAuditLogs(rows *sql.Rows) ([]*domain.AuditLog, error) {
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(row rowScanner) (*domain.AuditLog, error) {
	var a domain.AuditLog
	var userID, announcementID, note, metadata sql.NullString
	err := row.Scan(&a.ID, &userID, &a.Action, &announcementID, &note, &a.IP, &metadata, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.UserID = userID.String
	a.AnnouncementID = announcementID.String
	a.Note = note.String
	a.Metadata = metadata.String
	return &a, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
