package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"exam-announce-admin/backend/internal/announcement/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an announcement repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const announcementColumns = `id, title, body, exam_date, status, version, created_by, published_at, created_at, updated_at`

// GetByID returns the announcement for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Announcement, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+announcementColumns+` FROM announcements WHERE id = $1`, id)
	a, err := scanAnnouncement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// List returns announcements newest first, optionally filtered by status ("" for all).
func (r *PostgresRepository) List(ctx context.Context, status domain.Status, limit, offset int32) ([]*domain.Announcement, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+announcementColumns+` FROM announcements ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+announcementColumns+` FROM announcements WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			string(status), limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create persists the announcement. The announcement must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Announcement) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO announcements (id, title, body, exam_date, status, version, created_by, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.Title, a.Body, timeToNullTime(a.ExamDate), string(a.Status), a.Version, a.CreatedBy,
		timeToNullTime(a.PublishedAt), a.CreatedAt, a.UpdatedAt,
	)
	return err
}

// UpdateWithRevision replaces the announcement's mutable columns and inserts
// the revision snapshot in one transaction. The UPDATE is guarded by the
// version the caller read, so a concurrent writer makes this return
// domain.ErrVersionConflict instead of clobbering the other write.
func (r *PostgresRepository) UpdateWithRevision(ctx context.Context, a *domain.Announcement, expectedVersion int32, rev *domain.Revision) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE announcements
		 SET title = $2, body = $3, exam_date = $4, status = $5, version = $6, published_at = $7, updated_at = $8
		 WHERE id = $1 AND version = $9`,
		a.ID, a.Title, a.Body, timeToNullTime(a.ExamDate), string(a.Status), a.Version,
		timeToNullTime(a.PublishedAt), a.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrVersionConflict
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO announcement_revisions (id, announcement_id, version, title, body, exam_date, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rev.ID, rev.AnnouncementID, rev.Version, rev.Title, rev.Body, timeToNullTime(rev.ExamDate),
		string(rev.Status), rev.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateRevision persists an immutable snapshot.
func (r *PostgresRepository) CreateRevision(ctx context.Context, rev *domain.Revision) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO announcement_revisions (id, announcement_id, version, title, body, exam_date, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rev.ID, rev.AnnouncementID, rev.Version, rev.Title, rev.Body, timeToNullTime(rev.ExamDate),
		string(rev.Status), rev.CreatedAt,
	)
	return err
}

// ListRevisions returns all revisions of one announcement, newest version first.
func (r *PostgresRepository) ListRevisions(ctx context.Context, announcementID string) ([]*domain.Revision, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, announcement_id, version, title, body, exam_date, status, created_at
		 FROM announcement_revisions WHERE announcement_id = $1 ORDER BY version DESC`,
		announcementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

// GetRevision returns one revision by announcement and version, or nil if not found.
func (r *PostgresRepository) GetRevision(ctx context.Context, announcementID string, version int32) (*domain.Revision, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, announcement_id, version, title, body, exam_date, status, created_at
		 FROM announcement_revisions WHERE announcement_id = $1 AND version = $2`,
		announcementID, version)
	rev, err := scanRevision(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rev, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnnouncement(row rowScanner) (*domain.Announcement, error) {
	var a domain.Announcement
	var status string
	var examDate, publishedAt sql.NullTime
	err := row.Scan(&a.ID, &a.Title, &a.Body, &examDate, &status, &a.Version, &a.CreatedBy,
		&publishedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = domain.Status(status)
	a.ExamDate = nullTimeToPtr(examDate)
	a.PublishedAt = nullTimeToPtr(publishedAt)
	return &a, nil
}

func scanRevision(row rowScanner) (*domain.Revision, error) {
	var rev domain.Revision
	var status string
	var examDate sql.NullTime
	err := row.Scan(&rev.ID, &rev.AnnouncementID, &rev.Version, &rev.Title, &rev.Body, &examDate,
		&status, &rev.CreatedAt)
	if err != nil {
		return nil, err
	}
	rev.Status = domain.Status(status)
	rev.ExamDate = nullTimeToPtr(examDate)
	return &rev, nil
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
