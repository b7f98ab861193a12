package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"exam-announce-admin/backend/internal/approval/domain"
)

// uniqueViolation is the Postgres error code raised by the partial unique
// index on (target_id, action_class) WHERE status = 'pending'.
const uniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an approval request repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const approvalColumns = `id, action, action_class, target_id, requester_user_id, reviewer_user_id,
	status, payload, note, decision_note, created_at, decided_at, executed_at`

// Create inserts a pending request. The partial unique index makes the
// one-pending-per-target invariant atomic: of two concurrent inserts exactly
// one succeeds and the other surfaces domain.ErrDuplicatePending.
func (r *PostgresRepository) Create(ctx context.Context, req *domain.Request) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO approval_requests
		 (id, action, action_class, target_id, requester_user_id, reviewer_user_id, status, payload, note, decision_note, created_at, decided_at, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		req.ID, req.Action, req.ActionClass, req.TargetID, req.RequesterUserID, nullStr(req.ReviewerUserID),
		string(req.Status), req.Payload, nullStr(req.Note), nullStr(req.DecisionNote),
		req.CreatedAt, timeToNullTime(req.DecidedAt), timeToNullTime(req.ExecutedAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicatePending
		}
		return err
	}
	return nil
}

// GetByID returns the request for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// List returns requests newest first, optionally filtered by status.
func (r *PostgresRepository) List(ctx context.Context, status domain.Status, limit, offset int32) ([]*domain.Request, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+approvalColumns+` FROM approval_requests ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+approvalColumns+` FROM approval_requests WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			string(status), limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Decide moves the request from pending to outcome. The WHERE status clause is
// the compare-and-swap: a request already decided, expired, or executed is left
// untouched and Decide returns false.
func (r *PostgresRepository) Decide(ctx context.Context, id, reviewerID string, outcome domain.Status, note string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE approval_requests
		 SET status = $2, reviewer_user_id = $3, decision_note = $4, decided_at = $5
		 WHERE id = $1 AND status = 'pending'`,
		id, string(outcome), reviewerID, nullStr(note), at)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// MarkExecuted moves the request from approved to executed.
func (r *PostgresRepository) MarkExecuted(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE approval_requests SET status = 'executed', executed_at = $2
		 WHERE id = $1 AND status = 'approved'`,
		id, at)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// Expire moves the request from pending to expired.
func (r *PostgresRepository) Expire(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE approval_requests SET status = 'expired', decided_at = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, at)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// ExpireOlderThan expires every pending request created before cutoff.
func (r *PostgresRepository) ExpireOlderThan(ctx context.Context, cutoff, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE approval_requests SET status = 'expired', decided_at = $2
		 WHERE status = 'pending' AND created_at < $1`,
		cutoff, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func oneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*domain.Request, error) {
	var req domain.Request
	var reviewer, note, decisionNote sql.NullString
	var status string
	var decidedAt, executedAt sql.NullTime
	err := row.Scan(&req.ID, &req.Action, &req.ActionClass, &req.TargetID, &req.RequesterUserID, &reviewer,
		&status, &req.Payload, &note, &decisionNote, &req.CreatedAt, &decidedAt, &executedAt)
	if err != nil {
		return nil, err
	}
	req.ReviewerUserID = reviewer.String
	req.Status = domain.Status(status)
	req.Note = note.String
	req.DecisionNote = decisionNote.String
	req.DecidedAt = nullTimeToPtr(decidedAt)
	req.ExecutedAt = nullTimeToPtr(executedAt)
	return &req, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
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
