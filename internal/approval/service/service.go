package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"exam-announce-admin/backend/internal/approval/domain"
	approvalrepo "exam-announce-admin/backend/internal/approval/repository"
	"exam-announce-admin/backend/internal/audit"
	auditdomain "exam-announce-admin/backend/internal/audit/domain"
)

// Service is the approval ledger. It owns every status transition of an
// approval request; no other component may move a request between statuses.
type Service struct {
	repo    approvalrepo.Repository
	auditor audit.AuditLogger
	ttl     time.Duration
	now     func() time.Time
}

// NewService returns the ledger with the given dependencies. ttl <= 0 falls
// back to 24 hours. auditor may be nil.
func NewService(repo approvalrepo.Repository, auditor audit.AuditLogger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{repo: repo, auditor: auditor, ttl: ttl, now: time.Now}
}

// CreatePending opens a new workflow instance for the action on the target.
// Returns domain.ErrDuplicatePending when a pending request already covers the
// same (target, action class); terminal requests never block a fresh one.
func (s *Service) CreatePending(ctx context.Context, action, targetID, requesterID, payload, note string) (*domain.Request, error) {
	req := &domain.Request{
		ID:              uuid.New().String(),
		Action:          action,
		ActionClass:     domain.ClassForAction(action),
		TargetID:        targetID,
		RequesterUserID: requesterID,
		Status:          domain.StatusPending,
		Payload:         payload,
		Note:            note,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}
	s.audit(ctx, requesterID, "create_approval", targetID, note, auditdomain.Metadata{ApprovalID: req.ID})
	return req, nil
}

// Get returns the request by id, expiring it first if its TTL has lapsed.
// Returns domain.ErrNotFound when no such request exists.
func (s *Service) Get(ctx context.Context, id string) (*domain.Request, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, domain.ErrNotFound
	}
	return s.expireLazily(ctx, req)
}

// List returns requests newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status domain.Status, limit, offset int32) ([]*domain.Request, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, status, limit, offset)
}

// Decide records a reviewer's approve or reject of a pending request.
// Fails with domain.ErrSelfApproval when the reviewer is the requester and
// with InvalidStatusError when the request is no longer pending, including
// when it expired before the reviewer got to it.
func (s *Service) Decide(ctx context.Context, id, reviewerID string, approve bool, note string) (*domain.Request, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterUserID == reviewerID {
		return nil, domain.ErrSelfApproval
	}
	if req.Status != domain.StatusPending {
		return nil, &domain.InvalidStatusError{Status: req.Status}
	}
	outcome := domain.StatusRejected
	action := "reject_approval"
	if approve {
		outcome = domain.StatusApproved
		action = "approve_approval"
	}
	at := s.now().UTC()
	ok, err := s.repo.Decide(ctx, id, reviewerID, outcome, note, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with a concurrent decision or expiry.
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.InvalidStatusError{Status: current.Status}
	}
	req.Status = outcome
	req.ReviewerUserID = reviewerID
	req.DecisionNote = note
	req.DecidedAt = &at
	s.audit(ctx, reviewerID, action, req.TargetID, note, auditdomain.Metadata{ApprovalID: req.ID, Outcome: string(outcome)})
	return req, nil
}

// ClaimExecution transitions an approved request to executed on behalf of the
// original requester. Exactly one concurrent caller wins the claim and must
// then apply the stored payload; every other caller, and every later replay,
// gets the request back with alreadyExecuted set and must not re-apply.
func (s *Service) ClaimExecution(ctx context.Context, id, requesterID, targetID string) (req *domain.Request, alreadyExecuted bool, err error) {
	req, err = s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if targetID != "" && req.TargetID != targetID {
		return nil, false, domain.ErrTargetMismatch
	}
	if req.RequesterUserID != requesterID {
		return nil, false, domain.ErrNotRequester
	}
	switch req.Status {
	case domain.StatusExecuted:
		return req, true, nil
	case domain.StatusApproved:
	default:
		return nil, false, &domain.InvalidStatusError{Status: req.Status}
	}
	at := s.now().UTC()
	ok, err := s.repo.MarkExecuted(ctx, id, at)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if current != nil && current.Status == domain.StatusExecuted {
			return current, true, nil
		}
		if current == nil {
			return nil, false, domain.ErrNotFound
		}
		return nil, false, &domain.InvalidStatusError{Status: current.Status}
	}
	req.Status = domain.StatusExecuted
	req.ExecutedAt = &at
	return req, false, nil
}

// SweepExpired expires every pending request past the TTL and returns how many
// were swept. Lazy expiry at read time already keeps the ledger correct; the
// sweep only tidies rows nobody is reading.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	at := s.now().UTC()
	return s.repo.ExpireOlderThan(ctx, at.Add(-s.ttl), at)
}

// RunSweeper runs SweepExpired every interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				log.Printf("approval: expiry sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("approval: expired %d stale request(s)", n)
			}
		}
	}
}

// expireLazily checks the request's TTL and, when lapsed, transitions it to
// expired before returning it. The caller then observes the expired status as
// though nothing else ever existed.
func (s *Service) expireLazily(ctx context.Context, req *domain.Request) (*domain.Request, error) {
	now := s.now().UTC()
	if !req.ExpiredBy(now, s.ttl) {
		return req, nil
	}
	if _, err := s.repo.Expire(ctx, req.ID, now); err != nil {
		return nil, err
	}
	current, err := s.repo.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	return current, nil
}

func (s *Service) audit(ctx context.Context, userID, action, targetID, note string, meta auditdomain.Metadata) {
	if s.auditor == nil {
		return
	}
	s.auditor.Log(ctx, audit.Entry{
		UserID:         userID,
		Action:         action,
		AnnouncementID: targetID,
		Note:           note,
		Metadata:       meta,
	})
}
