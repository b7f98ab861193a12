package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"exam-announce-admin/backend/internal/announcement/domain"
	announcementrepo "exam-announce-admin/backend/internal/announcement/repository"
)

// Service owns announcement content. It applies mutations atomically with a
// version bump and a revision snapshot; whether a mutation may run at all is
// the policy gate's decision, made before the service is called.
type Service struct {
	repo announcementrepo.Repository
	now  func() time.Time
}

// NewService returns an announcement Service backed by repo.
func NewService(repo announcementrepo.Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns the announcement by id. Returns domain.ErrNotFound when missing.
func (s *Service) Get(ctx context.Context, id string) (*domain.Announcement, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

// List returns announcements newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status domain.Status, limit, offset int32) ([]*domain.Announcement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, status, limit, offset)
}

// ListRevisions returns the revision history of one announcement, newest first.
func (s *Service) ListRevisions(ctx context.Context, id string) ([]*domain.Revision, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListRevisions(ctx, id)
}

// Create makes a new announcement from the mutation and snapshots revision 1.
// The caller decides whether the mutation's status was allowed to take effect.
func (s *Service) Create(ctx context.Context, createdBy string, m domain.Mutation) (*domain.Announcement, error) {
	return s.CreateWithID(ctx, uuid.New().String(), createdBy, m)
}

// CreateWithID creates under a caller-chosen id. Used when the id was minted
// at queue time so an approved create lands on the id the approval recorded.
func (s *Service) CreateWithID(ctx context.Context, id, createdBy string, m domain.Mutation) (*domain.Announcement, error) {
	if id == "" {
		id = uuid.New().String()
	}
	now := s.now().UTC()
	a := &domain.Announcement{
		ID:        id,
		Status:    domain.StatusDraft,
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	a.Apply(m, now)
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	if err := s.repo.CreateRevision(ctx, a.Snapshot(uuid.New().String(), now)); err != nil {
		return nil, err
	}
	return a, nil
}

// ApplyMutation applies the mutation to an existing announcement, bumps its
// version, and snapshots the new revision. The write is guarded by the version
// read; a concurrent writer triggers a re-read and retry so neither mutation
// is lost.
func (s *Service) ApplyMutation(ctx context.Context, id string, m domain.Mutation) (*domain.Announcement, error) {
	for attempt := 0; attempt < 3; attempt++ {
		a, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := a.Version
		now := s.now().UTC()
		a.Apply(m, now)
		err = s.repo.UpdateWithRevision(ctx, a, expected, a.Snapshot(uuid.New().String(), now))
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, domain.ErrVersionConflict
}

// RollbackMutation builds the mutation that restores the announcement to the
// given revision. Returns domain.ErrRevisionNotFound when no such version exists.
// The returned mutation still goes through the policy gate like any other.
func (s *Service) RollbackMutation(ctx context.Context, id string, version int32) (domain.Mutation, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return domain.Mutation{}, err
	}
	rev, err := s.repo.GetRevision(ctx, id, version)
	if err != nil {
		return domain.Mutation{}, err
	}
	if rev == nil {
		return domain.Mutation{}, domain.ErrRevisionNotFound
	}
	title := rev.Title
	body := rev.Body
	status := rev.Status
	m := domain.Mutation{Title: &title, Body: &body, Status: &status}
	if rev.ExamDate != nil {
		examDate := *rev.ExamDate
		m.ExamDate = &examDate
	}
	return m, nil
}
