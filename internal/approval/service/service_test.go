package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"exam-announce-admin/backend/internal/approval/domain"
)

type memApprovalRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Request
}

func newMemApprovalRepo() *memApprovalRepo {
	return &memApprovalRepo{m: map[string]*domain.Request{}}
}

func (r *memApprovalRepo) Create(ctx context.Context, req *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.m {
		if existing.Status == domain.StatusPending &&
			existing.TargetID == req.TargetID &&
			existing.ActionClass == req.ActionClass {
			return domain.ErrDuplicatePending
		}
	}
	cp := *req
	r.m[req.ID] = &cp
	return nil
}

func (r *memApprovalRepo) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (r *memApprovalRepo) List(ctx context.Context, status domain.Status, limit, offset int32) ([]*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Request
	for _, req := range r.m {
		if status == "" || req.Status == status {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memApprovalRepo) Decide(ctx context.Context, id, reviewerID string, outcome domain.Status, note string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.m[id]
	if !ok || req.Status != domain.StatusPending {
		return false, nil
	}
	req.Status = outcome
	req.ReviewerUserID = reviewerID
	req.DecisionNote = note
	req.DecidedAt = &at
	return true, nil
}

func (r *memApprovalRepo) MarkExecuted(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.m[id]
	if !ok || req.Status != domain.StatusApproved {
		return false, nil
	}
	req.Status = domain.StatusExecuted
	req.ExecutedAt = &at
	return true, nil
}

func (r *memApprovalRepo) Expire(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.m[id]
	if !ok || req.Status != domain.StatusPending {
		return false, nil
	}
	req.Status = domain.StatusExpired
	req.DecidedAt = &at
	return true, nil
}

func (r *memApprovalRepo) ExpireOlderThan(ctx context.Context, cutoff, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, req := range r.m {
		if req.Status == domain.StatusPending && req.CreatedAt.Before(cutoff) {
			req.Status = domain.StatusExpired
			req.DecidedAt = &at
			n++
		}
	}
	return n, nil
}

func newTestService() (*Service, *memApprovalRepo) {
	repo := newMemApprovalRepo()
	return NewService(repo, nil, 24*time.Hour), repo
}

func TestCreatePendingDuplicateConflicts(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.CreatePending(ctx, domain.ActionCreatePublish, "ann-1", "u1", `{"status":"published"}`, "")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if first.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", first.Status)
	}
	// A different action in the same class is still blocked.
	_, err = svc.CreatePending(ctx, domain.ActionUpdateToPublished, "ann-1", "u2", `{}`, "")
	if !errors.Is(err, domain.ErrDuplicatePending) {
		t.Fatalf("expected ErrDuplicatePending, got %v", err)
	}
	// A different target is unaffected.
	if _, err := svc.CreatePending(ctx, domain.ActionCreatePublish, "ann-2", "u1", `{}`, ""); err != nil {
		t.Fatalf("CreatePending other target: %v", err)
	}
}

func TestTerminalRequestDoesNotBlockNewPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.CreatePending(ctx, domain.ActionCreatePublish, "ann-1", "u1", `{}`, "")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if _, err := svc.Decide(ctx, first.ID, "u2", false, "not yet"); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if _, err := svc.CreatePending(ctx, domain.ActionCreatePublish, "ann-1", "u1", `{}`, ""); err != nil {
		t.Fatalf("expected rejected request not to block a fresh one: %v", err)
	}
}

func TestDecideSelfApprovalForbidden(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req, err := svc.CreatePending(ctx, domain.ActionCreatePublish, "ann-1", "u1", `{}`, "")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	_, err = svc.Decide(ctx, req.ID, "u1", true, "")
	if !errors.Is(err, domain.ErrSelfApproval) {
		t.Fatalf("expected ErrSelfApproval, got %v", err)
	}
}

func TestDecideApproveThenDoubleDecide(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req, err := svc.CreatePending(ctx, domain.ActionCreatePublish, "ann-1", "u1", `{}`, "")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	decided, err := svc.Decide(ctx, req.ID, "u2", true, "looks right")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decided.Status != domain.StatusApproved || decided.ReviewerUserID != "u2" || decided.DecidedAt == nil {
		t.Fatalf("unexpected decision %+v", decided)
	}
	_, err = svc.Decide(ctx, req.ID, "u3", false, "")
	var ise *domain.InvalidStatusError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStatusError, got %v", err)
	}
	if ise.Reason() != "invalid_status:approved" {
		t.Fatalf("unexpected reason %q", ise.Reason())
	}
}

func TestDecideUnknownRequest(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Decide(context.Background(), "missing", "u2", true, "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecideAfterExpiry(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req, err := svc.CreatePending(ctx, domain.ActionCreatePublish, "ann-1", "u1", `{}`, "")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	_, err = svc.Decide(ctx, req.ID, "u2", true, "")
	var ise *domain.InvalidStatusError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStatusError, got %v", err)
	}
	if ise.Reason() != "invalid_status:expired" {
		t.Fatalf("unexpected reason %q", ise.Reason())
	}
}

func TestClaimExecutionHappyPathAndReplay(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req, err := svc.CreatePending(ctx, domain.ActionCreatePublish, "ann-1", "u1", `{}`, "")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if _, err := svc.Decide(ctx, req.ID, "u2", true, ""); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	claimed, already, err := svc.ClaimExecution(ctx, req.ID, "u1", "ann-1")
	if err != nil {
		t.Fatalf("ClaimExecution: %v", err)
	}
	if already {
		t.Fatal("first claim reported alreadyExecuted")
	}
	if claimed.Status != domain.StatusExecuted || claimed.ExecutedAt == nil {
		t.Fatalf("unexpected claim result %+v", claimed)
	}
	replayed, already, err := svc.ClaimExecution(ctx, req.ID, "u1", "ann-1")
	if err != nil {
		t.Fatalf("replay ClaimExecution: %v", err)
	}
	if !already {
		t.Fatal("replay did not report alreadyExecuted")
	}
	if replayed.Status != domain.StatusExecuted {
		t.Fatalf("unexpected replay status %s", replayed.Status)
	}
}

func TestClaimExecutionWhilePending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req, err := svc.CreatePending(ctx, domain.ActionCreatePublish, "ann-1", "u1", `{}`, "")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	_, _, err = svc.ClaimExecution(ctx, req.ID, "u1", "ann-1")
	var ise *domain.InvalidStatusError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStatusError, got %v", err)
	}
	if ise.Reason() != "invalid_status:pending" {
		t.Fatalf("unexpected reason %q", ise.Reason())
	}
}

func TestClaimExecutionGuards(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req, err := svc.CreatePending(ctx, domain.ActionCreatePublish, "ann-1", "u1", `{}`, "")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if _, err := svc.Decide(ctx, req.ID, "u2", true, ""); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if _, _, err := svc.ClaimExecution(ctx, req.ID, "u3", "ann-1"); !errors.Is(err, domain.ErrNotRequester) {
		t.Fatalf("expected ErrNotRequester, got %v", err)
	}
	if _, _, err := svc.ClaimExecution(ctx, req.ID, "u1", "ann-9"); !errors.Is(err, domain.ErrTargetMismatch) {
		t.Fatalf("expected ErrTargetMismatch, got %v", err)
	}
	if _, _, err := svc.ClaimExecution(ctx, "missing", "u1", "ann-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimExecutionConcurrentSingleWinner(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req, err := svc.CreatePending(ctx, domain.ActionCreatePublish, "ann-1", "u1", `{}`, "")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if _, err := svc.Decide(ctx, req.ID, "u2", true, ""); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, already, err := svc.ClaimExecution(ctx, req.ID, "u1", "ann-1")
			if err != nil {
				t.Errorf("ClaimExecution: %v", err)
				return
			}
			wins <- !already
		}()
	}
	wg.Wait()
	close(wins)
	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one execution winner, got %d", winners)
	}
}

func TestSweepExpired(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	req, err := svc.CreatePending(ctx, domain.ActionCreatePublish, "ann-1", "u1", `{}`, "")
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	n, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	swept, _ := repo.GetByID(ctx, req.ID)
	if swept.Status != domain.StatusExpired {
		t.Fatalf("expected expired, got %s", swept.Status)
	}
}
