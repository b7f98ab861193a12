package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"exam-announce-admin/backend/internal/mfa"
	mfadomain "exam-announce-admin/backend/internal/mfa/domain"
	"exam-announce-admin/backend/internal/security"
	stepupdomain "exam-announce-admin/backend/internal/stepup/domain"
	userdomain "exam-announce-admin/backend/internal/user/domain"
)

type memUserRepo struct {
	mu          sync.Mutex
	users       map[string]*userdomain.User
	backupCodes map[string]string // id -> hash
	usedCodes   map[string]bool
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		users:       map[string]*userdomain.User{},
		backupCodes: map[string]string{},
		usedCodes:   map[string]bool{},
	}
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}

func (r *memUserRepo) ListBackupCodeHashes(ctx context.Context, userID string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]string{}
	for id, hash := range r.backupCodes {
		if !r.usedCodes[id] {
			out[id] = hash
		}
	}
	return out, nil
}

func (r *memUserRepo) ConsumeBackupCode(ctx context.Context, codeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.usedCodes[codeID] {
		return false, nil
	}
	r.usedCodes[codeID] = true
	return true, nil
}

type memChallengeRepo struct {
	mu sync.Mutex
	m  map[string]*mfadomain.Challenge
}

func newMemChallengeRepo() *memChallengeRepo {
	return &memChallengeRepo{m: map[string]*mfadomain.Challenge{}}
}

func (r *memChallengeRepo) Create(ctx context.Context, c *mfadomain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.m[c.ID] = &cp
	return nil
}

func (r *memChallengeRepo) GetLatestByUser(ctx context.Context, userID string) (*mfadomain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *mfadomain.Challenge
	for _, c := range r.m {
		if c.UserID != userID {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	return latest, nil
}

func (r *memChallengeRepo) Consume(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[id]
	if !ok || c.ConsumedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	c.ConsumedAt = &now
	return true, nil
}

type memGrantRepo struct {
	mu sync.Mutex
	m  map[string]*stepupdomain.Grant
}

func newMemGrantRepo() *memGrantRepo {
	return &memGrantRepo{m: map[string]*stepupdomain.Grant{}}
}

func (r *memGrantRepo) Create(ctx context.Context, g *stepupdomain.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *g
	r.m[g.JTI] = &cp
	return nil
}

func (r *memGrantRepo) GetByJTI(ctx context.Context, jti string) (*stepupdomain.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[jti], nil
}

func (r *memGrantRepo) ConsumeSingleUse(ctx context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.m[jti]
	if !ok || g.UsedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	g.UsedAt = &now
	return true, nil
}

func (r *memGrantRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for jti, g := range r.m {
		if g.SessionID == sessionID {
			delete(r.m, jti)
		}
	}
	return nil
}

const testPassword = "CorrectHorse9!"

func newTestService(t *testing.T, singleUse bool) (*Service, *memUserRepo, *memChallengeRepo, *memGrantRepo) {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	users := newMemUserRepo()
	challenges := newMemChallengeRepo()
	grants := newMemGrantRepo()
	hasher := security.NewHasher(4)
	svc := NewService(users, challenges, grants, hasher, tokens, nil, nil, 5*time.Minute, singleUse)
	return svc, users, challenges, grants
}

func addUser(t *testing.T, users *memUserRepo, id string, twoFactor bool) {
	t.Helper()
	hash, err := security.NewHasher(4).Hash([]byte(testPassword))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	users.users[id] = &userdomain.User{
		ID:               id,
		Email:            id + "@example.com",
		Role:             userdomain.RoleEditor,
		PasswordHash:     hash,
		Phone:            "+15550001111",
		TwoFactorEnabled: twoFactor,
		Status:           userdomain.UserStatusActive,
	}
}

func TestIssueAndVerify(t *testing.T) {
	svc, users, _, _ := newTestService(t, false)
	addUser(t, users, "u1", false)

	res, err := svc.Issue(context.Background(), "u1", "s1", testPassword, "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected a token")
	}
	if err := svc.Verify(context.Background(), "u1", "s1", res.Token); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	// Multi-use tokens survive repeated verification within the TTL.
	if err := svc.Verify(context.Background(), "u1", "s1", res.Token); err != nil {
		t.Fatalf("second Verify: %v", err)
	}
}

func TestIssueWrongPassword(t *testing.T) {
	svc, users, _, _ := newTestService(t, false)
	addUser(t, users, "u1", false)

	_, err := svc.Issue(context.Background(), "u1", "s1", "wrong-password", "", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestIssueCodeWithoutEnrollment(t *testing.T) {
	svc, users, _, _ := newTestService(t, false)
	addUser(t, users, "u1", false)

	_, err := svc.Issue(context.Background(), "u1", "s1", testPassword, "123456", "")
	if !errors.Is(err, ErrNotEnrolledMismatch) {
		t.Fatalf("expected ErrNotEnrolledMismatch for OTP code, got %v", err)
	}
	_, err = svc.Issue(context.Background(), "u1", "s1", testPassword, "", "BACKUP-CODE")
	if !errors.Is(err, ErrNotEnrolledMismatch) {
		t.Fatalf("expected ErrNotEnrolledMismatch for backup code, got %v", err)
	}
}

func TestIssueRequiresSecondFactor(t *testing.T) {
	svc, users, _, _ := newTestService(t, false)
	addUser(t, users, "u1", true)

	_, err := svc.Issue(context.Background(), "u1", "s1", testPassword, "", "")
	if !errors.Is(err, ErrTwoFactorRequired) {
		t.Fatalf("expected ErrTwoFactorRequired, got %v", err)
	}
}

func TestIssueWithOTP(t *testing.T) {
	svc, users, challenges, _ := newTestService(t, false)
	addUser(t, users, "u1", true)

	now := time.Now().UTC()
	challenges.m["ch1"] = &mfadomain.Challenge{
		ID:        "ch1",
		UserID:    "u1",
		Phone:     "+15550001111",
		CodeHash:  mfa.HashCode("123456"),
		ExpiresAt: now.Add(5 * time.Minute),
		CreatedAt: now,
	}
	res, err := svc.Issue(context.Background(), "u1", "s1", testPassword, "123456", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected a token")
	}
	// Challenge is consumed; replaying the code fails.
	_, err = svc.Issue(context.Background(), "u1", "s1", testPassword, "123456", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials on code replay, got %v", err)
	}
}

func TestIssueWithWrongOTP(t *testing.T) {
	svc, users, challenges, _ := newTestService(t, false)
	addUser(t, users, "u1", true)

	now := time.Now().UTC()
	challenges.m["ch1"] = &mfadomain.Challenge{
		ID:        "ch1",
		UserID:    "u1",
		CodeHash:  mfa.HashCode("123456"),
		ExpiresAt: now.Add(5 * time.Minute),
		CreatedAt: now,
	}
	_, err := svc.Issue(context.Background(), "u1", "s1", testPassword, "654321", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestIssueWithBackupCode(t *testing.T) {
	svc, users, _, _ := newTestService(t, false)
	addUser(t, users, "u1", true)
	users.backupCodes["bc1"] = mfa.HashCode("aabbccddee")

	res, err := svc.Issue(context.Background(), "u1", "s1", testPassword, "", "aabbccddee")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected a token")
	}
	// Backup codes are single use.
	_, err = svc.Issue(context.Background(), "u1", "s1", testPassword, "", "aabbccddee")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials on reuse, got %v", err)
	}
}

func TestVerifyMissingToken(t *testing.T) {
	svc, _, _, _ := newTestService(t, false)
	err := svc.Verify(context.Background(), "u1", "s1", "")
	if !errors.Is(err, ErrStepUpRequired) {
		t.Fatalf("expected ErrStepUpRequired, got %v", err)
	}
}

func TestVerifyGarbageToken(t *testing.T) {
	svc, _, _, _ := newTestService(t, false)
	err := svc.Verify(context.Background(), "u1", "s1", "not-a-jwt")
	if !errors.Is(err, ErrStepUpRequired) {
		t.Fatalf("expected ErrStepUpRequired, got %v", err)
	}
}

func TestVerifyWrongSession(t *testing.T) {
	svc, users, _, _ := newTestService(t, false)
	addUser(t, users, "u1", false)

	res, err := svc.Issue(context.Background(), "u1", "s1", testPassword, "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	err = svc.Verify(context.Background(), "u1", "other-session", res.Token)
	if !errors.Is(err, ErrStepUpRequired) {
		t.Fatalf("expected ErrStepUpRequired for foreign session, got %v", err)
	}
}

func TestVerifyWrongUser(t *testing.T) {
	svc, users, _, _ := newTestService(t, false)
	addUser(t, users, "u1", false)

	res, err := svc.Issue(context.Background(), "u1", "s1", testPassword, "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	err = svc.Verify(context.Background(), "u2", "s1", res.Token)
	if !errors.Is(err, ErrStepUpRequired) {
		t.Fatalf("expected ErrStepUpRequired for other user, got %v", err)
	}
}

func TestVerifySingleUse(t *testing.T) {
	svc, users, _, _ := newTestService(t, true)
	addUser(t, users, "u1", false)

	res, err := svc.Issue(context.Background(), "u1", "s1", testPassword, "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.Verify(context.Background(), "u1", "s1", res.Token); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	err = svc.Verify(context.Background(), "u1", "s1", res.Token)
	if !errors.Is(err, ErrStepUpRequired) {
		t.Fatalf("expected ErrStepUpRequired on second use, got %v", err)
	}
}

func TestVerifyAfterSessionRevoked(t *testing.T) {
	svc, users, _, _ := newTestService(t, false)
	addUser(t, users, "u1", false)

	res, err := svc.Issue(context.Background(), "u1", "s1", testPassword, "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.RevokeSession(context.Background(), "s1"); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	err = svc.Verify(context.Background(), "u1", "s1", res.Token)
	if !errors.Is(err, ErrStepUpRequired) {
		t.Fatalf("expected ErrStepUpRequired after revocation, got %v", err)
	}
}

func TestRequestChallengeNoSecondFactor(t *testing.T) {
	svc, users, _, _ := newTestService(t, false)
	addUser(t, users, "u1", false)

	id, err := svc.RequestChallenge(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RequestChallenge: %v", err)
	}
	if id != "" {
		t.Fatalf("expected no challenge for user without 2FA, got %q", id)
	}
}

func TestRequestChallengeCreatesChallenge(t *testing.T) {
	svc, users, challenges, _ := newTestService(t, false)
	addUser(t, users, "u1", true)

	id, err := svc.RequestChallenge(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RequestChallenge: %v", err)
	}
	if id == "" {
		t.Fatal("expected a challenge id")
	}
	ch := challenges.m[id]
	if ch == nil {
		t.Fatal("challenge not persisted")
	}
	if ch.CodeHash == "" || ch.UserID != "u1" {
		t.Fatalf("unexpected challenge %+v", ch)
	}
}
