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
	sessiondomain "exam-announce-admin/backend/internal/session/domain"
	userdomain "exam-announce-admin/backend/internal/user/domain"
)

type memUserRepo struct {
	mu          sync.Mutex
	users       map[string]*userdomain.User
	backupCodes map[string]string
	usedCodes   map[string]bool
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]*userdomain.User{}, backupCodes: map[string]string{}, usedCodes: map[string]bool{}}
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
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

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*sessiondomain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: map[string]*sessiondomain.Session{}}
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.m[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) Revoke(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok && s.RevokedAt == nil {
		now := time.Now().UTC()
		s.RevokedAt = &now
	}
	return nil
}

func (r *memSessionRepo) RevokeOthersByUser(ctx context.Context, userID, keepSessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for id, s := range r.m {
		if s.UserID == userID && id != keepSessionID && s.RevokedAt == nil {
			s.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok {
		s.LastActivityAt = &at
	}
	return nil
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

type recordingGrantRevoker struct {
	mu       sync.Mutex
	sessions []string
}

func (g *recordingGrantRevoker) RevokeSession(ctx context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions = append(g.sessions, sessionID)
	return nil
}

const testPassword = "CorrectHorse9!"

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newTestAuthService(t *testing.T) (*AuthService, *memUserRepo, *memSessionRepo, *memChallengeRepo, *recordingGrantRevoker) {
	t.Helper()
	users := newMemUserRepo()
	sessions := newMemSessionRepo()
	challenges := newMemChallengeRepo()
	grants := &recordingGrantRevoker{}
	svc := NewAuthService(users, sessions, challenges, grants, security.NewHasher(4), nil, nil, nil, time.Hour, 5*time.Minute)
	return svc, users, sessions, challenges, grants
}

func addUser(t *testing.T, users *memUserRepo, id, email string, twoFactor bool) {
	t.Helper()
	hash, err := security.NewHasher(4).Hash([]byte(testPassword))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	users.users[id] = &userdomain.User{
		ID:               id,
		Email:            email,
		Role:             userdomain.RoleEditor,
		PasswordHash:     hash,
		Phone:            "+15550001111",
		TwoFactorEnabled: twoFactor,
		Status:           userdomain.UserStatusActive,
	}
}

func TestLoginCreatesSessionWithCSRF(t *testing.T) {
	svc, users, _, _, _ := newTestAuthService(t)
	addUser(t, users, "u1", "editor@example.com", false)

	res, err := svc.Login(context.Background(), "Editor@Example.com", testPassword, "", "", "10.0.0.1", chromeUA)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.TwoFactorRequired {
		t.Fatal("unexpected two-factor requirement")
	}
	if res.Session == nil || res.Session.CSRFToken == "" {
		t.Fatal("expected session with CSRF token")
	}
	if res.Session.Browser != "chrome" || res.Session.OS != "windows" {
		t.Fatalf("user-agent not parsed: %+v", res.Session)
	}
	if res.Session.IPAddress != "10.0.0.1" {
		t.Fatalf("unexpected ip %q", res.Session.IPAddress)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, users, _, _, _ := newTestAuthService(t)
	addUser(t, users, "u1", "editor@example.com", false)

	_, err := svc.Login(context.Background(), "editor@example.com", "nope", "", "", "", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _, _, _, _ := newTestAuthService(t)
	_, err := svc.Login(context.Background(), "ghost@example.com", testPassword, "", "", "", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginTwoFactorChallengeFlow(t *testing.T) {
	svc, users, _, challenges, _ := newTestAuthService(t)
	addUser(t, users, "u1", "editor@example.com", true)

	res, err := svc.Login(context.Background(), "editor@example.com", testPassword, "", "", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.TwoFactorRequired || res.ChallengeID == "" {
		t.Fatalf("expected two-factor challenge, got %+v", res)
	}

	// Replace the stored hash with a known code, then complete the login.
	challenges.mu.Lock()
	challenges.m[res.ChallengeID].CodeHash = mfa.HashCode("123456")
	challenges.mu.Unlock()

	res2, err := svc.Login(context.Background(), "editor@example.com", testPassword, "123456", "", "", "")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if res2.TwoFactorRequired || res2.Session == nil {
		t.Fatalf("expected a session, got %+v", res2)
	}
}

func TestLoginWrongOTP(t *testing.T) {
	svc, users, _, challenges, _ := newTestAuthService(t)
	addUser(t, users, "u1", "editor@example.com", true)

	now := time.Now().UTC()
	challenges.m["ch1"] = &mfadomain.Challenge{
		ID: "ch1", UserID: "u1", CodeHash: mfa.HashCode("123456"),
		ExpiresAt: now.Add(5 * time.Minute), CreatedAt: now,
	}
	_, err := svc.Login(context.Background(), "editor@example.com", testPassword, "999999", "", "", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWithBackupCode(t *testing.T) {
	svc, users, _, _, _ := newTestAuthService(t)
	addUser(t, users, "u1", "editor@example.com", true)
	users.backupCodes["bc1"] = mfa.HashCode("aabbccddee")

	res, err := svc.Login(context.Background(), "editor@example.com", testPassword, "", "aabbccddee", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Session == nil {
		t.Fatal("expected a session")
	}
	_, err = svc.Login(context.Background(), "editor@example.com", testPassword, "", "aabbccddee", "", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials on backup code reuse, got %v", err)
	}
}

func TestValidateSession(t *testing.T) {
	svc, users, _, _, _ := newTestAuthService(t)
	addUser(t, users, "u1", "editor@example.com", false)

	res, err := svc.Login(context.Background(), "editor@example.com", testPassword, "", "", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	sess, user, err := svc.ValidateSession(context.Background(), res.Session.ID)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if sess.ID != res.Session.ID || user.ID != "u1" {
		t.Fatalf("unexpected result %+v %+v", sess, user)
	}
	if _, _, err := svc.ValidateSession(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestLogoutRevokesSessionAndGrants(t *testing.T) {
	svc, users, sessions, _, grants := newTestAuthService(t)
	addUser(t, users, "u1", "editor@example.com", false)

	res, err := svc.Login(context.Background(), "editor@example.com", testPassword, "", "", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(context.Background(), res.Session.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	stored, _ := sessions.GetByID(context.Background(), res.Session.ID)
	if stored.RevokedAt == nil {
		t.Fatal("session not revoked")
	}
	if len(grants.sessions) != 1 || grants.sessions[0] != res.Session.ID {
		t.Fatalf("step-up grants not dropped: %v", grants.sessions)
	}
	if _, _, err := svc.ValidateSession(context.Background(), res.Session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after logout, got %v", err)
	}
}
