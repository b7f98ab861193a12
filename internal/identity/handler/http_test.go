package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	identityservice "exam-announce-admin/backend/internal/identity/service"
	mfadomain "exam-announce-admin/backend/internal/mfa/domain"
	"exam-announce-admin/backend/internal/security"
	"exam-announce-admin/backend/internal/server/middleware"
	sessiondomain "exam-announce-admin/backend/internal/session/domain"
	stepupdomain "exam-announce-admin/backend/internal/stepup/domain"
	stepupservice "exam-announce-admin/backend/internal/stepup/service"
	userdomain "exam-announce-admin/backend/internal/user/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testPassword = "CorrectHorse9!"

type memUsers struct {
	mu    sync.Mutex
	users map[string]*userdomain.User
}

func (r *memUsers) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}

func (r *memUsers) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUsers) ListBackupCodeHashes(ctx context.Context, userID string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (r *memUsers) ConsumeBackupCode(ctx context.Context, codeID string) (bool, error) {
	return false, nil
}

type memSessions struct {
	mu sync.Mutex
	m  map[string]*sessiondomain.Session
}

func (r *memSessions) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessions) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.m[s.ID] = &cp
	return nil
}

func (r *memSessions) Revoke(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok && s.RevokedAt == nil {
		now := time.Now().UTC()
		s.RevokedAt = &now
	}
	return nil
}

func (r *memSessions) RevokeOthersByUser(ctx context.Context, userID, keepSessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for _, s := range r.m {
		if s.UserID == userID && s.ID != keepSessionID && s.RevokedAt == nil {
			s.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (r *memSessions) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok {
		s.LastActivityAt = &at
	}
	return nil
}

type memChallenges struct {
	mu sync.Mutex
	m  map[string]*mfadomain.Challenge
}

func (r *memChallenges) Create(ctx context.Context, c *mfadomain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.m[c.ID] = &cp
	return nil
}

func (r *memChallenges) GetLatestByUser(ctx context.Context, userID string) (*mfadomain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *mfadomain.Challenge
	for _, c := range r.m {
		if c.UserID == userID && (latest == nil || c.CreatedAt.After(latest.CreatedAt)) {
			latest = c
		}
	}
	return latest, nil
}

func (r *memChallenges) Consume(ctx context.Context, id string) (bool, error) {
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

type memGrants struct {
	mu sync.Mutex
	m  map[string]*stepupdomain.Grant
}

func (r *memGrants) Create(ctx context.Context, g *stepupdomain.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *g
	r.m[g.JTI] = &cp
	return nil
}

func (r *memGrants) GetByJTI(ctx context.Context, jti string) (*stepupdomain.Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.m[jti]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (r *memGrants) ConsumeSingleUse(ctx context.Context, jti string) (bool, error) {
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

func (r *memGrants) DeleteBySession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for jti, g := range r.m {
		if g.SessionID == sessionID {
			delete(r.m, jti)
		}
	}
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *stepupservice.Service) {
	t.Helper()
	hasher := security.NewHasher(4)
	hash, err := hasher.Hash([]byte(testPassword))
	if err != nil {
		t.Fatal(err)
	}
	users := &memUsers{users: map[string]*userdomain.User{
		"u1": {ID: "u1", Email: "editor@example.com", Name: "Editor", Role: userdomain.RoleEditor, PasswordHash: hash, Status: userdomain.UserStatusActive},
		"u2": {ID: "u2", Email: "reviewer@example.com", Name: "Reviewer", Role: userdomain.RoleReviewer, PasswordHash: hash, Phone: "+15550001111", TwoFactorEnabled: true, Status: userdomain.UserStatusActive},
	}}
	sessions := &memSessions{m: map[string]*sessiondomain.Session{}}
	challenges := &memChallenges{m: map[string]*mfadomain.Challenge{}}
	grants := &memGrants{m: map[string]*stepupdomain.Grant{}}

	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatal(err)
	}
	stepupSvc := stepupservice.NewService(users, challenges, grants, hasher, tokens, nil, nil, 0, false)
	authSvc := identityservice.NewAuthService(users, sessions, challenges, stepupSvc, hasher, nil, nil, nil, time.Hour, 0)

	h := NewHandler(authSvc, stepupSvc, false, time.Hour)
	router := gin.New()
	router.POST("/auth/login", h.Login)
	authed := router.Group("/", middleware.SessionAuth(authSvc), middleware.CSRFGuard())
	authed.POST("/auth/logout", h.Logout)
	authed.POST("/auth/admin/step-up", h.StepUp)
	return router, stepupSvc
}

func doLogin(t *testing.T, router *gin.Engine) (sessionCookie, csrfToken string) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"editor@example.com","password":"`+testPassword+`"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case middleware.SessionCookieName:
			sessionCookie = c.Value
			if !c.HttpOnly {
				t.Error("session cookie must be HttpOnly")
			}
		case middleware.CSRFCookieName:
			csrfToken = c.Value
			if c.HttpOnly {
				t.Error("CSRF cookie must be readable by the frontend")
			}
		}
	}
	if sessionCookie == "" || csrfToken == "" {
		t.Fatal("login did not set both cookies")
	}
	return sessionCookie, csrfToken
}

func TestLogin_SetsCookies(t *testing.T) {
	router, _ := newTestRouter(t)
	doLogin(t, router)
}

func TestLogin_WrongPassword(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"editor@example.com","password":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_credentials") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStepUp_IssuesVerifiableToken(t *testing.T) {
	router, stepupSvc := newTestRouter(t)
	sessionID, csrf := doLogin(t, router)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/admin/step-up", strings.NewReader(`{"password":"`+testPassword+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.CSRFHeaderName, csrf)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Data.Token == "" {
		t.Fatalf("no token in %s", rec.Body.String())
	}
	if err := stepupSvc.Verify(context.Background(), "u1", sessionID, body.Data.Token); err != nil {
		t.Errorf("issued token does not verify: %v", err)
	}
}

func TestLogin_TwoFactorPending(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"reviewer@example.com","password":"`+testPassword+`"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body struct {
		Error       string `json:"error"`
		ChallengeID string `json:"challengeId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "two_factor_required" || body.ChallengeID == "" {
		t.Errorf("body = %s", rec.Body.String())
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("no cookies may be set before the second factor")
	}
}

func TestStepUp_CodeWithoutEnrollment(t *testing.T) {
	router, _ := newTestRouter(t)
	sessionID, csrf := doLogin(t, router)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/admin/step-up", strings.NewReader(`{"password":"`+testPassword+`","code":"123456"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.CSRFHeaderName, csrf)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not_enrolled_mismatch") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStepUp_MissingCSRF(t *testing.T) {
	router, _ := newTestRouter(t)
	sessionID, _ := doLogin(t, router)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/admin/step-up", strings.NewReader(`{"password":"`+testPassword+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "csrf_invalid") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestLogout_InvalidatesSession(t *testing.T) {
	router, _ := newTestRouter(t)
	sessionID, csrf := doLogin(t, router)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set(middleware.CSRFHeaderName, csrf)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set(middleware.CSRFHeaderName, csrf)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked session: status = %d, want 401", rec.Code)
	}
}
