package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"exam-announce-admin/backend/internal/audit"
	"exam-announce-admin/backend/internal/mfa"
	mfadomain "exam-announce-admin/backend/internal/mfa/domain"
	"exam-announce-admin/backend/internal/security"
	sessiondomain "exam-announce-admin/backend/internal/session/domain"
	userdomain "exam-announce-admin/backend/internal/user/domain"
)

// Sentinel errors for the auth service; the handler maps them to HTTP codes.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found or inactive")
)

// LoginResult is the outcome of Login. When TwoFactorRequired is set the
// session fields are empty and the caller must retry with a code.
type LoginResult struct {
	TwoFactorRequired bool
	ChallengeID       string
	Session           *sessiondomain.Session
	User              *userdomain.User
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	ListBackupCodeHashes(ctx context.Context, userID string) (map[string]string, error)
	ConsumeBackupCode(ctx context.Context, codeID string) (bool, error)
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	Revoke(ctx context.Context, id string) error
	RevokeOthersByUser(ctx context.Context, userID, keepSessionID string) (int64, error)
	UpdateLastActivity(ctx context.Context, id string, at time.Time) error
}

// ChallengeRepo is the minimal OTP challenge repository needed by the auth service.
type ChallengeRepo interface {
	Create(ctx context.Context, c *mfadomain.Challenge) error
	GetLatestByUser(ctx context.Context, userID string) (*mfadomain.Challenge, error)
	Consume(ctx context.Context, id string) (bool, error)
}

// GrantRevoker drops step-up grants when their session dies.
type GrantRevoker interface {
	RevokeSession(ctx context.Context, sessionID string) error
}

// SMSSender delivers an OTP out of band.
type SMSSender interface {
	SendOTP(phone, otp string) error
}

// DevOTPStore keeps plaintext OTPs for dev-mode retrieval.
type DevOTPStore interface {
	Put(ctx context.Context, challengeID, otp string, expiresAt time.Time)
}

// AuthService implements password (+OTP) login, session validation, and logout.
type AuthService struct {
	userRepo      UserRepo
	sessionRepo   SessionRepo
	challengeRepo ChallengeRepo
	grants        GrantRevoker
	hasher        *security.Hasher
	sms           SMSSender
	devOTP        DevOTPStore
	auditor       audit.AuditLogger
	sessionTTL    time.Duration
	otpTTL        time.Duration
}

// NewAuthService returns an AuthService with the given dependencies.
// sms, devOTP, grants, and auditor may be nil.
func NewAuthService(
	userRepo UserRepo,
	sessionRepo SessionRepo,
	challengeRepo ChallengeRepo,
	grants GrantRevoker,
	hasher *security.Hasher,
	sms SMSSender,
	devOTP DevOTPStore,
	auditor audit.AuditLogger,
	sessionTTL, otpTTL time.Duration,
) *AuthService {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	if otpTTL <= 0 {
		otpTTL = 5 * time.Minute
	}
	return &AuthService{
		userRepo:      userRepo,
		sessionRepo:   sessionRepo,
		challengeRepo: challengeRepo,
		grants:        grants,
		hasher:        hasher,
		sms:           sms,
		devOTP:        devOTP,
		auditor:       auditor,
		sessionTTL:    sessionTTL,
		otpTTL:        otpTTL,
	}
}

// Login authenticates with email/password and creates a session. For
// 2FA-enrolled accounts without a code it creates an OTP challenge and
// reports TwoFactorRequired instead of a session.
func (s *AuthService) Login(ctx context.Context, email, password, otpCode, backupCode, ip, userAgent string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		s.audit(ctx, "", "login_failure", email)
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		s.audit(ctx, user.ID, "login_failure", "")
		return nil, ErrInvalidCredentials
	}
	if user.TwoFactorEnabled {
		switch {
		case otpCode != "":
			if err := s.verifyOTP(ctx, user.ID, otpCode); err != nil {
				s.audit(ctx, user.ID, "login_failure", "")
				return nil, err
			}
		case backupCode != "":
			if err := s.verifyBackupCode(ctx, user.ID, backupCode); err != nil {
				s.audit(ctx, user.ID, "login_failure", "")
				return nil, err
			}
		default:
			challengeID, err := s.createChallenge(ctx, user)
			if err != nil {
				return nil, err
			}
			return &LoginResult{TwoFactorRequired: true, ChallengeID: challengeID}, nil
		}
	}
	csrfToken, err := security.NewCSRFToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	client := sessiondomain.ParseUserAgent(userAgent)
	sess := &sessiondomain.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		CSRFToken: csrfToken,
		IPAddress: ip,
		Device:    client.Device,
		Browser:   client.Browser,
		OS:        client.OS,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.audit(ctx, user.ID, "login", "")
	return &LoginResult{Session: sess, User: user}, nil
}

// ValidateSession resolves a session cookie to an active session and its user.
// Side effect: bumps the session's last-activity timestamp.
func (s *AuthService) ValidateSession(ctx context.Context, sessionID string) (*sessiondomain.Session, *userdomain.User, error) {
	if sessionID == "" {
		return nil, nil, ErrSessionNotFound
	}
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	if sess == nil || !sess.Active(now) {
		return nil, nil, ErrSessionNotFound
	}
	user, err := s.userRepo.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, nil, ErrSessionNotFound
	}
	if err := s.sessionRepo.UpdateLastActivity(ctx, sess.ID, now); err != nil {
		log.Printf("auth: failed to bump last activity for session %s: %v", sess.ID, err)
	}
	return sess, user, nil
}

// Logout revokes the session and every step-up grant issued under it. No-op
// when the session is already gone.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	if err := s.sessionRepo.Revoke(ctx, sessionID); err != nil {
		return err
	}
	if s.grants != nil {
		if err := s.grants.RevokeSession(ctx, sessionID); err != nil {
			log.Printf("auth: failed to drop step-up grants for session %s: %v", sessionID, err)
		}
	}
	s.audit(ctx, sess.UserID, "logout", "")
	return nil
}

func (s *AuthService) createChallenge(ctx context.Context, user *userdomain.User) (string, error) {
	otp, err := mfa.GenerateOTP()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	ch := &mfadomain.Challenge{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Phone:     user.Phone,
		CodeHash:  mfa.HashCode(otp),
		ExpiresAt: now.Add(s.otpTTL),
		CreatedAt: now,
	}
	if err := s.challengeRepo.Create(ctx, ch); err != nil {
		return "", err
	}
	if s.devOTP != nil {
		s.devOTP.Put(ctx, ch.ID, otp, ch.ExpiresAt)
	}
	if s.sms != nil && user.Phone != "" {
		if err := s.sms.SendOTP(user.Phone, otp); err != nil {
			log.Printf("auth: otp delivery to user %s failed: %v", user.ID, err)
		}
	}
	return ch.ID, nil
}

func (s *AuthService) verifyOTP(ctx context.Context, userID, code string) error {
	ch, err := s.challengeRepo.GetLatestByUser(ctx, userID)
	if err != nil {
		return err
	}
	if ch == nil || !ch.Usable(time.Now().UTC()) {
		return ErrInvalidCredentials
	}
	if !mfa.CodeEqual(code, ch.CodeHash) {
		return ErrInvalidCredentials
	}
	ok, err := s.challengeRepo.Consume(ctx, ch.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *AuthService) verifyBackupCode(ctx context.Context, userID, code string) error {
	hashes, err := s.userRepo.ListBackupCodeHashes(ctx, userID)
	if err != nil {
		return err
	}
	for id, hash := range hashes {
		if mfa.CodeEqual(code, hash) {
			ok, err := s.userRepo.ConsumeBackupCode(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return ErrInvalidCredentials
			}
			return nil
		}
	}
	return ErrInvalidCredentials
}

func (s *AuthService) audit(ctx context.Context, userID, action, note string) {
	if s.auditor == nil {
		return
	}
	s.auditor.Log(ctx, audit.Entry{UserID: userID, Action: action, Note: note})
}
