package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"exam-announce-admin/backend/internal/mfa"
	mfadomain "exam-announce-admin/backend/internal/mfa/domain"
	"exam-announce-admin/backend/internal/security"
	stepupdomain "exam-announce-admin/backend/internal/stepup/domain"
	userdomain "exam-announce-admin/backend/internal/user/domain"
)

// Sentinel errors for the step-up service; handlers and the policy gate map
// them to HTTP responses.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrTwoFactorRequired   = errors.New("two-factor code required")
	ErrNotEnrolledMismatch = errors.New("second-factor code supplied but the account is not enrolled")
	ErrStepUpRequired      = errors.New("valid step-up token required")
)

// UserRepo is the minimal user repository needed by the step-up service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	ListBackupCodeHashes(ctx context.Context, userID string) (map[string]string, error)
	ConsumeBackupCode(ctx context.Context, codeID string) (bool, error)
}

// ChallengeRepo is the minimal OTP challenge repository needed by the step-up service.
type ChallengeRepo interface {
	Create(ctx context.Context, c *mfadomain.Challenge) error
	GetLatestByUser(ctx context.Context, userID string) (*mfadomain.Challenge, error)
	Consume(ctx context.Context, id string) (bool, error)
}

// GrantRepo is the minimal grant repository needed by the step-up service.
type GrantRepo interface {
	Create(ctx context.Context, g *stepupdomain.Grant) error
	GetByJTI(ctx context.Context, jti string) (*stepupdomain.Grant, error)
	ConsumeSingleUse(ctx context.Context, jti string) (bool, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}

// SMSSender delivers an OTP out of band.
type SMSSender interface {
	SendOTP(phone, otp string) error
}

// DevOTPStore keeps plaintext OTPs for dev-mode retrieval.
type DevOTPStore interface {
	Put(ctx context.Context, challengeID, otp string, expiresAt time.Time)
}

// IssueResult is a freshly minted step-up token.
type IssueResult struct {
	Token     string
	ExpiresAt time.Time
}

// Service issues and verifies step-up tokens. Issuing requires the caller to
// re-prove the password and, when enrolled, a second factor; verifying checks
// the signed token against the grant row bound to the issuing session.
type Service struct {
	userRepo      UserRepo
	challengeRepo ChallengeRepo
	grantRepo     GrantRepo
	hasher        *security.Hasher
	tokens        *security.TokenProvider
	sms           SMSSender
	devOTP        DevOTPStore
	otpTTL        time.Duration
	singleUse     bool
}

// NewService returns a step-up Service with the given dependencies.
// sms and devOTP may be nil; otpTTL <= 0 falls back to 5 minutes.
func NewService(
	userRepo UserRepo,
	challengeRepo ChallengeRepo,
	grantRepo GrantRepo,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	sms SMSSender,
	devOTP DevOTPStore,
	otpTTL time.Duration,
	singleUse bool,
) *Service {
	if otpTTL <= 0 {
		otpTTL = 5 * time.Minute
	}
	return &Service{
		userRepo:      userRepo,
		challengeRepo: challengeRepo,
		grantRepo:     grantRepo,
		hasher:        hasher,
		tokens:        tokens,
		sms:           sms,
		devOTP:        devOTP,
		otpTTL:        otpTTL,
		singleUse:     singleUse,
	}
}

// RequestChallenge creates an OTP challenge for the user and sends the code
// to their enrolled phone. Returns the challenge id, or "" when the user has
// no second factor enrolled and the caller should go straight to Issue.
func (s *Service) RequestChallenge(ctx context.Context, userID string) (string, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return "", ErrInvalidCredentials
	}
	if !user.TwoFactorEnabled {
		return "", nil
	}
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
			log.Printf("stepup: otp delivery to user %s failed: %v", user.ID, err)
		}
	}
	return ch.ID, nil
}

// Issue mints a step-up token for the session after re-verifying the password
// and, for 2FA-enrolled users, an OTP code or a backup code.
func (s *Service) Issue(ctx context.Context, userID, sessionID, password, otpCode, backupCode string) (*IssueResult, error) {
	if password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.TwoFactorEnabled && (otpCode != "" || backupCode != "") {
		return nil, ErrNotEnrolledMismatch
	}
	if user.TwoFactorEnabled {
		switch {
		case otpCode != "":
			if err := s.verifyOTP(ctx, user.ID, otpCode); err != nil {
				return nil, err
			}
		case backupCode != "":
			if err := s.verifyBackupCode(ctx, user.ID, backupCode); err != nil {
				return nil, err
			}
		default:
			return nil, ErrTwoFactorRequired
		}
	}
	token, jti, expiresAt, err := s.tokens.IssueStepUp(user.ID, sessionID, s.singleUse)
	if err != nil {
		return nil, err
	}
	grant := &stepupdomain.Grant{
		JTI:       jti,
		UserID:    user.ID,
		SessionID: sessionID,
		SingleUse: s.singleUse,
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
	if err := s.grantRepo.Create(ctx, grant); err != nil {
		return nil, err
	}
	return &IssueResult{Token: token, ExpiresAt: expiresAt}, nil
}

// Verify checks a step-up token presented by userID on sessionID. Any failure
// mode, from a missing token to a consumed single-use grant, comes back as
// ErrStepUpRequired so callers cannot distinguish why the token was rejected.
func (s *Service) Verify(ctx context.Context, userID, sessionID, token string) error {
	if token == "" {
		return ErrStepUpRequired
	}
	tokenUserID, tokenSessionID, jti, singleUse, err := s.tokens.ValidateStepUp(token)
	if err != nil {
		return ErrStepUpRequired
	}
	if tokenUserID != userID || tokenSessionID != sessionID {
		return ErrStepUpRequired
	}
	grant, err := s.grantRepo.GetByJTI(ctx, jti)
	if err != nil {
		return err
	}
	if grant == nil || grant.UserID != userID || grant.SessionID != sessionID {
		return ErrStepUpRequired
	}
	if !grant.Usable(time.Now().UTC()) {
		return ErrStepUpRequired
	}
	if singleUse {
		ok, err := s.grantRepo.ConsumeSingleUse(ctx, jti)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStepUpRequired
		}
	}
	return nil
}

// RevokeSession removes all grants minted against the session. Called on logout.
func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	return s.grantRepo.DeleteBySession(ctx, sessionID)
}

func (s *Service) verifyOTP(ctx context.Context, userID, code string) error {
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

func (s *Service) verifyBackupCode(ctx context.Context, userID, code string) error {
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
