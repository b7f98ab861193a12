package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// stepUpPurpose is the purpose claim on step-up tokens. A token minted for any
// other purpose never passes verification.
const stepUpPurpose = "step-up"

// StepUpClaims holds JWT claims for the step-up token. The token is a narrow
// credential: it proves recent re-authentication of Subject under SessionID
// and authorizes nothing by itself.
type StepUpClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	Purpose   string `json:"purpose"`
	SingleUse bool   `json:"single_use"`
}

// TokenProvider issues and validates step-up JWTs using RS256 or ES256 (private/public key).
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	stepUpTTL  time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on verification.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, stepUpTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		stepUpTTL:  stepUpTTL,
	}
}

// IssueStepUp mints a short-lived step-up JWT bound to the given user and session.
// Returns the token string, its jti (stored as a grant for session binding and
// single-use consumption), and expiration time.
func (p *TokenProvider) IssueStepUp(userID, sessionID string, singleUse bool) (token string, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.stepUpTTL)
	claims := StepUpClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
		Purpose:   stepUpPurpose,
		SingleUse: singleUse,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// ValidateStepUp parses and validates a step-up token (signature, exp, iss, aud, purpose).
// Returns userID, sessionID, jti, singleUse, or ErrInvalidToken. Binding the claims
// to the calling actor and session, and single-use consumption, are the caller's job.
func (p *TokenProvider) ValidateStepUp(tokenString string) (userID, sessionID, jti string, singleUse bool, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &StepUpClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
			return p.publicKey, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	})
	if err != nil {
		return "", "", "", false, ErrInvalidToken
	}
	claims, ok := token.Claims.(*StepUpClaims)
	if !ok || !token.Valid {
		return "", "", "", false, ErrInvalidToken
	}
	if claims.Issuer != p.issuer {
		return "", "", "", false, ErrInvalidToken
	}
	if claims.Purpose != stepUpPurpose {
		return "", "", "", false, ErrInvalidToken
	}
	audOk := false
	for _, a := range claims.Audience {
		if a == p.audience {
			audOk = true
			break
		}
	}
	if !audOk {
		return "", "", "", false, ErrInvalidToken
	}
	return claims.Subject, claims.SessionID, claims.ID, claims.SingleUse, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
