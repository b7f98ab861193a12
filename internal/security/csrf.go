package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
)

// NewCSRFToken returns a random hex token for the double-submit CSRF cookie.
// One token is minted per session at login and stored on the session row.
func NewCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CSRFTokenEqual performs constant-time comparison of the header token with the
// session-bound token. Returns true only if they match and are non-empty.
func CSRFTokenEqual(provided, stored string) bool {
	if provided == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(stored)) == 1
}
