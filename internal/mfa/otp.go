// Package mfa implements second-factor verification for admin accounts:
// 6-digit OTP challenges delivered by SMS, and single-use backup codes.
package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	otpDigits       = 6
	backupCodeBytes = 5
	// BackupCodeCount is how many backup codes are minted at 2FA enrollment.
	BackupCodeCount = 8
)

// GenerateOTP returns a 6-digit numeric OTP string (e.g. "123456").
// Uses crypto/rand for randomness.
func GenerateOTP() (string, error) {
	b := make([]byte, otpDigits)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := make([]byte, otpDigits)
	for i := 0; i < otpDigits; i++ {
		s[i] = '0' + (b[i] % 10)
	}
	return string(s), nil
}

// GenerateBackupCodes returns n random backup codes (10 hex chars each).
// Codes are shown to the user once; only hashes are stored.
func GenerateBackupCodes(n int) ([]string, error) {
	if n <= 0 {
		n = BackupCodeCount
	}
	codes := make([]string, n)
	for i := range codes {
		b := make([]byte, backupCodeBytes)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("mfa: generate backup code: %w", err)
		}
		codes[i] = hex.EncodeToString(b)
	}
	return codes, nil
}

// HashCode returns a SHA-256 hash of an OTP or backup code, hex-encoded.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// CodeEqual performs constant-time comparison of the provided code's hash with the stored hash.
func CodeEqual(providedCode, storedHash string) bool {
	providedHash := HashCode(providedCode)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
