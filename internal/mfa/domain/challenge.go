package domain

import "time"

// Challenge represents an MFA OTP challenge (stored in mfa_challenges table).
// Consumed on first successful code verification; expires by wall clock otherwise.
type Challenge struct {
	ID         string
	UserID     string
	Phone      string
	CodeHash   string
	ExpiresAt  time.Time
	ConsumedAt *time.Time // nil while the code is still usable
	CreatedAt  time.Time
}

// Usable reports whether the challenge can still be answered at the given time.
func (c *Challenge) Usable(now time.Time) bool {
	return c != nil && c.ConsumedAt == nil && c.ExpiresAt.After(now)
}
