package domain

import "time"

// Grant is the server-side record backing a step-up token. The token itself
// is a signed JWT; the grant row binds its jti to the issuing session so a
// token cannot be replayed from another session and single-use tokens can be
// consumed exactly once.
type Grant struct {
	JTI       string
	UserID    string
	SessionID string
	SingleUse bool
	IssuedAt  time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time // nil until a single-use grant is consumed
}

// Usable reports whether the grant can still authorize a sensitive action at now.
func (g *Grant) Usable(now time.Time) bool {
	if now.After(g.ExpiresAt) {
		return false
	}
	if g.SingleUse && g.UsedAt != nil {
		return false
	}
	return true
}
