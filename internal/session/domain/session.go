package domain

import (
	"strings"
	"time"
)

// Session represents a logged-in browser session. The session id doubles as
// the value of the admin session cookie; the CSRF token is the pair the
// browser must echo back in the X-CSRF-Token header on mutating requests.
type Session struct {
	ID             string
	UserID         string
	CSRFToken      string
	IPAddress      string
	Device         string
	Browser        string
	OS             string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	LastActivityAt *time.Time
	RevokedAt      *time.Time // nil when not revoked
}

// Active reports whether the session can still authenticate requests at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// ClientInfo is the device fingerprint recorded on a session at login,
// parsed from the User-Agent header.
type ClientInfo struct {
	Device  string
	Browser string
	OS      string
}

// ParseUserAgent extracts a coarse device/browser/os triple from a raw
// User-Agent header. Unknown agents come back as "unknown" rather than
// failing; the fields are informational only.
func ParseUserAgent(ua string) ClientInfo {
	info := ClientInfo{Device: "desktop", Browser: "unknown", OS: "unknown"}
	if ua == "" {
		info.Device = "unknown"
		return info
	}
	l := strings.ToLower(ua)

	switch {
	case strings.Contains(l, "ipad") || strings.Contains(l, "tablet"):
		info.Device = "tablet"
	case strings.Contains(l, "mobile") || strings.Contains(l, "iphone") || strings.Contains(l, "android"):
		info.Device = "mobile"
	}

	switch {
	case strings.Contains(l, "windows"):
		info.OS = "windows"
	case strings.Contains(l, "android"):
		info.OS = "android"
	case strings.Contains(l, "iphone") || strings.Contains(l, "ipad") || strings.Contains(l, "ios"):
		info.OS = "ios"
	case strings.Contains(l, "mac os") || strings.Contains(l, "macintosh"):
		info.OS = "macos"
	case strings.Contains(l, "linux"):
		info.OS = "linux"
	}

	switch {
	case strings.Contains(l, "edg/"):
		info.Browser = "edge"
	case strings.Contains(l, "opr/") || strings.Contains(l, "opera"):
		info.Browser = "opera"
	case strings.Contains(l, "chrome/"):
		info.Browser = "chrome"
	case strings.Contains(l, "firefox/"):
		info.Browser = "firefox"
	case strings.Contains(l, "safari/"):
		info.Browser = "safari"
	case strings.Contains(l, "curl/"):
		info.Browser = "curl"
	}
	return info
}
