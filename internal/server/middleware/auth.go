package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	sessiondomain "exam-announce-admin/backend/internal/session/domain"
	userdomain "exam-announce-admin/backend/internal/user/domain"
)

// SessionCookieName is the admin session cookie. The cookie value is the
// opaque session id; everything else lives server-side.
const SessionCookieName = "examadmin_session"

// CSRFCookieName is the double-submit cookie mirroring the session's CSRF
// token. Readable by the frontend, which echoes it in X-CSRF-Token.
const CSRFCookieName = "examadmin_csrf"

// SessionValidator resolves a session id to its session and user. Implemented
// by the identity auth service.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string) (*sessiondomain.Session, *userdomain.User, error)
}

// SessionAuth returns middleware that resolves the session cookie to an Actor
// and stores it on the request context. Requests without an active session get
// 401 before any handler runs.
func SessionAuth(auth SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(SessionCookieName)
		if err != nil || sessionID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		sess, user, err := auth.ValidateSession(c.Request.Context(), sessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		actor := Actor{
			UserID:      user.ID,
			SessionID:   sess.ID,
			Role:        string(user.Role),
			Permissions: user.Permissions(),
			CSRFToken:   sess.CSRFToken,
		}
		c.Request = c.Request.WithContext(WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// RequirePermission returns middleware rejecting actors whose role does not
// grant perm. Must run after SessionAuth.
func RequirePermission(perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c.Request.Context())
		if !ok || !actor.HasPermission(perm) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission_denied"})
			return
		}
		c.Next()
	}
}
