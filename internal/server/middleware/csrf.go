package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"exam-announce-admin/backend/internal/security"
)

// CSRFHeaderName is the request header the client must echo on every
// non-safe method.
const CSRFHeaderName = "X-CSRF-Token"

// CSRFGuard returns middleware enforcing the double-submit check on
// POST/PUT/PATCH/DELETE. It runs after SessionAuth and before everything
// else, including step-up verification: a request that fails CSRF never
// reaches business logic.
func CSRFGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		actor, ok := GetActor(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		provided := c.GetHeader(CSRFHeaderName)
		if !security.CSRFTokenEqual(provided, actor.CSRFToken) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "csrf_invalid"})
			return
		}
		c.Next()
	}
}
